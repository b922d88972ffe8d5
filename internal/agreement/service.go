package agreement

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pactline/internal/audit"
	"pactline/internal/identity"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/snapshot"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/sentinel"
	"pactline/pkg/requestcontext"
)

var tracer = otel.Tracer("pactline/agreement")

const (
	maxSigners         = 100
	maxReasonLength    = 1000
	defaultVerifyLease = time.Minute
	sweepBatchSize     = 100
	auditTimeout       = 5 * time.Second
)

// Verifier is the identity capability the service calls once per signing
// attempt.
type Verifier interface {
	Verify(ctx context.Context, sc identity.SignerContext, proof identity.Proof) (identity.Outcome, error)
}

// AttemptAuditor records rejected signing attempts.
type AttemptAuditor interface {
	RecordFailedAttempt(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, actor id.IdentityRef, reason string) error
}

// Service runs the agreement lifecycle. All state changes go through
// Store.Commit under optimistic concurrency, so no lock is held across an
// identity check or a storage round trip.
type Service struct {
	store       Store
	verifier    Verifier
	attempts    AttemptAuditor
	appender    *ledger.Appender
	codes       CodeLookup
	logger      *slog.Logger
	metrics     *Metrics
	issueOn     map[Status]bool
	verifyLease time.Duration
	now         func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAppender(a *ledger.Appender) Option {
	return func(s *Service) {
		s.appender = a
	}
}

func WithCodeLookup(c CodeLookup) Option {
	return func(s *Service) {
		s.codes = c
	}
}

// WithIssuanceOn selects which terminal statuses mint a verification code.
func WithIssuanceOn(statuses ...Status) Option {
	return func(s *Service) {
		s.issueOn = make(map[Status]bool, len(statuses))
		for _, st := range statuses {
			if st.IsTerminal() {
				s.issueOn[st] = true
			}
		}
	}
}

func WithVerifyLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verifyLease = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, verifier Verifier, attempts AttemptAuditor, opts ...Option) *Service {
	s := &Service{
		store:       store,
		verifier:    verifier,
		attempts:    attempts,
		appender:    ledger.NewAppender(),
		logger:      slog.New(slog.DiscardHandler),
		issueOn:     map[Status]bool{StatusCompleted: true, StatusDeclined: true},
		verifyLease: defaultVerifyLease,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Creation and dispatch
// =============================================================================

// CreateAgreement snapshots the content, attaches the signers and dispatches
// in one step.
func (s *Service) CreateAgreement(ctx context.Context, req CreateRequest) (*Agreement, error) {
	ctx, span := tracer.Start(ctx, "agreement.Create")
	defer span.End()

	if len(req.Signers) == 0 {
		return nil, dErrors.New(dErrors.CodeNoSigners, "an agreement needs at least one signer")
	}
	a, signers, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	now := a.CreatedAt
	a.Status = StatusDispatched
	a.DispatchedAt = &now

	outbox, err := s.signatureRequests(a, signers, now)
	if err != nil {
		return nil, err
	}
	creation := Creation{
		Agreement: *a,
		Signers:   signers,
		Audit: []audit.Record{
			s.lifecycleRecord(ctx, a.ID, audit.ActionAgreementCreated, now),
			s.lifecycleRecord(ctx, a.ID, audit.ActionAgreementDispatched, now),
		},
		Outbox: outbox,
	}
	if err := s.store.Create(ctx, creation); err != nil {
		return nil, s.storeError(err, "failed to create agreement")
	}

	span.SetAttributes(attribute.String("agreement_id", a.ID.String()))
	s.metrics.incTransition(StatusDispatched)
	s.logger.InfoContext(ctx, "agreement dispatched",
		"agreement_id", a.ID,
		"signers", len(signers),
		"quorum", a.Quorum.Kind,
	)
	return a, nil
}

// CreateDraft snapshots the content without dispatching. Signers may be
// attached later.
func (s *Service) CreateDraft(ctx context.Context, req CreateRequest) (*Agreement, error) {
	ctx, span := tracer.Start(ctx, "agreement.CreateDraft")
	defer span.End()

	a, signers, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	creation := Creation{
		Agreement: *a,
		Signers:   signers,
		Audit:     []audit.Record{s.lifecycleRecord(ctx, a.ID, audit.ActionAgreementCreated, a.CreatedAt)},
	}
	if err := s.store.Create(ctx, creation); err != nil {
		return nil, s.storeError(err, "failed to create agreement")
	}
	s.metrics.incTransition(StatusDraft)
	return a, nil
}

// AttachSigners replaces the signers of a draft.
func (s *Service) AttachSigners(ctx context.Context, agreementID id.AgreementID, specs []SignerSpec) ([]Signer, error) {
	a, err := s.load(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCreator(ctx, a); err != nil {
		return nil, err
	}
	if a.Status != StatusDraft {
		return nil, stateError(a)
	}
	signers, err := buildSigners(a.ID, specs)
	if err != nil {
		return nil, err
	}
	if err := a.Quorum.Validate(len(signers)); err != nil {
		return nil, err
	}
	if err := s.store.AttachSigners(ctx, a.ID, signers); err != nil {
		return nil, s.storeError(err, "failed to attach signers")
	}
	return signers, nil
}

// Dispatch freezes a draft and asks its signers to sign.
func (s *Service) Dispatch(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	ctx, span := tracer.Start(ctx, "agreement.Dispatch", trace.WithAttributes(attribute.String("agreement_id", agreementID.String())))
	defer span.End()

	a, err := s.load(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCreator(ctx, a); err != nil {
		return nil, err
	}
	if a.Status != StatusDraft {
		return nil, stateError(a)
	}
	signers, err := s.store.ListSigners(ctx, a.ID)
	if err != nil {
		return nil, s.storeError(err, "failed to load signers")
	}
	if len(signers) == 0 {
		return nil, dErrors.New(dErrors.CodeNoSigners, "an agreement needs at least one signer")
	}
	if err := a.Quorum.Validate(len(signers)); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if a.ExpiredAt(now) {
		return nil, dErrors.New(dErrors.CodeAgreementClosed, "agreement has expired")
	}
	outbox, err := s.signatureRequests(a, signers, now)
	if err != nil {
		return nil, err
	}
	d := Dispatch{
		AgreementID:  a.ID,
		DispatchedAt: now,
		Audit:        s.lifecycleRecord(ctx, a.ID, audit.ActionAgreementDispatched, now),
		Outbox:       outbox,
	}
	if err := s.store.Dispatch(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "agreement is no longer a draft")
		}
		return nil, s.storeError(err, "failed to dispatch agreement")
	}
	a.Status = StatusDispatched
	a.DispatchedAt = &now
	s.metrics.incTransition(StatusDispatched)
	return a, nil
}

func (s *Service) prepare(ctx context.Context, req CreateRequest) (*Agreement, []Signer, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if req.Quorum.Kind == "" {
		req.Quorum.Kind = QuorumAll
	}
	if err := req.Quorum.Validate(len(req.Signers)); err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}

	snap, err := snapshot.Take(req.Content, req.Metadata)
	if err != nil {
		return nil, nil, err
	}

	if req.SupersedesID != nil {
		prior, err := s.load(ctx, *req.SupersedesID)
		if err != nil {
			return nil, nil, err
		}
		if err := s.authorizeCreator(ctx, prior); err != nil {
			return nil, nil, err
		}
	}

	a := &Agreement{
		ID:           id.NewAgreementID(),
		TemplateRef:  strings.TrimSpace(req.TemplateRef),
		SupersedesID: req.SupersedesID,
		Content:      snap,
		Status:       StatusDraft,
		Quorum:       req.Quorum,
		Sequential:   req.Sequential,
		CreatedBy:    caller,
		CreatedAt:    now,
		ExpiresAt:    utcPtr(req.ExpiresAt),
	}
	a.HeadHash = ledger.Genesis(a.ID, snap.Hash)

	signers, err := buildSigners(a.ID, req.Signers)
	if err != nil {
		return nil, nil, err
	}
	return a, signers, nil
}

func buildSigners(agreementID id.AgreementID, specs []SignerSpec) ([]Signer, error) {
	if len(specs) > maxSigners {
		return nil, dErrors.New(dErrors.CodeValidation, "too many signers")
	}
	seen := make(map[id.IdentityRef]bool, len(specs))
	signers := make([]Signer, 0, len(specs))
	for i, spec := range specs {
		ref, err := id.ParseIdentityRef(string(spec.IdentityRef))
		if err != nil {
			return nil, err
		}
		if seen[ref] {
			return nil, dErrors.New(dErrors.CodeValidation, "duplicate signer: "+ref.String())
		}
		seen[ref] = true
		if !spec.Method.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unsupported verification method: "+spec.Method.String())
		}
		signers = append(signers, Signer{
			ID:          id.NewSignerID(),
			AgreementID: agreementID,
			IdentityRef: ref,
			Method:      spec.Method,
			Status:      SignerPending,
			Order:       i,
		})
	}
	return signers, nil
}

func (s *Service) signatureRequests(a *Agreement, signers []Signer, now time.Time) ([]notify.Message, error) {
	targets := signers
	if a.Sequential {
		next, ok := NextInOrder(signers)
		if !ok {
			return nil, nil
		}
		targets = []Signer{next}
	}
	out := make([]notify.Message, 0, len(targets))
	for _, sg := range targets {
		msg, err := signatureRequested(a, sg, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build notification")
		}
		out = append(out, msg)
	}
	return out, nil
}

func signatureRequested(a *Agreement, sg Signer, now time.Time) (notify.Message, error) {
	return notify.NewMessage(notify.EventSignatureRequested, a.ID, notify.SignatureRequested{
		AgreementID: a.ID,
		SignerID:    sg.ID,
		IdentityRef: sg.IdentityRef,
		Method:      sg.Method,
		ContentHash: a.Content.Hash,
		ExpiresAt:   a.ExpiresAt,
	}, now)
}

// =============================================================================
// Signing
// =============================================================================

// RequestSignature verifies the signer and appends a signed event. A failed
// check leaves the agreement unchanged and is audited.
func (s *Service) RequestSignature(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, proof identity.Proof) (*ledger.Event, error) {
	ctx, span := tracer.Start(ctx, "agreement.RequestSignature", trace.WithAttributes(
		attribute.String("agreement_id", agreementID.String()),
		attribute.String("signer_id", signerID.String()),
	))
	defer span.End()

	a, signers, err := s.loadWithSigners(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	signer, err := CheckSignable(a, signers, signerID, s.now())
	if err != nil {
		return nil, err
	}
	if err := authorizeSigner(ctx, signer); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.store.BeginVerification(ctx, a.ID, signer.ID, now, now.Add(s.verifyLease)); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a signing attempt is already in progress for this signer")
		}
		return nil, s.storeError(err, "failed to start verification")
	}

	outcome, err := s.verifier.Verify(ctx, identity.SignerContext{
		AgreementID: a.ID,
		SignerID:    signer.ID,
		IdentityRef: signer.IdentityRef,
		ContentHash: a.Content.Hash,
		Method:      signer.Method,
	}, proof)
	if err != nil {
		s.release(ctx, a.ID, signer.ID)
		s.metrics.incSignature(string(dErrors.CodeOf(err)))
		if aerr := s.recordFailedAttempt(ctx, a.ID, signer, dErrors.CodeOf(err)); aerr != nil {
			s.logger.ErrorContext(ctx, "failed attempt not audited", "agreement_id", a.ID, "error", aerr)
			return nil, dErrors.Wrap(aerr, dErrors.CodeInternal, "failed to record verification attempt")
		}
		return nil, err
	}

	event, err := s.appender.Append(ctx, &signTx{svc: s, agreementID: a.ID, signerID: signer.ID, outcome: outcome})
	if err != nil {
		s.release(ctx, a.ID, signer.ID)
		s.metrics.incSignature(string(dErrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.incSignature("signed")
	s.logger.InfoContext(ctx, "signature recorded",
		"agreement_id", a.ID,
		"signer_id", signer.ID,
		"sequence", event.Sequence,
		"method", outcome.Method,
	)
	return event, nil
}

// recordFailedAttempt audits a rejected attempt on a context detached from
// the caller, so an expired request deadline still leaves the record behind.
func (s *Service) recordFailedAttempt(ctx context.Context, agreementID id.AgreementID, signer *Signer, code dErrors.Code) error {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	return s.attempts.RecordFailedAttempt(auditCtx, agreementID, signer.ID, signer.IdentityRef, string(code))
}

// release returns a leased signer to pending. A signer that was resolved in
// the meantime is left alone by the store.
func (s *Service) release(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID) {
	if err := s.store.EndVerification(context.WithoutCancel(ctx), agreementID, signerID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to release verification lease", "agreement_id", agreementID, "signer_id", signerID, "error", err)
	}
}

// Decline records the signer's refusal.
func (s *Service) Decline(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, reason string) error {
	ctx, span := tracer.Start(ctx, "agreement.Decline", trace.WithAttributes(attribute.String("agreement_id", agreementID.String())))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	a, signers, err := s.loadWithSigners(ctx, agreementID)
	if err != nil {
		return err
	}
	signer, err := CheckSignable(a, signers, signerID, s.now())
	if err != nil {
		return err
	}
	if err := authorizeSigner(ctx, signer); err != nil {
		return err
	}

	event, err := s.appender.Append(ctx, &declineTx{svc: s, agreementID: a.ID, signerID: signer.ID, reason: reason})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "decline recorded", "agreement_id", a.ID, "signer_id", signer.ID, "sequence", event.Sequence)
	return nil
}

// =============================================================================
// Reads
// =============================================================================

// GetStatus returns the agreement, its signers and its chain to the creator
// or one of its signers.
func (s *Service) GetStatus(ctx context.Context, agreementID id.AgreementID) (*StatusView, error) {
	a, signers, err := s.loadWithSigners(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	caller := requestcontext.Caller(ctx)
	bound := caller == a.CreatedBy || slices.ContainsFunc(signers, func(sg Signer) bool { return sg.IdentityRef == caller })
	if !bound && !requestcontext.IsAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not bound to this agreement")
	}
	events, err := s.store.ListEvents(ctx, a.ID)
	if err != nil {
		return nil, s.storeError(err, "failed to load events")
	}

	view := &StatusView{Agreement: a, Signers: signers, Events: events}
	if a.Status.IsTerminal() && s.codes != nil {
		rec, err := s.codes.GetByAgreement(ctx, a.ID)
		switch {
		case err == nil:
			view.VerificationCode = rec.Code
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, s.storeError(err, "failed to load verification record")
		}
	}
	return view, nil
}

// =============================================================================
// Expiry
// =============================================================================

// SweepExpired closes every open agreement whose expiry is at or before now.
// Running it concurrently is safe: each agreement is expired by exactly one
// committed event and the other sweepers skip it.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "agreement.SweepExpired")
	defer span.End()

	ctx = requestcontext.WithTime(ctx, now)
	expired := 0
	for {
		ids, err := s.store.ListExpiring(ctx, now, sweepBatchSize)
		if err != nil {
			return expired, s.storeError(err, "failed to list expiring agreements")
		}
		progressed := 0
		for _, agreementID := range ids {
			_, err := s.appender.Append(ctx, &expireTx{svc: s, agreementID: agreementID, now: now})
			switch {
			case err == nil:
				expired++
				progressed++
			case errors.Is(err, errNothingToExpire):
			default:
				s.logger.ErrorContext(ctx, "failed to expire agreement", "agreement_id", agreementID, "error", err)
			}
		}
		if len(ids) < sweepBatchSize || progressed == 0 {
			break
		}
	}
	span.SetAttributes(attribute.Int("expired", expired))
	if expired > 0 {
		s.logger.InfoContext(ctx, "expiry sweep closed agreements", "count", expired)
	}
	return expired, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Service) load(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	a, err := s.store.Get(ctx, agreementID)
	if err != nil {
		return nil, s.storeError(err, "failed to load agreement")
	}
	return a, nil
}

func (s *Service) loadWithSigners(ctx context.Context, agreementID id.AgreementID) (*Agreement, []Signer, error) {
	a, err := s.load(ctx, agreementID)
	if err != nil {
		return nil, nil, err
	}
	signers, err := s.store.ListSigners(ctx, agreementID)
	if err != nil {
		return nil, nil, s.storeError(err, "failed to load signers")
	}
	return a, signers, nil
}

func (s *Service) authorizeCreator(ctx context.Context, a *Agreement) error {
	if requestcontext.Caller(ctx) != a.CreatedBy {
		return dErrors.New(dErrors.CodeForbidden, "only the creator may change this agreement")
	}
	return nil
}

func authorizeSigner(ctx context.Context, sg *Signer) error {
	if requestcontext.Caller(ctx) != sg.IdentityRef {
		return dErrors.New(dErrors.CodeForbidden, "caller is not this signer")
	}
	return nil
}

func stateError(a *Agreement) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeAgreementClosed, "agreement is "+a.Status.String())
	}
	return dErrors.New(dErrors.CodeConflict, "agreement is already "+a.Status.String())
}

func (s *Service) storeError(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "agreement not found")
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) lifecycleRecord(ctx context.Context, agreementID id.AgreementID, action audit.Action, at time.Time) audit.Record {
	cc := audit.Capture(ctx)
	return audit.Record{
		ID:            id.NewAuditRecordID(),
		AgreementID:   agreementID,
		Action:        action,
		Outcome:       audit.OutcomeSuccess,
		Actor:         requestcontext.Caller(ctx),
		NetworkOrigin: cc.NetworkOrigin,
		DeviceClass:   cc.DeviceClass,
		Geolocation:   cc.Geolocation,
		Timestamp:     at,
		RequestID:     requestcontext.RequestID(ctx),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
