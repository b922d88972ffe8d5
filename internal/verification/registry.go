package verification

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"pactline/internal/ledger"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/sentinel"
)

const codeBytes = 32

var tracer = otel.Tracer("pactline/verification")

// Registry issues and resolves public verification codes.
type Registry struct {
	store   Store
	source  ChainSource
	auditor Auditor
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithAuditor(a Auditor) Option {
	return func(r *Registry) {
		r.auditor = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(store Store, source ChainSource, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewCode returns 32 random bytes, base64url-encoded without padding.
func NewCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewRecord mints a record for an agreement that just reached a terminal
// status. Callers persist it in the same commit as the terminal event.
func NewRecord(agreementID id.AgreementID, finalChainHash, status string, at time.Time) (Record, error) {
	code, err := NewCode()
	if err != nil {
		return Record{}, err
	}
	return Record{
		Code:            code,
		AgreementID:     agreementID,
		FinalChainHash:  finalChainHash,
		AgreementStatus: status,
		IssuedAt:        at.UTC(),
		Validity:        ValidityValid,
	}, nil
}

// Issue returns the agreement's code, minting one if none exists yet.
// Repeated calls for the same agreement return the same code.
//
// The signing path does not call Issue: it persists a NewRecord in the same
// commit as the terminal event. Issue is the standalone path for agreements
// that reached a terminal state without a code, and replaying it against an
// agreement the commit already covered returns the committed code.
func (r *Registry) Issue(ctx context.Context, agreementID id.AgreementID, finalChainHash, status string) (string, error) {
	existing, err := r.store.GetByAgreement(ctx, agreementID)
	switch {
	case err == nil:
		return existing.Code, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verification record")
	}

	rec, err := NewRecord(agreementID, finalChainHash, status, r.now())
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint verification code")
	}
	if err := r.store.Create(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			existing, gerr := r.store.GetByAgreement(ctx, agreementID)
			if gerr != nil {
				return "", dErrors.Wrap(gerr, dErrors.CodeInternal, "failed to look up verification record")
			}
			return existing.Code, nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification record")
	}
	r.metrics.incIssued()
	return rec.Code, nil
}

// Resolve recomputes the chain behind code. A chain that no longer matches is
// reported through the result, never as an error.
func (r *Registry) Resolve(ctx context.Context, code string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "verification.Resolve")
	defer span.End()

	if !wellFormed(code) {
		r.metrics.incResolved("not_found")
		return nil, dErrors.New(dErrors.CodeCodeNotFound, "verification code not found")
	}

	rec, err := r.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			r.metrics.incResolved("not_found")
			return nil, dErrors.New(dErrors.CodeCodeNotFound, "verification code not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification record")
	}
	if rec.Validity == ValidityRevoked {
		r.metrics.incResolved("revoked")
		return nil, dErrors.New(dErrors.CodeCodeRevoked, "verification code has been revoked")
	}
	span.SetAttributes(attribute.String("agreement_id", rec.AgreementID.String()))

	var (
		summary *AgreementSummary
		signers []SignerSummary
		events  []ledger.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = r.source.AgreementSummary(gctx, rec.AgreementID)
		return err
	})
	g.Go(func() error {
		var err error
		signers, err = r.source.SignerSummaries(gctx, rec.AgreementID)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = r.source.Events(gctx, rec.AgreementID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// A record whose agreement is gone is a storage integrity failure.
			return r.notVerifiable(rec), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agreement chain")
	}

	check := ledger.Verify(rec.AgreementID, summary.ContentHash, events)
	chainValid := check.Valid && check.Head == rec.FinalChainHash

	res := &Result{
		Code:           rec.Code,
		Validity:       rec.Validity,
		ChainValid:     chainValid,
		IssuedAt:       rec.IssuedAt,
		IssuedStatus:   rec.AgreementStatus,
		StoredHash:     rec.FinalChainHash,
		RecomputedHash: check.Head,
		BrokenAt:       check.BrokenAt,
		Agreement:      *summary,
		Signers:        signers,
		Events:         summarise(events),
	}
	switch {
	case !chainValid:
		res.Verdict = VerdictNotVerifiable
		if r.logger != nil {
			r.logger.WarnContext(ctx, "verification chain mismatch",
				"agreement_id", rec.AgreementID,
				"broken_at", check.BrokenAt,
			)
		}
	case rec.Validity == ValiditySuperseded:
		res.Verdict = VerdictSuperseded
	default:
		res.Verdict = VerdictVerified
	}
	r.metrics.incResolved(string(res.Verdict))
	return res, nil
}

func (r *Registry) notVerifiable(rec *Record) *Result {
	r.metrics.incResolved(string(VerdictNotVerifiable))
	return &Result{
		Code:         rec.Code,
		Verdict:      VerdictNotVerifiable,
		Validity:     rec.Validity,
		IssuedAt:     rec.IssuedAt,
		IssuedStatus: rec.AgreementStatus,
		StoredHash:   rec.FinalChainHash,
		Agreement:    AgreementSummary{ID: rec.AgreementID},
		Signers:      []SignerSummary{},
		Events:       []EventSummary{},
	}
}

// Revoke is the administrative hook. Revoking twice is a no-op.
func (r *Registry) Revoke(ctx context.Context, code, reason string) error {
	if !wellFormed(code) {
		return dErrors.New(dErrors.CodeCodeNotFound, "verification code not found")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "revocation reason is required")
	}
	rec, err := r.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeCodeNotFound, "verification code not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification record")
	}
	if rec.Validity == ValidityRevoked {
		return nil
	}
	if err := r.store.Revoke(ctx, code, reason, r.now().UTC()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke verification record")
	}
	if r.auditor != nil {
		if err := r.auditor.CodeRevoked(ctx, *rec, reason); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit revocation")
		}
	}
	r.metrics.incRevoked()
	if r.logger != nil {
		r.logger.InfoContext(ctx, "verification code revoked", "agreement_id", rec.AgreementID)
	}
	return nil
}

func wellFormed(code string) bool {
	if len(code) != base64.RawURLEncoding.EncodedLen(codeBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(code)
	return err == nil
}

func summarise(events []ledger.Event) []EventSummary {
	out := make([]EventSummary, 0, len(events))
	for _, e := range events {
		out = append(out, EventSummary{
			Sequence:  e.Sequence,
			Kind:      e.Kind,
			SignerID:  e.SignerID,
			Timestamp: e.Timestamp,
			Method:    e.Method,
			Hash:      e.Hash,
		})
	}
	return out
}
