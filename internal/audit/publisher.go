package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pactline/internal/ledger"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/requestcontext"
)

// Trail writes audit records with fail-closed semantics: when a record cannot
// be persisted the caller's operation must fail.
//
// Records for ledger events are not emitted here. Callers build them with
// ForEvent and persist them in the same commit as the event.
type Trail struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Trail)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

func New(store Store, opts ...Option) *Trail {
	t := &Trail{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Capture reads the client context that request middleware attached to ctx.
func Capture(ctx context.Context) ClientContext {
	return ClientContext{
		NetworkOrigin: AnonymiseIP(requestcontext.ClientIP(ctx)),
		DeviceClass:   DeviceClass(requestcontext.UserAgent(ctx)),
		Geolocation:   CoarseLocation(requestcontext.Geolocation(ctx)),
	}
}

// ForEvent builds the record accompanying a committed ledger event.
func ForEvent(ctx context.Context, e ledger.Event) Record {
	cc := Capture(ctx)
	seq := e.Sequence
	rec := Record{
		ID:            id.NewAuditRecordID(),
		AgreementID:   e.AgreementID,
		SignerID:      e.SignerID,
		EventSequence: &seq,
		Action:        actionFor(e.Kind),
		Outcome:       OutcomeSuccess,
		Actor:         e.SignerIdentity,
		NetworkOrigin: e.NetworkOrigin,
		DeviceClass:   cc.DeviceClass,
		Geolocation:   e.Geolocation,
		Timestamp:     e.Timestamp,
		RequestID:     requestcontext.RequestID(ctx),
	}
	return rec
}

func actionFor(k ledger.Kind) Action {
	switch k {
	case ledger.KindDeclined:
		return ActionDeclineRecorded
	case ledger.KindExpired:
		return ActionExpiryRecorded
	default:
		return ActionSignatureRecorded
	}
}

// Emit synchronously persists a record outside a ledger commit.
func (t *Trail) Emit(ctx context.Context, rec Record) error {
	start := time.Now()
	if rec.AgreementID.IsNil() {
		return fmt.Errorf("audit record requires an agreement id")
	}
	if rec.Action == "" {
		return fmt.Errorf("audit record requires an action")
	}
	if rec.ID.IsNil() {
		rec.ID = id.NewAuditRecordID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = requestcontext.Now(ctx)
	}
	if rec.RequestID == "" {
		rec.RequestID = requestcontext.RequestID(ctx)
	}

	if err := t.store.Append(ctx, rec); err != nil {
		t.metrics.incPersistFailures()
		if t.logger != nil {
			t.logger.ErrorContext(ctx, "CRITICAL: audit record not persisted",
				"action", rec.Action,
				"agreement_id", rec.AgreementID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	t.metrics.observe(rec.Action, time.Since(start))
	return nil
}

// RecordFailedAttempt audits a rejected signing attempt. The agreement state
// is untouched by the attempt; only this record remains.
func (t *Trail) RecordFailedAttempt(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, actor id.IdentityRef, reason string) error {
	cc := Capture(ctx)
	return t.Emit(ctx, Record{
		AgreementID:   agreementID,
		SignerID:      &signerID,
		Action:        ActionVerificationFailed,
		Outcome:       Outcome(reason),
		Actor:         actor,
		NetworkOrigin: cc.NetworkOrigin,
		DeviceClass:   cc.DeviceClass,
		Geolocation:   cc.Geolocation,
	})
}

func (t *Trail) List(ctx context.Context, agreementID id.AgreementID) ([]Record, error) {
	return t.store.ListByAgreement(ctx, agreementID)
}

// CodeRevoked audits an administrative revocation of a verification code. The
// reason is kept as the record's outcome.
func (t *Trail) CodeRevoked(ctx context.Context, rec verification.Record, reason string) error {
	cc := Capture(ctx)
	return t.Emit(ctx, Record{
		AgreementID:   rec.AgreementID,
		Action:        ActionCodeRevoked,
		Outcome:       Outcome(reason),
		Actor:         requestcontext.Caller(ctx),
		NetworkOrigin: cc.NetworkOrigin,
		DeviceClass:   cc.DeviceClass,
		Geolocation:   cc.Geolocation,
	})
}
