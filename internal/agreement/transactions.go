package agreement

import (
	"context"
	"errors"
	"time"

	"pactline/internal/audit"
	"pactline/internal/identity"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/requestcontext"
)

// errNothingToExpire stops an expiry attempt whose agreement was closed or
// extended since it was listed.
var errNothingToExpire = errors.New("agreement no longer expirable")

// state is what one optimistic attempt read in Prepare.
type state struct {
	agreement Agreement
	signers   []Signer
}

func (s *Service) read(ctx context.Context, agreementID id.AgreementID) (state, error) {
	a, err := s.store.Get(ctx, agreementID)
	if err != nil {
		return state{}, err
	}
	signers, err := s.store.ListSigners(ctx, agreementID)
	if err != nil {
		return state{}, err
	}
	return state{agreement: *a, signers: signers}, nil
}

// signTx appends a signed event for an already verified signer. The identity
// outcome is reused across retries; only the chain head is re-read.
type signTx struct {
	svc         *Service
	agreementID id.AgreementID
	signerID    id.SignerID
	outcome     identity.Outcome
	st          state
}

func (t *signTx) Prepare(ctx context.Context) (ledger.Head, ledger.Draft, error) {
	st, err := t.svc.read(ctx, t.agreementID)
	if err != nil {
		return ledger.Head{}, ledger.Draft{}, err
	}
	now := t.svc.now().UTC()
	signer, err := CheckSignable(&st.agreement, st.signers, t.signerID, now)
	if err != nil {
		return ledger.Head{}, ledger.Draft{}, err
	}
	t.st = st

	cc := audit.Capture(ctx)
	return st.agreement.Head(), ledger.Draft{
		Kind:              ledger.KindSigned,
		SignerID:          &signer.ID,
		SignerIdentity:    signer.IdentityRef,
		Timestamp:         now,
		Method:            t.outcome.Method,
		AssertionRef:      t.outcome.AssertionRef,
		DeviceFingerprint: deviceFingerprint(ctx, t.outcome),
		NetworkOrigin:     cc.NetworkOrigin,
		Geolocation:       cc.Geolocation,
	}, nil
}

func (t *signTx) Commit(ctx context.Context, _ ledger.Head, e ledger.Event) error {
	return t.svc.commit(ctx, t.st, e)
}

type declineTx struct {
	svc         *Service
	agreementID id.AgreementID
	signerID    id.SignerID
	reason      string
	st          state
}

func (t *declineTx) Prepare(ctx context.Context) (ledger.Head, ledger.Draft, error) {
	st, err := t.svc.read(ctx, t.agreementID)
	if err != nil {
		return ledger.Head{}, ledger.Draft{}, err
	}
	now := t.svc.now().UTC()
	signer, err := CheckSignable(&st.agreement, st.signers, t.signerID, now)
	if err != nil {
		return ledger.Head{}, ledger.Draft{}, err
	}
	t.st = st

	cc := audit.Capture(ctx)
	return st.agreement.Head(), ledger.Draft{
		Kind:              ledger.KindDeclined,
		SignerID:          &signer.ID,
		SignerIdentity:    signer.IdentityRef,
		Timestamp:         now,
		DeviceFingerprint: requestcontext.DeviceFingerprint(ctx),
		NetworkOrigin:     cc.NetworkOrigin,
		Geolocation:       cc.Geolocation,
		Reason:            t.reason,
	}, nil
}

func (t *declineTx) Commit(ctx context.Context, _ ledger.Head, e ledger.Event) error {
	return t.svc.commit(ctx, t.st, e)
}

// expireTx closes an agreement whose expiry passed. It is recorded as a
// system event so the chain also covers agreements nobody finished.
type expireTx struct {
	svc         *Service
	agreementID id.AgreementID
	now         time.Time
	st          state
}

func (t *expireTx) Prepare(ctx context.Context) (ledger.Head, ledger.Draft, error) {
	st, err := t.svc.read(ctx, t.agreementID)
	if err != nil {
		return ledger.Head{}, ledger.Draft{}, err
	}
	if st.agreement.Status.IsTerminal() || !st.agreement.ExpiredAt(t.now) {
		return ledger.Head{}, ledger.Draft{}, errNothingToExpire
	}
	t.st = st
	return st.agreement.Head(), ledger.Draft{
		Kind:           ledger.KindExpired,
		SignerIdentity: ledger.SystemActor,
		Timestamp:      t.now.UTC(),
		Reason:         "expiry reached before quorum",
	}, nil
}

func (t *expireTx) Commit(ctx context.Context, _ ledger.Head, e ledger.Event) error {
	return t.svc.commit(ctx, t.st, e)
}

// commit folds e into the state read by Prepare and persists it with its
// audit record, notifications and, on a terminal transition, the verification
// record.
func (s *Service) commit(ctx context.Context, st state, e ledger.Event) error {
	a, signers, err := Apply(st.agreement, st.signers, e)
	if err != nil {
		return err
	}

	c := Commit{
		AgreementID:     a.ID,
		ExpectedVersion: st.agreement.Version,
		Event:           e,
		Status:          a.Status,
		ClosedAt:        a.ClosedAt,
		Signers:         changedSigners(st.signers, signers),
		Audit:           audit.ForEvent(ctx, e),
	}

	if a.Status.IsTerminal() {
		var code string
		if s.issueOn[a.Status] {
			rec, err := verification.NewRecord(a.ID, e.Hash, a.Status.String(), e.Timestamp)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint verification code")
			}
			c.Verification = &rec
			code = rec.Code
		}
		if a.Status == StatusCompleted && a.SupersedesID != nil {
			c.Supersedes = a.SupersedesID
		}
		msg, err := closedNotification(&a, e, code)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build notification")
		}
		c.Outbox = append(c.Outbox, msg)
	} else if a.Sequential && e.Kind != ledger.KindExpired {
		if next, ok := NextInOrder(signers); ok {
			msg, err := signatureRequested(&a, next, e.Timestamp)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build notification")
			}
			c.Outbox = append(c.Outbox, msg)
		}
	}

	if err := s.store.Commit(ctx, c); err != nil {
		return err
	}
	if a.Status != st.agreement.Status {
		s.metrics.incTransition(a.Status)
		s.logger.InfoContext(ctx, "agreement transitioned",
			"agreement_id", a.ID,
			"from", st.agreement.Status,
			"to", a.Status,
			"sequence", e.Sequence,
		)
	}
	return nil
}

func changedSigners(before, after []Signer) []SignerUpdate {
	var out []SignerUpdate
	for i := range after {
		if i < len(before) && before[i].Status == after[i].Status {
			continue
		}
		out = append(out, SignerUpdate{
			SignerID:   after[i].ID,
			Status:     after[i].Status,
			ResolvedAt: after[i].ResolvedAt,
		})
	}
	return out
}

func closedNotification(a *Agreement, e ledger.Event, code string) (notify.Message, error) {
	t := notify.EventAgreementCompleted
	switch a.Status {
	case StatusDeclined:
		t = notify.EventAgreementDeclined
	case StatusExpired:
		t = notify.EventAgreementExpired
	}
	return notify.NewMessage(t, a.ID, notify.AgreementClosed{
		AgreementID:      a.ID,
		Status:           a.Status.String(),
		FinalChainHash:   e.Hash,
		VerificationCode: code,
		ClosedAt:         e.Timestamp,
		Reason:           e.Reason,
	}, e.Timestamp)
}

// deviceFingerprint prefers the device the identity check ran on over the
// fingerprint the client reported.
func deviceFingerprint(ctx context.Context, o identity.Outcome) string {
	if o.DeviceID != "" {
		return "device:" + o.DeviceID
	}
	return requestcontext.DeviceFingerprint(ctx)
}
