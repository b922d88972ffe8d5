package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pactline/internal/agreement"
	"pactline/internal/identity"
	"pactline/internal/ledger"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type AgreementStore struct {
	db *DB
}

const agreementColumns = `
	id, template_ref, supersedes_id, content_bytes, content_hash, content_version,
	status, quorum_kind, quorum_threshold, sequential, created_by, created_at,
	dispatched_at, expires_at, closed_at, version, head_hash`

func (s *AgreementStore) Create(ctx context.Context, c agreement.Creation) error {
	return s.db.inTx(ctx, func(ctx context.Context) error {
		a := c.Agreement
		_, err := s.db.q(ctx).Exec(ctx, `
INSERT INTO agreements (`+agreementColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`,
			a.ID.UUID(), a.TemplateRef, agreementUUID(a.SupersedesID),
			a.Content.Bytes, a.Content.Hash, a.Content.Version,
			string(a.Status), string(a.Quorum.Kind), a.Quorum.Threshold, a.Sequential,
			a.CreatedBy.String(), a.CreatedAt.UTC(),
			utcPtr(a.DispatchedAt), utcPtr(a.ExpiresAt), utcPtr(a.ClosedAt), a.Version, a.HeadHash,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("agreement %s: %w", a.ID, sentinel.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("insert agreement: %w", err)
		}
		if err := s.insertSigners(ctx, c.Signers); err != nil {
			return err
		}
		for _, rec := range c.Audit {
			if err := s.db.Audit().Append(ctx, rec); err != nil {
				return err
			}
		}
		return s.db.Outbox().enqueue(ctx, c.Outbox)
	})
}

func (s *AgreementStore) Get(ctx context.Context, agreementID id.AgreementID) (*agreement.Agreement, error) {
	row := s.db.q(ctx).QueryRow(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = $1`, agreementID.UUID())
	a, err := scanAgreement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("agreement", agreementID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get agreement: %w", err))
	}
	return a, nil
}

func (s *AgreementStore) ListSigners(ctx context.Context, agreementID id.AgreementID) ([]agreement.Signer, error) {
	if err := s.exists(ctx, agreementID); err != nil {
		return nil, err
	}
	rows, err := s.db.q(ctx).Query(ctx, `
SELECT id, agreement_id, identity_ref, method, status, position, resolved_at, verifying_until
FROM signers
WHERE agreement_id = $1
ORDER BY position ASC
`, agreementID.UUID())
	if err != nil {
		return nil, classify(fmt.Errorf("list signers: %w", err))
	}
	defer rows.Close()

	out := make([]agreement.Signer, 0)
	for rows.Next() {
		var (
			sg                agreement.Signer
			signerID, agrmtID uuid.UUID
			identityRef       string
			method, status    string
			resolved, until   *time.Time
		)
		if err := rows.Scan(&signerID, &agrmtID, &identityRef, &method, &status, &sg.Order, &resolved, &until); err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		sg.ID = id.SignerID(signerID)
		sg.AgreementID = id.AgreementID(agrmtID)
		sg.IdentityRef = id.IdentityRef(identityRef)
		sg.Method = identity.Method(method)
		sg.Status = agreement.SignerStatus(status)
		sg.ResolvedAt = utcPtr(resolved)
		sg.VerifyingUntil = utcPtr(until)
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *AgreementStore) ListEvents(ctx context.Context, agreementID id.AgreementID) ([]ledger.Event, error) {
	if err := s.exists(ctx, agreementID); err != nil {
		return nil, err
	}
	return listEvents(ctx, s.db.q(ctx), agreementID)
}

func (s *AgreementStore) AttachSigners(ctx context.Context, agreementID id.AgreementID, signers []agreement.Signer) error {
	return s.db.inTx(ctx, func(ctx context.Context) error {
		q := s.db.q(ctx)
		var status string
		err := q.QueryRow(ctx, `SELECT status FROM agreements WHERE id = $1 FOR UPDATE`, agreementID.UUID()).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound("agreement", agreementID)
		}
		if err != nil {
			return fmt.Errorf("lock agreement: %w", err)
		}
		if agreement.Status(status) != agreement.StatusDraft {
			return sentinel.ErrConflict
		}
		if _, err := q.Exec(ctx, `DELETE FROM signers WHERE agreement_id = $1`, agreementID.UUID()); err != nil {
			return fmt.Errorf("clear signers: %w", err)
		}
		return s.insertSigners(ctx, signers)
	})
}

func (s *AgreementStore) Dispatch(ctx context.Context, d agreement.Dispatch) error {
	return s.db.inTx(ctx, func(ctx context.Context) error {
		tag, err := s.db.q(ctx).Exec(ctx, `
UPDATE agreements
SET status = $2, dispatched_at = $3
WHERE id = $1 AND status = $4
`, d.AgreementID.UUID(), string(agreement.StatusDispatched), d.DispatchedAt.UTC(), string(agreement.StatusDraft))
		if err != nil {
			return fmt.Errorf("dispatch agreement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := s.exists(ctx, d.AgreementID); err != nil {
				return err
			}
			return sentinel.ErrConflict
		}
		if err := s.db.Audit().Append(ctx, d.Audit); err != nil {
			return err
		}
		return s.db.Outbox().enqueue(ctx, d.Outbox)
	})
}

func (s *AgreementStore) BeginVerification(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, now, until time.Time) error {
	tag, err := s.db.q(ctx).Exec(ctx, `
UPDATE signers
SET status = $3, verifying_until = $5
WHERE agreement_id = $1 AND id = $2
  AND (status = $6 OR (status = $3 AND verifying_until <= $4))
`, agreementID.UUID(), signerID.UUID(), string(agreement.SignerVerifying),
		now.UTC(), until.UTC(), string(agreement.SignerPending))
	if err != nil {
		return classify(fmt.Errorf("begin verification: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if err := s.signerExists(ctx, agreementID, signerID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *AgreementStore) EndVerification(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID) error {
	tag, err := s.db.q(ctx).Exec(ctx, `
UPDATE signers
SET status = $3, verifying_until = NULL
WHERE agreement_id = $1 AND id = $2 AND status = $4
`, agreementID.UUID(), signerID.UUID(), string(agreement.SignerPending), string(agreement.SignerVerifying))
	if err != nil {
		return classify(fmt.Errorf("end verification: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return s.signerExists(ctx, agreementID, signerID)
	}
	return nil
}

// Commit publishes the event and everything that depends on it, or nothing.
// The version compare-and-swap is the first statement so a losing writer
// fails before touching any other table.
func (s *AgreementStore) Commit(ctx context.Context, c agreement.Commit) error {
	if c.Event.Sequence != c.ExpectedVersion+1 {
		return sentinel.ErrConflict
	}
	return s.db.inTx(ctx, func(ctx context.Context) error {
		q := s.db.q(ctx)
		tag, err := q.Exec(ctx, `
UPDATE agreements
SET version = $3, head_hash = $4, status = $5, closed_at = $6
WHERE id = $1 AND version = $2
`, c.AgreementID.UUID(), c.ExpectedVersion, c.Event.Sequence, c.Event.Hash,
			string(c.Status), utcPtr(c.ClosedAt))
		if err != nil {
			return fmt.Errorf("advance agreement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := s.exists(ctx, c.AgreementID); err != nil {
				return err
			}
			return sentinel.ErrConflict
		}

		if err := insertEvent(ctx, q, c.Event); err != nil {
			return err
		}
		for _, u := range c.Signers {
			tag, err := q.Exec(ctx, `
UPDATE signers
SET status = $3, resolved_at = $4, verifying_until = NULL
WHERE agreement_id = $1 AND id = $2
`, c.AgreementID.UUID(), u.SignerID.UUID(), string(u.Status), utcPtr(u.ResolvedAt))
			if err != nil {
				return fmt.Errorf("update signer: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return notFound("signer", u.SignerID)
			}
		}
		if err := s.db.Audit().Append(ctx, c.Audit); err != nil {
			return err
		}
		if c.Verification != nil {
			if err := s.db.Verifications().Create(ctx, *c.Verification); err != nil {
				return err
			}
		}
		if c.Supersedes != nil {
			_, err := q.Exec(ctx, `
UPDATE verification_records
SET validity = $3, superseded_by = $2
WHERE agreement_id = $1 AND validity = $4
`, c.Supersedes.UUID(), c.AgreementID.UUID(),
				string(verification.ValiditySuperseded), string(verification.ValidityValid))
			if err != nil {
				return fmt.Errorf("supersede record: %w", err)
			}
		}
		return s.db.Outbox().enqueue(ctx, c.Outbox)
	})
}

func (s *AgreementStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]id.AgreementID, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.q(ctx).Query(ctx, `
SELECT id
FROM agreements
WHERE expires_at IS NOT NULL
  AND expires_at <= $1
  AND status NOT IN ('completed', 'declined', 'expired')
ORDER BY expires_at ASC
LIMIT $2
`, now.UTC(), lim)
	if err != nil {
		return nil, classify(fmt.Errorf("list expiring: %w", err))
	}
	defer rows.Close()

	out := make([]id.AgreementID, 0)
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan agreement id: %w", err)
		}
		out = append(out, id.AgreementID(u))
	}
	return out, rows.Err()
}

func (s *AgreementStore) insertSigners(ctx context.Context, signers []agreement.Signer) error {
	if len(signers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sg := range signers {
		batch.Queue(`
INSERT INTO signers (id, agreement_id, identity_ref, method, status, position, resolved_at, verifying_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, sg.ID.UUID(), sg.AgreementID.UUID(), sg.IdentityRef.String(), string(sg.Method),
			string(sg.Status), sg.Order, utcPtr(sg.ResolvedAt), utcPtr(sg.VerifyingUntil))
	}
	tx, ok := s.db.q(ctx).(pgx.Tx)
	if !ok {
		return errors.New("insert signers: no transaction")
	}
	br := tx.SendBatch(ctx, batch)
	for range signers {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("signer: %w", sentinel.ErrAlreadyExists)
			}
			return fmt.Errorf("insert signer: %w", err)
		}
	}
	return br.Close()
}

func (s *AgreementStore) exists(ctx context.Context, agreementID id.AgreementID) error {
	var found bool
	err := s.db.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agreements WHERE id = $1)`, agreementID.UUID()).Scan(&found)
	if err != nil {
		return classify(fmt.Errorf("check agreement: %w", err))
	}
	if !found {
		return notFound("agreement", agreementID)
	}
	return nil
}

func (s *AgreementStore) signerExists(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID) error {
	if err := s.exists(ctx, agreementID); err != nil {
		return err
	}
	var found bool
	err := s.db.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM signers WHERE agreement_id = $1 AND id = $2)`,
		agreementID.UUID(), signerID.UUID()).Scan(&found)
	if err != nil {
		return classify(fmt.Errorf("check signer: %w", err))
	}
	if !found {
		return notFound("signer", signerID)
	}
	return nil
}

func scanAgreement(row pgx.Row) (*agreement.Agreement, error) {
	var (
		a                           agreement.Agreement
		agreementID                 uuid.UUID
		supersedes                  *uuid.UUID
		status, quorumKind, creator string
		dispatched, expires, closed *time.Time
	)
	err := row.Scan(
		&agreementID, &a.TemplateRef, &supersedes,
		&a.Content.Bytes, &a.Content.Hash, &a.Content.Version,
		&status, &quorumKind, &a.Quorum.Threshold, &a.Sequential,
		&creator, &a.CreatedAt, &dispatched, &expires, &closed,
		&a.Version, &a.HeadHash,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AgreementID(agreementID)
	a.SupersedesID = agreementIDFrom(supersedes)
	a.Status = agreement.Status(status)
	a.Quorum.Kind = agreement.QuorumKind(quorumKind)
	a.CreatedBy = id.IdentityRef(creator)
	a.CreatedAt = utc(a.CreatedAt)
	a.DispatchedAt = utcPtr(dispatched)
	a.ExpiresAt = utcPtr(expires)
	a.ClosedAt = utcPtr(closed)
	return &a, nil
}

func insertEvent(ctx context.Context, q querier, e ledger.Event) error {
	_, err := q.Exec(ctx, `
INSERT INTO signature_events (
	agreement_id, sequence, kind, signer_id, signer_identity, occurred_at, method,
	assertion_ref, device_fingerprint, network_origin, geolocation, reason,
	previous_hash, content_hash, hash
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`,
		e.AgreementID.UUID(), e.Sequence, string(e.Kind), signerUUID(e.SignerID),
		e.SignerIdentity.String(), e.Timestamp.UTC(), string(e.Method),
		e.AssertionRef, e.DeviceFingerprint, e.NetworkOrigin, e.Geolocation, e.Reason,
		e.PreviousHash, e.ContentHash, e.Hash,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func listEvents(ctx context.Context, q querier, agreementID id.AgreementID) ([]ledger.Event, error) {
	rows, err := q.Query(ctx, `
SELECT agreement_id, sequence, kind, signer_id, signer_identity, occurred_at, method,
	assertion_ref, device_fingerprint, network_origin, geolocation, reason,
	previous_hash, content_hash, hash
FROM signature_events
WHERE agreement_id = $1
ORDER BY sequence ASC
`, agreementID.UUID())
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	out := make([]ledger.Event, 0)
	for rows.Next() {
		var (
			e                   ledger.Event
			agrmtID             uuid.UUID
			signerID            *uuid.UUID
			kind, actor, method string
		)
		if err := rows.Scan(
			&agrmtID, &e.Sequence, &kind, &signerID, &actor, &e.Timestamp, &method,
			&e.AssertionRef, &e.DeviceFingerprint, &e.NetworkOrigin, &e.Geolocation, &e.Reason,
			&e.PreviousHash, &e.ContentHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.AgreementID = id.AgreementID(agrmtID)
		e.Kind = ledger.Kind(kind)
		e.SignerID = signerIDFrom(signerID)
		e.SignerIdentity = id.IdentityRef(actor)
		e.Timestamp = utc(e.Timestamp)
		e.Method = identity.Method(method)
		out = append(out, e)
	}
	return out, rows.Err()
}
