package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pactline/internal/identity"
	"pactline/internal/ledger"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type VerificationStore struct {
	db *DB
}

const recordColumns = `
	code, agreement_id, final_chain_hash, agreement_status, issued_at,
	validity, revoked_at, revoked_reason, superseded_by`

// Create fails with ErrAlreadyExists when the agreement already has a record
// or the code is taken.
func (s *VerificationStore) Create(ctx context.Context, rec verification.Record) error {
	_, err := s.db.q(ctx).Exec(ctx, `
INSERT INTO verification_records (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`,
		rec.Code, rec.AgreementID.UUID(), rec.FinalChainHash, rec.AgreementStatus,
		rec.IssuedAt.UTC(), string(rec.Validity), utcPtr(rec.RevokedAt), rec.RevokedReason,
		agreementUUID(rec.SupersededBy),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("verification record for %s: %w", rec.AgreementID, sentinel.ErrAlreadyExists)
	}
	if err != nil {
		return classify(fmt.Errorf("insert verification record: %w", err))
	}
	return nil
}

func (s *VerificationStore) GetByCode(ctx context.Context, code string) (*verification.Record, error) {
	row := s.db.q(ctx).QueryRow(ctx, `SELECT `+recordColumns+` FROM verification_records WHERE code = $1`, code)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verification code: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get verification record: %w", err))
	}
	return rec, nil
}

func (s *VerificationStore) GetByAgreement(ctx context.Context, agreementID id.AgreementID) (*verification.Record, error) {
	row := s.db.q(ctx).QueryRow(ctx, `SELECT `+recordColumns+` FROM verification_records WHERE agreement_id = $1`, agreementID.UUID())
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verification record for %s: %w", agreementID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get verification record: %w", err))
	}
	return rec, nil
}

// Revoke is idempotent: revoking a revoked record keeps the first reason.
func (s *VerificationStore) Revoke(ctx context.Context, code, reason string, at time.Time) error {
	tag, err := s.db.q(ctx).Exec(ctx, `
UPDATE verification_records
SET validity = $2, revoked_at = $3, revoked_reason = $4
WHERE code = $1 AND validity <> $2
`, code, string(verification.ValidityRevoked), at.UTC(), reason)
	if err != nil {
		return classify(fmt.Errorf("revoke verification record: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var found bool
	if err := s.db.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM verification_records WHERE code = $1)`, code).Scan(&found); err != nil {
		return classify(fmt.Errorf("check verification record: %w", err))
	}
	if !found {
		return fmt.Errorf("verification code: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanRecord(row pgx.Row) (*verification.Record, error) {
	var (
		rec          verification.Record
		agreementID  uuid.UUID
		validity     string
		revokedAt    *time.Time
		supersededBy *uuid.UUID
	)
	if err := row.Scan(
		&rec.Code, &agreementID, &rec.FinalChainHash, &rec.AgreementStatus, &rec.IssuedAt,
		&validity, &revokedAt, &rec.RevokedReason, &supersededBy,
	); err != nil {
		return nil, err
	}
	rec.AgreementID = id.AgreementID(agreementID)
	rec.IssuedAt = utc(rec.IssuedAt)
	rec.Validity = verification.Validity(validity)
	rec.RevokedAt = utcPtr(revokedAt)
	rec.SupersededBy = agreementIDFrom(supersededBy)
	return &rec, nil
}

// ChainSource reads agreements for verification lookups. Identity references
// never leave this view.
type ChainSource struct {
	db *DB
}

func (c *ChainSource) AgreementSummary(ctx context.Context, agreementID id.AgreementID) (*verification.AgreementSummary, error) {
	var (
		sum        verification.AgreementSummary
		supersedes *uuid.UUID
		closedAt   *time.Time
	)
	err := c.db.q(ctx).QueryRow(ctx, `
SELECT template_ref, status, content_hash, created_at, closed_at, supersedes_id
FROM agreements
WHERE id = $1
`, agreementID.UUID()).Scan(&sum.TemplateRef, &sum.Status, &sum.ContentHash, &sum.CreatedAt, &closedAt, &supersedes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("agreement", agreementID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get agreement summary: %w", err))
	}
	sum.ID = agreementID
	sum.CreatedAt = utc(sum.CreatedAt)
	sum.ClosedAt = utcPtr(closedAt)
	sum.SupersedesID = agreementIDFrom(supersedes)
	return &sum, nil
}

func (c *ChainSource) SignerSummaries(ctx context.Context, agreementID id.AgreementID) ([]verification.SignerSummary, error) {
	if err := c.db.Agreements().exists(ctx, agreementID); err != nil {
		return nil, err
	}
	rows, err := c.db.q(ctx).Query(ctx, `
SELECT id, method, status, resolved_at
FROM signers
WHERE agreement_id = $1
ORDER BY position ASC
`, agreementID.UUID())
	if err != nil {
		return nil, classify(fmt.Errorf("list signer summaries: %w", err))
	}
	defer rows.Close()

	out := make([]verification.SignerSummary, 0)
	for rows.Next() {
		var (
			sum      verification.SignerSummary
			signerID uuid.UUID
			method   string
			resolved *time.Time
		)
		if err := rows.Scan(&signerID, &method, &sum.Status, &resolved); err != nil {
			return nil, fmt.Errorf("scan signer summary: %w", err)
		}
		sum.ID = id.SignerID(signerID)
		sum.Method = identity.Method(method)
		sum.ResolvedAt = utcPtr(resolved)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (c *ChainSource) Events(ctx context.Context, agreementID id.AgreementID) ([]ledger.Event, error) {
	if err := c.db.Agreements().exists(ctx, agreementID); err != nil {
		return nil, err
	}
	return listEvents(ctx, c.db.q(ctx), agreementID)
}
