package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"pactline/internal/audit"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type AuditStore struct {
	db *DB
}

// Append inserts one record. Inside a commit it joins the caller's
// transaction, so the record lands with the event it describes.
func (s *AuditStore) Append(ctx context.Context, r audit.Record) error {
	_, err := s.db.q(ctx).Exec(ctx, `
INSERT INTO audit_records (
	id, agreement_id, signer_id, event_sequence, action, outcome, actor,
	network_origin, device_class, geolocation, recorded_at, request_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`,
		r.ID.UUID(), r.AgreementID.UUID(), signerUUID(r.SignerID), r.EventSequence,
		string(r.Action), string(r.Outcome), r.Actor.String(),
		r.NetworkOrigin, r.DeviceClass, r.Geolocation, r.Timestamp.UTC(), r.RequestID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("audit record %s: %w", r.ID, sentinel.ErrAlreadyExists)
	}
	if err != nil {
		return classify(fmt.Errorf("insert audit record: %w", err))
	}
	return nil
}

func (s *AuditStore) ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]audit.Record, error) {
	rows, err := s.db.q(ctx).Query(ctx, `
SELECT id, agreement_id, signer_id, event_sequence, action, outcome, actor,
	network_origin, device_class, geolocation, recorded_at, request_id
FROM audit_records
WHERE agreement_id = $1
ORDER BY seq ASC
`, agreementID.UUID())
	if err != nil {
		return nil, classify(fmt.Errorf("list audit records: %w", err))
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			r                      audit.Record
			recordID, agrmtID      uuid.UUID
			signerID               *uuid.UUID
			action, outcome, actor string
		)
		if err := rows.Scan(
			&recordID, &agrmtID, &signerID, &r.EventSequence, &action, &outcome, &actor,
			&r.NetworkOrigin, &r.DeviceClass, &r.Geolocation, &r.Timestamp, &r.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.ID = id.AuditRecordID(recordID)
		r.AgreementID = id.AgreementID(agrmtID)
		r.SignerID = signerIDFrom(signerID)
		r.Action = audit.Action(action)
		r.Outcome = audit.Outcome(outcome)
		r.Actor = id.IdentityRef(actor)
		r.Timestamp = utc(r.Timestamp)
		out = append(out, r)
	}
	return out, rows.Err()
}
