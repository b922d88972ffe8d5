package memory

import (
	"context"

	"pactline/internal/audit"
	id "pactline/pkg/domain"
)

type AuditStore struct {
	db *DB
}

func (s *AuditStore) Append(ctx context.Context, record audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, record)
	return nil
}

func (s *AuditStore) ListByAgreement(_ context.Context, agreementID id.AgreementID) ([]audit.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []audit.Record
	for _, r := range s.db.audit {
		if r.AgreementID == agreementID {
			out = append(out, r)
		}
	}
	return out, nil
}
