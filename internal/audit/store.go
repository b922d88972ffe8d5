package audit

import (
	"context"

	id "pactline/pkg/domain"
)

// Store persists audit records. Implementations are append-only.
type Store interface {
	Append(ctx context.Context, record Record) error
	ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]Record, error)
}
