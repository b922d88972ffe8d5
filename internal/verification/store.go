package verification

import (
	"context"
	"time"

	"pactline/internal/ledger"
	id "pactline/pkg/domain"
)

//go:generate mockgen -source=store.go -destination=mocks/verification-mocks.go -package=mocks Store,ChainSource

// Store persists verification records. Create fails with
// sentinel.ErrAlreadyExists when the agreement already has a record.
type Store interface {
	Create(ctx context.Context, rec Record) error
	GetByCode(ctx context.Context, code string) (*Record, error)
	GetByAgreement(ctx context.Context, agreementID id.AgreementID) (*Record, error)
	Revoke(ctx context.Context, code, reason string, at time.Time) error
}

// ChainSource reads what a code resolves to.
type ChainSource interface {
	AgreementSummary(ctx context.Context, agreementID id.AgreementID) (*AgreementSummary, error)
	SignerSummaries(ctx context.Context, agreementID id.AgreementID) ([]SignerSummary, error)
	Events(ctx context.Context, agreementID id.AgreementID) ([]ledger.Event, error)
}

// Auditor receives administrative actions on records.
type Auditor interface {
	CodeRevoked(ctx context.Context, rec Record, reason string) error
}
