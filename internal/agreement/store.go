package agreement

import (
	"context"
	"time"

	"pactline/internal/audit"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
)

//go:generate mockgen -source=store.go -destination=mocks/agreement-mocks.go -package=mocks Store

// Store persists agreements, their signers and their signature chains.
// Every write that changes an agreement is conditional: it fails with
// sentinel.ErrConflict when the stored state no longer matches what the
// caller read, and writes nothing.
type Store interface {
	Create(ctx context.Context, c Creation) error
	Get(ctx context.Context, agreementID id.AgreementID) (*Agreement, error)
	ListSigners(ctx context.Context, agreementID id.AgreementID) ([]Signer, error)
	ListEvents(ctx context.Context, agreementID id.AgreementID) ([]ledger.Event, error)

	// AttachSigners replaces the signer set of a draft.
	AttachSigners(ctx context.Context, agreementID id.AgreementID, signers []Signer) error
	// Dispatch moves a draft to dispatched.
	Dispatch(ctx context.Context, d Dispatch) error

	// BeginVerification leases a pending signer (or one whose lease lapsed)
	// for an identity check.
	BeginVerification(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, now, until time.Time) error
	// EndVerification returns a leased signer to pending.
	EndVerification(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID) error

	// Commit appends one ledger event with everything that depends on it,
	// provided the agreement is still at ExpectedVersion.
	Commit(ctx context.Context, c Commit) error

	// ListExpiring returns open agreements whose expiry is at or before now.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]id.AgreementID, error)
}

// Creation is a new agreement with its signers and the records announcing it.
type Creation struct {
	Agreement Agreement
	Signers   []Signer
	Audit     []audit.Record
	Outbox    []notify.Message
}

type Dispatch struct {
	AgreementID  id.AgreementID
	DispatchedAt time.Time
	Audit        audit.Record
	Outbox       []notify.Message
}

type SignerUpdate struct {
	SignerID   id.SignerID
	Status     SignerStatus
	ResolvedAt *time.Time
}

// Commit is one atomic state change: the event, the audit record that
// accompanies it, the resulting agreement and signer states, and, on a
// terminal transition, the verification record and any supersession.
type Commit struct {
	AgreementID     id.AgreementID
	ExpectedVersion int64
	Event           ledger.Event
	Status          Status
	ClosedAt        *time.Time
	Signers         []SignerUpdate
	Audit           audit.Record
	Verification    *verification.Record
	Supersedes      *id.AgreementID
	Outbox          []notify.Message
}

// CodeLookup finds the verification record issued for an agreement.
type CodeLookup interface {
	GetByAgreement(ctx context.Context, agreementID id.AgreementID) (*verification.Record, error)
}
