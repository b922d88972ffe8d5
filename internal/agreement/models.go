package agreement

import (
	"time"

	"pactline/internal/identity"
	"pactline/internal/ledger"
	"pactline/internal/snapshot"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusDispatched      Status = "dispatched"
	StatusPartiallySigned Status = "partially_signed"
	StatusCompleted       Status = "completed"
	StatusDeclined        Status = "declined"
	StatusExpired         Status = "expired"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusExpired
}

func (s Status) String() string { return string(s) }

type SignerStatus string

const (
	SignerPending   SignerStatus = "pending"
	SignerVerifying SignerStatus = "verifying"
	SignerSigned    SignerStatus = "signed"
	SignerDeclined  SignerStatus = "declined"
	SignerExpired   SignerStatus = "expired"
)

// IsResolved reports whether the signer's outcome has been written.
func (s SignerStatus) IsResolved() bool {
	return s == SignerSigned || s == SignerDeclined || s == SignerExpired
}

type QuorumKind string

const (
	QuorumAll       QuorumKind = "all"
	QuorumThreshold QuorumKind = "threshold"
)

// QuorumPolicy decides when enough signers have signed. Threshold applies to
// QuorumThreshold only.
type QuorumPolicy struct {
	Kind      QuorumKind `json:"kind"`
	Threshold int        `json:"threshold,omitempty"`
}

// Required returns how many signatures complete an agreement with n signers.
func (q QuorumPolicy) Required(n int) int {
	if q.Kind == QuorumThreshold {
		return q.Threshold
	}
	return n
}

func (q QuorumPolicy) Validate(signers int) error {
	switch q.Kind {
	case QuorumAll:
		return nil
	case QuorumThreshold:
		if q.Threshold < 1 {
			return dErrors.New(dErrors.CodeValidation, "quorum threshold must be at least 1")
		}
		if signers > 0 && q.Threshold > signers {
			return dErrors.New(dErrors.CodeValidation, "quorum threshold exceeds the number of signers")
		}
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "unknown quorum policy: "+string(q.Kind))
}

// Agreement is mutated only through the state machine. Version counts the
// ledger events and is compared-and-swapped on every commit; HeadHash is the
// chain head those events produced.
type Agreement struct {
	ID           id.AgreementID
	TemplateRef  string
	SupersedesID *id.AgreementID
	Content      snapshot.Snapshot
	Status       Status
	Quorum       QuorumPolicy
	Sequential   bool
	CreatedBy    id.IdentityRef
	CreatedAt    time.Time
	DispatchedAt *time.Time
	ExpiresAt    *time.Time
	ClosedAt     *time.Time
	Version      int64
	HeadHash     string
}

// Head is the chain tip the next event must link to.
func (a *Agreement) Head() ledger.Head {
	return ledger.Head{
		AgreementID: a.ID,
		Sequence:    a.Version,
		Hash:        a.HeadHash,
		ContentHash: a.Content.Hash,
	}
}

// ExpiredAt reports whether the agreement's expiry has passed at now.
func (a *Agreement) ExpiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// Signer is one required party. VerifyingUntil is the lease held while an
// identity check is in flight.
type Signer struct {
	ID             id.SignerID
	AgreementID    id.AgreementID
	IdentityRef    id.IdentityRef
	Method         identity.Method
	Status         SignerStatus
	Order          int
	ResolvedAt     *time.Time
	VerifyingUntil *time.Time
}

// SignerSpec is how callers name a signer.
type SignerSpec struct {
	IdentityRef id.IdentityRef
	Method      identity.Method
}

type CreateRequest struct {
	TemplateRef  string
	Content      snapshot.Content
	Metadata     map[string]string
	Signers      []SignerSpec
	Quorum       QuorumPolicy
	Sequential   bool
	ExpiresAt    *time.Time
	SupersedesID *id.AgreementID
}

// StatusView is everything a bound caller may see about an agreement.
type StatusView struct {
	Agreement        *Agreement
	Signers          []Signer
	Events           []ledger.Event
	VerificationCode string
}
