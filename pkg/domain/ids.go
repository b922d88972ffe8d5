package domain

import (
	"github.com/google/uuid"

	dErrors "pactline/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so agreement, signer and audit ids
// cannot be passed for one another.
type (
	AgreementID   uuid.UUID
	SignerID      uuid.UUID
	AuditRecordID uuid.UUID
	OutboxID      uuid.UUID
)

// IdentityRef is an opaque pointer into the identity provider's user or
// contact records. The engine never interprets it.
type IdentityRef string

func (r IdentityRef) String() string { return string(r) }

// IsZero reports whether the reference is empty.
func (r IdentityRef) IsZero() bool { return r == "" }

// ParseIdentityRef validates an identity reference at a trust boundary.
func ParseIdentityRef(s string) (IdentityRef, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity reference cannot be empty")
	}
	if len(s) > 256 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity reference too long")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", dErrors.New(dErrors.CodeInvalidInput, "identity reference contains control characters")
		}
	}
	return IdentityRef(s), nil
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseAgreementID(s string) (AgreementID, error) {
	u, err := parseUUID(s, "agreement id")
	return AgreementID(u), err
}

func ParseSignerID(s string) (SignerID, error) {
	u, err := parseUUID(s, "signer id")
	return SignerID(u), err
}

func ParseAuditRecordID(s string) (AuditRecordID, error) {
	u, err := parseUUID(s, "audit record id")
	return AuditRecordID(u), err
}

func NewAgreementID() AgreementID     { return AgreementID(uuid.New()) }
func NewSignerID() SignerID           { return SignerID(uuid.New()) }
func NewAuditRecordID() AuditRecordID { return AuditRecordID(uuid.New()) }
func NewOutboxID() OutboxID           { return OutboxID(uuid.New()) }

func (id AgreementID) String() string   { return uuid.UUID(id).String() }
func (id SignerID) String() string      { return uuid.UUID(id).String() }
func (id AuditRecordID) String() string { return uuid.UUID(id).String() }
func (id OutboxID) String() string      { return uuid.UUID(id).String() }

func (id AgreementID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SignerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AuditRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id AgreementID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id SignerID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id AuditRecordID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id OutboxID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *AgreementID) UnmarshalText(b []byte) error {
	v, err := ParseAgreementID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id *SignerID) UnmarshalText(b []byte) error {
	v, err := ParseSignerID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id *AuditRecordID) UnmarshalText(b []byte) error {
	v, err := ParseAuditRecordID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// UUID exposes the underlying value for storage drivers.
func (id AgreementID) UUID() uuid.UUID   { return uuid.UUID(id) }
func (id SignerID) UUID() uuid.UUID      { return uuid.UUID(id) }
func (id AuditRecordID) UUID() uuid.UUID { return uuid.UUID(id) }
func (id OutboxID) UUID() uuid.UUID      { return uuid.UUID(id) }
