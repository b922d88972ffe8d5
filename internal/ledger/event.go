package ledger

import (
	"time"

	"pactline/internal/identity"
	id "pactline/pkg/domain"
)

// Kind is the outcome an event records.
type Kind string

const (
	KindSigned   Kind = "signed"
	KindDeclined Kind = "declined"
	KindExpired  Kind = "expired"
)

func (k Kind) IsValid() bool {
	return k == KindSigned || k == KindDeclined || k == KindExpired
}

// SystemActor is the signer identity recorded on events the engine itself
// produces, such as expiry.
const SystemActor = id.IdentityRef("system:pactline")

// Event is one append-only entry of an agreement's signature chain.
type Event struct {
	AgreementID       id.AgreementID  `json:"agreement_id"`
	Sequence          int64           `json:"sequence"`
	Kind              Kind            `json:"kind"`
	SignerID          *id.SignerID    `json:"signer_id,omitempty"`
	SignerIdentity    id.IdentityRef  `json:"signer_identity"`
	Timestamp         time.Time       `json:"timestamp"`
	Method            identity.Method `json:"method,omitempty"`
	AssertionRef      string          `json:"assertion_ref,omitempty"`
	DeviceFingerprint string          `json:"device_fingerprint,omitempty"`
	NetworkOrigin     string          `json:"network_origin,omitempty"`
	Geolocation       string          `json:"geolocation,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	PreviousHash      string          `json:"previous_hash"`
	ContentHash       string          `json:"content_hash"`
	Hash              string          `json:"hash"`
}

// Draft is an event before it is placed on the chain.
type Draft struct {
	Kind              Kind
	SignerID          *id.SignerID
	SignerIdentity    id.IdentityRef
	Timestamp         time.Time
	Method            identity.Method
	AssertionRef      string
	DeviceFingerprint string
	NetworkOrigin     string
	Geolocation       string
	Reason            string
}

// Head is the tip of an agreement's chain as last read from storage.
// Sequence is the number of events already on the chain and doubles as the
// optimistic-concurrency version of the agreement.
type Head struct {
	AgreementID id.AgreementID
	Sequence    int64
	Hash        string
	ContentHash string
}
