package audit

import (
	"time"

	id "pactline/pkg/domain"
)

// Action names what the record attests to.
type Action string

const (
	ActionSignatureRecorded   Action = "signature_recorded"
	ActionDeclineRecorded     Action = "decline_recorded"
	ActionExpiryRecorded      Action = "expiry_recorded"
	ActionVerificationFailed  Action = "verification_failed"
	ActionAgreementCreated    Action = "agreement_created"
	ActionAgreementDispatched Action = "agreement_dispatched"
	ActionCodeIssued          Action = "verification_code_issued"
	ActionCodeRevoked         Action = "verification_code_revoked"
)

// Outcome is "success" for committed events and the error code for rejected
// attempts.
type Outcome string

const OutcomeSuccess Outcome = "success"

// Record is one entry of the audit trail. Client context is coarsened before
// it is stored: network origin is a prefix, not an address, and geolocation
// is a country or a one-decimal coordinate.
type Record struct {
	ID            id.AuditRecordID `json:"id"`
	AgreementID   id.AgreementID   `json:"agreement_id"`
	SignerID      *id.SignerID     `json:"signer_id,omitempty"`
	EventSequence *int64           `json:"event_sequence,omitempty"`
	Action        Action           `json:"action"`
	Outcome       Outcome          `json:"outcome"`
	Actor         id.IdentityRef   `json:"actor,omitempty"`
	NetworkOrigin string           `json:"network_origin,omitempty"`
	DeviceClass   string           `json:"device_class,omitempty"`
	Geolocation   string           `json:"geolocation,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	RequestID     string           `json:"request_id,omitempty"`
}
