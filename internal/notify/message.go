package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"pactline/internal/identity"
	id "pactline/pkg/domain"
)

// EventType names an outbound notification. Transports subscribe by type.
type EventType string

const (
	EventSignatureRequested EventType = "signature_requested"
	EventAgreementCompleted EventType = "agreement_completed"
	EventAgreementDeclined  EventType = "agreement_declined"
	EventAgreementExpired   EventType = "agreement_expired"
)

// Message is an outbox row. It is written in the same commit as the state
// change it announces and delivered later by the Worker.
type Message struct {
	ID          id.OutboxID
	AgreementID id.AgreementID
	Type        EventType
	Payload     []byte
	CreatedAt   time.Time
	Attempts    int
	LastError   string
}

// Key partitions messages so one agreement's notifications stay ordered.
func (m Message) Key() string {
	return m.AgreementID.String()
}

type SignatureRequested struct {
	AgreementID id.AgreementID  `json:"agreement_id"`
	SignerID    id.SignerID     `json:"signer_id"`
	IdentityRef id.IdentityRef  `json:"identity_ref"`
	Method      identity.Method `json:"method"`
	ContentHash string          `json:"content_hash"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

type AgreementClosed struct {
	AgreementID      id.AgreementID `json:"agreement_id"`
	Status           string         `json:"status"`
	FinalChainHash   string         `json:"final_chain_hash"`
	VerificationCode string         `json:"verification_code,omitempty"`
	ClosedAt         time.Time      `json:"closed_at"`
	Reason           string         `json:"reason,omitempty"`
}

// NewMessage encodes payload into an outbox message.
func NewMessage(t EventType, agreementID id.AgreementID, payload any, at time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Message{
		ID:          id.NewOutboxID(),
		AgreementID: agreementID,
		Type:        t,
		Payload:     raw,
		CreatedAt:   at.UTC(),
	}, nil
}
