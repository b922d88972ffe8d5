package verification

import (
	"time"

	"pactline/internal/identity"
	"pactline/internal/ledger"
	id "pactline/pkg/domain"
)

// Validity is the administrative state of a verification record.
type Validity string

const (
	ValidityValid      Validity = "valid"
	ValidityRevoked    Validity = "revoked"
	ValiditySuperseded Validity = "superseded"
)

// Record binds a public code to an agreement's chain at issuance. It is
// immutable apart from revocation and supersession.
type Record struct {
	Code            string
	AgreementID     id.AgreementID
	FinalChainHash  string
	AgreementStatus string
	IssuedAt        time.Time
	Validity        Validity
	RevokedAt       *time.Time
	RevokedReason   string
	SupersededBy    *id.AgreementID
}

// Verdict is the outcome a querying party sees.
type Verdict string

const (
	VerdictVerified      Verdict = "verified"
	VerdictSuperseded    Verdict = "superseded"
	VerdictNotVerifiable Verdict = "not_verifiable"
)

// AgreementSummary is the public view of an agreement.
type AgreementSummary struct {
	ID           id.AgreementID  `json:"id"`
	TemplateRef  string          `json:"template_ref,omitempty"`
	Status       string          `json:"status"`
	ContentHash  string          `json:"content_hash"`
	CreatedAt    time.Time       `json:"created_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	SupersedesID *id.AgreementID `json:"supersedes_id,omitempty"`
}

// SignerSummary is the public view of a signer. Identity references are not
// exposed.
type SignerSummary struct {
	ID         id.SignerID     `json:"id"`
	Method     identity.Method `json:"method"`
	Status     string          `json:"status"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

type EventSummary struct {
	Sequence  int64           `json:"sequence"`
	Kind      ledger.Kind     `json:"kind"`
	SignerID  *id.SignerID    `json:"signer_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Method    identity.Method `json:"method,omitempty"`
	Hash      string          `json:"hash"`
}

// Result is what resolving a code returns. ChainValid false means the stored
// events no longer reproduce the hash recorded at issuance.
type Result struct {
	Code           string           `json:"code"`
	Verdict        Verdict          `json:"verdict"`
	Validity       Validity         `json:"validity"`
	ChainValid     bool             `json:"chain_valid"`
	IssuedAt       time.Time        `json:"issued_at"`
	IssuedStatus   string           `json:"issued_status"`
	StoredHash     string           `json:"stored_final_hash"`
	RecomputedHash string           `json:"recomputed_final_hash"`
	BrokenAt       int64            `json:"broken_at,omitempty"`
	Agreement      AgreementSummary `json:"agreement"`
	Signers        []SignerSummary  `json:"signers"`
	Events         []EventSummary   `json:"events"`
}
