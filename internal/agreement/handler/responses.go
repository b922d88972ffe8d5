package handler

import (
	"time"

	"pactline/internal/agreement"
	"pactline/internal/identity"
	"pactline/internal/ledger"
	id "pactline/pkg/domain"
)

type AgreementResponse struct {
	ID           id.AgreementID         `json:"id"`
	TemplateRef  string                 `json:"template_ref,omitempty"`
	Status       agreement.Status       `json:"status"`
	ContentHash  string                 `json:"content_hash"`
	Quorum       agreement.QuorumPolicy `json:"quorum"`
	Sequential   bool                   `json:"sequential"`
	CreatedBy    id.IdentityRef         `json:"created_by"`
	CreatedAt    time.Time              `json:"created_at"`
	DispatchedAt *time.Time             `json:"dispatched_at,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	ClosedAt     *time.Time             `json:"closed_at,omitempty"`
	SupersedesID *id.AgreementID        `json:"supersedes_id,omitempty"`
	Version      int64                  `json:"version"`
	HeadHash     string                 `json:"head_hash,omitempty"`
}

type SignerResponse struct {
	ID          id.SignerID            `json:"id"`
	IdentityRef id.IdentityRef         `json:"identity_ref"`
	Method      identity.Method        `json:"method"`
	Status      agreement.SignerStatus `json:"status"`
	Order       int                    `json:"order"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// StatusResponse is returned by GET /v1/agreements/{id} and by creation.
type StatusResponse struct {
	Agreement        AgreementResponse `json:"agreement"`
	Signers          []SignerResponse  `json:"signers"`
	Events           []ledger.Event    `json:"events"`
	VerificationCode string            `json:"verification_code,omitempty"`
}

type SignResponse struct {
	Event ledger.Event `json:"event"`
}

type SweepResponse struct {
	Expired int `json:"expired"`
}

func FromAgreement(a *agreement.Agreement) AgreementResponse {
	return AgreementResponse{
		ID:           a.ID,
		TemplateRef:  a.TemplateRef,
		Status:       a.Status,
		ContentHash:  a.Content.Hash,
		Quorum:       a.Quorum,
		Sequential:   a.Sequential,
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt,
		DispatchedAt: a.DispatchedAt,
		ExpiresAt:    a.ExpiresAt,
		ClosedAt:     a.ClosedAt,
		SupersedesID: a.SupersedesID,
		Version:      a.Version,
		HeadHash:     a.HeadHash,
	}
}

func FromSigners(signers []agreement.Signer) []SignerResponse {
	out := make([]SignerResponse, 0, len(signers))
	for _, sg := range signers {
		out = append(out, SignerResponse{
			ID:          sg.ID,
			IdentityRef: sg.IdentityRef,
			Method:      sg.Method,
			Status:      sg.Status,
			Order:       sg.Order,
			ResolvedAt:  sg.ResolvedAt,
		})
	}
	return out
}

func FromStatusView(v *agreement.StatusView) *StatusResponse {
	events := v.Events
	if events == nil {
		events = []ledger.Event{}
	}
	return &StatusResponse{
		Agreement:        FromAgreement(v.Agreement),
		Signers:          FromSigners(v.Signers),
		Events:           events,
		VerificationCode: v.VerificationCode,
	}
}
