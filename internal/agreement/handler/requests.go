package handler

import (
	"strings"
	"time"

	"pactline/internal/agreement"
	"pactline/internal/identity"
	"pactline/internal/snapshot"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
)

const (
	maxSigners        = 100
	maxTemplateRefLen = 200
	maxMetadataKeys   = 32
	maxPasswordLen    = 1024
	maxProofFieldLen  = 512
)

// SignerRequest names one signer and the method they confirm with.
type SignerRequest struct {
	IdentityRef string `json:"identity_ref"`
	Method      string `json:"method"`
}

// QuorumRequest selects the completion policy. Omitted means all signers.
type QuorumRequest struct {
	Kind      string `json:"kind"`
	Threshold int    `json:"threshold,omitempty"`
}

// CreateAgreementRequest is the body of POST /v1/agreements and
// POST /v1/agreements/drafts.
type CreateAgreementRequest struct {
	TemplateRef  string            `json:"template_ref"`
	Content      snapshot.Content  `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Signers      []SignerRequest   `json:"signers"`
	Quorum       *QuorumRequest    `json:"quorum,omitempty"`
	Sequential   bool              `json:"sequential,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	SupersedesID string            `json:"supersedes_id,omitempty"`

	parsedSigners    []agreement.SignerSpec
	parsedQuorum     agreement.QuorumPolicy
	parsedSupersedes *id.AgreementID
}

// Validate parses the request. Content rules are enforced by the snapshotter.
func (r *CreateAgreementRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Signers) > maxSigners {
		return dErrors.New(dErrors.CodeValidation, "too many signers")
	}
	if len(r.TemplateRef) > maxTemplateRefLen {
		return dErrors.New(dErrors.CodeValidation, "template_ref is too long")
	}
	if len(r.Metadata) > maxMetadataKeys {
		return dErrors.New(dErrors.CodeValidation, "too many metadata keys")
	}
	r.TemplateRef = strings.TrimSpace(r.TemplateRef)

	signers, err := parseSigners(r.Signers)
	if err != nil {
		return err
	}
	r.parsedSigners = signers

	if r.Quorum != nil {
		r.parsedQuorum = agreement.QuorumPolicy{
			Kind:      agreement.QuorumKind(strings.ToLower(strings.TrimSpace(r.Quorum.Kind))),
			Threshold: r.Quorum.Threshold,
		}
	}

	if s := strings.TrimSpace(r.SupersedesID); s != "" {
		prior, err := id.ParseAgreementID(s)
		if err != nil {
			return err
		}
		r.parsedSupersedes = &prior
	}
	return nil
}

// ToDomain builds the service request from the validated body.
func (r *CreateAgreementRequest) ToDomain() agreement.CreateRequest {
	return agreement.CreateRequest{
		TemplateRef:  r.TemplateRef,
		Content:      r.Content,
		Metadata:     r.Metadata,
		Signers:      r.parsedSigners,
		Quorum:       r.parsedQuorum,
		Sequential:   r.Sequential,
		ExpiresAt:    r.ExpiresAt,
		SupersedesID: r.parsedSupersedes,
	}
}

// AttachSignersRequest is the body of POST /v1/agreements/{id}/signers.
type AttachSignersRequest struct {
	Signers []SignerRequest `json:"signers"`

	parsed []agreement.SignerSpec
}

func (r *AttachSignersRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Signers) == 0 {
		return dErrors.New(dErrors.CodeNoSigners, "at least one signer is required")
	}
	if len(r.Signers) > maxSigners {
		return dErrors.New(dErrors.CodeValidation, "too many signers")
	}
	signers, err := parseSigners(r.Signers)
	if err != nil {
		return err
	}
	r.parsed = signers
	return nil
}

func (r *AttachSignersRequest) Specs() []agreement.SignerSpec {
	return r.parsed
}

// SignRequest carries the identity proof for one signing attempt. Which
// fields matter depends on the signer's method; an incomplete proof is
// rejected by the verifier so the attempt is audited.
type SignRequest struct {
	DeviceID     string    `json:"device_id,omitempty"`
	AssertionRef string    `json:"assertion_ref,omitempty"`
	AssertedAt   time.Time `json:"asserted_at,omitzero"`
	Signature    []byte    `json:"signature,omitempty"`
	Password     string    `json:"password,omitempty"`
}

func (r *SignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Password) > maxPasswordLen {
		return dErrors.New(dErrors.CodeValidation, "password is too long")
	}
	if len(r.DeviceID) > maxProofFieldLen || len(r.AssertionRef) > maxProofFieldLen || len(r.Signature) > maxProofFieldLen {
		return dErrors.New(dErrors.CodeValidation, "proof field is too long")
	}
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.AssertionRef = strings.TrimSpace(r.AssertionRef)
	return nil
}

func (r *SignRequest) Proof() identity.Proof {
	return identity.Proof{
		DeviceID:     r.DeviceID,
		AssertionRef: r.AssertionRef,
		AssertedAt:   r.AssertedAt,
		Signature:    r.Signature,
		Password:     r.Password,
	}
}

// DeclineRequest is the body of POST .../decline. The reason is optional.
type DeclineRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (r *DeclineRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

func parseSigners(in []SignerRequest) ([]agreement.SignerSpec, error) {
	out := make([]agreement.SignerSpec, 0, len(in))
	for _, s := range in {
		ref, err := id.ParseIdentityRef(strings.TrimSpace(s.IdentityRef))
		if err != nil {
			return nil, err
		}
		method, err := identity.ParseMethod(strings.TrimSpace(s.Method))
		if err != nil {
			return nil, err
		}
		out = append(out, agreement.SignerSpec{IdentityRef: ref, Method: method})
	}
	return out, nil
}
