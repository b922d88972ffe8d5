package memory

import (
	"context"
	"fmt"
	"time"

	"pactline/internal/ledger"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type VerificationStore struct {
	db *DB
}

func (s *VerificationStore) Create(_ context.Context, rec verification.Record) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, exists := s.db.recordByAgrmt[rec.AgreementID]; exists {
		return fmt.Errorf("verification record for %s: %w", rec.AgreementID, sentinel.ErrAlreadyExists)
	}
	if _, exists := s.db.records[rec.Code]; exists {
		return fmt.Errorf("verification code: %w", sentinel.ErrAlreadyExists)
	}
	s.db.records[rec.Code] = &rec
	s.db.recordByAgrmt[rec.AgreementID] = rec.Code
	return nil
}

func (s *VerificationStore) GetByCode(_ context.Context, code string) (*verification.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	rec, ok := s.db.records[code]
	if !ok {
		return nil, fmt.Errorf("verification code: %w", sentinel.ErrNotFound)
	}
	out := *rec
	return &out, nil
}

func (s *VerificationStore) GetByAgreement(_ context.Context, agreementID id.AgreementID) (*verification.Record, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	code, ok := s.db.recordByAgrmt[agreementID]
	if !ok {
		return nil, fmt.Errorf("verification record for %s: %w", agreementID, sentinel.ErrNotFound)
	}
	out := *s.db.records[code]
	return &out, nil
}

func (s *VerificationStore) Revoke(_ context.Context, code, reason string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	rec, ok := s.db.records[code]
	if !ok {
		return fmt.Errorf("verification code: %w", sentinel.ErrNotFound)
	}
	if rec.Validity == verification.ValidityRevoked {
		return nil
	}
	rec.Validity = verification.ValidityRevoked
	rec.RevokedAt = &at
	rec.RevokedReason = reason
	return nil
}

// ChainSource reads agreements for verification lookups. Identity references
// never leave this view.
type ChainSource struct {
	db *DB
}

func (c *ChainSource) AgreementSummary(_ context.Context, agreementID id.AgreementID) (*verification.AgreementSummary, error) {
	e, ok := c.db.entry(agreementID)
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	a := e.agreement
	return &verification.AgreementSummary{
		ID:           a.ID,
		TemplateRef:  a.TemplateRef,
		Status:       a.Status.String(),
		ContentHash:  a.Content.Hash,
		CreatedAt:    a.CreatedAt,
		ClosedAt:     a.ClosedAt,
		SupersedesID: a.SupersedesID,
	}, nil
}

func (c *ChainSource) SignerSummaries(_ context.Context, agreementID id.AgreementID) ([]verification.SignerSummary, error) {
	e, ok := c.db.entry(agreementID)
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	out := make([]verification.SignerSummary, 0, len(e.signers))
	for _, sg := range e.signers {
		out = append(out, verification.SignerSummary{
			ID:         sg.ID,
			Method:     sg.Method,
			Status:     string(sg.Status),
			ResolvedAt: sg.ResolvedAt,
		})
	}
	return out, nil
}

func (c *ChainSource) Events(_ context.Context, agreementID id.AgreementID) ([]ledger.Event, error) {
	e, ok := c.db.entry(agreementID)
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	out := make([]ledger.Event, len(e.events))
	copy(out, e.events)
	return out, nil
}

// TamperEvent rewrites a stored event in place, bypassing the ledger. It
// exists so tests can exercise integrity checks.
func (db *DB) TamperEvent(agreementID id.AgreementID, sequence int64, mutate func(*ledger.Event)) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.agreements[agreementID]
	if !ok || sequence < 1 || sequence > int64(len(e.events)) {
		return false
	}
	next := e.clone()
	mutate(&next.events[sequence-1])
	db.agreements[agreementID] = next
	return true
}
