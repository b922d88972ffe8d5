package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"pactline/internal/agreement"
	"pactline/internal/ledger"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type AgreementStore struct {
	db *DB
}

func (s *AgreementStore) Create(ctx context.Context, c agreement.Creation) error {
	unlock, err := s.db.lock(ctx, c.Agreement.ID)
	if err != nil {
		return err
	}
	defer unlock()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, exists := s.db.agreements[c.Agreement.ID]; exists {
		return fmt.Errorf("agreement %s: %w", c.Agreement.ID, sentinel.ErrAlreadyExists)
	}
	s.db.agreements[c.Agreement.ID] = &entry{
		agreement: c.Agreement,
		signers:   slices.Clone(c.Signers),
	}
	s.db.audit = append(s.db.audit, c.Audit...)
	enqueue(s.db, c.Outbox)
	return nil
}

func (s *AgreementStore) Get(_ context.Context, agreementID id.AgreementID) (*agreement.Agreement, error) {
	e, ok := s.db.entry(agreementID)
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	a := e.agreement
	return &a, nil
}

func (s *AgreementStore) ListSigners(_ context.Context, agreementID id.AgreementID) ([]agreement.Signer, error) {
	e, ok := s.db.entry(agreementID)
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	return slices.Clone(e.signers), nil
}

func (s *AgreementStore) ListEvents(_ context.Context, agreementID id.AgreementID) ([]ledger.Event, error) {
	e, ok := s.db.entry(agreementID)
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	return slices.Clone(e.events), nil
}

func (s *AgreementStore) AttachSigners(ctx context.Context, agreementID id.AgreementID, signers []agreement.Signer) error {
	return s.update(ctx, agreementID, func(e *entry) error {
		if e.agreement.Status != agreement.StatusDraft {
			return sentinel.ErrConflict
		}
		e.signers = slices.Clone(signers)
		return nil
	})
}

func (s *AgreementStore) Dispatch(ctx context.Context, d agreement.Dispatch) error {
	return s.update(ctx, d.AgreementID, func(e *entry) error {
		if e.agreement.Status != agreement.StatusDraft {
			return sentinel.ErrConflict
		}
		at := d.DispatchedAt
		e.agreement.Status = agreement.StatusDispatched
		e.agreement.DispatchedAt = &at
		s.db.audit = append(s.db.audit, d.Audit)
		enqueue(s.db, d.Outbox)
		return nil
	})
}

func (s *AgreementStore) BeginVerification(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID, now, until time.Time) error {
	return s.update(ctx, agreementID, func(e *entry) error {
		i := slices.IndexFunc(e.signers, func(sg agreement.Signer) bool { return sg.ID == signerID })
		if i < 0 {
			return fmt.Errorf("signer %s: %w", signerID, sentinel.ErrNotFound)
		}
		sg := &e.signers[i]
		switch {
		case sg.Status == agreement.SignerPending:
		case sg.Status == agreement.SignerVerifying && sg.VerifyingUntil != nil && !now.Before(*sg.VerifyingUntil):
		default:
			return sentinel.ErrConflict
		}
		sg.Status = agreement.SignerVerifying
		sg.VerifyingUntil = &until
		return nil
	})
}

func (s *AgreementStore) EndVerification(ctx context.Context, agreementID id.AgreementID, signerID id.SignerID) error {
	return s.update(ctx, agreementID, func(e *entry) error {
		i := slices.IndexFunc(e.signers, func(sg agreement.Signer) bool { return sg.ID == signerID })
		if i < 0 {
			return fmt.Errorf("signer %s: %w", signerID, sentinel.ErrNotFound)
		}
		if e.signers[i].Status == agreement.SignerVerifying {
			e.signers[i].Status = agreement.SignerPending
			e.signers[i].VerifyingUntil = nil
		}
		return nil
	})
}

// Commit publishes the event and everything that depends on it, or nothing.
func (s *AgreementStore) Commit(ctx context.Context, c agreement.Commit) error {
	unlock, err := s.db.lock(ctx, c.AgreementID)
	if err != nil {
		return err
	}
	defer unlock()

	cur, ok := s.db.entry(c.AgreementID)
	if !ok {
		return fmt.Errorf("agreement %s: %w", c.AgreementID, sentinel.ErrNotFound)
	}
	if cur.agreement.Version != c.ExpectedVersion || c.Event.Sequence != c.ExpectedVersion+1 {
		return sentinel.ErrConflict
	}

	next := cur.clone()
	next.events = append(next.events, c.Event)
	next.agreement.Version = c.Event.Sequence
	next.agreement.HeadHash = c.Event.Hash
	next.agreement.Status = c.Status
	next.agreement.ClosedAt = c.ClosedAt
	for _, u := range c.Signers {
		i := slices.IndexFunc(next.signers, func(sg agreement.Signer) bool { return sg.ID == u.SignerID })
		if i < 0 {
			return fmt.Errorf("signer %s: %w", u.SignerID, sentinel.ErrNotFound)
		}
		next.signers[i].Status = u.Status
		next.signers[i].ResolvedAt = u.ResolvedAt
		next.signers[i].VerifyingUntil = nil
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.commitHook != nil {
		if err := s.db.commitHook(c); err != nil {
			return err
		}
	}
	if c.Verification != nil {
		if _, exists := s.db.recordByAgrmt[c.AgreementID]; exists {
			return fmt.Errorf("verification record for %s: %w", c.AgreementID, sentinel.ErrAlreadyExists)
		}
	}

	s.db.agreements[c.AgreementID] = next
	s.db.audit = append(s.db.audit, c.Audit)
	if c.Verification != nil {
		rec := *c.Verification
		s.db.records[rec.Code] = &rec
		s.db.recordByAgrmt[rec.AgreementID] = rec.Code
	}
	if c.Supersedes != nil {
		if code, ok := s.db.recordByAgrmt[*c.Supersedes]; ok {
			prior := s.db.records[code]
			if prior.Validity == verification.ValidityValid {
				successor := c.AgreementID
				prior.Validity = verification.ValiditySuperseded
				prior.SupersededBy = &successor
			}
		}
	}
	enqueue(s.db, c.Outbox)
	return nil
}

func (s *AgreementStore) ListExpiring(_ context.Context, now time.Time, limit int) ([]id.AgreementID, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	type due struct {
		id  id.AgreementID
		exp time.Time
	}
	var found []due
	for agreementID, e := range s.db.agreements {
		a := e.agreement
		if a.Status.IsTerminal() || !a.ExpiredAt(now) {
			continue
		}
		found = append(found, due{id: agreementID, exp: *a.ExpiresAt})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].exp.Before(found[j].exp) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]id.AgreementID, len(found))
	for i, d := range found {
		out[i] = d.id
	}
	return out, nil
}

// update applies fn to a copy of the agreement's entry under its shard lock
// and publishes the copy if fn succeeds.
func (s *AgreementStore) update(ctx context.Context, agreementID id.AgreementID, fn func(e *entry) error) error {
	unlock, err := s.db.lock(ctx, agreementID)
	if err != nil {
		return err
	}
	defer unlock()

	cur, ok := s.db.entry(agreementID)
	if !ok {
		return fmt.Errorf("agreement %s: %w", agreementID, sentinel.ErrNotFound)
	}
	next := cur.clone()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := fn(next); err != nil {
		return err
	}
	s.db.agreements[agreementID] = next
	return nil
}
