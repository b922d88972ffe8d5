//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pactline/internal/agreement"
	"pactline/internal/audit"
	"pactline/internal/identity"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/platform/config"
	"pactline/internal/snapshot"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
	"pactline/pkg/testutil/containers"
)

var t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type PostgresStoreSuite struct {
	suite.Suite
	db *DB
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	pg := containers.NewPostgresContainer(s.T())
	db, err := Open(context.Background(), config.PostgresConfig{DSN: pg.DSN, MaxConns: 16})
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.pool.Exec(context.Background(), `
TRUNCATE outbox, audit_records, verification_records, signature_events, signers, agreements`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed(signers int) (agreement.Agreement, []agreement.Signer) {
	body := []byte(`{"v":1,"content":{"title":"Lease"}}`)
	a := agreement.Agreement{
		ID:          id.NewAgreementID(),
		TemplateRef: "tpl:lease",
		Content:     snapshot.Snapshot{Bytes: body, Hash: snapshot.Sum(body), Version: snapshot.FormatVersion},
		Status:      agreement.StatusDispatched,
		Quorum:      agreement.QuorumPolicy{Kind: agreement.QuorumAll},
		CreatedBy:   "user:owner",
		CreatedAt:   t0,
	}
	a.HeadHash = ledger.Genesis(a.ID, a.Content.Hash)

	var sgs []agreement.Signer
	for i := range signers {
		sgs = append(sgs, agreement.Signer{
			ID:          id.NewSignerID(),
			AgreementID: a.ID,
			IdentityRef: id.IdentityRef("user:" + string(rune('a'+i))),
			Method:      identity.MethodPassword,
			Status:      agreement.SignerPending,
			Order:       i,
		})
	}
	msg, err := notify.NewMessage(notify.EventSignatureRequested, a.ID, map[string]string{"k": "v"}, t0)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Agreements().Create(context.Background(), agreement.Creation{
		Agreement: a,
		Signers:   sgs,
		Audit: []audit.Record{{
			ID:          id.NewAuditRecordID(),
			AgreementID: a.ID,
			Action:      audit.ActionAgreementCreated,
			Outcome:     audit.OutcomeSuccess,
			Actor:       a.CreatedBy,
			Timestamp:   t0,
		}},
		Outbox: []notify.Message{msg},
	}))
	return a, sgs
}

func (s *PostgresStoreSuite) signedCommit(a agreement.Agreement, sg agreement.Signer, status agreement.Status) agreement.Commit {
	e, err := ledger.Build(a.Head(), ledger.Draft{
		Kind:           ledger.KindSigned,
		SignerID:       &sg.ID,
		SignerIdentity: sg.IdentityRef,
		Timestamp:      t0.Add(time.Minute),
		Method:         identity.MethodPassword,
		NetworkOrigin:  "203.0.113.0/24",
	})
	s.Require().NoError(err)
	resolved := e.Timestamp
	seq := e.Sequence
	return agreement.Commit{
		AgreementID:     a.ID,
		ExpectedVersion: a.Version,
		Event:           e,
		Status:          status,
		Signers:         []agreement.SignerUpdate{{SignerID: sg.ID, Status: agreement.SignerSigned, ResolvedAt: &resolved}},
		Audit: audit.Record{
			ID:            id.NewAuditRecordID(),
			AgreementID:   a.ID,
			SignerID:      &sg.ID,
			EventSequence: &seq,
			Action:        audit.ActionSignatureRecorded,
			Outcome:       audit.OutcomeSuccess,
			Actor:         sg.IdentityRef,
			Timestamp:     e.Timestamp,
		},
	}
}

func (s *PostgresStoreSuite) TestCreateRoundTrip() {
	ctx := context.Background()
	a, sgs := s.seed(2)

	got, err := s.db.Agreements().Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a, *got)

	signers, err := s.db.Agreements().ListSigners(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(sgs, signers)

	err = s.db.Agreements().Create(ctx, agreement.Creation{Agreement: a})
	s.ErrorIs(err, sentinel.ErrAlreadyExists)

	_, err = s.db.Agreements().Get(ctx, id.NewAgreementID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCommitPersistsChainAndDependents() {
	ctx := context.Background()
	a, sgs := s.seed(1)

	c := s.signedCommit(a, sgs[0], agreement.StatusCompleted)
	closed := c.Event.Timestamp
	c.ClosedAt = &closed
	rec, err := verification.NewRecord(a.ID, c.Event.Hash, "completed", closed)
	s.Require().NoError(err)
	c.Verification = &rec
	s.Require().NoError(s.db.Agreements().Commit(ctx, c))

	events, err := s.db.Agreements().ListEvents(ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(c.Event, events[0])
	s.True(ledger.Verify(a.ID, a.Content.Hash, events).Valid)

	got, err := s.db.Agreements().Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Equal(c.Event.Hash, got.HeadHash)
	s.Equal(agreement.StatusCompleted, got.Status)

	stored, err := s.db.Verifications().GetByCode(ctx, rec.Code)
	s.Require().NoError(err)
	s.Equal(rec, *stored)

	records, err := s.db.Audit().ListByAgreement(ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(audit.ActionAgreementCreated, records[0].Action)
	s.Equal(c.Audit, records[1])
}

func (s *PostgresStoreSuite) TestCommitIsConditionalOnVersion() {
	ctx := context.Background()
	a, sgs := s.seed(1)

	c := s.signedCommit(a, sgs[0], agreement.StatusCompleted)
	s.Require().NoError(s.db.Agreements().Commit(ctx, c))

	c.Audit.ID = id.NewAuditRecordID()
	s.ErrorIs(s.db.Agreements().Commit(ctx, c), sentinel.ErrConflict)

	events, err := s.db.Agreements().ListEvents(ctx, a.ID)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *PostgresStoreSuite) TestConcurrentCommitsHaveOneWinner() {
	ctx := context.Background()
	a, sgs := s.seed(8)

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for _, sg := range sgs {
		c := s.signedCommit(a, sg, agreement.StatusPartiallySigned)
		wg.Go(func() {
			err := s.db.Agreements().Commit(ctx, c)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.Failf("unexpected commit error", "%v", err)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(len(sgs)-1), conflicts.Load())

	events, err := s.db.Agreements().ListEvents(ctx, a.ID)
	s.Require().NoError(err)
	s.Len(events, 1)
	records, err := s.db.Audit().ListByAgreement(ctx, a.ID)
	s.Require().NoError(err)
	s.Len(records, 2, "losers leave no audit record behind")
}

func (s *PostgresStoreSuite) TestDuplicateVerificationRollsBackCommit() {
	ctx := context.Background()
	a, sgs := s.seed(1)

	existing, err := verification.NewRecord(a.ID, "sha256:prior", "completed", t0)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Verifications().Create(ctx, existing))

	c := s.signedCommit(a, sgs[0], agreement.StatusCompleted)
	rec, err := verification.NewRecord(a.ID, c.Event.Hash, "completed", t0)
	s.Require().NoError(err)
	c.Verification = &rec
	s.ErrorIs(s.db.Agreements().Commit(ctx, c), sentinel.ErrAlreadyExists)

	got, err := s.db.Agreements().Get(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), got.Version)
	events, err := s.db.Agreements().ListEvents(ctx, a.ID)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *PostgresStoreSuite) TestSupersession() {
	ctx := context.Background()
	prior, priorSigners := s.seed(1)
	c := s.signedCommit(prior, priorSigners[0], agreement.StatusCompleted)
	priorRec, err := verification.NewRecord(prior.ID, c.Event.Hash, "completed", t0)
	s.Require().NoError(err)
	c.Verification = &priorRec
	s.Require().NoError(s.db.Agreements().Commit(ctx, c))

	next, nextSigners := s.seed(1)
	c = s.signedCommit(next, nextSigners[0], agreement.StatusCompleted)
	c.Supersedes = &prior.ID
	s.Require().NoError(s.db.Agreements().Commit(ctx, c))

	got, err := s.db.Verifications().GetByAgreement(ctx, prior.ID)
	s.Require().NoError(err)
	s.Equal(verification.ValiditySuperseded, got.Validity)
	s.Require().NotNil(got.SupersededBy)
	s.Equal(next.ID, *got.SupersededBy)
}

func (s *PostgresStoreSuite) TestVerificationLease() {
	ctx := context.Background()
	a, sgs := s.seed(1)
	store := s.db.Agreements()
	sg := sgs[0]

	s.Require().NoError(store.BeginVerification(ctx, a.ID, sg.ID, t0, t0.Add(time.Minute)))
	s.ErrorIs(store.BeginVerification(ctx, a.ID, sg.ID, t0.Add(time.Second), t0.Add(time.Minute)), sentinel.ErrConflict)
	s.Require().NoError(store.BeginVerification(ctx, a.ID, sg.ID, t0.Add(time.Minute), t0.Add(2*time.Minute)), "lapsed lease can be taken over")

	s.Require().NoError(store.EndVerification(ctx, a.ID, sg.ID))
	signers, err := store.ListSigners(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(agreement.SignerPending, signers[0].Status)
	s.Nil(signers[0].VerifyingUntil)

	s.ErrorIs(store.BeginVerification(ctx, a.ID, id.NewSignerID(), t0, t0), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDraftLifecycle() {
	ctx := context.Background()
	a, sgs := s.seed(1)
	store := s.db.Agreements()

	s.ErrorIs(store.AttachSigners(ctx, a.ID, sgs), sentinel.ErrConflict, "dispatched agreements keep their signers")

	draft := a
	draft.ID = id.NewAgreementID()
	draft.Status = agreement.StatusDraft
	s.Require().NoError(store.Create(ctx, agreement.Creation{Agreement: draft}))

	replacement := agreement.Signer{
		ID:          id.NewSignerID(),
		AgreementID: draft.ID,
		IdentityRef: "user:kofi",
		Method:      identity.MethodPasscode,
		Status:      agreement.SignerPending,
	}
	s.Require().NoError(store.AttachSigners(ctx, draft.ID, []agreement.Signer{replacement}))

	s.Require().NoError(store.Dispatch(ctx, agreement.Dispatch{
		AgreementID:  draft.ID,
		DispatchedAt: t0.Add(time.Hour),
		Audit: audit.Record{
			ID:          id.NewAuditRecordID(),
			AgreementID: draft.ID,
			Action:      audit.ActionAgreementDispatched,
			Outcome:     audit.OutcomeSuccess,
			Timestamp:   t0.Add(time.Hour),
		},
	}))
	s.ErrorIs(store.Dispatch(ctx, agreement.Dispatch{AgreementID: draft.ID}), sentinel.ErrConflict)

	got, err := store.Get(ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(agreement.StatusDispatched, got.Status)
	signers, err := store.ListSigners(ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal([]agreement.Signer{replacement}, signers)
}

func (s *PostgresStoreSuite) TestListExpiring() {
	ctx := context.Background()
	a, _ := s.seed(1)
	store := s.db.Agreements()

	ids, err := store.ListExpiring(ctx, t0.Add(time.Hour), 10)
	s.Require().NoError(err)
	s.Empty(ids)

	b := a
	b.ID = id.NewAgreementID()
	exp := t0.Add(30 * time.Minute)
	b.ExpiresAt = &exp
	s.Require().NoError(store.Create(ctx, agreement.Creation{Agreement: b}))

	ids, err = store.ListExpiring(ctx, t0.Add(time.Hour), 10)
	s.Require().NoError(err)
	s.Equal([]id.AgreementID{b.ID}, ids)

	ids, err = store.ListExpiring(ctx, t0.Add(time.Hour), 0)
	s.Require().NoError(err)
	s.Len(ids, 1, "zero limit means unbounded")
}

func (s *PostgresStoreSuite) TestRevokeIsIdempotent() {
	ctx := context.Background()
	a, _ := s.seed(1)
	rec, err := verification.NewRecord(a.ID, "sha256:head", "completed", t0)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Verifications().Create(ctx, rec))

	s.Require().NoError(s.db.Verifications().Revoke(ctx, rec.Code, "issued in error", t0.Add(time.Hour)))
	s.Require().NoError(s.db.Verifications().Revoke(ctx, rec.Code, "second attempt", t0.Add(2*time.Hour)))

	got, err := s.db.Verifications().GetByCode(ctx, rec.Code)
	s.Require().NoError(err)
	s.Equal(verification.ValidityRevoked, got.Validity)
	s.Equal("issued in error", got.RevokedReason)

	s.ErrorIs(s.db.Verifications().Revoke(ctx, "PL-NOPE", "x", t0), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestChainSourceHidesIdentities() {
	ctx := context.Background()
	a, sgs := s.seed(2)

	sum, err := s.db.Chains().AgreementSummary(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Content.Hash, sum.ContentHash)
	s.Equal("dispatched", sum.Status)

	signers, err := s.db.Chains().SignerSummaries(ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(signers, 2)
	s.Equal(sgs[0].ID, signers[0].ID)

	_, err = s.db.Chains().Events(ctx, id.NewAgreementID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestEventsAreAppendOnly() {
	ctx := context.Background()
	a, sgs := s.seed(1)
	s.Require().NoError(s.db.Agreements().Commit(ctx, s.signedCommit(a, sgs[0], agreement.StatusCompleted)))

	_, err := s.db.pool.Exec(ctx, `UPDATE signature_events SET reason = 'edited' WHERE agreement_id = $1`, a.ID.UUID())
	s.Error(err)
	_, err = s.db.pool.Exec(ctx, `DELETE FROM audit_records WHERE agreement_id = $1`, a.ID.UUID())
	s.Error(err)
}

func (s *PostgresStoreSuite) TestOutboxRetryAndDelivery() {
	ctx := context.Background()
	s.seed(1)
	outbox := s.db.Outbox()

	pending, err := outbox.FetchPending(ctx, 10, t0)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	msg := pending[0]
	s.JSONEq(`{"k":"v"}`, string(msg.Payload))

	s.Require().NoError(outbox.MarkRetry(ctx, msg.ID, 1, t0.Add(time.Minute), "broker down"))
	pending, err = outbox.FetchPending(ctx, 10, t0.Add(time.Second))
	s.Require().NoError(err)
	s.Empty(pending, "not due yet")

	pending, err = outbox.FetchPending(ctx, 10, t0.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(1, pending[0].Attempts)
	s.Equal("broker down", pending[0].LastError)

	s.Require().NoError(outbox.MarkDelivered(ctx, msg.ID, t0.Add(time.Minute)))
	pending, err = outbox.FetchPending(ctx, 10, t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(pending)

	s.ErrorIs(outbox.MarkDelivered(ctx, id.NewOutboxID(), t0), sentinel.ErrNotFound)
}
