package agreement_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"pactline/internal/agreement"
	"pactline/internal/audit"
	"pactline/internal/identity"
	identitymocks "pactline/internal/identity/mocks"
	"pactline/internal/ledger"
	"pactline/internal/notify"
	"pactline/internal/snapshot"
	"pactline/internal/store/memory"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/sentinel"
	"pactline/pkg/requestcontext"
)

const owner = id.IdentityRef("user:owner")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clock
	db       *memory.DB
	provider *identity.InMemoryProvider
	trail    *audit.Trail
	service  *agreement.Service
	codes    *verification.Registry
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &clock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	s.db = memory.New()
	s.provider = identity.NewInMemoryProvider().WithBcryptCost(bcrypt.MinCost)
	s.trail = audit.New(s.db.Audit(), audit.WithMetrics(audit.NewMetrics(nil)))
	s.service = s.newService(identity.NewRegistry(s.provider, 2*time.Minute, identity.WithMetrics(identity.NewMetrics(nil))))
	s.codes = verification.New(s.db.Verifications(), s.db.Chains(), verification.WithMetrics(verification.NewMetrics(nil)))
}

func (s *ServiceSuite) newService(v agreement.Verifier, opts ...agreement.Option) *agreement.Service {
	base := []agreement.Option{
		agreement.WithMetrics(agreement.NewMetrics(nil)),
		agreement.WithCodeLookup(s.db.Verifications()),
		agreement.WithClock(s.clock.Now),
		agreement.WithAppender(ledger.NewAppender(
			ledger.WithMaxAttempts(100),
			ledger.WithBackoff(time.Millisecond),
			ledger.WithMetrics(ledger.NewMetrics(nil)),
		)),
	}
	return agreement.New(s.db.Agreements(), v, s.trail, append(base, opts...)...)
}

func (s *ServiceSuite) as(ref id.IdentityRef) context.Context {
	return requestcontext.WithCaller(s.ctx, ref)
}

// signer registers a password identity and returns its reference.
func (s *ServiceSuite) signer(name string) agreement.SignerSpec {
	ref := id.IdentityRef("user:" + name)
	s.provider.Register(ref, name)
	s.Require().NoError(s.provider.SetPassword(ref, "pw-"+name))
	return agreement.SignerSpec{IdentityRef: ref, Method: identity.MethodPassword}
}

func proofFor(spec agreement.SignerSpec) identity.Proof {
	return identity.Proof{Password: "pw-" + strings.TrimPrefix(spec.IdentityRef.String(), "user:")}
}

func content() snapshot.Content {
	return snapshot.Content{
		Title:   "Freelance design work",
		Parties: []snapshot.Party{{Role: "client", Name: "Ana Ruiz"}, {Role: "designer", Name: "Kofi Mensah"}},
		Terms:   []snapshot.Term{{Key: "deliverable", Text: "Logo in three formats."}},
		Amount:  &snapshot.Money{Currency: "EUR", Amount: "800.00"},
	}
}

func (s *ServiceSuite) create(req agreement.CreateRequest) (*agreement.Agreement, []agreement.Signer) {
	if req.Content.Title == "" {
		req.Content = content()
	}
	a, err := s.service.CreateAgreement(s.as(owner), req)
	s.Require().NoError(err)
	signers, err := s.db.Agreements().ListSigners(s.ctx, a.ID)
	s.Require().NoError(err)
	return a, signers
}

func (s *ServiceSuite) status(agreementID id.AgreementID) *agreement.StatusView {
	view, err := s.service.GetStatus(s.as(owner), agreementID)
	s.Require().NoError(err)
	return view
}

func (s *ServiceSuite) sign(a *agreement.Agreement, sg agreement.Signer, spec agreement.SignerSpec) error {
	_, err := s.service.RequestSignature(s.as(sg.IdentityRef), a.ID, sg.ID, proofFor(spec))
	return err
}

func (s *ServiceSuite) outbox(agreementID id.AgreementID) []notify.Message {
	msgs, err := s.db.Outbox().FetchPending(s.ctx, 0, s.clock.Now().Add(time.Hour))
	s.Require().NoError(err)
	var out []notify.Message
	for _, m := range msgs {
		if m.AgreementID == agreementID {
			out = append(out, m)
		}
	}
	return out
}

func (s *ServiceSuite) requireValidChain(view *agreement.StatusView) {
	check := ledger.Verify(view.Agreement.ID, view.Agreement.Content.Hash, view.Events)
	s.Require().True(check.Valid, "chain broken at %d", check.BrokenAt)
	s.Equal(view.Agreement.HeadHash, check.Head)
	s.Equal(int64(len(view.Events)), view.Agreement.Version)
}

func countTypes(msgs []notify.Message) map[notify.EventType]int {
	out := make(map[notify.EventType]int)
	for _, m := range msgs {
		out[m.Type]++
	}
	return out
}

// =============================================================================
// Creation
// =============================================================================

func (s *ServiceSuite) TestCreateAgreement() {
	s.Run("dispatches and requests every signature", func() {
		ana, kofi := s.signer("ana"), s.signer("kofi")
		a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana, kofi}})

		s.Equal(agreement.StatusDispatched, a.Status)
		s.Equal(int64(0), a.Version)
		s.Equal(ledger.Genesis(a.ID, a.Content.Hash), a.HeadHash)
		s.Require().Len(signers, 2)
		s.Equal(agreement.SignerPending, signers[0].Status)
		s.Equal(2, countTypes(s.outbox(a.ID))[notify.EventSignatureRequested])

		records, err := s.trail.List(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal(audit.ActionAgreementCreated, records[0].Action)
		s.Equal(audit.ActionAgreementDispatched, records[1].Action)
	})

	s.Run("requires signers", func() {
		_, err := s.service.CreateAgreement(s.as(owner), agreement.CreateRequest{Content: content()})
		s.True(dErrors.HasCode(err, dErrors.CodeNoSigners))
	})

	s.Run("rejects invalid content", func() {
		_, err := s.service.CreateAgreement(s.as(owner), agreement.CreateRequest{
			Content: snapshot.Content{Title: "No parties"},
			Signers: []agreement.SignerSpec{s.signer("ana")},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeContentInvalid))
	})

	s.Run("rejects duplicate signers", func() {
		ana := s.signer("ana")
		_, err := s.service.CreateAgreement(s.as(owner), agreement.CreateRequest{
			Content: content(),
			Signers: []agreement.SignerSpec{ana, ana},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects unreachable threshold", func() {
		_, err := s.service.CreateAgreement(s.as(owner), agreement.CreateRequest{
			Content: content(),
			Signers: []agreement.SignerSpec{s.signer("ana")},
			Quorum:  agreement.QuorumPolicy{Kind: agreement.QuorumThreshold, Threshold: 2},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("requires an authenticated caller", func() {
		_, err := s.service.CreateAgreement(s.ctx, agreement.CreateRequest{
			Content: content(),
			Signers: []agreement.SignerSpec{s.signer("ana")},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestDraftLifecycle() {
	ana := s.signer("ana")
	a, err := s.service.CreateDraft(s.as(owner), agreement.CreateRequest{Content: content()})
	s.Require().NoError(err)
	s.Equal(agreement.StatusDraft, a.Status)

	_, err = s.service.Dispatch(s.as(owner), a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNoSigners))

	_, err = s.service.AttachSigners(s.as("user:stranger"), a.ID, []agreement.SignerSpec{ana})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	signers, err := s.service.AttachSigners(s.as(owner), a.ID, []agreement.SignerSpec{ana})
	s.Require().NoError(err)
	s.Require().Len(signers, 1)

	_, err = s.service.RequestSignature(s.as(ana.IdentityRef), a.ID, signers[0].ID, proofFor(ana))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "drafts cannot be signed")

	dispatched, err := s.service.Dispatch(s.as(owner), a.ID)
	s.Require().NoError(err)
	s.Equal(agreement.StatusDispatched, dispatched.Status)
	s.Equal(1, countTypes(s.outbox(a.ID))[notify.EventSignatureRequested])

	_, err = s.service.Dispatch(s.as(owner), a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	_, err = s.service.AttachSigners(s.as(owner), a.ID, []agreement.SignerSpec{ana})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// =============================================================================
// Signing
// =============================================================================

func (s *ServiceSuite) TestCompletionIssuesVerificationCode() {
	ana, kofi := s.signer("ana"), s.signer("kofi")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana, kofi}})

	s.Require().NoError(s.sign(a, signers[0], ana))
	view := s.status(a.ID)
	s.Equal(agreement.StatusPartiallySigned, view.Agreement.Status)
	s.Empty(view.VerificationCode)

	s.Require().NoError(s.sign(a, signers[1], kofi))
	view = s.status(a.ID)
	s.Equal(agreement.StatusCompleted, view.Agreement.Status)
	s.NotNil(view.Agreement.ClosedAt)
	s.Require().Len(view.Events, 2)
	s.requireValidChain(view)
	s.Require().NotEmpty(view.VerificationCode)
	s.Equal(1, countTypes(s.outbox(a.ID))[notify.EventAgreementCompleted])

	res, err := s.codes.Resolve(s.ctx, view.VerificationCode)
	s.Require().NoError(err)
	s.Equal(verification.VerdictVerified, res.Verdict)
	s.Equal(view.Agreement.HeadHash, res.StoredHash)
	s.Equal("completed", res.IssuedStatus)

	s.Run("no signing after a terminal state", func() {
		err := s.service.Decline(s.as(kofi.IdentityRef), a.ID, signers[1].ID, "changed my mind")
		s.True(dErrors.HasCode(err, dErrors.CodeAgreementClosed))
		s.Len(s.status(a.ID).Events, 2)
	})
}

func (s *ServiceSuite) TestConcurrentSignersAllRecorded() {
	const n = 12
	specs := make([]agreement.SignerSpec, n)
	for i := range specs {
		specs[i] = s.signer(fmt.Sprintf("signer%02d", i))
	}
	a, signers := s.create(agreement.CreateRequest{Signers: specs})
	bySigner := make(map[id.IdentityRef]agreement.SignerSpec, n)
	for _, spec := range specs {
		bySigner[spec.IdentityRef] = spec
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, sg := range signers {
		wg.Go(func() {
			errs <- s.sign(a, sg, bySigner[sg.IdentityRef])
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	view := s.status(a.ID)
	s.Equal(agreement.StatusCompleted, view.Agreement.Status)
	s.Require().Len(view.Events, n)
	s.requireValidChain(view)
	seen := make(map[id.SignerID]bool, n)
	for i, e := range view.Events {
		s.Equal(int64(i+1), e.Sequence)
		s.Require().NotNil(e.SignerID)
		s.False(seen[*e.SignerID], "signer recorded twice")
		seen[*e.SignerID] = true
	}
	s.Equal(1, countTypes(s.outbox(a.ID))[notify.EventAgreementCompleted])
}

func (s *ServiceSuite) TestThresholdQuorum() {
	ana, kofi, lee := s.signer("ana"), s.signer("kofi"), s.signer("lee")
	a, signers := s.create(agreement.CreateRequest{
		Signers: []agreement.SignerSpec{ana, kofi, lee},
		Quorum:  agreement.QuorumPolicy{Kind: agreement.QuorumThreshold, Threshold: 2},
	})

	s.Require().NoError(s.service.Decline(s.as(ana.IdentityRef), a.ID, signers[0].ID, "not my role"))
	s.Equal(agreement.StatusDispatched, s.status(a.ID).Agreement.Status)

	s.Require().NoError(s.sign(a, signers[1], kofi))
	s.Equal(agreement.StatusPartiallySigned, s.status(a.ID).Agreement.Status)

	s.Require().NoError(s.sign(a, signers[2], lee))
	view := s.status(a.ID)
	s.Equal(agreement.StatusCompleted, view.Agreement.Status)
	s.Len(view.Events, 3)
	s.requireValidChain(view)
}

func (s *ServiceSuite) TestThresholdUnreachableIsDeclined() {
	ana, kofi, lee := s.signer("ana"), s.signer("kofi"), s.signer("lee")
	a, signers := s.create(agreement.CreateRequest{
		Signers: []agreement.SignerSpec{ana, kofi, lee},
		Quorum:  agreement.QuorumPolicy{Kind: agreement.QuorumThreshold, Threshold: 2},
	})
	s.Require().NoError(s.service.Decline(s.as(ana.IdentityRef), a.ID, signers[0].ID, ""))
	s.Require().NoError(s.service.Decline(s.as(kofi.IdentityRef), a.ID, signers[1].ID, ""))

	view := s.status(a.ID)
	s.Equal(agreement.StatusDeclined, view.Agreement.Status)
	s.NotEmpty(view.VerificationCode)
	err := s.sign(a, signers[2], lee)
	s.True(dErrors.HasCode(err, dErrors.CodeAgreementClosed))
}

func (s *ServiceSuite) TestSignThenDecline() {
	ana, kofi := s.signer("ana"), s.signer("kofi")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana, kofi}})

	s.Require().NoError(s.sign(a, signers[0], ana))
	s.Require().NoError(s.service.Decline(s.as(kofi.IdentityRef), a.ID, signers[1].ID, "terms changed"))

	view := s.status(a.ID)
	s.Equal(agreement.StatusDeclined, view.Agreement.Status)
	s.Require().Len(view.Events, 2)
	s.Equal(ledger.KindSigned, view.Events[0].Kind)
	s.Equal(ledger.KindDeclined, view.Events[1].Kind)
	s.Equal("terms changed", view.Events[1].Reason)
	s.requireValidChain(view)
	s.Equal(1, countTypes(s.outbox(a.ID))[notify.EventAgreementDeclined])

	res, err := s.codes.Resolve(s.ctx, view.VerificationCode)
	s.Require().NoError(err)
	s.Equal(verification.VerdictVerified, res.Verdict)
	s.Equal("declined", res.IssuedStatus)
	s.Len(res.Events, 2)
}

func (s *ServiceSuite) TestFailedVerificationLeavesStateUnchanged() {
	ana := s.signer("ana")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}})

	ctx := requestcontext.WithClientMetadata(s.as(ana.IdentityRef), "203.0.113.77", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	_, err := s.service.RequestSignature(ctx, a.ID, signers[0].ID, identity.Proof{Password: "wrong"})
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))

	view := s.status(a.ID)
	s.Equal(agreement.StatusDispatched, view.Agreement.Status)
	s.Equal(int64(0), view.Agreement.Version)
	s.Empty(view.Events)
	s.Equal(agreement.SignerPending, view.Signers[0].Status, "lease is released")

	records, err := s.trail.List(s.ctx, a.ID)
	s.Require().NoError(err)
	last := records[len(records)-1]
	s.Equal(audit.ActionVerificationFailed, last.Action)
	s.Equal(audit.Outcome(dErrors.CodeVerificationFailed), last.Outcome)
	s.Equal("203.0.113.0/24", last.NetworkOrigin)

	s.Require().NoError(s.sign(a, signers[0], ana), "a later attempt may still succeed")
}

func (s *ServiceSuite) TestVerifierTimeoutIsAudited() {
	ctrl := gomock.NewController(s.T())
	verifier := identitymocks.NewMockVerifier(ctrl)
	svc := s.newService(verifier)

	ana := s.signer("ana")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}})
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(identity.Outcome{}, dErrors.New(dErrors.CodeVerificationTimeout, "identity check timed out"))

	_, err := svc.RequestSignature(s.as(ana.IdentityRef), a.ID, signers[0].ID, identity.Proof{})
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationTimeout))
	s.Empty(s.status(a.ID).Events)

	records, err := s.trail.List(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(audit.Outcome(dErrors.CodeVerificationTimeout), records[len(records)-1].Outcome)
}

func (s *ServiceSuite) TestExpiredRequestDeadlineStillAuditsAttempt() {
	ctrl := gomock.NewController(s.T())
	unresponsive := identitymocks.NewMockVerifier(ctrl)
	unresponsive.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ identity.SignerContext, _ identity.Proof) (identity.Outcome, error) {
			<-ctx.Done()
			return identity.Outcome{}, ctx.Err()
		})
	registry := identity.NewRegistry(s.provider, 2*time.Minute,
		identity.WithTimeout(time.Second),
		identity.WithVerifier(identity.MethodPassword, unresponsive),
	)
	svc := s.newService(registry)

	ana := s.signer("ana")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}})

	ctx, cancel := context.WithTimeout(s.as(ana.IdentityRef), 100*time.Millisecond)
	defer cancel()
	_, err := svc.RequestSignature(ctx, a.ID, signers[0].ID, proofFor(ana))
	s.Require().Error(err)
	s.Equal(dErrors.CodeVerificationTimeout, dErrors.CodeOf(err))

	records, err := s.db.Audit().ListByAgreement(s.ctx, a.ID)
	s.Require().NoError(err)
	var failed []audit.Record
	for _, r := range records {
		if r.Action == audit.ActionVerificationFailed {
			failed = append(failed, r)
		}
	}
	s.Require().Len(failed, 1)
	s.Equal(audit.Outcome(dErrors.CodeVerificationTimeout), failed[0].Outcome)
	s.Equal(agreement.SignerPending, s.status(a.ID).Signers[0].Status, "lease is released")
}

func (s *ServiceSuite) TestLedgerUnavailable() {
	ana := s.signer("ana")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}})

	s.db.OnCommit(func(agreement.Commit) error { return sentinel.ErrUnavailable })
	err := s.sign(a, signers[0], ana)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	s.db.OnCommit(nil)
	view := s.status(a.ID)
	s.Empty(view.Events)
	s.Equal(agreement.SignerPending, view.Signers[0].Status)
	s.Require().NoError(s.sign(a, signers[0], ana))
}

func (s *ServiceSuite) TestSignerAuthorization() {
	ana, kofi := s.signer("ana"), s.signer("kofi")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana, kofi}})

	_, err := s.service.RequestSignature(s.as(kofi.IdentityRef), a.ID, signers[0].ID, proofFor(kofi))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.GetStatus(s.as("user:stranger"), a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.GetStatus(s.as(kofi.IdentityRef), a.ID)
	s.NoError(err)

	_, err = s.service.GetStatus(requestcontext.WithAdmin(s.as("ops:1"), true), a.ID)
	s.NoError(err)

	_, err = s.service.GetStatus(s.as(owner), id.NewAgreementID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeclineReasonLength() {
	ana := s.signer("ana")
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}})
	err := s.service.Decline(s.as(ana.IdentityRef), a.ID, signers[0].ID, strings.Repeat("x", 1001))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestSequentialSigning() {
	ana, kofi, lee := s.signer("ana"), s.signer("kofi"), s.signer("lee")
	a, signers := s.create(agreement.CreateRequest{
		Signers:    []agreement.SignerSpec{ana, kofi, lee},
		Sequential: true,
	})
	s.Equal(1, countTypes(s.outbox(a.ID))[notify.EventSignatureRequested], "only the first signer is asked")

	err := s.sign(a, signers[1], kofi)
	s.True(dErrors.HasCode(err, dErrors.CodeOutOfOrder))
	s.Empty(s.status(a.ID).Events)

	s.Require().NoError(s.sign(a, signers[0], ana))
	s.Equal(2, countTypes(s.outbox(a.ID))[notify.EventSignatureRequested])

	s.Require().NoError(s.sign(a, signers[1], kofi))
	s.Require().NoError(s.sign(a, signers[2], lee))
	s.Equal(agreement.StatusCompleted, s.status(a.ID).Agreement.Status)
}

// =============================================================================
// Expiry
// =============================================================================

func (s *ServiceSuite) TestConcurrentExpirySweepsOnce() {
	ana, kofi := s.signer("ana"), s.signer("kofi")
	expires := s.clock.Now().Add(time.Hour)
	a, signers := s.create(agreement.CreateRequest{
		Signers:   []agreement.SignerSpec{ana, kofi},
		ExpiresAt: &expires,
	})
	s.Require().NoError(s.sign(a, signers[0], ana))

	s.clock.Advance(2 * time.Hour)
	now := s.clock.Now()

	var total atomic.Int64
	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			n, err := s.service.SweepExpired(s.ctx, now)
			s.NoError(err)
			total.Add(int64(n))
		})
	}
	wg.Wait()
	s.Equal(int64(1), total.Load())

	view := s.status(a.ID)
	s.Equal(agreement.StatusExpired, view.Agreement.Status)
	s.Require().Len(view.Events, 2)
	s.Equal(ledger.KindExpired, view.Events[1].Kind)
	s.Equal(ledger.SystemActor, view.Events[1].SignerIdentity)
	s.requireValidChain(view)
	s.Equal(agreement.SignerSigned, view.Signers[0].Status)
	s.Equal(agreement.SignerExpired, view.Signers[1].Status)
	s.Empty(view.VerificationCode, "expired agreements are not issued a code by default")
	s.Equal(1, countTypes(s.outbox(a.ID))[notify.EventAgreementExpired])

	err := s.sign(a, signers[1], kofi)
	s.True(dErrors.HasCode(err, dErrors.CodeAgreementClosed))

	n, err := s.service.SweepExpired(s.ctx, now)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ServiceSuite) TestSigningAfterExpiryBeforeSweep() {
	ana := s.signer("ana")
	expires := s.clock.Now().Add(time.Minute)
	a, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}, ExpiresAt: &expires})
	s.clock.Advance(time.Minute)

	err := s.sign(a, signers[0], ana)
	s.True(dErrors.HasCode(err, dErrors.CodeAgreementClosed))
}

func (s *ServiceSuite) TestIssuanceOnExpiry() {
	svc := s.newService(identity.NewRegistry(s.provider, time.Minute),
		agreement.WithIssuanceOn(agreement.StatusCompleted, agreement.StatusDeclined, agreement.StatusExpired))
	ana := s.signer("ana")
	expires := s.clock.Now().Add(time.Minute)
	a, err := svc.CreateAgreement(s.as(owner), agreement.CreateRequest{
		Content:   content(),
		Signers:   []agreement.SignerSpec{ana},
		ExpiresAt: &expires,
	})
	s.Require().NoError(err)
	s.clock.Advance(time.Hour)

	n, err := svc.SweepExpired(s.ctx, s.clock.Now())
	s.Require().NoError(err)
	s.Equal(1, n)

	rec, err := s.db.Verifications().GetByAgreement(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("expired", rec.AgreementStatus)
}

// =============================================================================
// Supersession
// =============================================================================

func (s *ServiceSuite) TestSupersession() {
	ana := s.signer("ana")
	first, signers := s.create(agreement.CreateRequest{Signers: []agreement.SignerSpec{ana}})
	s.Require().NoError(s.sign(first, signers[0], ana))
	firstCode := s.status(first.ID).VerificationCode

	second, signers := s.create(agreement.CreateRequest{
		Signers:      []agreement.SignerSpec{ana},
		SupersedesID: &first.ID,
	})
	res, err := s.codes.Resolve(s.ctx, firstCode)
	s.Require().NoError(err)
	s.Equal(verification.VerdictVerified, res.Verdict, "supersession applies once the successor completes")

	s.Require().NoError(s.sign(second, signers[0], ana))

	res, err = s.codes.Resolve(s.ctx, firstCode)
	s.Require().NoError(err)
	s.Equal(verification.VerdictSuperseded, res.Verdict)
	s.True(res.ChainValid)

	rec, err := s.db.Verifications().GetByCode(s.ctx, firstCode)
	s.Require().NoError(err)
	s.Require().NotNil(rec.SupersededBy)
	s.Equal(second.ID, *rec.SupersededBy)

	s.Run("only the creator may supersede", func() {
		_, err := s.service.CreateAgreement(s.as("user:stranger"), agreement.CreateRequest{
			Content:      content(),
			Signers:      []agreement.SignerSpec{ana},
			SupersedesID: &second.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
