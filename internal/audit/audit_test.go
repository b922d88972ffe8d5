package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pactline/internal/ledger"
	"pactline/internal/verification"
	id "pactline/pkg/domain"
	"pactline/pkg/requestcontext"
)

type recordingStore struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *recordingStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *recordingStore) ListByAgreement(_ context.Context, agreementID id.AgreementID) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.AgreementID == agreementID {
			out = append(out, r)
		}
	}
	return out, nil
}

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type TrailSuite struct {
	suite.Suite
	store *recordingStore
	trail *Trail
	ctx   context.Context
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) SetupTest() {
	s.store = &recordingStore{}
	s.trail = New(s.store, WithMetrics(NewMetrics(nil)))
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.77", iphoneUA)
	ctx = requestcontext.WithGeolocation(ctx, "-36.84846,174.76334")
	s.ctx = requestcontext.WithRequestID(ctx, "req-1")
}

func (s *TrailSuite) TestRecordFailedAttempt() {
	agreementID, signerID := id.NewAgreementID(), id.NewSignerID()
	s.Require().NoError(s.trail.RecordFailedAttempt(s.ctx, agreementID, signerID, "user:alice", "verification_failed"))

	records, err := s.trail.List(s.ctx, agreementID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	r := records[0]
	s.Equal(ActionVerificationFailed, r.Action)
	s.Equal(Outcome("verification_failed"), r.Outcome)
	s.Equal("203.0.113.0/24", r.NetworkOrigin)
	s.Equal("mobile/ios", r.DeviceClass)
	s.Equal("-36.8,174.8", r.Geolocation)
	s.Equal("req-1", r.RequestID)
	s.Nil(r.EventSequence)
	s.False(r.ID.IsNil())
	s.False(r.Timestamp.IsZero())
}

func (s *TrailSuite) TestEmitFailsClosed() {
	s.store.err = errors.New("disk full")
	err := s.trail.RecordFailedAttempt(s.ctx, id.NewAgreementID(), id.NewSignerID(), "user:a", "x")
	s.Require().Error(err)
	s.Contains(err.Error(), "disk full")
}

func (s *TrailSuite) TestEmitValidatesRecord() {
	s.Error(s.trail.Emit(s.ctx, Record{Action: ActionCodeIssued}))
	s.Error(s.trail.Emit(s.ctx, Record{AgreementID: id.NewAgreementID()}))
	s.Empty(s.store.records)
}

func (s *TrailSuite) TestCodeRevoked() {
	agreementID := id.NewAgreementID()
	ctx := requestcontext.WithCaller(s.ctx, "admin:token")
	rec := verification.Record{Code: "code", AgreementID: agreementID}

	s.Require().NoError(s.trail.CodeRevoked(ctx, rec, "issued in error"))

	records, err := s.trail.List(ctx, agreementID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(ActionCodeRevoked, records[0].Action)
	s.Equal(Outcome("issued in error"), records[0].Outcome)
	s.Equal(id.IdentityRef("admin:token"), records[0].Actor)
}

func (s *TrailSuite) TestForEvent() {
	signer := id.NewSignerID()
	e := ledger.Event{
		AgreementID:    id.NewAgreementID(),
		Sequence:       3,
		Kind:           ledger.KindDeclined,
		SignerID:       &signer,
		SignerIdentity: "user:bob",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		NetworkOrigin:  "203.0.113.0/24",
		Geolocation:    "NZ",
	}
	r := ForEvent(s.ctx, e)
	s.Equal(ActionDeclineRecorded, r.Action)
	s.Equal(OutcomeSuccess, r.Outcome)
	s.Require().NotNil(r.EventSequence)
	s.Equal(int64(3), *r.EventSequence)
	s.Equal(e.Timestamp, r.Timestamp)
	s.Equal(id.IdentityRef("user:bob"), r.Actor)
	s.Equal("mobile/ios", r.DeviceClass)
}

func TestAnonymiseIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.77":                "203.0.113.0/24",
		"203.0.113.77:4431":           "203.0.113.0/24",
		"::ffff:198.51.100.9":         "198.51.100.0/24",
		"2001:db8:abcd:12:1:2:3:4":    "2001:db8:abcd::/48",
		"[2001:db8:abcd:12::1]:443":   "2001:db8:abcd::/48",
		"not-an-ip":                   "",
		"":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, AnonymiseIP(in), in)
	}
}

func TestDeviceClass(t *testing.T) {
	assert.Equal(t, "unknown", DeviceClass(""))
	assert.Equal(t, "bot", DeviceClass("Googlebot/2.1 (+http://www.google.com/bot.html)"))
	assert.Equal(t, "mobile/ios", DeviceClass(iphoneUA))
	desktop := DeviceClass("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	require.Equal(t, "desktop/windows", desktop)
}

func TestCoarseLocation(t *testing.T) {
	assert.Equal(t, "NZ", CoarseLocation("nz"))
	assert.Equal(t, "51.5,-0.1", CoarseLocation("51.50735, -0.12776"))
	assert.Equal(t, "0.0,0.0", CoarseLocation("0.01,-0.04"))
	assert.Empty(t, CoarseLocation("95,10"))
	assert.Empty(t, CoarseLocation("Auckland"))
}
