package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) breaker(opts ...Option) *Breaker {
	b := New("kafka", opts...)
	b.now = func() time.Time { return s.now }
	return b
}

func (s *BreakerSuite) TestStartsClosed() {
	b := s.breaker()
	s.Equal("kafka", b.Name())
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}

func (s *BreakerSuite) TestOpensOnConsecutiveFailures() {
	b := s.breaker(WithFailureThreshold(3))

	for range 2 {
		useFallback, change := b.RecordFailure()
		s.False(useFallback)
		s.False(change.Opened)
	}
	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.True(change.Opened)
	s.True(b.IsOpen())
	s.False(b.Allow(), "no calls before the cooldown")
}

func (s *BreakerSuite) TestSuccessBreaksTheFailureRun() {
	b := s.breaker(WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	useFallback, _ := b.RecordFailure()
	s.False(useFallback)
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestProbeAfterCooldown() {
	b := s.breaker(WithFailureThreshold(1), WithCooldown(time.Minute))
	b.RecordFailure()

	s.now = s.now.Add(59 * time.Second)
	s.False(b.Allow())

	s.now = s.now.Add(time.Second)
	s.True(b.Allow())
	s.Equal(StateHalfOpen, b.State())
}

func (s *BreakerSuite) TestFailedProbeReopensWithoutAnnouncing() {
	b := s.breaker(WithFailureThreshold(1), WithCooldown(time.Minute))
	b.RecordFailure()
	s.now = s.now.Add(time.Minute)
	s.Require().True(b.Allow())

	useFallback, change := b.RecordFailure()
	s.True(useFallback)
	s.False(change.Opened, "already counted as open")
	s.Equal(StateOpen, b.State())
	s.False(b.Allow(), "cooldown restarts from the failed probe")
}

func (s *BreakerSuite) TestClosesAfterSuccessThreshold() {
	b := s.breaker(WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Second))
	b.RecordFailure()
	s.now = s.now.Add(time.Second)
	s.Require().True(b.Allow())

	usePrimary, change := b.RecordSuccess()
	s.False(usePrimary)
	s.False(change.Closed)

	usePrimary, change = b.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestReset() {
	b := s.breaker(WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
}

func (s *BreakerSuite) TestInvalidOptionsKeepDefaults() {
	b := s.breaker(WithFailureThreshold(0), WithSuccessThreshold(-1), WithCooldown(0))
	s.Equal(5, b.failureThreshold)
	s.Equal(1, b.successThreshold)
	s.Equal(30*time.Second, b.cooldown)
}
