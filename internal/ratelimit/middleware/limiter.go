package middleware

import (
	"context"
	"log/slog"
	"time"

	"pactline/internal/ratelimit/metrics"
	"pactline/internal/ratelimit/models"
	"pactline/internal/ratelimit/store/bucket"
	"pactline/pkg/platform/circuit"
)

// BucketStore is the sliding window contract shared by the memory and Redis
// stores.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Limiter checks the primary store and switches to an in-memory fallback
// while the breaker is open.
type Limiter struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type LimiterOption func(*Limiter)

func WithFallback(store BucketStore) LimiterOption {
	return func(l *Limiter) {
		l.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) LimiterOption {
	return func(l *Limiter) {
		l.breaker = b
	}
}

func WithLimiterMetrics(m *metrics.Metrics) LimiterOption {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// NewLimiter wraps primary with a breaker and an in-memory fallback.
func NewLimiter(primary BucketStore, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		primary:  primary,
		fallback: bucket.New(),
		breaker:  circuit.New("ratelimit", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(3), circuit.WithCooldown(10*time.Second)),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports the admission result and whether the fallback produced it.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, bool, error) {
	if !l.breaker.Allow() {
		res, err := l.fallback.Allow(ctx, key, limit, window)
		return res, true, err
	}

	res, err := l.primary.Allow(ctx, key, limit, window)
	if err != nil {
		l.metrics.IncCheckErrors()
		_, change := l.breaker.RecordFailure()
		if change.Opened {
			l.metrics.SetDegraded(true)
			l.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "error", err)
		}
		res, ferr := l.fallback.Allow(ctx, key, limit, window)
		return res, true, ferr
	}
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		l.metrics.SetDegraded(false)
		l.logger.InfoContext(ctx, "rate limit store recovered")
	}
	return res, false, nil
}
