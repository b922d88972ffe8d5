package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	dErrors "pactline/pkg/domain-errors"
	"pactline/pkg/platform/sentinel"
)

// Transaction is one optimistic attempt to extend a chain. Prepare reads the
// current head and decides what to append; Commit persists the built event
// together with its side effects and fails with sentinel.ErrConflict when the
// head moved since Prepare.
type Transaction interface {
	Prepare(ctx context.Context) (Head, Draft, error)
	Commit(ctx context.Context, head Head, event Event) error
}

const (
	defaultMaxAttempts = 5
	defaultTimeout     = 5 * time.Second
	defaultBackoff     = 5 * time.Millisecond
)

// Appender drives Transactions to completion, retrying on conflict. It owns
// no storage; durability is whatever Commit provides, and an event is only
// returned after Commit succeeded.
type Appender struct {
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	logger      *slog.Logger
	metrics     *Metrics
}

type Option func(*Appender)

func WithMaxAttempts(n int) Option {
	return func(a *Appender) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithTimeout bounds each storage round trip.
func WithTimeout(d time.Duration) Option {
	return func(a *Appender) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(a *Appender) {
		if d >= 0 {
			a.backoff = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Appender) {
		a.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(a *Appender) {
		a.metrics = m
	}
}

func NewAppender(opts ...Option) *Appender {
	a := &Appender{
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append runs tx until it commits, a non-conflict error occurs, or attempts
// run out. Domain errors from Prepare are returned untouched so callers can
// reject the operation on fresh state.
func (a *Appender) Append(ctx context.Context, tx Transaction) (*Event, error) {
	for attempt := 1; ; attempt++ {
		event, err := a.try(ctx, tx)
		if err == nil {
			a.metrics.observeAppend(event.Kind, attempt)
			return event, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, a.translate(err)
		}
		a.metrics.incConflict()
		if attempt >= a.maxAttempts {
			if a.logger != nil {
				a.logger.WarnContext(ctx, "ledger append gave up after conflicts", "attempts", attempt)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerConflict, "agreement changed concurrently; retry the request")
		}
		if err := a.sleep(ctx, attempt); err != nil {
			return nil, a.translate(err)
		}
	}
}

func (a *Appender) try(ctx context.Context, tx Transaction) (*Event, error) {
	readCtx, cancel := context.WithTimeout(ctx, a.timeout)
	head, draft, err := tx.Prepare(readCtx)
	cancel()
	if err != nil {
		return nil, err
	}

	event, err := Build(head, draft)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := tx.Commit(writeCtx, head, event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (a *Appender) sleep(ctx context.Context, attempt int) error {
	if a.backoff == 0 {
		return ctx.Err()
	}
	d := a.backoff * time.Duration(1<<(attempt-1))
	d += time.Duration(rand.Int64N(int64(a.backoff)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *Appender) translate(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sentinel.ErrUnavailable):
		a.metrics.incUnavailable()
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "signature ledger is unavailable")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "request cancelled before the ledger committed")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "agreement not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
}
