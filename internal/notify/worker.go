package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "pactline/pkg/domain"
	"pactline/pkg/platform/circuit"
)

//go:generate mockgen -source=worker.go -destination=mocks/notify-mocks.go -package=mocks Outbox,Publisher

// Outbox is the pending side of the transactional outbox.
type Outbox interface {
	FetchPending(ctx context.Context, limit int, now time.Time) ([]Message, error)
	MarkDelivered(ctx context.Context, id id.OutboxID, at time.Time) error
	MarkRetry(ctx context.Context, id id.OutboxID, attempts int, next time.Time, lastErr string) error
}

// Publisher delivers one message to the transport topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Worker drains the outbox. Delivery failures are retried with backoff and
// never touch agreement state.
type Worker struct {
	outbox     Outbox
	publisher  Publisher
	breaker    *circuit.Breaker
	batchSize  int
	maxBackoff time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithMaxBackoff(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.maxBackoff = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(outbox Outbox, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		outbox:     outbox,
		publisher:  publisher,
		breaker:    circuit.New("notify", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		batchSize:  50,
		maxBackoff: 5 * time.Minute,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("notify: poll interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if _, err := w.ProcessBatch(ctx); err != nil {
		w.logger.ErrorContext(ctx, "outbox batch failed", "error", err)
	}
}

// ProcessBatch delivers up to one batch and returns how many were delivered.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		return 0, nil
	}
	msgs, err := w.outbox.FetchPending(ctx, w.batchSize, w.now())
	if err != nil {
		return 0, err
	}
	w.metrics.setPending(len(msgs))

	delivered := 0
	for _, msg := range msgs {
		if err := w.publisher.Publish(ctx, msg); err != nil {
			w.retry(ctx, msg, err)
			if _, change := w.breaker.RecordFailure(); change.Opened {
				w.logger.WarnContext(ctx, "notification publisher unhealthy, pausing delivery", "breaker", w.breaker.Name())
			}
			if w.breaker.IsOpen() {
				break
			}
			continue
		}
		if _, change := w.breaker.RecordSuccess(); change.Closed {
			w.logger.InfoContext(ctx, "notification publisher recovered", "breaker", w.breaker.Name())
		}
		if err := w.outbox.MarkDelivered(ctx, msg.ID, w.now()); err != nil {
			// The message will be delivered again; consumers dedupe on id.
			w.logger.ErrorContext(ctx, "failed to mark outbox message delivered", "outbox_id", msg.ID, "error", err)
			continue
		}
		w.metrics.incDelivered(msg.Type)
		delivered++
	}
	return delivered, nil
}

func (w *Worker) retry(ctx context.Context, msg Message, cause error) {
	attempts := msg.Attempts + 1
	next := w.now().Add(w.backoff(attempts))
	w.metrics.incFailed(msg.Type)
	w.logger.WarnContext(ctx, "notification delivery failed",
		"outbox_id", msg.ID,
		"type", msg.Type,
		"attempts", attempts,
		"error", cause,
	)
	if err := w.outbox.MarkRetry(ctx, msg.ID, attempts, next, cause.Error()); err != nil {
		w.logger.ErrorContext(ctx, "failed to reschedule outbox message", "outbox_id", msg.ID, "error", err)
	}
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := time.Second
	for i := 1; i < attempts && d < w.maxBackoff; i++ {
		d *= 2
	}
	return min(d, w.maxBackoff)
}
