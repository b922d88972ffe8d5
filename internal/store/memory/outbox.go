package memory

import (
	"context"
	"fmt"
	"time"

	"pactline/internal/notify"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type OutboxStore struct {
	db *DB
}

// FetchPending returns undelivered messages due at now, oldest first.
func (s *OutboxStore) FetchPending(_ context.Context, limit int, now time.Time) ([]notify.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []notify.Message
	for _, row := range s.db.outbox {
		if row.deliveredAt != nil || row.nextAttempt.After(now) {
			continue
		}
		out = append(out, row.msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *OutboxStore) MarkDelivered(_ context.Context, msgID id.OutboxID, at time.Time) error {
	return s.with(msgID, func(row *outboxRow) {
		row.deliveredAt = &at
	})
}

func (s *OutboxStore) MarkRetry(_ context.Context, msgID id.OutboxID, attempts int, next time.Time, lastErr string) error {
	return s.with(msgID, func(row *outboxRow) {
		row.msg.Attempts = attempts
		row.msg.LastError = lastErr
		row.nextAttempt = next
	})
}

// Delivered lists every message marked delivered.
func (s *OutboxStore) Delivered() []notify.Message {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []notify.Message
	for _, row := range s.db.outbox {
		if row.deliveredAt != nil {
			out = append(out, row.msg)
		}
	}
	return out
}

func (s *OutboxStore) with(msgID id.OutboxID, fn func(*outboxRow)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, row := range s.db.outbox {
		if row.msg.ID == msgID {
			fn(row)
			return nil
		}
	}
	return fmt.Errorf("outbox message %s: %w", msgID, sentinel.ErrNotFound)
}
