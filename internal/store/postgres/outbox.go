package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pactline/internal/notify"
	id "pactline/pkg/domain"
	"pactline/pkg/platform/sentinel"
)

type OutboxStore struct {
	db *DB
}

// FetchPending returns undelivered messages due at now, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int, now time.Time) ([]notify.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.q(ctx).Query(ctx, `
SELECT id, agreement_id, event_type, payload, created_at, attempts, last_error
FROM outbox
WHERE delivered_at IS NULL
  AND next_attempt_at <= $1
ORDER BY seq ASC
LIMIT $2
`, now.UTC(), limit)
	if err != nil {
		return nil, classify(fmt.Errorf("fetch outbox: %w", err))
	}
	defer rows.Close()

	out := make([]notify.Message, 0)
	for rows.Next() {
		var (
			m              notify.Message
			msgID, agrmtID uuid.UUID
			eventType      string
		)
		if err := rows.Scan(&msgID, &agrmtID, &eventType, &m.Payload, &m.CreatedAt, &m.Attempts, &m.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		m.ID = id.OutboxID(msgID)
		m.AgreementID = id.AgreementID(agrmtID)
		m.Type = notify.EventType(eventType)
		m.CreatedAt = utc(m.CreatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, msgID id.OutboxID, at time.Time) error {
	tag, err := s.db.q(ctx).Exec(ctx, `
UPDATE outbox
SET delivered_at = $2, last_error = ''
WHERE id = $1
`, msgID.UUID(), at.UTC())
	if err != nil {
		return classify(fmt.Errorf("mark outbox delivered: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox message %s: %w", msgID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *OutboxStore) MarkRetry(ctx context.Context, msgID id.OutboxID, attempts int, next time.Time, lastErr string) error {
	tag, err := s.db.q(ctx).Exec(ctx, `
UPDATE outbox
SET attempts = $2, next_attempt_at = $3, last_error = $4
WHERE id = $1
`, msgID.UUID(), attempts, next.UTC(), lastErr)
	if err != nil {
		return classify(fmt.Errorf("mark outbox retry: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox message %s: %w", msgID, sentinel.ErrNotFound)
	}
	return nil
}

// enqueue is shared by every write that announces a state change.
func (s *OutboxStore) enqueue(ctx context.Context, msgs []notify.Message) error {
	for _, m := range msgs {
		_, err := s.db.q(ctx).Exec(ctx, `
INSERT INTO outbox (id, agreement_id, event_type, payload, created_at, attempts, last_error, next_attempt_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $5)
`, m.ID.UUID(), m.AgreementID.UUID(), string(m.Type), m.Payload, m.CreatedAt.UTC(), m.Attempts, m.LastError)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", m.Type, err)
		}
	}
	return nil
}
