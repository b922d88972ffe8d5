package notify

import (
	"context"
	"log/slog"
)

// LogPublisher writes notifications to the log. It stands in for a broker in
// development.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, msg Message) error {
	p.logger.InfoContext(ctx, "notification",
		"outbox_id", msg.ID,
		"type", msg.Type,
		"agreement_id", msg.AgreementID,
		"payload", string(msg.Payload),
	)
	return nil
}
