package notify

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces notifications to a single topic keyed by agreement
// id, so a consumer sees one agreement's events in order.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.Key()),
		Value: msg.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(msg.Type)},
			{Key: "message_id", Value: []byte(msg.ID.String())},
		},
		Timestamp: msg.CreatedAt,
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", msg.Type, err)
	}
	return nil
}
