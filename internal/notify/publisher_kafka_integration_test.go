//go:build integration

package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"pactline/internal/notify"
	"pactline/internal/platform/kafka"
	id "pactline/pkg/domain"
	"pactline/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
	cfg    kafka.Config
	client *kgo.Client
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())
	s.cfg = kafka.Config{
		Brokers:    []string{s.broker.Broker},
		ClientID:   "pactline-test",
		Topic:      "pactline.agreements.test",
		Partitions: 3,
	}
	ctx := context.Background()
	client, err := kafka.NewClient(ctx, s.cfg)
	s.Require().NoError(err)
	s.client = client
	s.Require().NoError(kafka.EnsureTopic(ctx, client, s.cfg))
	s.Require().NoError(kafka.EnsureTopic(ctx, client, s.cfg), "creating an existing topic is not an error")
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *KafkaPublisherSuite) TestPublishedRecordsCarryTypeAndKey() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agreementID := id.NewAgreementID()
	msg, err := notify.NewMessage(notify.EventAgreementCompleted, agreementID, notify.AgreementClosed{
		AgreementID:    agreementID,
		Status:         "completed",
		FinalChainHash: "sha256:head",
		ClosedAt:       time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	s.Require().NoError(err)

	s.Require().NoError(notify.NewKafkaPublisher(s.client, s.cfg.Topic).Publish(ctx, msg))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ConsumeTopics(s.cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got *kgo.Record
	for got == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "no record consumed before timeout")
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == agreementID.String() {
				got = r
			}
		})
	}

	s.JSONEq(string(msg.Payload), string(got.Value))
	headers := map[string]string{}
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(string(notify.EventAgreementCompleted), headers["event_type"])
	s.Equal(msg.ID.String(), headers["message_id"])
}
