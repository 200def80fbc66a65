package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/config"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/infra/logging"
)

const traceHeader = "x-trace-id"

var _ adapter.EventPublisher = (*Publisher)(nil)

// Publisher writes subscription events to one topic, keyed by user email so
// all events of a user land on the same partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zerolog.Logger
}

// NewProducerConfig returns the sarama settings used for subscription events.
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Timeout = 5 * time.Second
	cfg.Version = sarama.V2_8_0_0
	return cfg
}

// NewPublisher dials the brokers. With no brokers configured it returns a
// publisher that drops events.
func NewPublisher(cfg config.KafkaConfig, logger *zerolog.Logger) (adapter.EventPublisher, error) {
	l := logger.With().Str("component", "kafka").Logger()
	if len(cfg.Brokers) == 0 {
		l.Info().Msg("kafka brokers not configured, subscription events disabled")
		return NoopPublisher{}, nil
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	l.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Kafka producer initialized")
	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zerolog.Logger) *Publisher {
	l := logger.With().Str("component", "kafka").Logger()
	return &Publisher{producer: producer, topic: topic, log: &l}
}

func (p *Publisher) PublishSubscriptionEvent(ctx context.Context, ev adapter.SubscriptionEvent) error {
	if ev.UserEmail == "" {
		return errors.New("subscription event without user email")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.UserEmail),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(ev.Type)},
		},
	}
	if id := logging.TraceID(ctx); id != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(traceHeader), Value: []byte(id)})
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	log := logging.With(ctx, p.log)
	log.Debug().
		Str("topic", p.topic).
		Str("event_type", ev.Type).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("subscription event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishSubscriptionEvent(context.Context, adapter.SubscriptionEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
