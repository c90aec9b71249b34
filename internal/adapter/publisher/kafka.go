package publisher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// kafkaWriter is the part of kafka.Writer the publisher needs; narrowed for
// testability.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements usecase.Publisher on a shared kafka writer. The
// outbox topic becomes a prefixed kafka topic; the aggregate ref becomes the
// partition key so per-aggregate ordering survives consumer scaling.
type KafkaPublisher struct {
	writer      kafkaWriter
	topicPrefix string
	logger      zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to the given brokers.
func NewKafkaPublisher(brokers, topicPrefix string, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		writer:      writer,
		topicPrefix: topicPrefix,
		logger:      logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

// Publish writes one event. Synchronous on purpose: the outbox needs the
// write acknowledged before it acks the event.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	kafkaTopic := topic
	if p.topicPrefix != "" {
		kafkaTopic = p.topicPrefix + "." + topic
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: kafkaTopic,
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", kafkaTopic, err)
	}

	p.logger.Debug().Str("topic", kafkaTopic).Str("key", key).Msg("published event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
