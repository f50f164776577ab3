package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/wayfindercollective/funnel-backend/internal/common/config"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
)

// Producer publishes JSON events to Kafka topics
type Producer struct {
	writer *kafkago.Writer
	logger *logger.Logger
}

// NewProducer creates a Kafka producer
func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
	}

	return &Producer{
		writer: writer,
		logger: log,
	}
}

// PublishEvent marshals the event to JSON and publishes it to the topic
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads events from a Kafka topic as part of a consumer group
type Consumer struct {
	reader *kafkago.Reader
	logger *logger.Logger
}

// NewConsumer creates a Kafka consumer for the topic
func NewConsumer(cfg config.KafkaConfig, topic string, log *logger.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &Consumer{
		reader: reader,
		logger: log,
	}
}

// Consume reads one message and passes it to the handler. The message is
// committed only after the handler returns without error.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	if err := handler(ctx, msg.Key, msg.Value); err != nil {
		return fmt.Errorf("handler failed for offset %d: %w", msg.Offset, err)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
	}

	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// UnmarshalEvent decodes a JSON event payload
func UnmarshalEvent(value []byte, target interface{}) error {
	if err := json.Unmarshal(value, target); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return nil
}
