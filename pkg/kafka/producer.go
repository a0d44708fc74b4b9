package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
)

const (
	contentType = "application/json"
	maxBatch    = 100
)

// Event is one outgoing message. Value is JSON-encoded; Key picks the
// partition, so events sharing a key stay ordered.
type Event struct {
	Key   string
	Value any
}

// Producer writes JSON events to one topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a synchronous producer for topic. Publish returns once
// every event has been acknowledged by all in-sync replicas.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    maxBatch,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes events and writes them as one batch. Nothing is written
// if any event fails to encode.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msg, err := encode(e)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish", "events", len(msgs), "error", err)
		return fmt.Errorf("publishing %d events to %s: %w", len(msgs), p.writer.Topic, err)
	}
	p.logger.Debug("published", "events", len(msgs))
	return nil
}

// Topic returns the topic the producer writes to.
func (p *Producer) Topic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %q: %w", e.Key, err)
	}
	return kafka.Message{
		Key:     []byte(e.Key),
		Value:   value,
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{{Key: "content-type", Value: []byte(contentType)}},
	}, nil
}
