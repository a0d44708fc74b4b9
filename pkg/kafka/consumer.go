// Package kafka moves invidx events over segmentio/kafka-go: build
// completions and query events are published as JSON, while rebuild
// requests and query events are consumed through a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/resilience"
)

const fetchBackoff = time.Second

// MessageHandler processes one message. Returning an error asks for the
// message to be retried; once retries are exhausted the message is skipped.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerOption adjusts a Consumer.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	startOffset int64
	retry       resilience.Backoff
}

// FromEarliest makes a group with no committed offset start at the oldest
// retained message instead of the newest.
func FromEarliest() ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = kafka.FirstOffset }
}

// WithRetry sets the schedule for redelivering a failed message to the
// handler.
func WithRetry(b resilience.Backoff) ConsumerOption {
	return func(o *consumerOptions) { o.retry = b }
}

// Consumer reads one topic as a member of the configured consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.Backoff
	logger  *slog.Logger
}

// NewConsumer creates a consumer for topic. Without options a new group
// starts at the newest message, so requests sent while the service was down
// are not replayed.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		startOffset: kafka.LastOffset,
		retry:       resilience.Backoff{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: o.startOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   o.retry,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start fetches and handles messages until ctx is cancelled. Each message is
// committed after it was handled or skipped.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping", "reason", err)
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(fetchBackoff):
			}
			continue
		}

		c.dispatch(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	err := resilience.Retry(ctx, "handle-message", c.retry, func(int) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil {
		c.logger.Error("skipping message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// Close stops the reader. Start returns once its pending fetch fails.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
