// Package events connects index builds to Kafka: rebuild requests arrive on
// one topic and every finished build is announced on another.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/resilience"
)

// RebuildRequest is the payload of an index.rebuild message.
type RebuildRequest struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// BuildCompleted is the payload of an index.complete message.
type BuildCompleted struct {
	GenerationID string    `json:"generation_id,omitempty"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Documents    int       `json:"documents"`
	Tokens       int       `json:"tokens"`
	Postings     int       `json:"postings"`
	DurationMs   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
}

// Rebuilder starts a background rebuild.
type Rebuilder interface {
	StartRebuild(ctx context.Context) error
}

// EventPublisher is the write side of a Kafka topic.
type EventPublisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// HandleRebuild returns a MessageHandler that starts a rebuild for every
// request. Requests arriving while a build runs are folded into it.
// Malformed messages are logged and acknowledged.
func HandleRebuild(r Rebuilder) kafka.MessageHandler {
	logger := slog.Default().With("component", "rebuild-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[RebuildRequest](value)
		if err != nil {
			logger.Error("failed to decode rebuild request",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		err = r.StartRebuild(ctx)
		switch {
		case errors.Is(err, apperrors.ErrBuildInProgress):
			logger.Info("rebuild already running, request folded",
				"reason", req.Reason,
				"requested_by", req.RequestedBy,
			)
			return nil
		case err != nil:
			return fmt.Errorf("starting rebuild: %w", err)
		}
		logger.Info("rebuild started",
			"reason", req.Reason,
			"requested_by", req.RequestedBy,
		)
		return nil
	}
}

// Publisher announces finished builds. It implements indexer.Observer.
type Publisher struct {
	producer EventPublisher
	retry    resilience.Backoff
	logger   *slog.Logger
}

func NewPublisher(producer EventPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		retry: resilience.Backoff{
			Attempts: 3,
			Initial:  200 * time.Millisecond,
			Max:      2 * time.Second,
		},
		logger: slog.Default().With("component", "build-publisher"),
	}
}

// BuildFinished publishes report. Delivery failures are logged; they never
// affect the published generation.
func (p *Publisher) BuildFinished(ctx context.Context, report indexer.BuildReport) {
	event := NewBuildCompleted(report)
	err := resilience.Retry(ctx, "publish-build-completed", p.retry, func(int) error {
		return p.producer.Publish(ctx, kafka.Event{Key: event.Mode, Value: event})
	})
	if err != nil {
		p.logger.Error("failed to publish build event",
			"generation", report.GenerationID,
			"error", err,
		)
		return
	}
	p.logger.Debug("build event published", "generation", report.GenerationID, "status", event.Status)
}

// NewBuildCompleted converts a build report into its wire form.
func NewBuildCompleted(report indexer.BuildReport) BuildCompleted {
	event := BuildCompleted{
		GenerationID: report.GenerationID,
		Mode:         string(report.Mode),
		Status:       "ok",
		Documents:    report.Stats.Documents,
		Tokens:       report.Stats.Tokens,
		Postings:     report.Stats.Postings,
		DurationMs:   report.Duration.Milliseconds(),
		StartedAt:    report.StartedAt,
	}
	if report.Err != nil {
		event.Status = "failed"
		event.Error = report.Err.Error()
	}
	return event
}
