package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/kafka"
)

const (
	defaultBufferSize = 10000
	maxBatchSize      = 100
	publishTimeout    = 5 * time.Second
)

// Publisher is the write side of the query-event topic.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Collector buffers query events and publishes them in batches from one
// goroutine, so request handlers never wait on Kafka.
type Collector struct {
	producer Publisher
	eventCh  chan QueryEvent
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan QueryEvent, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start runs the publish loop until ctx is cancelled or Close is called.
// Events still buffered at that point are flushed.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(c.batch(event))
			case <-ctx.Done():
				c.flush()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event, dropping it when the buffer is full.
func (c *Collector) Track(event QueryEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped, buffer full", "query", event.Query)
	}
}

// Close stops accepting events and waits for the loop to finish. Track
// must not be called afterwards.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

// batch collects first plus whatever else is already buffered, up to
// maxBatchSize events.
func (c *Collector) batch(first QueryEvent) []kafka.Event {
	events := []kafka.Event{{Key: first.Generation, Value: first}}
	for len(events) < maxBatchSize {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return events
			}
			events = append(events, kafka.Event{Key: event.Generation, Value: event})
		default:
			return events
		}
	}
	return events
}

func (c *Collector) flush() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(c.batch(event))
		default:
			return
		}
	}
}

// publish uses its own deadline so a flush after shutdown still reaches the
// broker.
func (c *Collector) publish(events []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.producer.Publish(ctx, events...); err != nil {
		c.logger.Error("failed to publish analytics events", "events", len(events), "error", err)
	}
}
