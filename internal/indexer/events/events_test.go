package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/kafka"
)

type fakeRebuilder struct {
	calls int
	err   error
}

func (f *fakeRebuilder) StartRebuild(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestHandleRebuild(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"starts rebuild", `{"reason":"corpus updated"}`, nil, 1, false},
		{"folds into running build", `{"reason":"again"}`, apperrors.ErrBuildInProgress, 1, false},
		{"surfaces other failures", `{}`, errors.New("boom"), 1, true},
		{"acks malformed message", `not json`, nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRebuilder{err: tt.err}
			err := HandleRebuild(r)(context.Background(), []byte("k"), []byte(tt.value))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if r.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", r.calls, tt.wantCalls)
			}
		})
	}
}

type fakeProducer struct {
	mu       sync.Mutex
	failures int
	events   []kafka.Event
}

func (f *fakeProducer) Publish(ctx context.Context, events ...kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, events...)
	return nil
}

func TestPublisherRetries(t *testing.T) {
	producer := &fakeProducer{failures: 1}
	p := NewPublisher(producer)
	p.retry.Initial = time.Millisecond

	p.BuildFinished(context.Background(), indexer.BuildReport{
		GenerationID: "00000000000000000042",
		Mode:         config.StorageDisk,
		Duration:     1500 * time.Millisecond,
		Stats:        indexer.BuildStats{Documents: 3, Tokens: 2, Postings: 4},
	})
	if len(producer.events) != 1 {
		t.Fatalf("published %d events", len(producer.events))
	}
	event := producer.events[0].Value.(BuildCompleted)
	if event.Status != "ok" || event.Tokens != 2 || event.DurationMs != 1500 || producer.events[0].Key != "disk" {
		t.Errorf("event = %+v", event)
	}
}

func TestNewBuildCompletedFailure(t *testing.T) {
	event := NewBuildCompleted(indexer.BuildReport{
		Mode: config.StorageMemory,
		Err:  errors.New("reading corpus directory: no such file"),
	})
	if event.Status != "failed" || event.Error == "" || event.GenerationID != "" {
		t.Errorf("event = %+v", event)
	}
}
