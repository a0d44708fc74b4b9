package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/metrics"
)

// BuildReport describes one finished build attempt.
type BuildReport struct {
	GenerationID string
	Mode         config.StorageMode
	StartedAt    time.Time
	Duration     time.Duration
	Stats        BuildStats
	Err          error
}

// Observer is notified after every build attempt, successful or not.
type Observer interface {
	BuildFinished(ctx context.Context, report BuildReport)
}

// Engine owns the live generation. Rebuilds run off to the side and are
// published with a single pointer swap, so a query sees either the old or
// the new generation in full.
type Engine struct {
	cfg       config.IndexerConfig
	current   atomic.Pointer[Generation]
	building  atomic.Bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
	mu        sync.Mutex
	observers []Observer
	closing   bool
	wg        sync.WaitGroup
}

// ErrEngineClosed is returned for rebuilds requested after Close.
var ErrEngineClosed = errors.New("engine closed")

// NewEngine creates an Engine with no generation. m may be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// AddObserver registers o for build notifications.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Current returns the live generation, or nil before the first publish.
func (e *Engine) Current() *Generation {
	return e.current.Load()
}

// Building reports whether a rebuild is running.
func (e *Engine) Building() bool {
	return e.building.Load()
}

// LoadExisting publishes the newest persisted disk generation, if any.
func (e *Engine) LoadExisting() error {
	if e.cfg.StorageMode != config.StorageDisk {
		return nil
	}
	gen, err := OpenLatest(e.cfg.DataDir)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoGeneration) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	e.publish(gen)
	e.logger.Info("loaded existing generation",
		"generation", gen.ID,
		"tokens", gen.Stats.Tokens,
		"documents", gen.Stats.Documents,
	)
	return nil
}

// Rebuild builds a new generation and publishes it. On failure the live
// generation is left untouched. Only one rebuild runs at a time.
func (e *Engine) Rebuild(ctx context.Context) (*Generation, error) {
	if !e.building.CompareAndSwap(false, true) {
		return nil, apperrors.ErrBuildInProgress
	}
	defer e.building.Store(false)
	if !e.track() {
		return nil, ErrEngineClosed
	}
	defer e.wg.Done()
	return e.rebuild(ctx)
}

// StartRebuild runs Rebuild in the background. It fails immediately with
// ErrBuildInProgress if a rebuild is already running.
func (e *Engine) StartRebuild(ctx context.Context) error {
	if !e.building.CompareAndSwap(false, true) {
		return apperrors.ErrBuildInProgress
	}
	if !e.track() {
		e.building.Store(false)
		return ErrEngineClosed
	}
	go func() {
		defer e.wg.Done()
		defer e.building.Store(false)
		if _, err := e.rebuild(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("background rebuild failed", "error", err)
		}
	}()
	return nil
}

func (e *Engine) rebuild(ctx context.Context) (*Generation, error) {
	start := time.Now()
	gen, err := Build(ctx, e.cfg, e.metrics)
	report := BuildReport{
		Mode:      e.cfg.StorageMode,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
		Err:       err,
	}
	if err != nil {
		e.logger.Error("rebuild failed, keeping live generation",
			"error", err,
			"live_generation", e.liveID(),
		)
		e.notify(ctx, report)
		return nil, err
	}
	report.GenerationID = gen.ID
	report.Stats = gen.Stats
	e.publish(gen)
	e.logger.Info("generation published",
		"generation", gen.ID,
		"mode", gen.Mode,
		"tokens", gen.Stats.Tokens,
		"postings", gen.Stats.Postings,
		"duration", report.Duration,
	)
	e.notify(ctx, report)
	return gen, nil
}

// publish swaps gen in and retires the previous generation once its
// in-flight searches have drained.
func (e *Engine) publish(gen *Generation) {
	old := e.current.Swap(gen)
	if e.metrics != nil {
		e.metrics.GenerationSize.WithLabelValues("documents").Set(float64(gen.Stats.Documents))
		e.metrics.GenerationSize.WithLabelValues("tokens").Set(float64(gen.Stats.Tokens))
		e.metrics.GenerationSize.WithLabelValues("postings").Set(float64(gen.Stats.Postings))
	}
	if old == nil {
		return
	}
	if !e.track() {
		e.retire(old)
		return
	}
	go func() {
		defer e.wg.Done()
		e.retire(old)
	}()
}

// track counts one unit of work for Close to wait on. It refuses once Close
// has started, so wg.Add never races wg.Wait.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *Engine) retire(gen *Generation) {
	if err := gen.Close(); err != nil {
		e.logger.Error("closing retired generation", "generation", gen.ID, "error", err)
	}
	if gen.Dir != "" {
		if err := os.RemoveAll(gen.Dir); err != nil {
			e.logger.Error("removing retired generation", "generation", gen.ID, "error", err)
		}
	}
	e.logger.Debug("generation retired", "generation", gen.ID)
}

func (e *Engine) notify(ctx context.Context, report BuildReport) {
	e.mu.Lock()
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, o := range observers {
		o.BuildFinished(ctx, report)
	}
}

func (e *Engine) liveID() string {
	if gen := e.current.Load(); gen != nil {
		return gen.ID
	}
	return ""
}

// Search answers term from the live generation.
func (e *Engine) Search(ctx context.Context, term string) (*executor.SearchResult, error) {
	for {
		gen := e.current.Load()
		if gen == nil {
			return nil, apperrors.ErrNoGeneration
		}
		results, err := gen.Search(ctx, term)
		if errors.Is(err, errRetired) {
			// Swapped out between Load and the read lock; the pointer
			// already holds its successor.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("generation %s: %w", gen.ID, err)
		}
		return &executor.SearchResult{
			Term:       tokenizer.Normalize(term),
			Generation: gen.ID,
			TotalHits:  len(results),
			Results:    results,
		}, nil
	}
}

// Close refuses new rebuilds, waits for running work and closes the live
// generation.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.wg.Wait()
	if gen := e.current.Swap(nil); gen != nil {
		return gen.Close()
	}
	return nil
}
