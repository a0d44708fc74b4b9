// Package cache keeps per-term search results in Redis. Keys carry the
// generation id, so a result can never be served from a generation other
// than the one that produced it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/invidx/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/resilience"
)

const keyPrefix = "invidx:search:"

// Backend is the key-value store behind the cache. *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	cfg := resilience.BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		// A missing key is a healthy answer.
		IsFailure: func(err error) bool {
			return err != nil && !pkgredis.IsNilError(err)
		},
	}
	if m != nil {
		cfg.OnStateChange = func(_ string, _, to resilience.State) {
			m.CacheBreakerState.Set(float64(to))
		}
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewBreaker("redis-cache", cfg),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for term in generation.
func (c *QueryCache) Get(ctx context.Context, generation, term string) (*executor.SearchResult, bool) {
	key := buildKey(generation, term)
	var data []byte
	err := c.breaker.Do(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Debug("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	return &result, true
}

// Set stores result under its own generation.
func (c *QueryCache) Set(ctx context.Context, result *executor.SearchResult) {
	key := buildKey(result.Generation, result.Term)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Do(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for term in generation, or runs
// compute once for all concurrent callers asking for the same key. The
// boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation, term string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, term); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(buildKey(generation, term), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// BuildFinished drops the results of retired generations once a new one is
// live.
func (c *QueryCache) BuildFinished(ctx context.Context, report indexer.BuildReport) {
	if report.Err != nil {
		return
	}
	if err := c.Invalidate(ctx); err != nil {
		c.logger.Warn("cache invalidation after build failed", "generation", report.GenerationID, "error", err)
	}
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Breaker reports the circuit guarding the backend.
func (c *QueryCache) Breaker() resilience.BreakerSnapshot {
	return c.breaker.Snapshot()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(generation, term string) string {
	hash := sha256.Sum256([]byte(tokenizer.Normalize(term)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, hash[:16])
}
