package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/kafka"
)

const (
	// maxLatencySamples bounds the latency window kept for percentiles.
	maxLatencySamples = 10000
	DefaultTopN       = 10
)

type AggregatedStats struct {
	TotalQueries     int64       `json:"total_queries"`
	TotalTerms       int64       `json:"total_terms"`
	ZeroResultTerms  int64       `json:"zero_result_terms"`
	CacheHits        int64       `json:"cache_hits"`
	AvgLatencyMs     float64     `json:"avg_latency_ms"`
	P50LatencyMs     int64       `json:"p50_latency_ms"`
	P95LatencyMs     int64       `json:"p95_latency_ms"`
	P99LatencyMs     int64       `json:"p99_latency_ms"`
	TopTerms         []TermCount `json:"top_terms"`
	TopMissingTerms  []TermCount `json:"top_missing_terms"`
	QueriesPerMinute float64     `json:"queries_per_minute"`
	ZeroResultRate   float64     `json:"zero_result_rate"`

	// Generations counts queries by the generation that answered them.
	Generations map[string]int64 `json:"generations"`
}

type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Aggregator folds query events into running statistics.
type Aggregator struct {
	mu           sync.RWMutex
	totalQueries int64
	totalTerms   int64
	zeroResults  int64
	cacheHits    int64
	latencies    []int64
	next         int
	termCounts   map[string]int64
	missingTerms map[string]int64
	generations  map[string]int64
	startTime    time.Time
	logger       *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, 1024),
		termCounts:   make(map[string]int64),
		missingTerms: make(map[string]int64),
		generations:  make(map[string]int64),
		startTime:    time.Now(),
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a MessageHandler feeding agg from the query-event
// topic. Undecodable messages are logged and acknowledged.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Track records event directly, for deployments without Kafka.
func (a *Aggregator) Track(event QueryEvent) {
	a.Record(event)
}

func (a *Aggregator) Record(event QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries++
	a.totalTerms += int64(len(event.Terms))
	a.zeroResults += int64(len(event.ZeroResultTerms))
	a.cacheHits += int64(event.CacheHits)
	for _, t := range event.Terms {
		a.termCounts[t]++
	}
	for _, t := range event.ZeroResultTerms {
		a.missingTerms[t]++
	}
	if event.Generation != "" {
		a.generations[event.Generation]++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Stats summarises everything recorded so far, listing at most top terms in
// each ranking.
func (a *Aggregator) Stats(top int) AggregatedStats {
	if top <= 0 {
		top = DefaultTopN
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries,
		TotalTerms:      a.totalTerms,
		ZeroResultTerms: a.zeroResults,
		CacheHits:       a.cacheHits,
		Generations:     make(map[string]int64, len(a.generations)),
	}
	for gen, n := range a.generations {
		stats.Generations[gen] = n
	}
	if a.totalTerms > 0 {
		stats.ZeroResultRate = float64(a.zeroResults) / float64(a.totalTerms)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTerms = topN(a.termCounts, top)
	stats.TopMissingTerms = topN(a.missingTerms, top)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent terms, ties broken alphabetically.
func topN(counts map[string]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		result = append(result, TermCount{Term: term, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Term < result[j].Term
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
