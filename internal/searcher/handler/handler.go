// Package handler serves the search HTTP API over the live index
// generation.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/history"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/resilience"
)

const (
	defaultBuildsLimit = 20
	maxBuildsLimit     = 500
)

// Engine is the index side of the API. *indexer.Engine satisfies it.
type Engine interface {
	Search(ctx context.Context, term string) (*executor.SearchResult, error)
	StartRebuild(ctx context.Context) error
	Current() *indexer.Generation
	Building() bool
}

// History lists past builds. *history.Recorder satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Build, error)
}

// Tracker receives one event per answered query. *analytics.Collector and
// *analytics.Aggregator satisfy it.
type Tracker interface {
	Track(event analytics.QueryEvent)
}

// QueryResponse answers a multi-word query with one group per distinct
// term, in the order the terms first appear.
type QueryResponse struct {
	Query      string                   `json:"query"`
	Generation string                   `json:"generation"`
	Terms      []*executor.SearchResult `json:"terms"`
}

// GenerationResponse describes the live generation.
type GenerationResponse struct {
	ID        string             `json:"id"`
	Mode      config.StorageMode `json:"mode"`
	BuiltAt   time.Time          `json:"built_at"`
	Documents int                `json:"documents"`
	Tokens    int                `json:"tokens"`
	Postings  int                `json:"postings"`
	Building  bool               `json:"building"`
}

type Handler struct {
	engine       Engine
	cache        *cache.QueryCache
	history      History
	tracker      Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	timeout      time.Duration
	logger       *slog.Logger
}

// New creates a Handler. queryCache, hist and m may be nil.
func New(engine Engine, queryCache *cache.QueryCache, hist History, m *metrics.Metrics, cfg config.SearchConfig) *Handler {
	return &Handler{
		engine:       engine,
		cache:        queryCache,
		history:      hist,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		timeout:      cfg.Timeout,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// TrackWith sends query events to t.
func (h *Handler) TrackWith(t Tracker) {
	h.tracker = t
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", h.Query)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/generation", h.Generation)
	mux.HandleFunc("GET /api/v1/builds", h.Builds)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

// Query tokenizes q and searches every distinct term independently.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	resp := QueryResponse{Query: query, Terms: []*executor.SearchResult{}}
	seen := make(map[string]bool)
	cacheHits := 0
	for term := range tokenizer.Tokens(query) {
		if seen[term] {
			continue
		}
		seen[term] = true
		result, cacheHit, err := h.searchTerm(ctx, term)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if cacheHit {
			cacheHits++
		}
		resp.Generation = result.Generation
		resp.Terms = append(resp.Terms, result)
	}
	h.track(ctx, query, resp.Terms, cacheHits, start)

	logger.FromContext(ctx).Info("query completed",
		"query", query,
		"terms", len(resp.Terms),
		"generation", resp.Generation,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Search answers a single term, truncated to limit results. total_hits
// always reports the full posting count.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	term := r.URL.Query().Get("q")
	if term == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if h.maxResults > 0 && limit > h.maxResults {
		limit = h.maxResults
	}

	result, cacheHit, err := h.searchTerm(ctx, term)
	if err != nil {
		h.writeError(w, err)
		return
	}
	hits := 0
	if cacheHit {
		hits = 1
	}
	h.track(ctx, term, []*executor.SearchResult{result}, hits, start)
	if limit > 0 && len(result.Results) > limit {
		truncated := *result
		truncated.Results = result.Results[:limit]
		result = &truncated
	}

	logger.FromContext(ctx).Info("search completed",
		"term", term,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) searchTerm(ctx context.Context, term string) (*executor.SearchResult, bool, error) {
	type answer struct {
		result   *executor.SearchResult
		cacheHit bool
	}
	start := time.Now()
	ans, err := resilience.Call(ctx, h.timeout, "search", func(ctx context.Context) (answer, error) {
		compute := func() (*executor.SearchResult, error) {
			return h.engine.Search(ctx, term)
		}
		gen := h.engine.Current()
		if h.cache == nil || gen == nil {
			result, err := compute()
			return answer{result: result}, err
		}
		result, hit, err := h.cache.GetOrCompute(ctx, gen.ID, term, compute)
		return answer{result, hit}, err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		h.observe(nil, false, err, time.Since(start))
		return nil, false, err
	}
	h.observe(ans.result, ans.cacheHit, nil, time.Since(start))
	return ans.result, ans.cacheHit, nil
}

func (h *Handler) track(ctx context.Context, query string, results []*executor.SearchResult, cacheHits int, start time.Time) {
	if h.tracker == nil {
		return
	}
	event := analytics.QueryEvent{
		Query:     query,
		Terms:     make([]string, 0, len(results)),
		CacheHits: cacheHits,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	for _, r := range results {
		event.Terms = append(event.Terms, r.Term)
		event.TotalHits += r.TotalHits
		event.Generation = r.Generation
		if r.TotalHits == 0 {
			event.ZeroResultTerms = append(event.ZeroResultTerms, r.Term)
		}
	}
	h.tracker.Track(event)
}

func (h *Handler) observe(result *executor.SearchResult, cacheHit bool, err error, d time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType := "hit"
	switch {
	case errors.Is(err, apperrors.ErrCorruptIndex):
		resultType = "corrupt"
	case err != nil:
		resultType = "error"
	case result.TotalHits == 0:
		resultType = "miss"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if err != nil {
		return
	}
	source := "index"
	if cacheHit {
		source = "cache"
	} else if gen := h.engine.Current(); gen != nil {
		source = string(gen.Mode)
	}
	h.metrics.SearchLatency.WithLabelValues(source).Observe(d.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(result.TotalHits))
}

// Rebuild starts a background rebuild and returns immediately.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StartRebuild(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	logger.FromContext(r.Context()).Info("rebuild requested over http")
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Generation describes the live generation.
func (h *Handler) Generation(w http.ResponseWriter, r *http.Request) {
	gen := h.engine.Current()
	if gen == nil {
		h.writeError(w, apperrors.ErrNoGeneration)
		return
	}
	h.writeJSON(w, http.StatusOK, GenerationResponse{
		ID:        gen.ID,
		Mode:      gen.Mode,
		BuiltAt:   gen.BuiltAt,
		Documents: gen.Stats.Documents,
		Tokens:    gen.Stats.Tokens,
		Postings:  gen.Stats.Postings,
		Building:  h.engine.Building(),
	})
}

// Builds lists recent build attempts from the history table.
func (h *Handler) Builds(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "build history is disabled"})
		return
	}
	limit := defaultBuildsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > maxBuildsLimit {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be between 1 and %d", maxBuildsLimit))
			return
		}
		limit = parsed
	}
	builds, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.Breaker(),
	})
}

// Ready reports whether a generation is live, for the readiness check.
func (h *Handler) Ready(ctx context.Context) error {
	if h.engine.Current() == nil {
		return apperrors.ErrNoGeneration
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Server-side failures are logged
// and their detail withheld from the client; a corrupt index is named.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.ClientMessage(err, "search failed")})
}
