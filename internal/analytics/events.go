// Package analytics streams per-query events through Kafka and aggregates
// them into query statistics: popular terms, terms the index does not hold
// and latency percentiles.
package analytics

import "time"

// QueryEvent describes one answered /api/search or /api/v1/search request.
type QueryEvent struct {
	Query           string    `json:"query"`
	Terms           []string  `json:"terms"`
	ZeroResultTerms []string  `json:"zero_result_terms,omitempty"`
	TotalHits       int       `json:"total_hits"`
	Generation      string    `json:"generation"`
	CacheHits       int       `json:"cache_hits"`
	LatencyMs       int64     `json:"latency_ms"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id,omitempty"`
}
