package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := map[float64]time.Duration{0: 1, 50: 5, 90: 9, 99: 10, 100: 10}
	for p, want := range tests {
		if got := percentile(sorted, p); got != want {
			t.Errorf("percentile(%v) = %v, want %v", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("empty input should yield 0")
	}
}

func TestRecordRequest(t *testing.T) {
	s := NewStats()
	s.RecordRequest(time.Millisecond, 200, nil)
	s.RecordRequest(time.Millisecond, 503, nil)
	s.RecordRequest(0, 0, errors.New("connection refused"))
	if s.requests.Load() != 3 || s.failures.Load() != 2 {
		t.Errorf("requests=%d failures=%d", s.requests.Load(), s.failures.Load())
	}
	if len(s.latencies) != 2 || s.statusCodes[503] != 1 {
		t.Errorf("latencies=%d codes=%v", len(s.latencies), s.statusCodes)
	}
}

func TestRunLoadTest(t *testing.T) {
	var rebuilds atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		hits := 2
		if r.URL.Query().Get("q") == "unicorn" {
			hits = 0
		}
		fmt.Fprintf(w, `{"terms":[{"generation":"g1","total_hits":%d}]}`, hits)
	})
	mux.HandleFunc("POST /api/v1/rebuild", func(w http.ResponseWriter, r *http.Request) {
		rebuilds.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stats := runLoadTest(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    5 * time.Second,
		Searches:    3,
		Queries:     []string{"cat", "unicorn"},
	})
	if stats.requests.Load() != 6 || stats.failures.Load() != 0 {
		t.Fatalf("requests=%d failures=%d", stats.requests.Load(), stats.failures.Load())
	}
	if stats.generations["g1"] != 6 {
		t.Errorf("generations = %v", stats.generations)
	}
	if stats.emptyTerms["unicorn"] != 3 || stats.documents.Load() != 6 {
		t.Errorf("empty=%v documents=%d", stats.emptyTerms, stats.documents.Load())
	}

	var out bytes.Buffer
	if !printReport(&out, stats, time.Second) {
		t.Error("printReport reported no completed requests")
	}
	if !strings.Contains(out.String(), `"unicorn": 3`) {
		t.Errorf("report missing empty-term line:\n%s", out.String())
	}
}
