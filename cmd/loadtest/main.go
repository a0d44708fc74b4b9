// Command loadtest replays a fixed query list against /api/search from
// concurrent simulated users, optionally triggering rebuilds while it runs,
// and reports latency, status codes and the generations that answered.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	Searches     int
	RebuildEvery time.Duration
	Queries      []string
}

// defaultQueries mixes single terms, stopwords, numbers and multi-word
// queries, including one with a misspelled word.
var defaultQueries = []string{
	"cdt testimony",
	"halo",
	"cdt",
	"20",
	"csce",
	"finally",
	"favored",
	"study",
	"science",
	"sgauch",
	"laws",
	"costos",
	"Name",
	"physical Education",
	"Title",
	"woman",
	"woman halo name laws science finally wdith",
}

// queryResponse is the subset of the /api/search body the load test reads.
type queryResponse struct {
	Terms []struct {
		Generation string `json:"generation"`
		TotalHits  int    `json:"total_hits"`
	} `json:"terms"`
}

// Stats is safe for concurrent recording.
type Stats struct {
	requests  atomic.Int64
	failures  atomic.Int64
	documents atomic.Int64
	rebuilds  atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
	generations map[string]int64
	emptyTerms  map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
		generations: make(map[string]int64),
		emptyTerms:  make(map[string]int64),
	}
}

// RecordRequest counts one request. Transport errors carry no latency or
// status.
func (s *Stats) RecordRequest(d time.Duration, status int, err error) {
	s.requests.Add(1)
	if err != nil || status < 200 || status >= 300 {
		s.failures.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

// RecordBody folds a decoded /api/search answer for query into the totals.
func (s *Stats) RecordBody(query string, body queryResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, term := range body.Terms {
		s.documents.Add(int64(term.TotalHits))
		if term.Generation != "" {
			s.generations[term.Generation]++
		}
		if term.TotalHits == 0 {
			s.emptyTerms[query]++
		}
	}
}

func main() {
	cfg := Config{Queries: defaultQueries}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 5, "number of simulated users")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "upper bound on test duration")
	flag.IntVar(&cfg.Searches, "searches", 0, "searches per user; 0 runs until -duration elapses")
	flag.DurationVar(&cfg.RebuildEvery, "rebuild-every", 0, "POST /api/v1/rebuild at this interval during the run; 0 disables")
	flag.Parse()

	fmt.Println("=== invidx load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Users:       %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.Searches > 0 {
		fmt.Printf("Searches:    %d per user\n", cfg.Searches)
	}
	if cfg.RebuildEvery > 0 {
		fmt.Printf("Rebuilds:    every %s\n", cfg.RebuildEvery)
	}
	fmt.Printf("Queries:     %d unique\n\n", len(cfg.Queries))

	start := time.Now()
	stats := runLoadTest(context.Background(), cfg)
	if !printReport(os.Stdout, stats, time.Since(start)) {
		fmt.Println("\nWARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func runLoadTest(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	users, userCtx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		users.Go(func() error {
			for n := 0; cfg.Searches <= 0 || n < cfg.Searches; n++ {
				if userCtx.Err() != nil {
					return nil
				}
				search(userCtx, client, cfg, cfg.Queries[(w+n)%len(cfg.Queries)], stats)
			}
			return nil
		})
	}

	var background sync.WaitGroup
	bgCtx, stopBackground := context.WithCancel(ctx)
	if cfg.RebuildEvery > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			rebuildLoop(bgCtx, client, cfg, stats)
		}()
	}
	background.Add(1)
	go func() {
		defer background.Done()
		progress(bgCtx, os.Stdout)
	}()

	users.Wait()
	stopBackground()
	background.Wait()
	fmt.Print(" done\n\n")
	return stats
}

func search(ctx context.Context, client *http.Client, cfg Config, query string, stats *Stats) {
	target := cfg.BaseURL + "/api/search?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(time.Since(start), 0, err)
		}
		return
	}
	defer resp.Body.Close()
	var body queryResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	io.Copy(io.Discard, resp.Body)
	stats.RecordRequest(time.Since(start), resp.StatusCode, nil)
	if decodeErr == nil && resp.StatusCode == http.StatusOK {
		stats.RecordBody(query, body)
	}
}

// rebuildLoop requests a rebuild every cfg.RebuildEvery. A 409 means one is
// already running and is not counted.
func rebuildLoop(ctx context.Context, client *http.Client, cfg Config, stats *Stats) {
	ticker := time.NewTicker(cfg.RebuildEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/rebuild", nil)
		if err != nil {
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusAccepted {
			stats.rebuilds.Add(1)
		}
	}
}

func progress(ctx context.Context, w io.Writer) {
	fmt.Fprint(w, "Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ".")
		}
	}
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, elapsed time.Duration) bool {
	total := stats.requests.Load()
	failures := stats.failures.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Requests:      %d\n", total)
	fmt.Fprintf(w, "Successful:    %d\n", total-failures)
	fmt.Fprintf(w, "Failed:        %d\n", failures)
	fmt.Fprintf(w, "Documents hit: %d\n", stats.documents.Load())
	fmt.Fprintf(w, "Rebuilds:      %d\n", stats.rebuilds.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error rate:    %.2f%%\n", float64(failures)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:  %.2f\n", float64(total)/elapsed.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	if len(stats.latencies) > 0 {
		latencies := slices.Clone(stats.latencies)
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			d := float64(l - avg)
			sq += d * d
		}

		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%-5g %s\n", p, percentile(latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Fprintln(w, "\n=== Status codes ===")
	for _, code := range sortedKeys(stats.statusCodes) {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code])
	}

	if len(stats.generations) > 0 {
		fmt.Fprintln(w, "\n=== Generations ===")
		for _, gen := range sortedKeys(stats.generations) {
			fmt.Fprintf(w, "  %s: %d terms\n", gen, stats.generations[gen])
		}
	}
	if len(stats.emptyTerms) > 0 {
		fmt.Fprintln(w, "\n=== Queries with empty terms ===")
		for _, q := range sortedKeys(stats.emptyTerms) {
			fmt.Fprintf(w, "  %q: %d\n", q, stats.emptyTerms[q])
		}
	}
	return total > 0
}

func sortedKeys[K int | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
