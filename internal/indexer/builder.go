// Package indexer builds inverted-index generations from an HTML corpus and
// serves the live one. A build scans the corpus concurrently into a shared
// dictionary, prunes it with the corpus-global admission policy, lays out
// the posting array and optionally persists it; only a complete generation
// is ever handed to queries.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/markup"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/stoplist"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/tracing"
)

// BuildStats summarises one build.
type BuildStats struct {
	Documents    int                      `json:"documents"`
	RawTerms     int                      `json:"raw_terms"`
	Tokens       int                      `json:"tokens"`
	Postings     int                      `json:"postings"`
	Verdicts     map[stoplist.Verdict]int `json:"-"`
	ScanDuration time.Duration            `json:"scan_duration"`
}

// Builder turns a corpus directory into an index.Index.
type Builder struct {
	cfg     config.IndexerConfig
	policy  stoplist.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder validates cfg and loads the stopword list when it is enabled.
// m may be nil.
func NewBuilder(cfg config.IndexerConfig, m *metrics.Metrics) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	policy := stoplist.Policy{
		MaxTokenLength: cfg.MaxTokenLength,
		MinRepetitions: cfg.MinTokenRepetitions,
	}
	if cfg.StoplistEnabled {
		set, err := stoplist.Load(cfg.StoplistPath)
		if err != nil {
			return nil, err
		}
		policy.Stopwords = set
	}
	return &Builder{
		cfg:     cfg,
		policy:  policy,
		metrics: m,
		logger:  slog.Default().With("component", "index-builder"),
	}, nil
}

// Build scans the corpus and returns the laid-out index. Any directory or
// file read failure aborts the whole build.
func (b *Builder) Build(ctx context.Context) (*index.Index, BuildStats, error) {
	var stats BuildStats

	docs, err := b.listDocuments()
	if err != nil {
		return nil, stats, err
	}
	stats.Documents = len(docs)

	dict := index.NewDictionary()
	scanCtx, scanSpan := tracing.StartChildSpan(ctx, "scan")
	err = b.scan(scanCtx, docs, dict)
	stats.ScanDuration = b.endPhase(scanSpan)
	scanSpan.SetAttr("documents", len(docs))
	if err != nil {
		return nil, stats, err
	}
	stats.RawTerms = dict.Len()

	_, admitSpan := tracing.StartChildSpan(ctx, "admit")
	stats.Verdicts = dict.Prune(b.policy)
	admitSpan.SetAttr("raw_terms", stats.RawTerms)
	admitSpan.SetAttr("admitted", stats.Verdicts[stoplist.Admitted])
	b.endPhase(admitSpan)
	if b.metrics != nil {
		for v, n := range stats.Verdicts {
			b.metrics.TermsAdmitted.WithLabelValues(v.String()).Add(float64(n))
		}
	}

	_, layoutSpan := tracing.StartChildSpan(ctx, "layout")
	ix := dict.Layout(docs)
	b.endPhase(layoutSpan)
	if err := ix.Validate(); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	stats.Tokens = len(ix.Tokens)
	stats.Postings = len(ix.Postings)

	b.logger.Info("index built",
		"documents", stats.Documents,
		"raw_terms", stats.RawTerms,
		"tokens", stats.Tokens,
		"postings", stats.Postings,
		"scan_duration", stats.ScanDuration,
	)
	return ix, stats, nil
}

// listDocuments assigns dense ids in directory order. Names must fit the
// fixed-width document record.
func (b *Builder) listDocuments() ([]index.Document, error) {
	entries, err := os.ReadDir(b.cfg.CorpusDir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}
	docs := make([]index.Document, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) > config.MaxFieldWidth {
			return nil, fmt.Errorf("%w: document name %q is %d bytes, limit %d",
				apperrors.ErrFieldOverflow, e.Name(), len(e.Name()), config.MaxFieldWidth)
		}
		docs = append(docs, index.Document{ID: int32(len(docs)), Name: e.Name()})
	}
	return docs, nil
}

// scan tokenizes every document on a bounded worker pool and merges each
// document's raw counts into dict. It returns only once every worker has
// finished.
func (b *Builder) scan(ctx context.Context, docs []index.Document, dict *index.Dictionary) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.cfg.Workers, 1))
	for _, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			data, err := os.ReadFile(filepath.Join(b.cfg.CorpusDir, doc.Name))
			if err != nil {
				return fmt.Errorf("reading document %s: %w", doc.Name, err)
			}
			counts := make(map[string]int)
			for tok := range tokenizer.Tokens(markup.Strip(string(data))) {
				counts[tok]++
			}
			dict.AddDocument(doc.ID, counts)
			if b.metrics != nil {
				b.metrics.DocumentsScanned.Inc()
			}
			b.logger.Debug("document scanned",
				"doc_id", doc.ID,
				"name", doc.Name,
				"distinct_terms", len(counts),
				"duration", time.Since(start),
			)
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) endPhase(span *tracing.Span) time.Duration {
	d := span.End()
	if b.metrics != nil {
		b.metrics.BuildDuration.WithLabelValues(span.Name).Observe(d.Seconds())
	}
	return d
}
