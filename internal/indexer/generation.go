package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/tracing"
)

const (
	generationPrefix = "gen-"
	buildLockFile    = ".build.lock"
)

var errRetired = errors.New("generation retired")

// Generation is one complete, immutable index build behind the store
// variant chosen when it was built.
type Generation struct {
	ID      string
	Mode    config.StorageMode
	Dir     string
	BuiltAt time.Time
	Stats   BuildStats

	store store.Store

	mu     sync.RWMutex
	closed bool
}

// Build runs a full build of cfg.CorpusDir and returns the finished
// generation. Nothing is returned unless every phase succeeded; a failed
// disk build removes its partially written directory.
func Build(ctx context.Context, cfg config.IndexerConfig, m *metrics.Metrics) (gen *Generation, err error) {
	builder, err := NewBuilder(cfg, m)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%020d", time.Now().UnixNano())
	logger := slog.Default().With("component", "index-builder", "generation", id)
	ctx, root := tracing.StartSpan(ctx, "build", id)
	root.SetAttr("mode", string(cfg.StorageMode))
	defer func() {
		root.End()
		root.Log(logger)
		if m != nil {
			status := "ok"
			if err != nil {
				status = "failed"
			}
			m.BuildsTotal.WithLabelValues(string(cfg.StorageMode), status).Inc()
			m.BuildDuration.WithLabelValues("total").Observe(root.Duration.Seconds())
		}
	}()

	var unlock func()
	if cfg.StorageMode == config.StorageDisk {
		unlock, err = lockDataDir(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	ix, stats, err := builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("building generation %s: %w", id, err)
	}

	gen = &Generation{
		ID:      id,
		Mode:    cfg.StorageMode,
		BuiltAt: time.Now().UTC(),
		Stats:   stats,
	}
	if cfg.DataDir != "" && (cfg.StorageMode == config.StorageDisk || cfg.DebugDumps) {
		gen.Dir = filepath.Join(cfg.DataDir, generationPrefix+id)
	}

	_, persistSpan := tracing.StartChildSpan(ctx, "persist")
	err = gen.persist(ctx, cfg, ix)
	builder.endPhase(persistSpan)
	if err != nil {
		if gen.Dir != "" {
			os.RemoveAll(gen.Dir)
		}
		return nil, fmt.Errorf("persisting generation %s: %w", id, err)
	}
	return gen, nil
}

func (g *Generation) persist(ctx context.Context, cfg config.IndexerConfig, ix *index.Index) error {
	if cfg.DebugDumps && g.Dir != "" {
		if err := segment.WriteDebugDumps(g.Dir, ix); err != nil {
			return err
		}
	}
	if cfg.StorageMode == config.StorageMemory {
		g.store = store.NewMemory(ix)
		return nil
	}
	if err := segment.NewWriter(g.Dir).Write(ctx, ix); err != nil {
		return err
	}
	disk, err := store.OpenDisk(g.Dir, ix.Ordinals())
	if err != nil {
		return err
	}
	g.store = disk
	return nil
}

// lockDataDir takes the cross-process build lock on dataDir.
func lockDataDir(dataDir string) (func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	l := flock.New(filepath.Join(dataDir, buildLockFile))
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is locked by another process", apperrors.ErrBuildInProgress, dataDir)
	}
	return func() { _ = l.Unlock() }, nil
}

// OpenLatest opens the newest complete disk generation under dataDir. The
// token ordinal map is recovered from the token stream.
func OpenLatest(dataDir string) (*Generation, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	for _, name := range dirs {
		dir := filepath.Join(dataDir, name)
		if !hasStreams(dir) {
			continue
		}
		disk, err := store.OpenDisk(dir, nil)
		if err != nil {
			slog.Default().Warn("skipping unreadable generation", "component", "index-builder", "dir", dir, "error", err)
			continue
		}
		docs, tokens, postings := disk.Counts()
		info, _ := os.Stat(filepath.Join(dir, segment.TokensFile))
		gen := &Generation{
			ID:    strings.TrimPrefix(name, generationPrefix),
			Mode:  config.StorageDisk,
			Dir:   dir,
			Stats: BuildStats{Documents: docs, Tokens: tokens, Postings: postings},
			store: disk,
		}
		if info != nil {
			gen.BuiltAt = info.ModTime().UTC()
		}
		return gen, nil
	}
	return nil, fmt.Errorf("%w: no complete generation in %s", apperrors.ErrNoGeneration, dataDir)
}

// PruneGenerations removes every generation directory under dataDir except
// keep and returns the names it removed. It holds the build lock, so a build
// in another process is never pruned mid-write.
func PruneGenerations(dataDir, keep string) ([]string, error) {
	unlock, err := lockDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, generationPrefix) || name == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dataDir, name)); err != nil {
			return removed, fmt.Errorf("removing generation %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func hasStreams(dir string) bool {
	for _, name := range []string{segment.DocumentsFile, segment.PostingsFile, segment.TokensFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Search runs a single-term query against this generation.
func (g *Generation) Search(ctx context.Context, term string) ([]executor.Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, errRetired
	}
	return executor.Search(ctx, g.store, term)
}

// Store returns the generation's lookup store.
func (g *Generation) Store() store.Store {
	return g.store
}

// Close waits for in-flight searches and releases the store. Searches
// started afterwards fail.
func (g *Generation) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.store.Close()
}
