package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/stoplist"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
)

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(t *testing.T, corpus string, stopwords string, mode config.StorageMode) config.IndexerConfig {
	t.Helper()
	stopPath := filepath.Join(t.TempDir(), "stoplist.txt")
	if err := os.WriteFile(stopPath, []byte(stopwords), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultIndexer()
	cfg.CorpusDir = corpus
	cfg.DataDir = t.TempDir()
	cfg.StoplistPath = stopPath
	cfg.StorageMode = mode
	cfg.MinTokenRepetitions = 2
	cfg.Workers = 4
	return cfg
}

func scenarioCorpus(t *testing.T) string {
	return writeCorpus(t, map[string]string{
		"A": "<html><body>the cat sat</body></html>",
		"B": "the <b>cat</b> ran",
		"C": "a dog ran <!-- the cat -->",
	})
}

func build(t *testing.T, cfg config.IndexerConfig) *Generation {
	t.Helper()
	gen, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { gen.Close() })
	return gen
}

func TestBuildScenario(t *testing.T) {
	for _, mode := range []config.StorageMode{config.StorageMemory, config.StorageDisk} {
		t.Run(string(mode), func(t *testing.T) {
			gen := build(t, testConfig(t, scenarioCorpus(t), "the a", mode))

			if gen.Stats.Documents != 3 || gen.Stats.Tokens != 2 || gen.Stats.Postings != 4 {
				t.Fatalf("stats = %+v", gen.Stats)
			}

			cat, err := gen.Search(context.Background(), "cat")
			if err != nil {
				t.Fatal(err)
			}
			wantCat := []executor.Result{{Document: "A", Weight: 100}, {Document: "B", Weight: 50}}
			assertResults(t, cat, wantCat)

			ran, err := gen.Search(context.Background(), "Ran")
			if err != nil {
				t.Fatal(err)
			}
			assertResults(t, ran, []executor.Result{{Document: "B", Weight: 50}, {Document: "C", Weight: 100}})

			for _, term := range []string{"sat", "dog", "the", "a", "unicorn"} {
				got, err := gen.Search(context.Background(), term)
				if err != nil || len(got) != 0 {
					t.Errorf("Search(%q) = %v, %v; want empty", term, got, err)
				}
			}
		})
	}
}

func assertResults(t *testing.T, got, want []executor.Result) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("results = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func randomCorpus(t *testing.T, docs int) string {
	files := make(map[string]string, docs)
	words := strings.Fields("alpha beta gamma delta epsilon zeta eta theta iota kappa the of a x " +
		strings.Repeat("w", 40) + " lambda mu nu")
	for d := 0; d < docs; d++ {
		var sb strings.Builder
		sb.WriteString("<p>")
		for i := 0; i < 50+d*7; i++ {
			sb.WriteString(words[(i*31+d*17+i*i)%len(words)])
			sb.WriteByte(' ')
		}
		sb.WriteString("</p>")
		files[fmt.Sprintf("doc%03d.html", d)] = sb.String()
	}
	return writeCorpus(t, files)
}

func TestBuildInvariants(t *testing.T) {
	corpus := randomCorpus(t, 40)
	cfg := testConfig(t, corpus, "the of a", config.StorageMemory)
	cfg.MinTokenRepetitions = 3

	b, err := NewBuilder(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ix, _, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Validate(); err != nil {
		t.Fatalf("posting runs: %v", err)
	}

	// Recount the corpus sequentially to check admission and weights.
	raw := make(map[string]map[int32]int)
	for _, d := range ix.Documents {
		data, err := os.ReadFile(filepath.Join(corpus, d.Name))
		if err != nil {
			t.Fatal(err)
		}
		for tok := range tokenizer.Tokens(strings.NewReplacer("<p>", " ", "</p>", " ").Replace(string(data))) {
			if raw[tok] == nil {
				raw[tok] = make(map[int32]int)
			}
			raw[tok][d.ID]++
		}
	}
	stop := stoplist.Parse("the of a")
	admitted := make(map[string]bool)
	totals := make(map[int32]int)
	for tok, docs := range raw {
		sum := 0
		for _, n := range docs {
			sum += n
		}
		if !stop.Contains(tok) && len(tok) > 1 && len(tok) <= cfg.MaxTokenLength && sum >= cfg.MinTokenRepetitions {
			admitted[tok] = true
			for id, n := range docs {
				totals[id] += n
			}
		}
	}
	if len(admitted) != len(ix.Tokens) {
		t.Fatalf("admitted %d tokens, index has %d", len(admitted), len(ix.Tokens))
	}
	for _, tok := range ix.Tokens {
		if !admitted[tok.Text] {
			t.Errorf("token %q should have been rejected", tok.Text)
		}
		for o := tok.PostingIndex; o < tok.End(); o++ {
			p := ix.Postings[o]
			want := index.Weight(raw[tok.Text][p.DocumentID], totals[p.DocumentID])
			if p.Weight != want {
				t.Errorf("weight(%q, %d) = %v, want %v", tok.Text, p.DocumentID, p.Weight, want)
			}
			if o > tok.PostingIndex && ix.Postings[o-1].DocumentID >= p.DocumentID {
				t.Errorf("run of %q not in discovery order", tok.Text)
			}
		}
	}
}

func TestStoreEquivalence(t *testing.T) {
	corpus := randomCorpus(t, 25)
	mem := build(t, testConfig(t, corpus, "the", config.StorageMemory))
	disk := build(t, testConfig(t, corpus, "the", config.StorageDisk))

	terms := []string{"alpha", "BETA", "lambda", "the", "x", "missing", strings.Repeat("w", 40)}
	for _, term := range terms {
		a, errA := mem.Search(context.Background(), term)
		b, errB := disk.Search(context.Background(), term)
		if errA != nil || errB != nil {
			t.Fatalf("Search(%q): %v / %v", term, errA, errB)
		}
		assertResults(t, b, a)
	}
}

func TestStoplistToggle(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageMemory)
	cfg.StoplistEnabled = false
	cfg.StoplistPath = filepath.Join(t.TempDir(), "absent.txt")
	gen := build(t, cfg)
	got, err := gen.Search(context.Background(), "the")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("Search(the) = %v, want A and B", got)
	}
}

func TestBuildFailures(t *testing.T) {
	t.Run("missing corpus", func(t *testing.T) {
		cfg := testConfig(t, filepath.Join(t.TempDir(), "nope"), "", config.StorageMemory)
		if _, err := Build(context.Background(), cfg, nil); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("missing stoplist", func(t *testing.T) {
		cfg := testConfig(t, scenarioCorpus(t), "", config.StorageMemory)
		cfg.StoplistPath = filepath.Join(t.TempDir(), "absent.txt")
		if _, err := Build(context.Background(), cfg, nil); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("document name overflow", func(t *testing.T) {
		corpus := writeCorpus(t, map[string]string{strings.Repeat("n", 33): "cat cat"})
		cfg := testConfig(t, corpus, "", config.StorageDisk)
		_, err := Build(context.Background(), cfg, nil)
		if !errors.Is(err, apperrors.ErrFieldOverflow) {
			t.Errorf("err = %v, want ErrFieldOverflow", err)
		}
		entries, _ := os.ReadDir(cfg.DataDir)
		for _, e := range entries {
			if e.IsDir() {
				t.Errorf("partial generation left behind: %s", e.Name())
			}
		}
	})
	t.Run("unreadable document", func(t *testing.T) {
		corpus := scenarioCorpus(t)
		if err := os.Symlink(filepath.Join(corpus, "missing-target"), filepath.Join(corpus, "D")); err != nil {
			t.Skip("symlinks unsupported")
		}
		if _, err := Build(context.Background(), testConfig(t, corpus, "", config.StorageMemory), nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDiskBuildWritesFiles(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageDisk)
	gen := build(t, cfg)
	for _, name := range []string{
		segment.DocumentsFile, segment.PostingsFile, segment.TokensFile,
		segment.DocumentsDump, segment.PostingsDump, segment.TokensDump,
	} {
		if _, err := os.Stat(filepath.Join(gen.Dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(gen.Dir, segment.TokensDump))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cat\t2\t0\nran\t2\t2" {
		t.Errorf("tokens.txt = %q", data)
	}
}

func TestOpenLatest(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageDisk)
	built, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	built.Close()

	gen, err := OpenLatest(cfg.DataDir)
	if err != nil {
		t.Fatalf("OpenLatest: %v", err)
	}
	defer gen.Close()
	if gen.ID != built.ID || gen.Stats.Tokens != 2 {
		t.Errorf("opened %+v, want generation %s", gen, built.ID)
	}
	got, err := gen.Search(context.Background(), "cat")
	if err != nil {
		t.Fatal(err)
	}
	assertResults(t, got, []executor.Result{{Document: "A", Weight: 100}, {Document: "B", Weight: 50}})

	if _, err := OpenLatest(t.TempDir()); !errors.Is(err, apperrors.ErrNoGeneration) {
		t.Errorf("empty dir err = %v", err)
	}
}

func TestPruneGenerations(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageDisk)
	first := build(t, cfg)
	second := build(t, cfg)

	removed, err := PruneGenerations(cfg.DataDir, filepath.Base(second.Dir))
	if err != nil {
		t.Fatalf("PruneGenerations: %v", err)
	}
	if len(removed) != 1 || removed[0] != filepath.Base(first.Dir) {
		t.Errorf("removed = %v, want [%s]", removed, filepath.Base(first.Dir))
	}
	if _, err := os.Stat(first.Dir); !os.IsNotExist(err) {
		t.Errorf("first generation still present: %v", err)
	}
	got, err := second.Search(context.Background(), "cat")
	if err != nil {
		t.Fatal(err)
	}
	assertResults(t, got, []executor.Result{{Document: "A", Weight: 100}, {Document: "B", Weight: 50}})

	unlock, err := lockDataDir(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	if _, err := PruneGenerations(cfg.DataDir, ""); !errors.Is(err, apperrors.ErrBuildInProgress) {
		t.Errorf("locked prune err = %v", err)
	}
	if _, err := os.Stat(second.Dir); err != nil {
		t.Errorf("locked prune removed a generation: %v", err)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	reports []BuildReport
}

func (r *recordingObserver) BuildFinished(ctx context.Context, report BuildReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func TestEngineRebuildSwap(t *testing.T) {
	corpus := scenarioCorpus(t)
	cfg := testConfig(t, corpus, "the a", config.StorageDisk)
	engine := NewEngine(cfg, nil)
	defer engine.Close()
	obs := &recordingObserver{}
	engine.AddObserver(obs)

	if _, err := engine.Search(context.Background(), "cat"); !errors.Is(err, apperrors.ErrNoGeneration) {
		t.Fatalf("search before build err = %v", err)
	}

	first, err := engine.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Queries keep running while a second generation replaces the first.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := engine.Search(context.Background(), "cat")
				if err != nil {
					errs <- err
					return
				}
				if res.TotalHits != 2 {
					errs <- fmt.Errorf("generation %s returned %d hits", res.Generation, res.TotalHits)
					return
				}
			}
		}()
	}
	second, err := engine.Rebuild(context.Background())
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if err != nil {
		t.Fatal(err)
	}
	if engine.Current() != second || second.ID == first.ID {
		t.Error("second generation not published")
	}

	// A failed rebuild leaves the live generation serving.
	if err := os.RemoveAll(corpus); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Rebuild(context.Background()); err == nil {
		t.Fatal("expected rebuild failure")
	}
	res, err := engine.Search(context.Background(), "cat")
	if err != nil || res.Generation != second.ID || res.TotalHits != 2 {
		t.Errorf("after failed rebuild: %+v, %v", res, err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.reports) != 3 || obs.reports[2].Err == nil || obs.reports[1].GenerationID != second.ID {
		t.Errorf("reports = %+v", obs.reports)
	}
}

func TestEngineRejectsConcurrentRebuild(t *testing.T) {
	engine := NewEngine(testConfig(t, scenarioCorpus(t), "", config.StorageMemory), nil)
	defer engine.Close()
	engine.building.Store(true)
	if _, err := engine.Rebuild(context.Background()); !errors.Is(err, apperrors.ErrBuildInProgress) {
		t.Errorf("Rebuild err = %v", err)
	}
	if err := engine.StartRebuild(context.Background()); !errors.Is(err, apperrors.ErrBuildInProgress) {
		t.Errorf("StartRebuild err = %v", err)
	}
	engine.building.Store(false)
}

func TestEngineRefusesWorkAfterClose(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageMemory)
	engine := NewEngine(cfg, nil)
	if _, err := engine.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Rebuild(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Rebuild after Close err = %v", err)
	}
	if err := engine.StartRebuild(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("StartRebuild after Close err = %v", err)
	}
	if engine.Building() || engine.Current() != nil {
		t.Errorf("building=%v current=%v after Close", engine.Building(), engine.Current())
	}
}

func TestEngineCloseDuringStartRebuild(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageMemory)
	for range 20 {
		engine := NewEngine(cfg, nil)
		var wg sync.WaitGroup
		var startErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			startErr = engine.StartRebuild(context.Background())
		}()
		if err := engine.Close(); err != nil {
			t.Fatal(err)
		}
		wg.Wait()
		if startErr != nil && !errors.Is(startErr, ErrEngineClosed) {
			t.Fatalf("StartRebuild err = %v", startErr)
		}
		if engine.Current() != nil {
			t.Fatal("generation left live after Close")
		}
	}
}

func TestEngineLoadExisting(t *testing.T) {
	cfg := testConfig(t, scenarioCorpus(t), "the a", config.StorageDisk)
	built, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	built.Close()

	engine := NewEngine(cfg, nil)
	defer engine.Close()
	if err := engine.LoadExisting(); err != nil {
		t.Fatal(err)
	}
	if cur := engine.Current(); cur == nil || cur.ID != built.ID {
		t.Fatalf("current = %+v", cur)
	}
}
