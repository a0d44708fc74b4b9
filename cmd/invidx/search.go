package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
)

var flagSearchReuse bool

var searchCmd = &cobra.Command{
	Use:   "search <term> [term...]",
	Short: "Build a generation and look up each term once",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&flagSearchReuse, "reuse", false, "open the newest persisted disk generation instead of building")
	rootCmd.AddCommand(searchCmd)
}

// termSearcher is the part of a generation the interactive commands use.
type termSearcher interface {
	Search(ctx context.Context, term string) ([]executor.Result, error)
}

func runSearch(cmd *cobra.Command, args []string) error {
	gen, err := openGeneration(cmd.Context(), flagSearchReuse)
	if err != nil {
		return err
	}
	defer gen.Close()

	for _, term := range args {
		results, err := gen.Search(cmd.Context(), term)
		if err != nil {
			return fmt.Errorf("searching %q: %w", term, err)
		}
		printResults(cmd.OutOrStdout(), term, results)
	}
	return nil
}

// openGeneration builds a fresh generation, or with reuse opens the newest
// one already on disk.
func openGeneration(ctx context.Context, reuse bool) (*indexer.Generation, error) {
	if reuse {
		if cfg.Indexer.StorageMode != config.StorageDisk {
			return nil, fmt.Errorf("--reuse needs disk storage")
		}
		return indexer.OpenLatest(cfg.Indexer.DataDir)
	}
	return buildGeneration(ctx)
}

// buildGeneration builds a generation and, unless --keep-old is set, removes
// the directories of earlier ones so the data directory does not grow with
// every run.
func buildGeneration(ctx context.Context) (*indexer.Generation, error) {
	gen, err := indexer.Build(ctx, cfg.Indexer, nil)
	if err != nil || gen.Dir == "" || flagKeepOld {
		return gen, err
	}
	removed, err := indexer.PruneGenerations(cfg.Indexer.DataDir, filepath.Base(gen.Dir))
	if err != nil {
		slog.Warn("pruning earlier generations", "data_dir", cfg.Indexer.DataDir, "error", err)
	}
	if len(removed) > 0 {
		slog.Info("pruned earlier generations", "data_dir", cfg.Indexer.DataDir, "removed", len(removed))
	}
	return gen, nil
}

func printResults(w io.Writer, term string, results []executor.Result) {
	if len(results) == 0 {
		fmt.Fprintf(w, "%s: no documents\n", term)
		return
	}
	fmt.Fprintf(w, "%s: %d documents\n", term, len(results))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "  %s\t%g\n", r.Document, r.Weight)
	}
	tw.Flush()
}
