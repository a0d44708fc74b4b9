package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/logger"
)

var (
	flagConfig  string
	flagCorpus  string
	flagDataDir string
	flagStorage string
	flagKeepOld bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "invidx",
	Short:        "Inverted index over a directory of HTML documents",
	SilenceUsage: true,
	Long: `invidx scans every file in a corpus directory, builds a weighted
inverted index and answers single-term queries with the matching documents
and their term-frequency weights.`,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to YAML config file")
	pf.StringVar(&flagCorpus, "corpus", "", "corpus directory (overrides config)")
	pf.StringVar(&flagDataDir, "data-dir", "", "generation output directory (overrides config)")
	pf.StringVar(&flagStorage, "storage", "", "index store variant: memory or disk (overrides config)")
	pf.BoolVar(&flagKeepOld, "keep-old", false, "keep earlier generation directories after building")
}

// loadConfig runs before every command: file, then IX_* environment, then
// flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagCorpus != "" {
		loaded.Indexer.CorpusDir = flagCorpus
	}
	if flagDataDir != "" {
		loaded.Indexer.DataDir = flagDataDir
	}
	if flagStorage != "" {
		loaded.Indexer.StorageMode = config.StorageMode(flagStorage)
	}
	if err := loaded.Indexer.Validate(); err != nil {
		return fmt.Errorf("invalid indexer config: %w", err)
	}
	logger.Setup(loaded.Logging.Level, loaded.Logging.Format)
	cfg = loaded
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
