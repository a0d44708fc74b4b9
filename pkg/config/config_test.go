package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Indexer.StoplistEnabled {
		t.Error("stoplist should be enabled by default")
	}
	if cfg.Indexer.StorageMode != StorageMemory {
		t.Errorf("storage mode = %q, want memory", cfg.Indexer.StorageMode)
	}
	if cfg.Indexer.MaxTokenLength != 32 {
		t.Errorf("maxTokenLength = %d, want 32", cfg.Indexer.MaxTokenLength)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("indexer:\n  corpusDir: /corpus\n  storageMode: disk\n  dataDir: /data\n  minTokenRepetitions: 2\n  stoplistEnabled: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IX_MAX_TOKEN_LENGTH", "16")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indexer.CorpusDir != "/corpus" || cfg.Indexer.StorageMode != StorageDisk {
		t.Errorf("unexpected indexer config: %+v", cfg.Indexer)
	}
	if cfg.Indexer.MinTokenRepetitions != 2 || cfg.Indexer.StoplistEnabled {
		t.Errorf("file values not applied: %+v", cfg.Indexer)
	}
	if cfg.Indexer.MaxTokenLength != 16 {
		t.Errorf("env override not applied: maxTokenLength = %d", cfg.Indexer.MaxTokenLength)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IndexerConfig)
	}{
		{"unknown mode", func(c *IndexerConfig) { c.StorageMode = "tape" }},
		{"token length too long", func(c *IndexerConfig) { c.MaxTokenLength = 33 }},
		{"token length too short", func(c *IndexerConfig) { c.MaxTokenLength = 1 }},
		{"zero repetitions", func(c *IndexerConfig) { c.MinTokenRepetitions = 0 }},
		{"disk without data dir", func(c *IndexerConfig) { c.StorageMode = StorageDisk; c.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultIndexer()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultIndexer().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
