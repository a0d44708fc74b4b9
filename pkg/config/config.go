// Package config loads and validates invidx configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// indexer, the search service and the optional Redis, Kafka and PostgreSQL
// integrations.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageMode selects the index store variant used for a generation.
type StorageMode string

const (
	StorageMemory StorageMode = "memory"
	StorageDisk   StorageMode = "disk"
)

// MaxFieldWidth is the widest token or document name the binary layout can
// hold.
const MaxFieldWidth = 32

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexerConfig controls corpus location, admission policy and the storage
// variant of every generation built.
type IndexerConfig struct {
	CorpusDir           string      `yaml:"corpusDir"`
	DataDir             string      `yaml:"dataDir"`
	StoplistPath        string      `yaml:"stoplistPath"`
	StoplistEnabled     bool        `yaml:"stoplistEnabled"`
	StorageMode         StorageMode `yaml:"storageMode"`
	MinTokenRepetitions int         `yaml:"minTokenRepetitions"`
	MaxTokenLength      int         `yaml:"maxTokenLength"`
	Workers             int         `yaml:"workers"`
	DebugDumps          bool        `yaml:"debugDumps"`
}

// SearchConfig controls result limits and the per-term deadline for the
// HTTP API.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the search cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds broker and topic settings. No brokers disables both the
// rebuild trigger and the completion events.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexRebuild  string `yaml:"indexRebuild"`
	IndexComplete string `yaml:"indexComplete"`
	SearchQueries string `yaml:"searchQueries"`
}

// PostgresConfig holds the build-history database parameters. An empty Host
// disables build history.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Indexer.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with local-development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Indexer: DefaultIndexer(),
		Search: SearchConfig{
			MaxResults:   1000,
			DefaultLimit: 100,
			Timeout:      5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "invidx",
			Topics: KafkaTopics{
				IndexRebuild:  "index.rebuild",
				IndexComplete: "index.complete",
				SearchQueries: "search.queries",
			},
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "invidx",
			User:            "invidx",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// DefaultIndexer returns the indexer defaults.
func DefaultIndexer() IndexerConfig {
	return IndexerConfig{
		CorpusDir:           "Files",
		DataDir:             "output",
		StoplistPath:        "stoplist.txt",
		StoplistEnabled:     true,
		StorageMode:         StorageMemory,
		MinTokenRepetitions: 3,
		MaxTokenLength:      MaxFieldWidth,
		Workers:             runtime.GOMAXPROCS(0),
		DebugDumps:          true,
	}
}

// Validate rejects indexer settings the builder or the binary layout cannot
// honour.
func (c IndexerConfig) Validate() error {
	switch c.StorageMode {
	case StorageMemory, StorageDisk:
	default:
		return fmt.Errorf("unknown storage mode %q", c.StorageMode)
	}
	if c.MaxTokenLength < 2 || c.MaxTokenLength > MaxFieldWidth {
		return fmt.Errorf("maxTokenLength must be in [2, %d], got %d", MaxFieldWidth, c.MaxTokenLength)
	}
	if c.MinTokenRepetitions < 1 {
		return fmt.Errorf("minTokenRepetitions must be positive, got %d", c.MinTokenRepetitions)
	}
	if c.CorpusDir == "" {
		return fmt.Errorf("corpusDir is required")
	}
	if c.StorageMode == StorageDisk && c.DataDir == "" {
		return fmt.Errorf("dataDir is required for disk storage")
	}
	return nil
}

// applyEnvOverrides reads IX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IX_CORPUS_DIR"); v != "" {
		cfg.Indexer.CorpusDir = v
	}
	if v := os.Getenv("IX_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("IX_STOPLIST_PATH"); v != "" {
		cfg.Indexer.StoplistPath = v
	}
	if v := os.Getenv("IX_STOPLIST_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.StoplistEnabled = enabled
		}
	}
	if v := os.Getenv("IX_STORAGE_MODE"); v != "" {
		cfg.Indexer.StorageMode = StorageMode(strings.ToLower(v))
	}
	if v := os.Getenv("IX_MIN_TOKEN_REPETITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MinTokenRepetitions = n
		}
	}
	if v := os.Getenv("IX_MAX_TOKEN_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MaxTokenLength = n
		}
	}
	if v := os.Getenv("IX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("IX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
