package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/events"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/history"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/handler"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/invidx/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/invidx/pkg/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API and rebuild on request",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting invidx service",
		"port", cfg.Server.Port,
		"corpus", cfg.Indexer.CorpusDir,
		"storage", cfg.Indexer.StorageMode,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := m.Serve(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	engine := indexer.NewEngine(cfg.Indexer, m)
	defer engine.Close()

	checker := health.NewChecker()

	var queryCache *cache.QueryCache
	var redisPing func(context.Context) error
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			engine.AddObserver(queryCache)
			redisPing = redisClient.Ping
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	checker.Register("redis", health.Ping(redisPing, false))

	var recorder *history.Recorder
	var postgresPing func(context.Context) error
	if cfg.Postgres.Host != "" {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build history disabled", "error", err)
		} else {
			defer pg.Close()
			recorder = history.NewRecorder(pg)
			if err := recorder.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("preparing build history: %w", err)
			}
			engine.AddObserver(recorder)
			postgresPing = pg.Ping
			slog.Info("build history enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}
	checker.Register("postgres", health.Ping(postgresPing, false))

	aggregator := analytics.NewAggregator()
	var tracker handler.Tracker = aggregator
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		engine.AddObserver(events.NewPublisher(producer))

		rebuilds := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRebuild, events.HandleRebuild(engine))
		go func() {
			if err := rebuilds.Start(ctx); err != nil {
				slog.Error("rebuild consumer stopped", "error", err)
			}
		}()

		queryProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchQueries)
		defer queryProducer.Close()
		collector := analytics.NewCollector(queryProducer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector

		queries := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchQueries, analytics.HandleEvent(aggregator), kafka.FromEarliest())
		go func() {
			if err := queries.Start(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"rebuild_topic", cfg.Kafka.Topics.IndexRebuild,
			"complete_topic", cfg.Kafka.Topics.IndexComplete,
			"query_topic", cfg.Kafka.Topics.SearchQueries,
		)
	}

	if err := engine.LoadExisting(); err != nil {
		slog.Warn("could not load existing generation", "error", err)
	}
	if engine.Current() == nil {
		if err := engine.StartRebuild(ctx); err != nil && !errors.Is(err, apperrors.ErrBuildInProgress) {
			return err
		}
	}

	var hist handler.History
	if recorder != nil {
		hist = recorder
	}
	h := handler.New(engine, queryCache, hist, m, cfg.Search)
	h.TrackWith(tracker)
	checker.Register("index", health.Ping(h.Ready, true))

	mux := http.NewServeMux()
	h.Register(mux)
	analytics.NewHandler(aggregator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	slog.Info("search service stopped")
	return nil
}
