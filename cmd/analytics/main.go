// Command analytics starts the standalone search analytics service.
//
// It consumes book search events from Kafka, aggregates them in memory
// (query volume per query kind, latency percentiles, cache hit rate, zero
// result and error rates, top queries), snapshots the aggregate to Postgres
// and serves both over HTTP.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/postgres"
)

// main boots the analytics service: a Kafka consumer feeding the aggregator,
// optional Postgres snapshots, health checks and the HTTP API. Graceful
// shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker(0)
	aggregator := analytics.NewAggregator()

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, aggregator.Handler())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.SearchEvents)
	checker.Register("kafka", health.Static(health.StatusUp, "consuming %s", cfg.Kafka.Topics.SearchEvents))

	// History needs Postgres; without it the live aggregate is still served.
	var history analytics.SnapshotReader
	var snapshotsDone <-chan struct{}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics history disabled", "error", err)
		checker.Register("postgres", health.Static(health.StatusDegraded, "unavailable: %v", err))
	} else {
		defer db.Close()
		snapshots := store.New(db, cfg.Analytics.SnapshotRetain)
		if err := snapshots.Migrate(ctx); err != nil {
			slog.Error("analytics schema migration failed", "error", err)
			os.Exit(1)
		}
		history = snapshots
		snapshotsDone = snapshots.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.DB.PingContext, true))
	}

	analyticsHandler := analytics.NewHandler(aggregator, history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(fmt.Sprintf(":%d", cfg.Metrics.Port))
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-consumerDone
	if err := consumer.Close(); err != nil {
		slog.Error("closing analytics consumer", "error", err)
	}
	if snapshotsDone != nil {
		<-snapshotsDone
	}
	slog.Info("analytics service stopped")
}
