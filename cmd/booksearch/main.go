// Command booksearch starts the book search service.
//
// It optimizes free-text queries for the Google Books API, caches provider
// pages in memory and Redis, ranks results by popularity and publishes one
// analytics event per search to Kafka. The same operations are exposed over
// HTTP and over the internal JSON RPC listener.
//
// Usage:
//
//	go run ./cmd/booksearch [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/cache"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/handler"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/provider"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/rpc"
)

// cacheMetrics feeds result cache lookups into the Prometheus counters.
type cacheMetrics struct{ m *metrics.Metrics }

func (c cacheMetrics) CacheHit()  { c.m.CacheHitsTotal.Inc() }
func (c cacheMetrics) CacheMiss() { c.m.CacheMissesTotal.Inc() }

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting book search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker(0)

	// The remote tier is optional; a nil Remote keeps the cache process-local.
	var remote cache.Remote
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using local cache only", "error", err)
			checker.Register("redis", health.Static(health.StatusDegraded, "unavailable: %v", err))
		} else {
			defer redisClient.Close()
			remote = redisClient
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("redis cache tier enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		checker.Register("redis", health.Static(health.StatusDegraded, "disabled"))
	}

	resultCache := cache.New(remote, cache.Config{
		LocalSize: cfg.Search.LocalCacheSize,
		LocalTTL:  cfg.Search.LocalCacheTTL,
		RemoteTTL: cfg.Redis.CacheTTL,
	}).WithObserver(cacheMetrics{m})

	books := provider.New(cfg.Provider, provider.WithStateChange(func(name string, _, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}))
	m.CircuitBreakerState.WithLabelValues("google-books").Set(float64(books.BreakerState()))
	checker.Register("google_books", func(context.Context) health.ComponentHealth {
		if state := books.BreakerState(); state != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	svc := booksearch.NewService(books, resultCache, m, cfg.Search)

	// Events go to Kafka when it is enabled, otherwise into an in-process
	// aggregator served at /api/v1/analytics.
	var tracker handler.EventTracker
	var local *analytics.Aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, analytics.CollectorConfig{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
		}, m.AnalyticsEventsDropped.Inc)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		checker.Register("kafka", health.PingCheck(producer.Ping, true))
		slog.Info("analytics events published to kafka", "topic", cfg.Kafka.Topics.SearchEvents)
	} else {
		local = analytics.NewAggregator()
		tracker = local
		checker.Register("kafka", health.Static(health.StatusDegraded, "disabled, aggregating in process"))
	}

	h := handler.New(svc, resultCache, tracker)

	mux := http.NewServeMux()
	h.Routes(mux)
	if local != nil {
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(local, nil).Stats)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		defer limiter.Close()
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins))(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer()
		handler.RegisterRPC(rpcServer, svc, tracker)
		if err := rpcServer.Listen(cfg.RPC.Addr); err != nil {
			slog.Error("rpc listen failed", "addr", cfg.RPC.Addr, "error", err)
			os.Exit(1)
		}
		go func() {
			if err := rpcServer.Serve(); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
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
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("book search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("book search service stopped")
}
