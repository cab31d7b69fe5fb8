// Command searcher starts the public search API.
//
// It serves GET /search over the published index, exposes aggregated
// analytics at GET /analytics, and reports health at /health/live and
// /health/ready. Rate limiting uses Redis when configured and fails open
// when Redis is down.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webseek/webseek/internal/analytics"
	"github.com/webseek/webseek/internal/analytics/aggregator"
	"github.com/webseek/webseek/internal/searcher"
	"github.com/webseek/webseek/internal/searcher/handler"
	"github.com/webseek/webseek/internal/store/driver"
	"github.com/webseek/webseek/pkg/config"
	"github.com/webseek/webseek/pkg/health"
	"github.com/webseek/webseek/pkg/kafka"
	"github.com/webseek/webseek/pkg/logger"
	"github.com/webseek/webseek/pkg/metrics"
	"github.com/webseek/webseek/pkg/middleware"
	pkgredis "github.com/webseek/webseek/pkg/redis"
)

const snapshotInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := driver.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer handle.Close(context.Background())

	m := metrics.New()

	var redisClient *pkgredis.Client
	if cfg.Server.RateLimit.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, rate limiting disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var collector *analytics.Collector
	var agg *analytics.Aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Events)
		defer producer.Close()

		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()

		agg = analytics.NewAggregator()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Events, analytics.HandleEvent(agg))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("analytics enabled", "topic", cfg.Kafka.Topics.Events)

		if handle.PG != nil {
			snapshots := aggregator.NewStore(handle.PG)
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Warn("analytics snapshots disabled", "error", err)
			} else {
				snapshots.StartPeriodicSave(ctx, agg, snapshotInterval)
			}
		}
	}

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck(handle.Ping))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	search := searcher.New(handle.Store, handle.Store)
	h := handler.New(search, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	analyticsH := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if redisClient != nil {
		chain = middleware.RateLimit(redisClient, cfg.Server.RateLimit, m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID()(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
