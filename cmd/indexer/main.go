// Command indexer rebuilds the search index from the crawled pages.
//
// By default it runs one build and exits, which suits cron-style scheduling.
// With indexer.interval set in config it keeps rebuilding on that cadence
// until interrupted. A file lock ensures only one build runs at a time; a
// second invocation finding the lock held exits cleanly without touching
// the index.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webseek/webseek/internal/analytics"
	"github.com/webseek/webseek/internal/indexer"
	"github.com/webseek/webseek/internal/store/driver"
	"github.com/webseek/webseek/pkg/config"
	apperrors "github.com/webseek/webseek/pkg/errors"
	"github.com/webseek/webseek/pkg/kafka"
	"github.com/webseek/webseek/pkg/logger"
	"github.com/webseek/webseek/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "store", cfg.Store.Driver, "interval", cfg.Indexer.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	lock := indexer.NewLock(cfg.Indexer.LockPath)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, apperrors.ErrBuildLocked) {
			slog.Warn("another build is in progress, skipping", "lock", cfg.Indexer.LockPath)
			m.BuildsTotal.WithLabelValues("skipped").Inc()
			return
		}
		slog.Error("failed to acquire build lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	handle, err := driver.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer handle.Close(context.Background())

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Events)
		defer producer.Close()
	}

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled && cfg.Indexer.Interval > 0 {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	builder := indexer.New(handle.Store, handle.Store, handle.Store, cfg.Indexer)

	if err := runBuild(ctx, builder, m, producer); err != nil {
		if cfg.Indexer.Interval <= 0 {
			os.Exit(1)
		}
	}

	if cfg.Indexer.Interval > 0 {
		ticker := time.NewTicker(cfg.Indexer.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runBuild(ctx, builder, m, producer)
			case <-ctx.Done():
				slog.Info("indexer stopping")
				if stopMetrics != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					stopMetrics(shutdownCtx)
					cancel()
				}
				return
			}
		}
	}
}

// runBuild executes one full rebuild, records its metrics, and publishes a
// build event when analytics is enabled.
func runBuild(ctx context.Context, builder *indexer.Builder, m *metrics.Metrics, producer *kafka.Producer) error {
	stats, err := builder.Build(ctx)

	status := "success"
	if err != nil {
		status = "failed"
		slog.Error("index build failed", "error", err)
	} else {
		slog.Info("index build complete",
			"pages_scanned", stats.PagesScanned,
			"docs_indexed", stats.DocsIndexed,
			"docs_skipped", stats.DocsSkipped,
			"terms", stats.Terms,
			"duration", stats.Duration,
		)
	}

	m.BuildsTotal.WithLabelValues(status).Inc()
	if err == nil {
		m.BuildDuration.Observe(stats.Duration.Seconds())
		m.IndexedDocs.Set(float64(stats.DocsIndexed))
		m.IndexedTerms.Set(float64(stats.Terms))
		m.SkippedDocs.Set(float64(stats.DocsSkipped))
	}

	if producer != nil {
		event := analytics.BuildEvent{
			Type:         analytics.EventBuild,
			Status:       status,
			PagesScanned: stats.PagesScanned,
			DocsIndexed:  stats.DocsIndexed,
			DocsSkipped:  stats.DocsSkipped,
			Terms:        stats.Terms,
			DurationMs:   stats.Duration.Milliseconds(),
			Timestamp:    time.Now().UTC(),
		}
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if perr := producer.Publish(pubCtx, kafka.Event{Key: "analytics", Value: event}); perr != nil {
			slog.Warn("failed to publish build event", "error", perr)
		}
	}

	return err
}
