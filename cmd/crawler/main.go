// Command crawler fetches pages breadth-first from the configured seed URLs
// and upserts them into the page store for the indexer to pick up.
//
// Each run crawls up to crawler.maxPages pages, honouring the politeness
// delay between fetches, and publishes a crawl summary event when analytics
// is enabled.
//
// Usage:
//
//	go run ./cmd/crawler [-config configs/development.yaml]
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
	"github.com/webseek/webseek/internal/crawler"
	"github.com/webseek/webseek/internal/store/driver"
	"github.com/webseek/webseek/pkg/config"
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
	slog.Info("starting crawler",
		"seeds", len(cfg.Crawler.Seeds),
		"max_pages", cfg.Crawler.MaxPages,
		"max_depth", cfg.Crawler.MaxDepth,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := driver.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer handle.Close(context.Background())

	m := metrics.New()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Events)
		defer producer.Close()
	}

	stats, err := crawler.New(handle.Store, cfg.Crawler, m).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("crawl failed", "error", err)
		os.Exit(1)
	}
	slog.Info("crawl summary",
		"pages_crawled", stats.PagesCrawled,
		"pages_failed", stats.PagesFailed,
		"pages_skipped", stats.PagesSkipped,
		"duration", stats.Duration,
	)

	if producer != nil {
		event := analytics.CrawlEvent{
			Type:         analytics.EventCrawl,
			Seeds:        cfg.Crawler.Seeds,
			PagesCrawled: stats.PagesCrawled,
			PagesFailed:  stats.PagesFailed,
			DurationMs:   stats.Duration.Milliseconds(),
			Timestamp:    time.Now().UTC(),
		}
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if perr := producer.Publish(pubCtx, kafka.Event{Key: "analytics", Value: event}); perr != nil {
			slog.Warn("failed to publish crawl event", "error", perr)
		}
	}
}
