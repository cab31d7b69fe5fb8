package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webseek/webseek/pkg/kafka"
)

// Keep the most recent window of latency samples so a long-running
// aggregator stays bounded.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64         `json:"total_searches"`
	ZeroResultCount   int64         `json:"zero_result_count"`
	AvgLatencyMs      float64       `json:"avg_latency_ms"`
	P50LatencyMs      int64         `json:"p50_latency_ms"`
	P95LatencyMs      int64         `json:"p95_latency_ms"`
	P99LatencyMs      int64         `json:"p99_latency_ms"`
	TopQueries        []QueryCount  `json:"top_queries"`
	ZeroResultQueries []QueryCount  `json:"zero_result_queries"`
	QueriesPerMinute  float64       `json:"queries_per_minute"`
	TotalBuilds       int64         `json:"total_builds"`
	LastBuild         *BuildSummary `json:"last_build,omitempty"`
	PagesCrawled      int64         `json:"pages_crawled"`
	PagesFailed       int64         `json:"pages_failed"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// BuildSummary is the most recent index build seen on the event stream.
type BuildSummary struct {
	Status       string    `json:"status"`
	PagesScanned int       `json:"pages_scanned"`
	DocsIndexed  int       `json:"docs_indexed"`
	DocsSkipped  int       `json:"docs_skipped"`
	Terms        int       `json:"terms"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Aggregator keeps in-memory rollups of the event stream for the /analytics
// endpoint. Feed it by running a kafka consumer with HandleEvent.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	zeroResults       atomic.Int64
	totalBuilds       atomic.Int64
	pagesCrawled      atomic.Int64
	pagesFailed       atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	lastBuild         *BuildSummary
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, maxLatencySamples),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns the Kafka handler that feeds an aggregator. Malformed
// or unknown events are logged and skipped, never retried.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch:
			event, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.recordSearch(event)
		case EventBuild:
			event, err := kafka.DecodeJSON[BuildEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode build event", "error", err)
				return nil
			}
			agg.recordBuild(event)
		case EventCrawl:
			event, err := kafka.DecodeJSON[CrawlEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode crawl event", "error", err)
				return nil
			}
			agg.recordCrawl(event)
		default:
			agg.logger.Debug("ignoring unknown event type", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.latencies = append(a.latencies, event.LatencyMs)
	if len(a.latencies) > maxLatencySamples {
		a.latencies = a.latencies[len(a.latencies)-maxLatencySamples:]
	}
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordBuild(event BuildEvent) {
	a.totalBuilds.Add(1)

	a.mu.Lock()
	a.lastBuild = &BuildSummary{
		Status:       event.Status,
		PagesScanned: event.PagesScanned,
		DocsIndexed:  event.DocsIndexed,
		DocsSkipped:  event.DocsSkipped,
		Terms:        event.Terms,
		DurationMs:   event.DurationMs,
		Timestamp:    event.Timestamp,
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordCrawl(event CrawlEvent) {
	a.pagesCrawled.Add(int64(event.PagesCrawled))
	a.pagesFailed.Add(int64(event.PagesFailed))
}

// Stats returns a consistent snapshot of the rollups.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		TotalBuilds:     a.totalBuilds.Load(),
		PagesCrawled:    a.pagesCrawled.Load(),
		PagesFailed:     a.pagesFailed.Load(),
	}
	if a.lastBuild != nil {
		lb := *a.lastBuild
		stats.LastBuild = &lb
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
