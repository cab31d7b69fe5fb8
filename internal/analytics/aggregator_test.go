package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func feed(t *testing.T, agg *Aggregator, event any) {
	t.Helper()
	value, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	if err := HandleEvent(agg)(context.Background(), []byte("analytics"), value); err != nil {
		t.Fatalf("handling event: %v", err)
	}
}

func TestAggregatorSearchRollup(t *testing.T) {
	agg := NewAggregator()

	latencies := []int64{5, 10, 15, 20, 100}
	for i, l := range latencies {
		hits := 3
		if i == 4 {
			hits = 0
		}
		feed(t, agg, SearchEvent{
			Type:      EventSearch,
			Query:     "golang testing",
			TotalHits: hits,
			Returned:  hits,
			LatencyMs: l,
			Timestamp: time.Now(),
		})
	}
	feed(t, agg, SearchEvent{Type: EventSearch, Query: "rust", TotalHits: 1, LatencyMs: 8})

	stats := agg.Stats()
	if stats.TotalSearches != 6 {
		t.Errorf("got %d total searches, want 6", stats.TotalSearches)
	}
	if stats.ZeroResultCount != 1 {
		t.Errorf("got %d zero-result searches, want 1", stats.ZeroResultCount)
	}
	if stats.P50LatencyMs == 0 || stats.P99LatencyMs < stats.P50LatencyMs {
		t.Errorf("implausible percentiles: p50=%d p99=%d", stats.P50LatencyMs, stats.P99LatencyMs)
	}
	if len(stats.TopQueries) == 0 || stats.TopQueries[0].Query != "golang testing" {
		t.Errorf("unexpected top queries: %+v", stats.TopQueries)
	}
	if len(stats.ZeroResultQueries) != 1 || stats.ZeroResultQueries[0].Query != "golang testing" {
		t.Errorf("unexpected zero-result queries: %+v", stats.ZeroResultQueries)
	}
}

func TestAggregatorBuildAndCrawlRollup(t *testing.T) {
	agg := NewAggregator()

	feed(t, agg, BuildEvent{
		Type: EventBuild, Status: "success",
		PagesScanned: 10, DocsIndexed: 8, DocsSkipped: 2, Terms: 120, DurationMs: 450,
	})
	feed(t, agg, BuildEvent{
		Type: EventBuild, Status: "success",
		PagesScanned: 12, DocsIndexed: 11, DocsSkipped: 1, Terms: 140, DurationMs: 500,
	})
	feed(t, agg, CrawlEvent{Type: EventCrawl, PagesCrawled: 25, PagesFailed: 3})
	feed(t, agg, CrawlEvent{Type: EventCrawl, PagesCrawled: 5, PagesFailed: 1})

	stats := agg.Stats()
	if stats.TotalBuilds != 2 {
		t.Errorf("got %d builds, want 2", stats.TotalBuilds)
	}
	if stats.LastBuild == nil || stats.LastBuild.DocsIndexed != 11 {
		t.Errorf("last build not retained: %+v", stats.LastBuild)
	}
	if stats.PagesCrawled != 30 || stats.PagesFailed != 4 {
		t.Errorf("crawl totals wrong: crawled=%d failed=%d", stats.PagesCrawled, stats.PagesFailed)
	}
}

func TestAggregatorIgnoresBadEvents(t *testing.T) {
	agg := NewAggregator()
	handler := HandleEvent(agg)

	if err := handler(context.Background(), nil, []byte(`{not json`)); err != nil {
		t.Errorf("malformed payloads must not bubble up: %v", err)
	}
	if err := handler(context.Background(), nil, []byte(`{"type":"mystery"}`)); err != nil {
		t.Errorf("unknown event types must not bubble up: %v", err)
	}

	if got := agg.Stats().TotalSearches; got != 0 {
		t.Errorf("bad events were counted: %d", got)
	}
}

func TestTopNOrdering(t *testing.T) {
	counts := map[string]int64{"b": 3, "a": 3, "c": 9, "d": 1}

	got := topN(counts, 3)
	want := []QueryCount{{"c", 9}, {"a", 3}, {"b", 3}}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPercentile(t *testing.T) {
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		pct  int
		want int64
	}{
		{50, 6},
		{95, 10},
		{99, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.pct); got != tt.want {
			t.Errorf("percentile(%d) = %d, want %d", tt.pct, got, tt.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile of empty input = %d, want 0", got)
	}
}
