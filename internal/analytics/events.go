package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventBuild  EventType = "index_build"
	EventCrawl  EventType = "crawl"
)

// envelope carries just the discriminator so the consumer can pick the
// concrete event type before decoding the full payload.
type envelope struct {
	Type EventType `json:"type"`
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type BuildEvent struct {
	Type         EventType `json:"type"`
	Status       string    `json:"status"`
	PagesScanned int       `json:"pages_scanned"`
	DocsIndexed  int       `json:"docs_indexed"`
	DocsSkipped  int       `json:"docs_skipped"`
	Terms        int       `json:"terms"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

type CrawlEvent struct {
	Type         EventType `json:"type"`
	Seeds        []string  `json:"seeds"`
	PagesCrawled int       `json:"pages_crawled"`
	PagesFailed  int       `json:"pages_failed"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
