// Package crawler implements the breadth-first web crawler that feeds the
// page store. It fetches HTML politely, extracts display metadata and body
// text, and follows in-domain links up to a depth limit.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/pkg/config"
	"github.com/webseek/webseek/pkg/metrics"
)

// maxBodyBytes bounds how much of a response body is read per page.
const maxBodyBytes = 2 * 1024 * 1024

// Stats summarises one crawl run.
type Stats struct {
	PagesCrawled int
	PagesFailed  int
	PagesSkipped int
	Duration     time.Duration
}

type Crawler struct {
	pages   store.PageStore
	client  *http.Client
	cfg     config.CrawlerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Crawler writing into pages. Metrics may be nil.
func New(pages store.PageStore, cfg config.CrawlerConfig, m *metrics.Metrics) *Crawler {
	return &Crawler{
		pages:   pages,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "crawler"),
	}
}

type queueItem struct {
	url   string
	depth int
}

// Run crawls breadth-first from the configured seeds until the frontier is
// exhausted, the page budget is spent, or ctx is cancelled.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{}

	queue := make([]queueItem, 0, len(c.cfg.Seeds))
	for _, s := range c.cfg.Seeds {
		if s = strings.TrimSpace(s); s != "" {
			queue = append(queue, queueItem{url: s})
		}
	}
	if len(queue) == 0 {
		return stats, fmt.Errorf("no seed urls configured")
	}

	visited := make(map[string]bool)

	for len(queue) > 0 && stats.PagesCrawled < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		item := queue[0]
		queue = queue[1:]
		c.setQueueSize(len(queue))

		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		parsed, err := url.Parse(item.url)
		if err != nil {
			continue
		}
		if !c.allowedDomain(parsed) {
			stats.PagesSkipped++
			continue
		}

		if c.cfg.SkipExisting {
			exists, err := c.pages.PageExists(ctx, item.url)
			if err == nil && exists {
				stats.PagesSkipped++
				continue
			}
		}

		c.logger.Info("fetching", "url", item.url, "depth", item.depth)
		doc, err := c.fetchPage(ctx, item.url)
		if err != nil {
			c.logger.Warn("fetch failed", "url", item.url, "error", err)
			stats.PagesFailed++
			c.countError()
			continue
		}

		page := Extract(item.url, doc)
		if err := c.pages.UpsertPage(ctx, page); err != nil {
			c.logger.Error("failed to store page", "url", item.url, "error", err)
			stats.PagesFailed++
			c.countError()
			continue
		}
		stats.PagesCrawled++
		c.countCrawled()

		if item.depth < c.cfg.MaxDepth {
			for _, href := range page.Links {
				norm, err := normalizeURL(parsed, href)
				if err != nil {
					continue
				}
				if !visited[norm] {
					queue = append(queue, queueItem{url: norm, depth: item.depth + 1})
				}
			}
		}

		select {
		case <-time.After(c.cfg.Delay):
		case <-ctx.Done():
			stats.Duration = time.Since(start)
			return stats, ctx.Err()
		}
	}

	stats.Duration = time.Since(start)
	c.logger.Info("crawl finished",
		"pages_crawled", stats.PagesCrawled,
		"pages_failed", stats.PagesFailed,
		"pages_skipped", stats.PagesSkipped,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("non-html content type: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (c *Crawler) allowedDomain(u *url.URL) bool {
	if len(c.cfg.AllowedDomains) == 0 {
		return true
	}
	host := u.Hostname()
	for _, d := range c.cfg.AllowedDomains {
		if strings.HasSuffix(host, strings.TrimSpace(d)) {
			return true
		}
	}
	return false
}

// normalizeURL resolves href against base, keeps only http(s) targets and
// strips fragments so the frontier deduplicates cleanly.
func normalizeURL(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Fragment = ""
	return parsed.String(), nil
}

func (c *Crawler) countCrawled() {
	if c.metrics != nil {
		c.metrics.PagesCrawled.Inc()
	}
}

func (c *Crawler) countError() {
	if c.metrics != nil {
		c.metrics.CrawlErrors.Inc()
	}
}

func (c *Crawler) setQueueSize(n int) {
	if c.metrics != nil {
		c.metrics.CrawlQueueSize.Set(float64(n))
	}
}
