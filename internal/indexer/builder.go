// Package indexer rebuilds the inverted index from the crawled corpus.
//
// A build is a full batch job: it scans every stored page, tokenizes each
// one, aggregates term frequencies into per-term posting lists, computes idf
// weights from the final document count, and publishes the result as a whole
// generation. There is no incremental path; the previous index survives
// untouched unless publication starts.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/internal/tokenizer"
	"github.com/webseek/webseek/pkg/config"
	apperrors "github.com/webseek/webseek/pkg/errors"
)

// Builder turns the page corpus into document metadata and term entries.
type Builder struct {
	source store.PageSource
	docs   store.DocumentStore
	terms  store.TermStore
	cfg    config.IndexerConfig
	logger *slog.Logger
}

// BuildStats summarises one completed build.
type BuildStats struct {
	PagesScanned int
	DocsIndexed  int
	DocsSkipped  int
	Terms        int
	Duration     time.Duration
}

// New creates a Builder over the given stores.
func New(source store.PageSource, docs store.DocumentStore, terms store.TermStore, cfg config.IndexerConfig) *Builder {
	return &Builder{
		source: source,
		docs:   docs,
		terms:  terms,
		cfg:    cfg,
		logger: slog.Default().With("component", "indexer"),
	}
}

// pageResult is the outcome of processing one page. keep means the page gets
// a metadata record; indexed additionally means it contributes postings and
// counts toward N.
type pageResult struct {
	doc     store.Document
	freqs   map[string]int
	keep    bool
	indexed bool
}

// Build runs one full rebuild. A corpus scan failure or an empty corpus
// aborts before anything is written, leaving the previous generation intact.
func (b *Builder) Build(ctx context.Context) (BuildStats, error) {
	start := time.Now()
	var stats BuildStats

	pages, err := b.source.ListPages(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", apperrors.ErrCorpusScan, err)
	}
	stats.PagesScanned = len(pages)
	b.logger.Info("corpus scanned", "pages", len(pages))

	results, err := b.processPages(ctx, pages)
	if err != nil {
		return stats, err
	}

	// The merge is sequential and runs in page order (ascending id), so the
	// postings under every term come out ordered by document id and repeated
	// builds over the same corpus produce identical output.
	var docs []store.Document
	index := make(map[string][]store.Posting)
	for _, r := range results {
		if !r.keep {
			stats.DocsSkipped++
			continue
		}
		if r.indexed {
			stats.DocsIndexed++
			for term, tf := range r.freqs {
				index[term] = append(index[term], store.Posting{DocID: r.doc.ID, TF: tf})
			}
		} else {
			stats.DocsSkipped++
		}
		docs = append(docs, r.doc)
	}

	if stats.DocsIndexed == 0 {
		return stats, fmt.Errorf("%w: %d pages scanned, %d skipped",
			apperrors.ErrEmptyCorpus, stats.PagesScanned, stats.DocsSkipped)
	}

	entries := buildTermEntries(index, stats.DocsIndexed)
	stats.Terms = len(entries)
	b.logger.Info("index computed",
		"documents", stats.DocsIndexed,
		"skipped", stats.DocsSkipped,
		"terms", stats.Terms,
	)

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if err := b.docs.ReplaceDocuments(ctx, docs); err != nil {
		return stats, fmt.Errorf("publishing documents: %w", err)
	}
	if err := b.terms.ReplaceTerms(ctx, entries); err != nil {
		return stats, fmt.Errorf("publishing terms: %w", err)
	}

	stats.Duration = time.Since(start)
	b.logger.Info("index published",
		"documents", stats.DocsIndexed,
		"terms", stats.Terms,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	return stats, nil
}

// processPages tokenizes all pages, fanning the work out across workers. The
// results slice is positional, so worker scheduling cannot change the merge
// order.
func (b *Builder) processPages(ctx context.Context, pages []store.Page) ([]pageResult, error) {
	results := make([]pageResult, len(pages))

	workers := b.cfg.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(pages) {
		workers = len(pages)
	}
	if workers <= 1 {
		for i := range pages {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = b.processPage(pages[i])
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(pages) + workers - 1) / workers
	for from := 0; from < len(pages); from += chunk {
		from := from
		to := from + chunk
		if to > len(pages) {
			to = len(pages)
		}
		g.Go(func() error {
			for i := from; i < to; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = b.processPage(pages[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processPage decides whether one page is indexed, kept as metadata only, or
// skipped, and computes its term frequencies.
func (b *Builder) processPage(p store.Page) pageResult {
	title := p.Title
	if title == "" {
		title = p.URL
	}

	// Full body text is preferred; pages that stored only a snippet are
	// indexed on that.
	text := p.Text
	if text == "" {
		text = p.Snippet
	}

	doc := store.Document{
		ID:       p.ID,
		URL:      p.URL,
		Title:    title,
		Snippet:  snippetOf(p.Snippet, text, b.cfg.SnippetLength),
		Favicon:  p.Favicon,
		Image:    p.Image,
		SiteName: p.SiteName,
	}

	if utf8.RuneCountInString(text) < b.cfg.MinDocLength {
		if b.cfg.ShortDocMetadata {
			// Below the content threshold: kept findable by id but not
			// searchable, and not counted toward N.
			return pageResult{doc: doc, keep: true}
		}
		b.logger.Debug("page below content threshold", "id", p.ID, "url", p.URL)
		return pageResult{}
	}

	tokens := tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		b.logger.Debug("page yields no tokens", "id", p.ID, "url", p.URL)
		return pageResult{}
	}

	doc.Length = len(tokens)
	return pageResult{
		doc:     doc,
		freqs:   tokenizer.TermFrequencies(tokens),
		keep:    true,
		indexed: true,
	}
}

// snippetOf prefers the stored snippet, falling back to the first limit runes
// of the indexable text.
func snippetOf(stored, text string, limit int) string {
	if stored != "" {
		return stored
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

// buildTermEntries turns the aggregated posting lists into sorted term
// entries with idf computed from the final document count.
func buildTermEntries(index map[string][]store.Posting, n int) []store.TermEntry {
	terms := make([]string, 0, len(index))
	for t := range index {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	entries := make([]store.TermEntry, 0, len(terms))
	for _, t := range terms {
		postings := index[t]
		df := len(postings)
		entries = append(entries, store.TermEntry{
			Term:     t,
			IDF:      math.Log(float64(n) / float64(1+df)),
			Postings: postings,
		})
	}
	return entries
}
