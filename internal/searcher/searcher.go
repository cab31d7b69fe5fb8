// Package searcher scores free-text queries against the published index.
//
// Every call is independent and read-only: tokenize the query, fetch the
// matching term entries, accumulate TF-IDF contributions per document, rank,
// truncate, and only then hydrate metadata for the surviving ids.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/internal/tokenizer"
)

const (
	// defaultLimit applies when the caller passes no usable limit.
	defaultLimit = 20
	// resultSnippetRunes bounds the snippet emitted per result. Stored
	// snippets usually fit already; crawler-supplied ones may not.
	resultSnippetRunes = 300
)

// Result is one ranked search hit.
type Result struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Favicon  string  `json:"favicon,omitempty"`
	Image    string  `json:"image,omitempty"`
	SiteName string  `json:"site_name,omitempty"`
	Score    float64 `json:"score"`
}

// Searcher executes queries against the document and term stores.
type Searcher struct {
	docs   store.DocumentStore
	terms  store.TermStore
	logger *slog.Logger
}

// New creates a Searcher over the given stores.
func New(docs store.DocumentStore, terms store.TermStore) *Searcher {
	return &Searcher{
		docs:   docs,
		terms:  terms,
		logger: slog.Default().With("component", "searcher"),
	}
}

// Search returns at most limit results ranked by TF-IDF score. A query that
// tokenizes to nothing or matches no indexed term yields an empty list, not
// an error; errors are reserved for store failures.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	tokens := distinct(tokenizer.Tokenize(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	entries, err := s.terms.FindTerms(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("fetching term entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// A document matching several query terms accumulates additively; zero
	// and negative idf contributions stay in, they rank rather than filter.
	scores := make(map[string]float64)
	for _, e := range entries {
		for _, p := range e.Postings {
			if p.TF <= 0 {
				continue
			}
			scores[p.DocID] += (1 + math.Log(float64(p.TF))) * e.IDF
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ranked := make([]scoredDoc, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, scoredDoc{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	// Truncation happens before metadata lookup, so hydration cost is bound
	// by the limit rather than the corpus.
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	ids := make([]string, len(ranked))
	for i, d := range ranked {
		ids[i] = d.id
	}
	metadata, err := s.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching document metadata: %w", err)
	}

	results := make([]Result, 0, len(ranked))
	for _, d := range ranked {
		meta, ok := metadata[d.id]
		if !ok {
			// A posting outlived its document; drop it silently.
			s.logger.Debug("dropping stale reference", "doc_id", d.id)
			continue
		}
		title := meta.Title
		if title == "" {
			title = meta.URL
		}
		results = append(results, Result{
			ID:       d.id,
			URL:      meta.URL,
			Title:    title,
			Snippet:  truncateRunes(meta.Snippet, resultSnippetRunes),
			Favicon:  meta.Favicon,
			Image:    meta.Image,
			SiteName: meta.SiteName,
			Score:    d.score,
		})
	}
	return results, nil
}

type scoredDoc struct {
	id    string
	score float64
}

// distinct preserves first-occurrence order while removing duplicates.
func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
