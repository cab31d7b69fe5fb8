package store

import "context"

// PageSource is the builder's read-only view of the crawled corpus.
type PageSource interface {
	// ListPages returns every stored page ordered by id. An error here means
	// the corpus could not be enumerated and the caller must not proceed
	// with a partial view.
	ListPages(ctx context.Context) ([]Page, error)
}

// PageStore is the crawler's write side of the corpus.
type PageStore interface {
	// UpsertPage inserts the page or, when a page with the same URL already
	// exists, overwrites it in place.
	UpsertPage(ctx context.Context, p Page) error

	// PageExists reports whether a page with the given URL is stored.
	PageExists(ctx context.Context, url string) (bool, error)
}

// DocumentStore holds the per-document metadata side of the index.
type DocumentStore interface {
	// ReplaceDocuments atomically swaps the full document set for docs.
	// Readers observe either the previous generation or the new one, never
	// a mix.
	ReplaceDocuments(ctx context.Context, docs []Document) error

	// GetDocuments returns the documents for the given ids, keyed by id.
	// Ids with no stored document are absent from the result; that is not
	// an error.
	GetDocuments(ctx context.Context, ids []string) (map[string]Document, error)
}

// TermStore holds the inverted index itself.
type TermStore interface {
	// ReplaceTerms atomically swaps the full term set for entries.
	ReplaceTerms(ctx context.Context, entries []TermEntry) error

	// FindTerms returns the entries for the given terms. Terms absent from
	// the index are simply missing from the result.
	FindTerms(ctx context.Context, terms []string) ([]TermEntry, error)
}

// Store combines every storage role. Both database adapters satisfy it; the
// narrow interfaces above are what the crawler, builder and searcher accept.
type Store interface {
	PageSource
	PageStore
	DocumentStore
	TermStore
}
