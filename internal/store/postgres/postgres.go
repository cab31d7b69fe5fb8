// Package postgres implements the storage interfaces on PostgreSQL.
//
// Postings live as a JSONB array on each term row. A rebuild swaps a whole
// table inside one transaction (DELETE plus batched INSERTs), so concurrent
// readers stay on the previous snapshot until the commit and never observe a
// half-published index.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/webseek/webseek/internal/store"
	pg "github.com/webseek/webseek/pkg/postgres"
)

const defaultBatchSize = 1000

// Store implements store.Store on a PostgreSQL database.
type Store struct {
	db        *pg.Client
	batchSize int
	logger    *slog.Logger
}

// New creates a Store. batchSize bounds how many rows one INSERT carries;
// values below 1 fall back to the default.
func New(db *pg.Client, batchSize int) *Store {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	return &Store{
		db:        db,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "postgres-store"),
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the tables the store needs if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id         TEXT PRIMARY KEY,
			url        TEXT NOT NULL UNIQUE,
			title      TEXT NOT NULL DEFAULT '',
			snippet    TEXT NOT NULL DEFAULT '',
			favicon    TEXT NOT NULL DEFAULT '',
			site_name  TEXT NOT NULL DEFAULT '',
			image      TEXT NOT NULL DEFAULT '',
			body_text  TEXT NOT NULL DEFAULT '',
			links      TEXT[] NOT NULL DEFAULT '{}',
			crawl_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id        TEXT PRIMARY KEY,
			url       TEXT NOT NULL,
			title     TEXT NOT NULL DEFAULT '',
			snippet   TEXT NOT NULL DEFAULT '',
			length    INTEGER NOT NULL DEFAULT 0,
			favicon   TEXT NOT NULL DEFAULT '',
			image     TEXT NOT NULL DEFAULT '',
			site_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS index_terms (
			term     TEXT PRIMARY KEY,
			idf      DOUBLE PRECISION NOT NULL,
			postings JSONB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context) ([]store.Page, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, url, title, snippet, favicon, site_name, image, body_text, links, crawl_time
		 FROM pages ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	defer rows.Close()

	var pages []store.Page
	for rows.Next() {
		var (
			p     store.Page
			links pq.StringArray
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Snippet, &p.Favicon,
			&p.SiteName, &p.Image, &p.Text, &links, &p.CrawlTime); err != nil {
			return nil, fmt.Errorf("scanning page row: %w", err)
		}
		p.Links = []string(links)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading page rows: %w", err)
	}
	return pages, nil
}

func (s *Store) UpsertPage(ctx context.Context, p store.Page) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO pages (id, url, title, snippet, favicon, site_name, image, body_text, links, crawl_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (url) DO UPDATE SET
			id = EXCLUDED.id,
			title = EXCLUDED.title,
			snippet = EXCLUDED.snippet,
			favicon = EXCLUDED.favicon,
			site_name = EXCLUDED.site_name,
			image = EXCLUDED.image,
			body_text = EXCLUDED.body_text,
			links = EXCLUDED.links,
			crawl_time = EXCLUDED.crawl_time`,
		p.ID, p.URL, p.Title, p.Snippet, p.Favicon, p.SiteName, p.Image,
		p.Text, pq.Array(p.Links), p.CrawlTime,
	)
	if err != nil {
		return fmt.Errorf("upserting page %s: %w", p.URL, err)
	}
	return nil
}

func (s *Store) PageExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pages WHERE url = $1)`, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking page %s: %w", url, err)
	}
	return exists, nil
}

func (s *Store) ReplaceDocuments(ctx context.Context, docs []store.Document) error {
	start := time.Now()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
			return fmt.Errorf("clearing documents: %w", err)
		}
		for from := 0; from < len(docs); from += s.batchSize {
			to := from + s.batchSize
			if to > len(docs) {
				to = len(docs)
			}
			if err := insertDocumentBatch(ctx, tx, docs[from:to]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("documents replaced",
		"count", len(docs),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func insertDocumentBatch(ctx context.Context, tx *sql.Tx, docs []store.Document) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO documents (id, url, title, snippet, length, favicon, image, site_name) VALUES `)
	args := make([]any, 0, len(docs)*8)
	for i, d := range docs {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, d.ID, d.URL, d.Title, d.Snippet, d.Length, d.Favicon, d.Image, d.SiteName)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("inserting document batch: %w", err)
	}
	return nil
}

func (s *Store) GetDocuments(ctx context.Context, ids []string) (map[string]store.Document, error) {
	found := make(map[string]store.Document, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, url, title, snippet, length, favicon, image, site_name
		 FROM documents WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d store.Document
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Snippet, &d.Length,
			&d.Favicon, &d.Image, &d.SiteName); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		found[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return found, nil
}

func (s *Store) ReplaceTerms(ctx context.Context, entries []store.TermEntry) error {
	start := time.Now()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_terms`); err != nil {
			return fmt.Errorf("clearing index terms: %w", err)
		}
		for from := 0; from < len(entries); from += s.batchSize {
			to := from + s.batchSize
			if to > len(entries) {
				to = len(entries)
			}
			if err := insertTermBatch(ctx, tx, entries[from:to]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("terms replaced",
		"count", len(entries),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func insertTermBatch(ctx context.Context, tx *sql.Tx, entries []store.TermEntry) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO index_terms (term, idf, postings) VALUES `)
	args := make([]any, 0, len(entries)*3)
	for i, e := range entries {
		postings, err := json.Marshal(e.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for term %q: %w", e.Term, err)
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i * 3
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", base+1, base+2, base+3)
		args = append(args, e.Term, e.IDF, postings)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("inserting term batch: %w", err)
	}
	return nil
}

func (s *Store) FindTerms(ctx context.Context, terms []string) ([]store.TermEntry, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term, idf, postings FROM index_terms WHERE term = ANY($1)`,
		pq.Array(terms),
	)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer rows.Close()

	var entries []store.TermEntry
	for rows.Next() {
		var (
			e   store.TermEntry
			raw []byte
		)
		if err := rows.Scan(&e.Term, &e.IDF, &raw); err != nil {
			return nil, fmt.Errorf("scanning term row: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Postings); err != nil {
			return nil, fmt.Errorf("unmarshaling postings for term %q: %w", e.Term, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading term rows: %w", err)
	}
	return entries, nil
}
