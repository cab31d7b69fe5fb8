package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/pkg/config"
)

// skipIfNoMongo skips the test when MongoDB is unavailable.
func skipIfNoMongo(t *testing.T) *Store {
	t.Helper()
	cfg := config.MongoConfig{
		URI:      envOrDefault("TEST_MONGO_URI", "mongodb://localhost:27017"),
		Database: envOrDefault("TEST_MONGO_DB", "webseek_test"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := New(ctx, cfg, 2) // tiny batch to exercise batching
	if err != nil {
		t.Skipf("skipping integration test: mongodb unavailable: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.db.Drop(cleanupCtx)
		_ = s.Close(cleanupCtx)
	})

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return s
}

func TestMongoPageRoundTrip(t *testing.T) {
	s := skipIfNoMongo(t)
	ctx := context.Background()

	p := store.Page{
		ID:        "0a1b",
		URL:       "https://example.com/go",
		Title:     "The Go Programming Language",
		Snippet:   "Go is an open source programming language.",
		Text:      "Go is an open source programming language built for simplicity.",
		Links:     []string{"https://example.com/docs"},
		CrawlTime: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.UpsertPage(ctx, p); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	exists, err := s.PageExists(ctx, p.URL)
	if err != nil {
		t.Fatalf("PageExists: %v", err)
	}
	if !exists {
		t.Fatal("expected page to exist")
	}

	p.Title = "Go, revised"
	if err := s.UpsertPage(ctx, p); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	pages, err := s.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	if pages[0].Title != "Go, revised" {
		t.Errorf("got title %q", pages[0].Title)
	}
}

func TestMongoReplaceDocumentsSwapsGenerations(t *testing.T) {
	s := skipIfNoMongo(t)
	ctx := context.Background()

	first := []store.Document{
		{ID: "a", URL: "https://x.test/a", Title: "A"},
		{ID: "b", URL: "https://x.test/b", Title: "B"},
		{ID: "c", URL: "https://x.test/c", Title: "C"},
	}
	if err := s.ReplaceDocuments(ctx, first); err != nil {
		t.Fatalf("ReplaceDocuments: %v", err)
	}

	got, err := s.GetDocuments(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d documents, want 3", len(got))
	}

	if err := s.ReplaceDocuments(ctx, []store.Document{{ID: "z", URL: "https://x.test/z"}}); err != nil {
		t.Fatalf("ReplaceDocuments: %v", err)
	}
	got, err = s.GetDocuments(ctx, []string{"a", "z"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if _, stale := got["a"]; stale {
		t.Error("document from previous generation still present")
	}
	if _, ok := got["z"]; !ok {
		t.Error("new generation document missing")
	}
}

func TestMongoTermsRoundTrip(t *testing.T) {
	s := skipIfNoMongo(t)
	ctx := context.Background()

	entries := []store.TermEntry{
		{Term: "golang", IDF: 1.2, Postings: []store.Posting{{DocID: "a", TF: 3}, {DocID: "b", TF: 1}}},
		{Term: "index", IDF: 0.4, Postings: []store.Posting{{DocID: "b", TF: 2}}},
		{Term: "search", IDF: 0.9, Postings: []store.Posting{{DocID: "a", TF: 1}}},
	}
	if err := s.ReplaceTerms(ctx, entries); err != nil {
		t.Fatalf("ReplaceTerms: %v", err)
	}

	found, err := s.FindTerms(ctx, []string{"golang", "search", "absent"})
	if err != nil {
		t.Fatalf("FindTerms: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("got %d entries, want 2", len(found))
	}

	byTerm := make(map[string]store.TermEntry, len(found))
	for _, e := range found {
		byTerm[e.Term] = e
	}
	g := byTerm["golang"]
	if g.IDF != 1.2 {
		t.Errorf("got idf %v, want 1.2", g.IDF)
	}
	if len(g.Postings) != 2 || g.Postings[1].DocID != "b" || g.Postings[1].TF != 1 {
		t.Errorf("unexpected postings %+v", g.Postings)
	}

	// An empty replace leaves an empty, queryable collection.
	if err := s.ReplaceTerms(ctx, nil); err != nil {
		t.Fatalf("ReplaceTerms(nil): %v", err)
	}
	found, err = s.FindTerms(ctx, []string{"golang"})
	if err != nil {
		t.Fatalf("FindTerms after empty replace: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("got %d entries, want 0", len(found))
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
