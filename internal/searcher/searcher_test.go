package searcher

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/webseek/webseek/internal/store"
)

func seedIndex(t *testing.T, m *store.Memory, docs []store.Document, entries []store.TermEntry) {
	t.Helper()
	ctx := context.Background()
	if err := m.ReplaceDocuments(ctx, docs); err != nil {
		t.Fatalf("seeding documents: %v", err)
	}
	if err := m.ReplaceTerms(ctx, entries); err != nil {
		t.Fatalf("seeding terms: %v", err)
	}
}

func TestSearchSingleTermScore(t *testing.T) {
	m := store.NewMemory()
	idf := 0.9
	seedIndex(t, m,
		[]store.Document{{ID: "a", URL: "https://x.test/a", Title: "A", Snippet: "about a"}},
		[]store.TermEntry{{Term: "golang", IDF: idf, Postings: []store.Posting{{DocID: "a", TF: 4}}}},
	)

	results, err := New(m, m).Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	want := (1 + math.Log(4)) * idf
	if math.Abs(results[0].Score-want) > 1e-12 {
		t.Errorf("got score %v, want %v", results[0].Score, want)
	}
	if results[0].ID != "a" || results[0].URL != "https://x.test/a" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestSearchMultiTermAccumulation(t *testing.T) {
	// Two documents: X carries "rust" tf=5; Y carries "rust" tf=1 and
	// "systems" tf=2. With N=2: idf(rust) = ln(2/3), idf(systems) = ln(2/2).
	m := store.NewMemory()
	idfRust := math.Log(2.0 / 3.0)
	idfSystems := math.Log(2.0 / 2.0)
	seedIndex(t, m,
		[]store.Document{
			{ID: "x", URL: "https://x.test/x", Title: "X"},
			{ID: "y", URL: "https://x.test/y", Title: "Y"},
		},
		[]store.TermEntry{
			{Term: "rust", IDF: idfRust, Postings: []store.Posting{{DocID: "x", TF: 5}, {DocID: "y", TF: 1}}},
			{Term: "systems", IDF: idfSystems, Postings: []store.Posting{{DocID: "y", TF: 2}}},
		},
	)

	results, err := New(m, m).Search(context.Background(), "rust systems", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	wantX := (1 + math.Log(5)) * idfRust
	wantY := (1+math.Log(1))*idfRust + (1+math.Log(2))*idfSystems

	// idf(rust) is negative here, so the lighter rust load ranks first.
	if results[0].ID != "y" {
		t.Fatalf("got first result %s, want y", results[0].ID)
	}
	if math.Abs(results[0].Score-wantY) > 1e-12 {
		t.Errorf("got y score %v, want %v", results[0].Score, wantY)
	}
	if math.Abs(results[1].Score-wantX) > 1e-12 {
		t.Errorf("got x score %v, want %v", results[1].Score, wantX)
	}
}

func TestSearchZeroIDFStillMatches(t *testing.T) {
	// "cat" in 2 of 3 docs gives idf = ln(3/3) = 0. Both matches score 0
	// and must still be returned, ordered by document id.
	m := store.NewMemory()
	seedIndex(t, m,
		[]store.Document{
			{ID: "a", URL: "https://x.test/a"},
			{ID: "b", URL: "https://x.test/b"},
			{ID: "c", URL: "https://x.test/c"},
		},
		[]store.TermEntry{
			{Term: "cat", IDF: 0, Postings: []store.Posting{{DocID: "a", TF: 3}, {DocID: "b", TF: 1}}},
		},
	)

	results, err := New(m, m).Search(context.Background(), "cat", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("got order %s, %s; want a, b", results[0].ID, results[1].ID)
	}
	for _, r := range results {
		if r.Score != 0 {
			t.Errorf("result %s: got score %v, want 0", r.ID, r.Score)
		}
	}
}

func TestSearchEmptyOutcomes(t *testing.T) {
	m := store.NewMemory()
	seedIndex(t, m,
		[]store.Document{{ID: "a", URL: "https://x.test/a"}},
		[]store.TermEntry{{Term: "golang", IDF: 1, Postings: []store.Posting{{DocID: "a", TF: 1}}}},
	)
	s := New(m, m)

	tests := []struct {
		name  string
		query string
	}{
		{"empty query", ""},
		{"stopwords only", "the and of to"},
		{"short tokens only", "go ai io"},
		{"punctuation only", "!!! ... ???"},
		{"unknown terms", "quantum entanglement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(context.Background(), tt.query, 10)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(results) != 0 {
				t.Errorf("got %d results, want 0", len(results))
			}
		})
	}
}

func TestSearchLimitTruncatesBeforeHydration(t *testing.T) {
	m := store.NewMemory()
	docs := []store.Document{
		{ID: "a", URL: "https://x.test/a"},
		{ID: "b", URL: "https://x.test/b"},
		{ID: "c", URL: "https://x.test/c"},
	}
	seedIndex(t, m, docs, []store.TermEntry{
		{Term: "ranking", IDF: 1, Postings: []store.Posting{
			{DocID: "a", TF: 9},
			{DocID: "b", TF: 3},
			{DocID: "c", TF: 1},
		}},
	})

	results, err := New(m, m).Search(context.Background(), "ranking", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("got %s, %s; want a, b", results[0].ID, results[1].ID)
	}
}

func TestSearchDropsStaleReferences(t *testing.T) {
	// The posting list knows three documents but metadata survives for two.
	m := store.NewMemory()
	seedIndex(t, m,
		[]store.Document{
			{ID: "a", URL: "https://x.test/a"},
			{ID: "c", URL: "https://x.test/c"},
		},
		[]store.TermEntry{
			{Term: "golang", IDF: 1, Postings: []store.Posting{
				{DocID: "a", TF: 5},
				{DocID: "ghost", TF: 4},
				{DocID: "c", TF: 1},
			}},
		},
	)

	results, err := New(m, m).Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 after dropping the stale id", len(results))
	}
	for _, r := range results {
		if r.ID == "ghost" {
			t.Error("stale reference leaked into results")
		}
	}
}

func TestSearchDuplicateQueryTermsCountOnce(t *testing.T) {
	m := store.NewMemory()
	idf := 0.7
	seedIndex(t, m,
		[]store.Document{{ID: "a", URL: "https://x.test/a"}},
		[]store.TermEntry{{Term: "golang", IDF: idf, Postings: []store.Posting{{DocID: "a", TF: 2}}}},
	)

	once, err := New(m, m).Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	thrice, err := New(m, m).Search(context.Background(), "golang golang golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if once[0].Score != thrice[0].Score {
		t.Errorf("repeated query term changed the score: %v vs %v", once[0].Score, thrice[0].Score)
	}
}

func TestSearchResultPresentation(t *testing.T) {
	m := store.NewMemory()
	longSnippet := strings.Repeat("s", 400)
	seedIndex(t, m,
		[]store.Document{
			{ID: "a", URL: "https://x.test/a", Title: "", Snippet: longSnippet, Favicon: "https://x.test/f.ico"},
		},
		[]store.TermEntry{{Term: "golang", IDF: 1, Postings: []store.Posting{{DocID: "a", TF: 1}}}},
	)

	results, err := New(m, m).Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	r := results[0]
	if r.Title != "https://x.test/a" {
		t.Errorf("blank title must fall back to the url, got %q", r.Title)
	}
	if len([]rune(r.Snippet)) != 300 {
		t.Errorf("got snippet of %d runes, want 300", len([]rune(r.Snippet)))
	}
	if r.Favicon != "https://x.test/f.ico" {
		t.Errorf("favicon not carried through: %+v", r)
	}
}

type failingTermStore struct{ err error }

func (f failingTermStore) ReplaceTerms(ctx context.Context, entries []store.TermEntry) error {
	return f.err
}

func (f failingTermStore) FindTerms(ctx context.Context, terms []string) ([]store.TermEntry, error) {
	return nil, f.err
}

func TestSearchStoreFailureIsAnError(t *testing.T) {
	m := store.NewMemory()
	s := New(m, failingTermStore{err: errors.New("connection reset")})

	if _, err := s.Search(context.Background(), "golang", 10); err == nil {
		t.Fatal("expected error when the term store fails")
	}
}
