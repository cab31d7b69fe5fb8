package indexer

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/pkg/config"
	apperrors "github.com/webseek/webseek/pkg/errors"
)

func testConfig() config.IndexerConfig {
	return config.IndexerConfig{
		MinDocLength:  50,
		SnippetLength: 300,
		BatchSize:     1000,
		Parallelism:   1,
	}
}

// longText pads body text past the content threshold without introducing
// extra terms: "filler" repeats as one highly frequent token.
func longText(lead string) string {
	return lead + " " + strings.Repeat("filler ", 10)
}

func seedPages(t *testing.T, m *store.Memory, pages ...store.Page) {
	t.Helper()
	for _, p := range pages {
		if err := m.UpsertPage(context.Background(), p); err != nil {
			t.Fatalf("seeding page %s: %v", p.URL, err)
		}
	}
}

func findTerm(t *testing.T, m *store.Memory, term string) store.TermEntry {
	t.Helper()
	entries, err := m.FindTerms(context.Background(), []string{term})
	if err != nil {
		t.Fatalf("FindTerms(%q): %v", term, err)
	}
	if len(entries) != 1 {
		t.Fatalf("term %q: got %d entries, want 1", term, len(entries))
	}
	return entries[0]
}

func TestBuildComputesIDF(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m,
		store.Page{ID: "a", URL: "https://x.test/a", Title: "A", Text: longText("cat cat cat")},
		store.Page{ID: "b", URL: "https://x.test/b", Title: "B", Text: longText("cat")},
		store.Page{ID: "c", URL: "https://x.test/c", Title: "C", Text: longText("dog")},
	)

	b := New(m, m, m, testConfig())
	stats, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.DocsIndexed != 3 {
		t.Fatalf("got %d indexed docs, want 3", stats.DocsIndexed)
	}

	// "cat" is in 2 of 3 docs: idf = ln(3/(1+2)) = 0. Zero is a legitimate
	// weight, not an exclusion.
	cat := findTerm(t, m, "cat")
	if math.Abs(cat.IDF) > 1e-12 {
		t.Errorf("got idf %v, want 0", cat.IDF)
	}
	if len(cat.Postings) != 2 {
		t.Fatalf("got %d postings, want 2", len(cat.Postings))
	}
	// One aggregated posting per document, ordered by document id.
	if cat.Postings[0].DocID != "a" || cat.Postings[0].TF != 3 {
		t.Errorf("posting 0 = %+v, want {a 3}", cat.Postings[0])
	}
	if cat.Postings[1].DocID != "b" || cat.Postings[1].TF != 1 {
		t.Errorf("posting 1 = %+v, want {b 1}", cat.Postings[1])
	}

	// "dog" is in 1 of 3 docs: idf = ln(3/2).
	dog := findTerm(t, m, "dog")
	if want := math.Log(3.0 / 2.0); math.Abs(dog.IDF-want) > 1e-12 {
		t.Errorf("got idf %v, want %v", dog.IDF, want)
	}
}

func TestBuildDocumentMetadata(t *testing.T) {
	m := store.NewMemory()
	body := longText("golang concurrency patterns")
	seedPages(t, m,
		store.Page{
			ID:       "a",
			URL:      "https://x.test/a",
			Title:    "", // must fall back to the URL
			Text:     body,
			Favicon:  "https://x.test/favicon.ico",
			SiteName: "x.test",
		},
		store.Page{
			ID:      "b",
			URL:     "https://x.test/b",
			Title:   "B",
			Snippet: "Stored snippet wins.",
			Text:    body,
		},
	)

	b := New(m, m, m, testConfig())
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	docs, err := m.GetDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}

	a := docs["a"]
	if a.Title != "https://x.test/a" {
		t.Errorf("got title %q, want the url", a.Title)
	}
	if a.Snippet != body {
		t.Errorf("snippet should be the leading text, got %q", a.Snippet)
	}
	if a.Favicon != "https://x.test/favicon.ico" || a.SiteName != "x.test" {
		t.Errorf("display metadata not carried through: %+v", a)
	}
	if a.Length != 13 { // golang concurrency patterns + 10x filler
		t.Errorf("got length %d, want 13", a.Length)
	}

	if docs["b"].Snippet != "Stored snippet wins." {
		t.Errorf("got snippet %q, want the stored one", docs["b"].Snippet)
	}
}

func TestBuildSnippetTruncation(t *testing.T) {
	m := store.NewMemory()
	text := strings.Repeat("é", 400) // runes, not bytes
	seedPages(t, m, store.Page{ID: "a", URL: "https://x.test/a", Text: text + " golang"})

	b := New(m, m, m, testConfig())
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	docs, err := m.GetDocuments(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	snippet := docs["a"].Snippet
	if got := len([]rune(snippet)); got != 300 {
		t.Errorf("got snippet of %d runes, want 300", got)
	}
}

func TestBuildSkipsShortAndEmptyDocs(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m,
		store.Page{ID: "a", URL: "https://x.test/a", Text: strings.Repeat("x", 49)},
		store.Page{ID: "b", URL: "https://x.test/b", Text: strings.Repeat("x", 50)},
		// Long enough but nothing survives tokenization.
		store.Page{ID: "c", URL: "https://x.test/c", Text: strings.Repeat("of to in at by ", 10)},
	)

	b := New(m, m, m, testConfig())
	stats, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.DocsIndexed != 1 {
		t.Errorf("got %d indexed, want 1", stats.DocsIndexed)
	}
	if stats.DocsSkipped != 2 {
		t.Errorf("got %d skipped, want 2", stats.DocsSkipped)
	}
	if m.DocumentCount() != 1 {
		t.Errorf("got %d metadata records, want 1", m.DocumentCount())
	}
}

func TestBuildFallsBackToSnippetText(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m, store.Page{
		ID:      "a",
		URL:     "https://x.test/a",
		Snippet: longText("snippetterm"),
		Text:    "",
	})

	b := New(m, m, m, testConfig())
	stats, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.DocsIndexed != 1 {
		t.Fatalf("got %d indexed, want 1", stats.DocsIndexed)
	}

	e := findTerm(t, m, "snippetterm")
	if len(e.Postings) != 1 || e.Postings[0].DocID != "a" {
		t.Errorf("unexpected postings %+v", e.Postings)
	}
}

func TestBuildShortDocMetadataOption(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m,
		store.Page{ID: "a", URL: "https://x.test/a", Title: "Tiny", Text: "too short"},
		store.Page{ID: "b", URL: "https://x.test/b", Text: longText("golang")},
	)

	cfg := testConfig()
	cfg.ShortDocMetadata = true
	b := New(m, m, m, cfg)
	stats, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The short document is kept findable but stays out of the index: no
	// postings, no contribution to N.
	if stats.DocsIndexed != 1 {
		t.Errorf("got %d indexed, want 1", stats.DocsIndexed)
	}
	if m.DocumentCount() != 2 {
		t.Errorf("got %d metadata records, want 2", m.DocumentCount())
	}
	docs, _ := m.GetDocuments(context.Background(), []string{"a"})
	if docs["a"].Length != 0 {
		t.Errorf("got length %d for short doc, want 0", docs["a"].Length)
	}

	// N=1, df=1 for "golang": idf = ln(1/2), unaffected by the short doc.
	g := findTerm(t, m, "golang")
	if want := math.Log(1.0 / 2.0); math.Abs(g.IDF-want) > 1e-12 {
		t.Errorf("got idf %v, want %v", g.IDF, want)
	}
}

func TestBuildEmptyCorpusAborts(t *testing.T) {
	tests := []struct {
		name  string
		pages []store.Page
	}{
		{"no pages", nil},
		{"only short pages", []store.Page{
			{ID: "a", URL: "https://x.test/a", Text: "short"},
			{ID: "b", URL: "https://x.test/b", Text: "also short"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := store.NewMemory()
			seedPages(t, m, tt.pages...)

			// Previous generation that must survive the aborted build.
			prev := []store.Document{{ID: "old", URL: "https://x.test/old"}}
			if err := m.ReplaceDocuments(context.Background(), prev); err != nil {
				t.Fatalf("seeding previous docs: %v", err)
			}

			b := New(m, m, m, testConfig())
			_, err := b.Build(context.Background())
			if !errors.Is(err, apperrors.ErrEmptyCorpus) {
				t.Fatalf("got err %v, want ErrEmptyCorpus", err)
			}
			if m.DocumentCount() != 1 {
				t.Error("aborted build must not touch the previous generation")
			}
		})
	}
}

type failingSource struct{ err error }

func (f failingSource) ListPages(ctx context.Context) ([]store.Page, error) {
	return nil, f.err
}

// captureStore records published generations and can fail on demand.
type captureStore struct {
	docs    [][]store.Document
	terms   [][]store.TermEntry
	docErr  error
	termErr error
}

func (c *captureStore) ReplaceDocuments(ctx context.Context, docs []store.Document) error {
	if c.docErr != nil {
		return c.docErr
	}
	c.docs = append(c.docs, docs)
	return nil
}

func (c *captureStore) GetDocuments(ctx context.Context, ids []string) (map[string]store.Document, error) {
	return nil, nil
}

func (c *captureStore) ReplaceTerms(ctx context.Context, entries []store.TermEntry) error {
	if c.termErr != nil {
		return c.termErr
	}
	c.terms = append(c.terms, entries)
	return nil
}

func (c *captureStore) FindTerms(ctx context.Context, terms []string) ([]store.TermEntry, error) {
	return nil, nil
}

func TestBuildCorpusScanFailureWritesNothing(t *testing.T) {
	cs := &captureStore{}
	b := New(failingSource{err: errors.New("connection reset")}, cs, cs, testConfig())

	_, err := b.Build(context.Background())
	if !errors.Is(err, apperrors.ErrCorpusScan) {
		t.Fatalf("got err %v, want ErrCorpusScan", err)
	}
	if len(cs.docs) != 0 || len(cs.terms) != 0 {
		t.Error("failed scan must not publish anything")
	}
}

func TestBuildDocumentPublishFailureSkipsTerms(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m, store.Page{ID: "a", URL: "https://x.test/a", Text: longText("golang")})

	cs := &captureStore{docErr: errors.New("disk full")}
	b := New(m, cs, cs, testConfig())

	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("expected publish error")
	}
	if len(cs.terms) != 0 {
		t.Error("terms must not be published when documents failed")
	}
}

func TestBuildDeterministic(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m,
		store.Page{ID: "a", URL: "https://x.test/a", Text: longText("go systems rust")},
		store.Page{ID: "b", URL: "https://x.test/b", Text: longText("rust rust memory safety")},
		store.Page{ID: "c", URL: "https://x.test/c", Text: longText("systems programming memory")},
	)

	runBuild := func(parallelism int) ([]store.Document, []store.TermEntry) {
		cs := &captureStore{}
		cfg := testConfig()
		cfg.Parallelism = parallelism
		b := New(m, cs, cs, cfg)
		if _, err := b.Build(context.Background()); err != nil {
			t.Fatalf("Build(parallelism=%d): %v", parallelism, err)
		}
		return cs.docs[0], cs.terms[0]
	}

	docs1, terms1 := runBuild(1)
	docs2, terms2 := runBuild(1)
	docs4, terms4 := runBuild(4)

	if !reflect.DeepEqual(docs1, docs2) || !reflect.DeepEqual(terms1, terms2) {
		t.Error("two sequential builds over the same corpus differ")
	}
	if !reflect.DeepEqual(docs1, docs4) || !reflect.DeepEqual(terms1, terms4) {
		t.Error("parallel build differs from sequential build")
	}

	// Terms come out sorted.
	for i := 1; i < len(terms1); i++ {
		if terms1[i-1].Term >= terms1[i].Term {
			t.Fatalf("terms not sorted: %q before %q", terms1[i-1].Term, terms1[i].Term)
		}
	}
}

func TestBuildCancelledContext(t *testing.T) {
	m := store.NewMemory()
	seedPages(t, m, store.Page{ID: "a", URL: "https://x.test/a", Text: longText("golang")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(m, m, m, testConfig())
	if _, err := b.Build(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v, want context.Canceled", err)
	}
}
