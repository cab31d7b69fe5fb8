package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store used by tests and local experiments. All
// methods are safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	pages map[string]Page // keyed by URL, matching upsert semantics
	docs  map[string]Document
	terms map[string]TermEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pages: make(map[string]Page),
		docs:  make(map[string]Document),
		terms: make(map[string]TermEntry),
	}
}

func (m *Memory) ListPages(ctx context.Context) ([]Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pages := make([]Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages, nil
}

func (m *Memory) UpsertPage(ctx context.Context, p Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[p.URL] = p
	return nil
}

func (m *Memory) PageExists(ctx context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pages[url]
	return ok, nil
}

func (m *Memory) ReplaceDocuments(ctx context.Context, docs []Document) error {
	next := make(map[string]Document, len(docs))
	for _, d := range docs {
		next[d.ID] = d
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = next
	return nil
}

func (m *Memory) GetDocuments(ctx context.Context, ids []string) (map[string]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string]Document, len(ids))
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			found[id] = d
		}
	}
	return found, nil
}

func (m *Memory) ReplaceTerms(ctx context.Context, entries []TermEntry) error {
	next := make(map[string]TermEntry, len(entries))
	for _, e := range entries {
		next[e.Term] = e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = next
	return nil
}

func (m *Memory) FindTerms(ctx context.Context, terms []string) ([]TermEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []TermEntry
	for _, t := range terms {
		if e, ok := m.terms[t]; ok {
			found = append(found, e)
		}
	}
	return found, nil
}

// DocumentCount reports how many documents are currently stored. Test helper.
func (m *Memory) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// TermCount reports how many terms are currently stored. Test helper.
func (m *Memory) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terms)
}
