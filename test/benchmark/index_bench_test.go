// Package benchmark contains Go benchmarks for the tokenizer, the index
// builder, and the query path, measuring throughput and allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/webseek/webseek/internal/indexer"
	"github.com/webseek/webseek/internal/store"
	"github.com/webseek/webseek/pkg/config"
)

var benchVocab = []string{
	"golang", "server", "index", "ranking", "crawler",
	"queue", "cache", "latency", "storage", "protocol",
}

// genPages produces n crawled pages with overlapping vocabulary so that
// single-term queries match a large share of the corpus.
func genPages(n int) []store.Page {
	pages := make([]store.Page, n)
	for i := 0; i < n; i++ {
		w1 := benchVocab[i%len(benchVocab)]
		w2 := benchVocab[(i+3)%len(benchVocab)]
		w3 := benchVocab[(i+7)%len(benchVocab)]
		pages[i] = store.Page{
			ID:    fmt.Sprintf("page-%d", i),
			URL:   fmt.Sprintf("https://example.com/docs/%d", i),
			Title: fmt.Sprintf("Notes on %s and %s", w1, w2),
			Text: fmt.Sprintf(
				"The %s component talks to the %s layer over a binary %s. "+
					"Operators tune the %s before every release and watch the %s closely. "+
					"A slow %s usually points at the %s tier rather than the network.",
				w1, w2, w3, w1, w2, w3, w1),
		}
	}
	return pages
}

func benchIndexerConfig() config.IndexerConfig {
	return config.IndexerConfig{
		MinDocLength:  50,
		SnippetLength: 300,
		BatchSize:     1000,
	}
}

// BenchmarkBuild measures a full index rebuild at various corpus sizes.
func BenchmarkBuild(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, numDocs := range sizes {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			ctx := context.Background()
			m := store.NewMemory()
			for _, p := range genPages(numDocs) {
				if err := m.UpsertPage(ctx, p); err != nil {
					b.Fatal(err)
				}
			}
			builder := indexer.New(m, m, m, benchIndexerConfig())

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				stats, err := builder.Build(ctx)
				if err != nil {
					b.Fatal(err)
				}
				_ = stats
			}
		})
	}
}

// BenchmarkBuildParallelism measures rebuild throughput over a fixed corpus
// with different worker counts. workers_max uses one worker per CPU.
func BenchmarkBuildParallelism(b *testing.B) {
	workers := []struct {
		name  string
		count int
	}{
		{"workers_1", 1},
		{"workers_4", 4},
		{"workers_max", 0},
	}

	ctx := context.Background()
	m := store.NewMemory()
	for _, p := range genPages(2000) {
		if err := m.UpsertPage(ctx, p); err != nil {
			b.Fatal(err)
		}
	}

	for _, w := range workers {
		b.Run(w.name, func(b *testing.B) {
			cfg := benchIndexerConfig()
			cfg.Parallelism = w.count
			builder := indexer.New(m, m, m, cfg)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := builder.Build(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkBuildShortDocs measures a rebuild where half the corpus falls below
// the content threshold and exercises the skip path.
func BenchmarkBuildShortDocs(b *testing.B) {
	ctx := context.Background()
	m := store.NewMemory()
	pages := genPages(2000)
	for i := range pages {
		if i%2 == 1 {
			pages[i].Text = "too short to index"
		}
		if err := m.UpsertPage(ctx, pages[i]); err != nil {
			b.Fatal(err)
		}
	}
	builder := indexer.New(m, m, m, benchIndexerConfig())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stats, err := builder.Build(ctx)
		if err != nil {
			b.Fatal(err)
		}
		_ = stats
	}
}
