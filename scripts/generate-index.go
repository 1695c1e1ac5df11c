//go:build ignore

// Package main generates synthetic shard databases for local clusters and benchmarks.
// Usage: go run scripts/generate-index.go -shards 3 -docs 500 -output testdata/cluster
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/shardsearch/internal/store"
)

var (
	numShards = flag.Int("shards", 2, "Number of shard databases to generate")
	numDocs   = flag.Int("docs", 200, "Documents per shard")
	numWords  = flag.Int("words", 2000, "Vocabulary size per shard")
	docLength = flag.Int("length", 150, "Word occurrences per document")
	outputDir = flag.String("output", "testdata/cluster", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var syllables = []string{
	"ka", "lo", "mi", "ra", "te", "su", "no", "vi", "de", "po",
	"an", "el", "or", "un", "is", "ba", "ce", "fu", "ga", "hi",
}

// word builds a pronounceable vocabulary entry from i.
func word(i int) string {
	w := ""
	for n := i + 1; n > 0; n /= len(syllables) {
		w += syllables[n%len(syllables)]
	}
	return w
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for s := 0; s < *numShards; s++ {
		path := filepath.Join(*outputDir, fmt.Sprintf("shard-%d.db", s+1))
		if err := generate(ctx, rng, path, s); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s (%d documents)\n", path, *numDocs)
	}
}

func generate(ctx context.Context, rng *rand.Rand, path string, shard int) error {
	_ = os.Remove(path)
	s, err := store.CreateSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.Schema(ctx); err != nil {
		return err
	}
	for i := 0; i < *numWords; i++ {
		if err := s.InsertWord(ctx, store.Word{ID: i + 1, Name: word(i)}); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for d := 0; d < *numDocs; d++ {
		id := shard**numDocs + d + 1
		doc := store.Document{
			ID:           id,
			URL:          fmt.Sprintf("/corpus/%d/%d.txt", shard+1, id),
			IndexTime:    now.Format(time.DateTime),
			CreationTime: now.Add(-time.Duration(rng.Intn(365*24)) * time.Hour).Format(time.DateTime),
		}
		if err := s.InsertDocument(ctx, doc); err != nil {
			return err
		}
		// Skew toward low ids so some words are far more frequent than others.
		for o := 0; o < *docLength; o++ {
			w := int(rng.ExpFloat64()*float64(*numWords)/8)%*numWords + 1
			if err := s.InsertOccurrence(ctx, id, w); err != nil {
				return err
			}
		}
	}
	return nil
}
