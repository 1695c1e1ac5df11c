package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Source is anything a MemoryStore snapshot can be copied from.
type Source interface {
	ForEachDocument(ctx context.Context, fn func(Document) error) error
	ForEachWord(ctx context.Context, fn func(Word) error) error
	ForEachOccurrence(ctx context.Context, fn func(docID, wordID, count int) error) error
}

var _ Source = (*SQLiteStore)(nil)

// MemoryStore implements IndexStore over an in-memory snapshot. Each word
// has a roaring bitmap posting list of the documents it occurs in, plus
// an occurrence count per (word, document).
type MemoryStore struct {
	mu sync.RWMutex

	docs     map[int]Document
	words    []Word
	names    map[int]string
	byName   map[string][]int
	byFolded map[string]int
	postings map[int]*roaring.Bitmap
	counts   map[occKey]int
	total    int
	closed   bool
}

type occKey struct {
	word int
	doc  uint32
}

var _ IndexStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[int]Document),
		names:    make(map[int]string),
		byName:   make(map[string][]int),
		byFolded: make(map[string]int),
		postings: make(map[int]*roaring.Bitmap),
		counts:   make(map[occKey]int),
	}
}

// LoadMemoryStore copies a full snapshot of src.
func LoadMemoryStore(ctx context.Context, src Source) (*MemoryStore, error) {
	start := time.Now()
	m := NewMemoryStore()

	if err := src.ForEachDocument(ctx, func(d Document) error {
		return m.AddDocument(d)
	}); err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	if err := src.ForEachWord(ctx, func(w Word) error {
		m.AddWord(w)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load words: %w", err)
	}

	if err := src.ForEachOccurrence(ctx, func(docID, wordID, n int) error {
		return m.AddOccurrences(docID, wordID, n)
	}); err != nil {
		return nil, fmt.Errorf("failed to load occurrences: %w", err)
	}

	slog.Info("memory_store_loaded",
		slog.Int("documents", len(m.docs)),
		slog.Int("words", len(m.words)),
		slog.Int("occurrences", m.total),
		slog.Duration("duration", time.Since(start)))

	return m, nil
}

// AddDocument adds or replaces a document.
func (m *MemoryStore) AddDocument(d Document) error {
	if !validDocID(d.ID) {
		return fmt.Errorf("document id %d out of range", d.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d
	return nil
}

// AddWord adds a vocabulary entry.
func (m *MemoryStore) AddWord(w Word) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.names[w.ID]; exists {
		return
	}
	m.words = append(m.words, w)
	m.names[w.ID] = w.Name
	m.byName[w.Name] = append(m.byName[w.Name], w.ID)

	folded := strings.ToLower(w.Name)
	if cur, ok := m.byFolded[folded]; !ok || w.ID < cur {
		m.byFolded[folded] = w.ID
	}
}

// AddOccurrences records n occurrences of wordID in docID.
func (m *MemoryStore) AddOccurrences(docID, wordID, n int) error {
	if !validDocID(docID) {
		return fmt.Errorf("document id %d out of range", docID)
	}
	if n <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bm, ok := m.postings[wordID]
	if !ok {
		bm = roaring.New()
		m.postings[wordID] = bm
	}
	bm.Add(uint32(docID))
	m.counts[occKey{word: wordID, doc: uint32(docID)}] += n
	m.total += n
	return nil
}

// validDocID reports whether id fits a roaring bitmap element.
func validDocID(id int) bool {
	return id >= 0 && uint64(id) <= math.MaxUint32
}

func (m *MemoryStore) rlock() error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

// ResolveWords implements IndexStore. A case-insensitive term matching
// several spellings resolves to the lowest id.
func (m *MemoryStore) ResolveWords(ctx context.Context, terms []string, caseSensitive bool) ([]int, []string, error) {
	if err := m.rlock(); err != nil {
		return nil, nil, err
	}
	defer m.mu.RUnlock()

	ids := make([]int, 0, len(terms))
	var ignored []string
	for _, term := range terms {
		if caseSensitive {
			if matches := m.byName[term]; len(matches) > 0 {
				ids = append(ids, slices.Min(matches))
				continue
			}
		} else if id, ok := m.byFolded[strings.ToLower(term)]; ok {
			ids = append(ids, id)
			continue
		}
		ignored = append(ignored, term)
	}
	return ids, ignored, nil
}

// DocumentsContaining implements IndexStore.
func (m *MemoryStore) DocumentsContaining(ctx context.Context, wordIDs []int) ([]DocCount, error) {
	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	ids := dedupeInts(wordIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	counts := make(map[int]int)
	for _, id := range ids {
		bm, ok := m.postings[id]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			doc := it.Next()
			counts[int(doc)] += m.counts[occKey{word: id, doc: doc}]
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return rankCounts(counts), nil
}

// DocumentDetails implements IndexStore.
func (m *MemoryStore) DocumentDetails(ctx context.Context, docIDs []int) ([]Document, error) {
	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	docs := make([]Document, 0, len(docIDs))
	for _, id := range dedupeInts(docIDs) {
		if d, ok := m.docs[id]; ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// MissingWords implements IndexStore.
func (m *MemoryStore) MissingWords(ctx context.Context, docID int, wordIDs []int) ([]int, error) {
	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	present := make(map[int]struct{}, len(wordIDs))
	if validDocID(docID) {
		for _, id := range wordIDs {
			if bm, ok := m.postings[id]; ok && bm.Contains(uint32(docID)) {
				present[id] = struct{}{}
			}
		}
	}
	return differenceInOrder(wordIDs, present), nil
}

// WordNames implements IndexStore.
func (m *MemoryStore) WordNames(ctx context.Context, wordIDs []int) ([]string, error) {
	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	out := make([]string, 0, len(wordIDs))
	for _, id := range wordIDs {
		if name, ok := m.names[id]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// WordsMatchingPattern implements IndexStore with an anchored regexp scan
// of the vocabulary. Results are ordered by name.
func (m *MemoryStore) WordsMatchingPattern(ctx context.Context, pattern string, caseSensitive bool) ([]string, error) {
	if strings.TrimSpace(pattern) == "" {
		return []string{}, nil
	}

	re, err := CompilePattern(pattern, caseSensitive)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	var matched []Word
	for _, w := range m.words {
		if re.MatchString(w.Name) {
			matched = append(matched, w)
		}
	}
	slices.SortFunc(matched, func(a, b Word) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	words := make([]string, len(matched))
	for i, w := range matched {
		words[i] = w.Name
	}
	return words, nil
}

// DocumentsForWords implements IndexStore. Words are matched by exact name.
func (m *MemoryStore) DocumentsForWords(ctx context.Context, words []string) (map[int][]string, error) {
	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	result := make(map[int][]string)
	seen := make(map[string]struct{}, len(words))
	for _, name := range words {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		docs := roaring.New()
		for _, id := range m.byName[name] {
			if bm, ok := m.postings[id]; ok {
				docs.Or(bm)
			}
		}
		it := docs.Iterator()
		for it.HasNext() {
			d := int(it.Next())
			result[d] = append(result[d], name)
		}
	}
	return result, nil
}

// Stats implements IndexStore.
func (m *MemoryStore) Stats(ctx context.Context, topWords int) (*Stats, error) {
	if err := m.rlock(); err != nil {
		return nil, err
	}
	defer m.mu.RUnlock()

	st := &Stats{
		Documents:   len(m.docs),
		Words:       len(m.words),
		Occurrences: m.total,
		TopWords:    []WordCount{},
	}
	if topWords <= 0 {
		return st, nil
	}

	perWord := make(map[int]int, len(m.postings))
	for k, n := range m.counts {
		perWord[k.word] += n
	}

	all := make([]WordCount, 0, len(perWord))
	for id, n := range perWord {
		if name, ok := m.names[id]; ok {
			all = append(all, WordCount{Word: name, Count: n})
		}
	}
	slices.SortFunc(all, func(a, b WordCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Word, b.Word)
	})
	if len(all) > topWords {
		all = all[:topWords]
	}
	st.TopWords = all
	return st, nil
}

// Close implements IndexStore. It is idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
