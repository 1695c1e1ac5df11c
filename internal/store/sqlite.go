package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
)

// maxParams bounds the number of bound parameters per IN (...) clause.
const maxParams = 500

// SQLiteStore implements IndexStore over the indexer's SQLite database:
//
//	document(id, url, idxTime, creationTime)
//	word(id, name)
//	Occ(docId, wordId)   -- one row per occurrence
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ IndexStore = (*SQLiteStore)(nil)

type sqliteOptions struct {
	readOnly bool
	maxConns int
}

// SQLiteOption configures OpenSQLite.
type SQLiteOption func(*sqliteOptions)

// WithReadOnly opens the database with query_only set. Shards serving an
// externally built index use it.
func WithReadOnly() SQLiteOption {
	return func(o *sqliteOptions) { o.readOnly = true }
}

// WithMaxConns sets the size of the read connection pool (default 8).
func WithMaxConns(n int) SQLiteOption {
	return func(o *sqliteOptions) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// OpenSQLite opens an existing index at path. An empty path opens a
// private in-memory database on a single connection, used by tests
// together with Schema and the Insert helpers.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	o := sqliteOptions{maxConns: 8}
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		return openSQLite(ctx, ":memory:", "", 1)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, serrors.New(serrors.ErrCodeStoreNotFound,
			fmt.Sprintf("index database not found: %s", path), err)
	}

	s, err := openSQLite(ctx, fileDSN(path, o.readOnly), path, o.maxConns)
	if err != nil {
		return nil, err
	}

	if err := s.validateSchema(ctx); err != nil {
		_ = s.db.Close()
		slog.Warn("sqlite_store_invalid",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, serrors.New(serrors.ErrCodeCorruptIndex,
			fmt.Sprintf("index database %s is not a valid index", path), err)
	}

	slog.Info("sqlite_store_opened",
		slog.String("path", path),
		slog.Bool("read_only", o.readOnly),
		slog.Int("max_conns", o.maxConns))
	return s, nil
}

// CreateSQLite creates (or opens) a writable index file at path and
// ensures the schema exists. Used to build fixtures.
func CreateSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s, err := openSQLite(ctx, fileDSN(path, false), path, 1)
	if err != nil {
		return nil, err
	}
	if err := s.Schema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func fileDSN(path string, readOnly bool) string {
	pragmas := []string{"busy_timeout(5000)"}
	if readOnly {
		pragmas = append(pragmas, "query_only(1)")
	} else {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}

	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

func openSQLite(ctx context.Context, dsn, path string, maxConns int) (*SQLiteStore, error) {
	// IMPORTANT: modernc.org/sqlite driver (pure Go, no CGO)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Readers do not block each other; the pool lets queries run in parallel.
	// Every connection to :memory: is a distinct database, so it gets one.
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// validateSchema checks that the three index tables exist.
func (s *SQLiteStore) validateSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT LOWER(name) FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range []string{"document", "word", "occ"} {
		if !found[table] {
			return fmt.Errorf("table %q missing", table)
		}
	}
	return nil
}

// Schema creates the index tables if they do not exist.
func (s *SQLiteStore) Schema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS document (
		id           INTEGER PRIMARY KEY,
		url          TEXT NOT NULL,
		idxTime      TEXT,
		creationTime TEXT
	);

	CREATE TABLE IF NOT EXISTS word (
		id   INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS Occ (
		docId  INTEGER NOT NULL REFERENCES document(id),
		wordId INTEGER NOT NULL REFERENCES word(id)
	);

	CREATE INDEX IF NOT EXISTS occ_word_doc ON Occ(wordId, docId);
	CREATE INDEX IF NOT EXISTS occ_doc ON Occ(docId);
	`

	return s.exec(ctx, schema)
}

// InsertDocument adds a document row.
func (s *SQLiteStore) InsertDocument(ctx context.Context, d Document) error {
	return s.exec(ctx,
		`INSERT INTO document(id, url, idxTime, creationTime) VALUES (?, ?, ?, ?)`,
		d.ID, d.URL, d.IndexTime, d.CreationTime)
}

// InsertWord adds a vocabulary row.
func (s *SQLiteStore) InsertWord(ctx context.Context, w Word) error {
	return s.exec(ctx, `INSERT INTO word(id, name) VALUES (?, ?)`, w.ID, w.Name)
}

// InsertOccurrence adds one occurrence of wordID in docID.
func (s *SQLiteStore) InsertOccurrence(ctx context.Context, docID, wordID int) error {
	return s.exec(ctx, `INSERT INTO Occ(docId, wordId) VALUES (?, ?)`, docID, wordID)
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// ResolveWords implements IndexStore. A case-insensitive term matching
// several spellings resolves to the lowest id.
func (s *SQLiteStore) ResolveWords(ctx context.Context, terms []string, caseSensitive bool) ([]int, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, ErrClosed
	}

	query := `SELECT id FROM word WHERE name = ? ORDER BY id LIMIT 1`
	if !caseSensitive {
		query = `SELECT id FROM word WHERE LOWER(name) = LOWER(?) ORDER BY id LIMIT 1`
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare word lookup: %w", err)
	}
	defer stmt.Close()

	ids := make([]int, 0, len(terms))
	var ignored []string
	for _, term := range terms {
		var id int
		err := stmt.QueryRowContext(ctx, term).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			ignored = append(ignored, term)
		case err != nil:
			return nil, nil, fmt.Errorf("failed to resolve word %q: %w", term, err)
		default:
			ids = append(ids, id)
		}
	}

	return ids, ignored, nil
}

// DocumentsContaining implements IndexStore.
func (s *SQLiteStore) DocumentsContaining(ctx context.Context, wordIDs []int) ([]DocCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	ids := dedupeInts(wordIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	counts := make(map[int]int)
	for chunk := range slices.Chunk(ids, maxParams) {
		query := `SELECT docId, COUNT(*) FROM Occ WHERE wordId IN (` + placeholders(len(chunk)) + `) GROUP BY docId`
		rows, err := s.db.QueryContext(ctx, query, intArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query occurrences: %w", err)
		}
		for rows.Next() {
			var docID, n int
			if err := rows.Scan(&docID, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan occurrence: %w", err)
			}
			counts[docID] += n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read occurrences: %w", err)
		}
	}

	return rankCounts(counts), nil
}

// rankCounts orders by count descending then docID ascending.
func rankCounts(counts map[int]int) []DocCount {
	out := make([]DocCount, 0, len(counts))
	for docID, n := range counts {
		out = append(out, DocCount{DocID: docID, Count: n})
	}
	slices.SortFunc(out, func(a, b DocCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
	return out
}

// DocumentDetails implements IndexStore. Documents come back in docIDs order.
func (s *SQLiteStore) DocumentDetails(ctx context.Context, docIDs []int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	byID := make(map[int]Document, len(docIDs))
	for chunk := range slices.Chunk(dedupeInts(docIDs), maxParams) {
		query := `SELECT id, url, idxTime, creationTime FROM document WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, intArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query documents: %w", err)
		}
		for rows.Next() {
			var (
				d                Document
				idxTime, created sql.NullString
			)
			if err := rows.Scan(&d.ID, &d.URL, &idxTime, &created); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan document: %w", err)
			}
			d.IndexTime = idxTime.String
			d.CreationTime = created.String
			byID[d.ID] = d
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read documents: %w", err)
		}
	}

	docs := make([]Document, 0, len(byID))
	for _, id := range docIDs {
		if d, ok := byID[id]; ok {
			docs = append(docs, d)
			delete(byID, id)
		}
	}
	return docs, nil
}

// MissingWords implements IndexStore.
func (s *SQLiteStore) MissingWords(ctx context.Context, docID int, wordIDs []int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(wordIDs) == 0 {
		return []int{}, nil
	}

	present := make(map[int]struct{})
	for chunk := range slices.Chunk(dedupeInts(wordIDs), maxParams) {
		query := `SELECT DISTINCT wordId FROM Occ WHERE docId = ? AND wordId IN (` + placeholders(len(chunk)) + `)`
		args := append([]any{docID}, intArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query document words: %w", err)
		}
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan word id: %w", err)
			}
			present[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read document words: %w", err)
		}
	}

	return differenceInOrder(wordIDs, present), nil
}

// WordNames implements IndexStore.
func (s *SQLiteStore) WordNames(ctx context.Context, wordIDs []int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	names := make(map[int]string, len(wordIDs))
	for chunk := range slices.Chunk(dedupeInts(wordIDs), maxParams) {
		query := `SELECT id, name FROM word WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, intArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query words: %w", err)
		}
		for rows.Next() {
			var w Word
			if err := rows.Scan(&w.ID, &w.Name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan word: %w", err)
			}
			names[w.ID] = w.Name
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read words: %w", err)
		}
	}

	out := make([]string, 0, len(wordIDs))
	for _, id := range wordIDs {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// WordsMatchingPattern implements IndexStore using GLOB for
// case-sensitive and LIKE for case-insensitive matching.
// SQLite's LIKE folds ASCII letters only.
func (s *SQLiteStore) WordsMatchingPattern(ctx context.Context, pattern string, caseSensitive bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(pattern) == "" {
		return []string{}, nil
	}

	query := `SELECT name FROM word WHERE name GLOB ? ORDER BY name, id`
	arg := ToGlob(pattern)
	if !caseSensitive {
		query = `SELECT name FROM word WHERE name LIKE ? ESCAPE '\' ORDER BY name, id`
		arg = ToLike(pattern)
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern %q: %w", pattern, err)
	}
	defer rows.Close()

	words := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan word: %w", err)
		}
		words = append(words, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pattern matches: %w", err)
	}
	return words, nil
}

// DocumentsForWords implements IndexStore. Words are matched by exact name.
func (s *SQLiteStore) DocumentsForWords(ctx context.Context, words []string) (map[int][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	result := make(map[int][]string)
	seen := make(map[int]map[string]struct{})

	for chunk := range slices.Chunk(words, maxParams) {
		query := `SELECT DISTINCT o.docId, w.name FROM Occ o JOIN word w ON w.id = o.wordId
			WHERE w.name IN (` + placeholders(len(chunk)) + `) ORDER BY o.docId, w.name`
		args := make([]any, len(chunk))
		for i, w := range chunk {
			args[i] = w
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query word documents: %w", err)
		}
		for rows.Next() {
			var (
				docID int
				name  string
			)
			if err := rows.Scan(&docID, &name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan word document: %w", err)
			}
			if seen[docID] == nil {
				seen[docID] = make(map[string]struct{})
			}
			if _, dup := seen[docID][name]; dup {
				continue
			}
			seen[docID][name] = struct{}{}
			result[docID] = append(result[docID], name)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read word documents: %w", err)
		}
	}

	return result, nil
}

// Stats implements IndexStore.
func (s *SQLiteStore) Stats(ctx context.Context, topWords int) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	st := &Stats{TopWords: []WordCount{}}
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM document`, &st.Documents},
		{`SELECT COUNT(*) FROM word`, &st.Words},
		{`SELECT COUNT(*) FROM Occ`, &st.Occurrences},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	if topWords <= 0 {
		return st, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT w.name, COUNT(*) AS c FROM Occ o JOIN word w ON w.id = o.wordId
		GROUP BY o.wordId ORDER BY c DESC, w.name ASC LIMIT ?`, topWords)
	if err != nil {
		return nil, fmt.Errorf("failed to query top words: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wc WordCount
		if err := rows.Scan(&wc.Word, &wc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top word: %w", err)
		}
		st.TopWords = append(st.TopWords, wc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top words: %w", err)
	}
	return st, nil
}

// ForEachDocument streams every document row.
func (s *SQLiteStore) ForEachDocument(ctx context.Context, fn func(Document) error) error {
	return s.scan(ctx, `SELECT id, url, idxTime, creationTime FROM document ORDER BY id`, func(rows *sql.Rows) error {
		var (
			d                Document
			idxTime, created sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.URL, &idxTime, &created); err != nil {
			return err
		}
		d.IndexTime = idxTime.String
		d.CreationTime = created.String
		return fn(d)
	})
}

// ForEachWord streams every vocabulary row.
func (s *SQLiteStore) ForEachWord(ctx context.Context, fn func(Word) error) error {
	return s.scan(ctx, `SELECT id, name FROM word ORDER BY id`, func(rows *sql.Rows) error {
		var w Word
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return err
		}
		return fn(w)
	})
}

// ForEachOccurrence streams (docID, wordID, count) triples.
func (s *SQLiteStore) ForEachOccurrence(ctx context.Context, fn func(docID, wordID, count int) error) error {
	return s.scan(ctx, `SELECT docId, wordId, COUNT(*) FROM Occ GROUP BY docId, wordId`, func(rows *sql.Rows) error {
		var docID, wordID, n int
		if err := rows.Scan(&docID, &wordID, &n); err != nil {
			return err
		}
		return fn(docID, wordID, n)
	})
}

func (s *SQLiteStore) scan(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to scan index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Path returns the database path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close implements IndexStore. It is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func intArgs(ids []int) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
