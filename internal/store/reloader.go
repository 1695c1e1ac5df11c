package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader builds a fresh IndexStore, typically from the database file.
type Loader func(ctx context.Context) (IndexStore, error)

// MemorySnapshotLoader opens the SQLite index at path read-only, copies it
// into a MemoryStore and closes the file again.
func MemorySnapshotLoader(path string) Loader {
	return func(ctx context.Context) (IndexStore, error) {
		src, err := OpenSQLite(ctx, path, WithReadOnly())
		if err != nil {
			return nil, err
		}
		defer func() { _ = src.Close() }()

		return LoadMemoryStore(ctx, src)
	}
}

// snapshot is one generation of the served index. It is closed once it
// has been replaced and the last query using it has finished.
type snapshot struct {
	store   IndexStore
	gen     uint64
	refs    atomic.Int64
	retired atomic.Bool
	once    sync.Once
}

func (s *snapshot) release() {
	if s.refs.Add(-1) == 0 && s.retired.Load() {
		s.close()
	}
}

func (s *snapshot) retire() {
	s.retired.Store(true)
	if s.refs.Load() == 0 {
		s.close()
	}
}

func (s *snapshot) close() {
	s.once.Do(func() { _ = s.store.Close() })
}

// Reloader serves an IndexStore and swaps in a new one whenever the
// database file changes on disk. A single method call always runs on one
// snapshot; callers that make several calls per query use Pin to keep
// them all on the snapshot the query started with.
type Reloader struct {
	path     string
	load     Loader
	debounce time.Duration

	current atomic.Pointer[snapshot]
	gen     atomic.Uint64
	closed  atomic.Bool

	mu      sync.Mutex
	onSwap  []func()
	reloads atomic.Int64
}

var (
	_ IndexStore  = (*Reloader)(nil)
	_ Snapshotter = (*Reloader)(nil)
)

// NewReloader loads the initial snapshot. Call Watch to follow changes.
func NewReloader(ctx context.Context, path string, load Loader, debounce time.Duration) (*Reloader, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}

	r := &Reloader{path: abs, load: load, debounce: debounce}

	initial, err := load(ctx)
	if err != nil {
		return nil, err
	}
	r.current.Store(&snapshot{store: initial, gen: r.gen.Add(1)})
	return r, nil
}

// OnSwap registers fn to run after every successful reload.
func (r *Reloader) OnSwap(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSwap = append(r.onSwap, fn)
}

// Reloads returns the number of successful reloads.
func (r *Reloader) Reloads() int64 {
	return r.reloads.Load()
}

// Reload builds a new snapshot and swaps it in. On error the current
// snapshot stays in service.
func (r *Reloader) Reload(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	next, err := r.load(ctx)
	if err != nil {
		slog.Warn("index_reload_failed",
			slog.String("path", r.path),
			slog.String("error", err.Error()))
		return err
	}

	old := r.current.Swap(&snapshot{store: next, gen: r.gen.Add(1)})
	if old != nil {
		old.retire()
	}
	r.reloads.Add(1)

	r.mu.Lock()
	hooks := append([]func(){}, r.onSwap...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	slog.Info("index_reloaded",
		slog.String("path", r.path),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Watch follows the database file until ctx is done. Writes to the file
// or its WAL are debounced into a single reload.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// Watch the directory: indexers often replace the file by rename.
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !r.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := r.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Debug("index_reload_skipped", slog.String("error", err.Error()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("index_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (r *Reloader) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == r.path || name == r.path+"-wal"
}

func (r *Reloader) acquire() (*snapshot, error) {
	for {
		if r.closed.Load() {
			return nil, ErrClosed
		}
		s := r.current.Load()
		s.refs.Add(1)
		if r.current.Load() == s {
			return s, nil
		}
		s.release()
	}
}

// Pin returns the current snapshot and keeps it open until release is
// called. release is safe to call more than once.
func (r *Reloader) Pin() (*Pinned, func(), error) {
	s, err := r.acquire()
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return &Pinned{IndexStore: s.store, Generation: s.gen}, func() { once.Do(s.release) }, nil
}

// ResolveWords implements IndexStore.
func (r *Reloader) ResolveWords(ctx context.Context, terms []string, caseSensitive bool) ([]int, []string, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, nil, err
	}
	defer s.release()
	return s.store.ResolveWords(ctx, terms, caseSensitive)
}

// DocumentsContaining implements IndexStore.
func (r *Reloader) DocumentsContaining(ctx context.Context, wordIDs []int) ([]DocCount, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.DocumentsContaining(ctx, wordIDs)
}

// DocumentDetails implements IndexStore.
func (r *Reloader) DocumentDetails(ctx context.Context, docIDs []int) ([]Document, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.DocumentDetails(ctx, docIDs)
}

// MissingWords implements IndexStore.
func (r *Reloader) MissingWords(ctx context.Context, docID int, wordIDs []int) ([]int, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.MissingWords(ctx, docID, wordIDs)
}

// WordNames implements IndexStore.
func (r *Reloader) WordNames(ctx context.Context, wordIDs []int) ([]string, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.WordNames(ctx, wordIDs)
}

// WordsMatchingPattern implements IndexStore.
func (r *Reloader) WordsMatchingPattern(ctx context.Context, pattern string, caseSensitive bool) ([]string, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.WordsMatchingPattern(ctx, pattern, caseSensitive)
}

// DocumentsForWords implements IndexStore.
func (r *Reloader) DocumentsForWords(ctx context.Context, words []string) (map[int][]string, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.DocumentsForWords(ctx, words)
}

// Stats implements IndexStore.
func (r *Reloader) Stats(ctx context.Context, topWords int) (*Stats, error) {
	s, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.Stats(ctx, topWords)
}

// Close retires the current snapshot. It is idempotent.
func (r *Reloader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if s := r.current.Load(); s != nil {
		s.retire()
	}
	return nil
}
