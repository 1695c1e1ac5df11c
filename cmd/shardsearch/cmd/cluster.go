package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/api"
	"github.com/Aman-CERP/shardsearch/internal/config"
	"github.com/Aman-CERP/shardsearch/internal/coordinator"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/search"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/store"
	"github.com/Aman-CERP/shardsearch/internal/telemetry"
)

// searcher is what the query commands need from a cluster, local or remote.
type searcher interface {
	Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
	PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error)
}

// index is an opened shard store. reloader is set when the store
// follows the database file.
type index struct {
	store    store.IndexStore
	reloader *store.Reloader
}

func (i *index) Close() error {
	return i.store.Close()
}

// openIndex opens the shard database with the configured backend,
// optional file watching and vocabulary cache.
func openIndex(ctx context.Context, sc config.ShardConfig) (*index, error) {
	var load store.Loader
	switch sc.Backend {
	case config.BackendMemory:
		load = store.MemorySnapshotLoader(sc.Database)
	default:
		load = func(ctx context.Context) (store.IndexStore, error) {
			return store.OpenSQLite(ctx, sc.Database, store.WithReadOnly())
		}
	}

	idx := &index{}
	if sc.Watch {
		r, err := store.NewReloader(ctx, sc.Database, load, sc.WatchDebounce)
		if err != nil {
			return nil, err
		}
		idx.store, idx.reloader = r, r
	} else {
		s, err := load(ctx)
		if err != nil {
			return nil, err
		}
		idx.store = s
	}

	if sc.CacheSize > 0 {
		cached := store.NewCachedStore(idx.store, sc.CacheSize)
		if idx.reloader != nil {
			idx.reloader.OnSwap(cached.Purge)
		}
		idx.store = cached
	}
	return idx, nil
}

// openMetrics creates query metrics, persisted when path is set. The
// returned close flushes and releases the database.
func openMetrics(path string) (*telemetry.QueryMetrics, func(), error) {
	if path == "" {
		m := telemetry.NewQueryMetrics(nil)
		return m, func() { _ = m.Close() }, nil
	}

	st, err := telemetry.OpenSQLiteMetricsStore(path)
	if err != nil {
		return nil, nil, err
	}
	m := telemetry.NewQueryMetrics(st)
	return m, func() {
		if err := m.Close(); err != nil {
			slog.Warn("metrics_flush_failed", slog.String("error", err.Error()))
		}
		_ = st.Close()
	}, nil
}

// shardIDs derives one id per database from its file name.
func shardIDs(dbs []string) []string {
	ids := make([]string, len(dbs))
	seen := make(map[string]int, len(dbs))
	for i, db := range dbs {
		id := strings.TrimSuffix(filepath.Base(db), filepath.Ext(db))
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
		ids[i] = id
	}
	return ids
}

// openLocalCluster serves each database as an in-process shard behind
// a coordinator.
func openLocalCluster(ctx context.Context, cfg *config.Config, dbs []string, metrics *telemetry.QueryMetrics) (*coordinator.Coordinator, func(), error) {
	var (
		clients []shard.Client
		opened  []*index
	)
	closeAll := func() {
		for _, idx := range opened {
			_ = idx.Close()
		}
	}

	for i, id := range shardIDs(dbs) {
		sc := cfg.Shard
		sc.Database = dbs[i]
		sc.Watch = false
		idx, err := openIndex(ctx, sc)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open shard %s: %w", id, err)
		}
		opened = append(opened, idx)

		engine, err := search.NewEngine(idx.store)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		clients = append(clients, shard.NewLocalClient(id, engine))
	}

	coord, err := coordinator.New(clients,
		coordinator.WithShardTimeout(cfg.Coordinator.ShardTimeout),
		coordinator.WithMetrics(metrics))
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return coord, closeAll, nil
}

// openRemoteCluster builds a coordinator over the configured shard services.
func openRemoteCluster(cfg *config.Config, metrics *telemetry.QueryMetrics) (*coordinator.Coordinator, error) {
	if err := cfg.ValidateCoordinator(); err != nil {
		return nil, err
	}
	clients, err := shard.NewHTTPClients(cfg.Coordinator, shard.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	return coordinator.New(clients,
		coordinator.WithShardTimeout(cfg.Coordinator.ShardTimeout),
		coordinator.WithMetrics(metrics),
		coordinator.WithLogger(slog.Default()))
}

// clusterFlags select the cluster a client command talks to.
type clusterFlags struct {
	coordinatorURL string
	dbs            []string
	timeout        time.Duration
}

func (f *clusterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.coordinatorURL, "coordinator", "", "Coordinator URL (default from config)")
	cmd.Flags().StringArrayVar(&f.dbs, "db", nil, "Query local index databases instead of a coordinator (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Request timeout (default from config)")
}

func (f *clusterFlags) open(ctx context.Context, cfg *config.Config) (searcher, func(), error) {
	if len(f.dbs) > 0 {
		coord, closeFn, err := openLocalCluster(ctx, cfg, f.dbs, nil)
		if err != nil {
			return nil, nil, err
		}
		return coord, closeFn, nil
	}

	url := f.coordinatorURL
	if url == "" {
		url = cfg.Client.CoordinatorURL
	}
	timeout := f.timeout
	if timeout <= 0 {
		timeout = cfg.Client.Timeout
	}
	c, err := api.NewClient(url, timeout)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {}, nil
}

// errDown is returned by commands whose target answered but is unhealthy.
var errDown = errors.New("cluster is down")
