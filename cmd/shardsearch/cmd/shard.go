package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/shardsearch/internal/api"
	"github.com/Aman-CERP/shardsearch/internal/config"
	"github.com/Aman-CERP/shardsearch/internal/lock"
	"github.com/Aman-CERP/shardsearch/internal/search"
)

func newShardCmd() *cobra.Command {
	var (
		db, listen, id, backend string
		watch                   bool
	)

	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Serve one index database",
		Long: `Serve term and wildcard search over a single index database.

The shard answers /api/search, /api/search/pattern, /api/health and
/api/stats. Only one shard process may serve a database under a given
instance id at a time.`,
		Annotations: map[string]string{annotationOwnLogging: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("db") {
				cfg.Shard.Database = db
			}
			if f.Changed("listen") {
				cfg.Shard.Listen = listen
			}
			if f.Changed("id") {
				cfg.Shard.InstanceID = id
			}
			if f.Changed("backend") {
				cfg.Shard.Backend = backend
			}
			if f.Changed("watch") {
				cfg.Shard.Watch = watch
			}
			if err := cfg.ValidateShard(); err != nil {
				return err
			}

			cleanup, err := setupServiceLogging(cfg, "shard")
			if err != nil {
				return err
			}
			defer cleanup()

			return runShard(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "Index database path (default from config)")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&id, "id", "", "Instance id reported in responses (default hostname)")
	cmd.Flags().StringVar(&backend, "backend", "", "Store backend: sqlite or memory")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the index when the database file changes")

	return cmd
}

func runShard(ctx context.Context, cfg *config.Config) error {
	sc := cfg.Shard
	logger := slog.Default().With(slog.String("instance_id", sc.InstanceID))

	l, err := lock.Acquire(sc.Database, sc.InstanceID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return fmt.Errorf("shard %s already serves %s (lock %s)", sc.InstanceID, sc.Database, lock.PathFor(sc.Database, sc.InstanceID))
		}
		return err
	}
	defer func() { _ = l.Release() }()

	idx, err := openIndex(ctx, sc)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	metrics, closeMetrics, err := openMetrics(sc.MetricsDB)
	if err != nil {
		return err
	}
	defer closeMetrics()

	engine, err := search.NewEngine(idx.store, search.WithMetrics(metrics))
	if err != nil {
		return err
	}

	h := api.NewShardHandler(engine, api.ShardOptions{
		InstanceID:   sc.InstanceID,
		DefaultLimit: sc.DefaultLimit,
		Metrics:      metrics,
		Logger:       logger,
	})

	logger.Info("shard_starting",
		slog.String("database", sc.Database),
		slog.String("backend", sc.Backend),
		slog.Bool("watch", sc.Watch),
		slog.Int("cache_size", sc.CacheSize))

	g, gctx := errgroup.WithContext(ctx)
	if idx.reloader != nil {
		g.Go(func() error { return idx.reloader.Watch(gctx) })
	}
	g.Go(func() error {
		return api.NewServer("shard", sc.Listen, h, 0).ListenAndServe(gctx)
	})
	return g.Wait()
}
