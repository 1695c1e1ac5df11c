package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/config"
	"github.com/Aman-CERP/shardsearch/internal/coordinator"
	"github.com/Aman-CERP/shardsearch/internal/logging"
	"github.com/Aman-CERP/shardsearch/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		dbs    []string
		shards string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the cluster to AI clients over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
search, pattern_search and shard_status tools.

With --db the server searches local index databases in-process; otherwise
it fans out to the shard services from coordinator.shards or --shards.
Logs go to the log file only, never to stdout or stderr.`,
		Annotations: map[string]string{annotationOwnLogging: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if shards != "" {
				eps, err := config.ParseShardList(shards)
				if err != nil {
					return err
				}
				cfg.Coordinator.Shards = eps
			}

			level := cfg.Log.Level
			if debugMode {
				level = "debug"
			}
			lc := logging.StdioSafeConfig("mcp", level)
			if cfg.Log.File != "" {
				lc.FilePath = cfg.Log.File
			}
			cleanup, err := logging.SetupDefault(lc)
			if err != nil {
				return err
			}
			defer cleanup()

			metrics, closeMetrics, err := openMetrics(cfg.Coordinator.MetricsDB)
			if err != nil {
				return err
			}
			defer closeMetrics()

			var coord *coordinator.Coordinator
			if len(dbs) > 0 {
				var closeFn func()
				coord, closeFn, err = openLocalCluster(cmd.Context(), cfg, dbs, metrics)
				if err != nil {
					return err
				}
				defer closeFn()
			} else if coord, err = openRemoteCluster(cfg, metrics); err != nil {
				return err
			}

			srv, err := mcp.NewServer(coord, mcp.Options{Metrics: metrics, Logger: slog.Default()})
			if err != nil {
				return err
			}
			slog.Info("mcp_cluster_ready", slog.Any("shards", coord.ShardIDs()))
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringArrayVar(&dbs, "db", nil, "Search local index databases (repeatable)")
	cmd.Flags().StringVar(&shards, "shards", "", "Comma-separated id=url shard list, overrides config")

	return cmd
}
