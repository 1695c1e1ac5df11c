package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/api"
	"github.com/Aman-CERP/shardsearch/internal/config"
)

func newCoordinatorCmd() *cobra.Command {
	var listen, shards string

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Fan queries out to the shards and merge the answers",
		Long: `Serve the cluster-wide search API. Every query is sent to all
configured shards in parallel; shards that fail or miss their deadline
are reported in the response instead of failing it.

Shards come from coordinator.shards in the config file or from --shards:

  shardsearch coordinator --shards a=http://10.0.0.1:8081,b=http://10.0.0.2:8081`,
		Annotations: map[string]string{annotationOwnLogging: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Coordinator.Listen = listen
			}
			if shards != "" {
				eps, err := config.ParseShardList(shards)
				if err != nil {
					return err
				}
				cfg.Coordinator.Shards = eps
			}
			if err := cfg.ValidateCoordinator(); err != nil {
				return err
			}

			cleanup, err := setupServiceLogging(cfg, "coordinator")
			if err != nil {
				return err
			}
			defer cleanup()

			cc := cfg.Coordinator
			metrics, closeMetrics, err := openMetrics(cc.MetricsDB)
			if err != nil {
				return err
			}
			defer closeMetrics()

			coord, err := openRemoteCluster(cfg, metrics)
			if err != nil {
				return err
			}

			h := api.NewCoordinatorHandler(coord, api.CoordinatorOptions{
				RequestTimeout: cc.RequestTimeout,
				RateLimit:      cc.RateLimit,
				RateBurst:      cc.RateBurst,
				MaxInFlight:    int64(cc.MaxInFlight),
				Metrics:        metrics,
				Logger:         slog.Default(),
			})

			slog.Info("coordinator_starting",
				slog.Any("shards", coord.ShardIDs()),
				slog.Duration("shard_timeout", cc.ShardTimeout),
				slog.Float64("rate_limit", cc.RateLimit))

			return api.NewServer("coordinator", cc.Listen, h, 0).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&shards, "shards", "", "Comma-separated id=url shard list, overrides config")

	return cmd
}
