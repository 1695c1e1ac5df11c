package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/api"
	"github.com/Aman-CERP/shardsearch/internal/coordinator"
	"github.com/Aman-CERP/shardsearch/internal/output"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

func newHealthCmd() *cobra.Command {
	var (
		flags      clusterFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check every shard of the cluster",
		Long: `Report each shard's health as seen by the coordinator, including
its circuit breaker state. Exits non-zero when no shard is healthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, closeFn, err := flags.open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			h, err := clusterHealth(cmd.Context(), s)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if err := out.JSON(h); err != nil {
					return err
				}
			} else {
				out.ClusterHealth(h)
			}
			if h.Status == protocol.StatusDown {
				return errDown
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output health as JSON")

	return cmd
}

func clusterHealth(ctx context.Context, s searcher) (*protocol.ClusterHealth, error) {
	switch c := s.(type) {
	case *api.Client:
		return c.Health(ctx)
	case *coordinator.Coordinator:
		return c.Health(ctx), nil
	}
	return nil, fmt.Errorf("health not supported by %T", s)
}
