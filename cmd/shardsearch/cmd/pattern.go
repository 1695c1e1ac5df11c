package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/output"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

func newPatternCmd() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "pattern <pattern>",
		Short: "List the documents containing words that match a wildcard",
		Long: `Find every vocabulary word matching the pattern (* for any run of
characters, ? for one character) and list the documents containing them,
each with the words it matched.

Examples:
  shardsearch pattern 'ban*'
  shardsearch pattern --case-sensitive 'A?ple'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			limit, err := protocol.ParseLimit(flags.limit)
			if err != nil {
				return err
			}

			s, closeFn, err := flags.cluster.open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			req := protocol.NewPatternRequest(args[0])
			req.Limit = limit
			req.CaseSensitive = flags.caseSensitive

			resp, err := s.PatternSearch(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if flags.jsonOutput {
				return out.JSON(resp)
			}
			out.PatternResponse(resp)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}
