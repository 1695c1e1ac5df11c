package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/output"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

// queryFlags are shared by query and pattern.
type queryFlags struct {
	cluster       clusterFlags
	limit         string
	caseSensitive bool
	jsonOutput    bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	f.cluster.register(cmd)
	cmd.Flags().StringVarP(&f.limit, "limit", "n", "", `Maximum documents to return, or "all" (default 20)`)
	cmd.Flags().BoolVarP(&f.caseSensitive, "case-sensitive", "c", false, "Match terms case-sensitively")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Output the response as JSON")
}

func newQueryCmd() *cobra.Command {
	var (
		flags        queryFlags
		noTimestamps bool
	)

	cmd := &cobra.Command{
		Use:   "query <term>...",
		Short: "Search the cluster for documents containing the terms",
		Long: `Rank documents by how often they contain the query terms.

Documents missing some of the terms are still returned, with the missing
terms listed. Terms may contain * and ? wildcards.

Examples:
  shardsearch query apple banana
  shardsearch query --limit all --json 'app*'
  shardsearch query --db a.db --db b.db apple`,
		Args: cobra.MinimumNArgs(1),
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

			req := protocol.NewSearchRequest(strings.Join(args, " "))
			req.Limit = limit
			req.CaseSensitive = flags.caseSensitive
			req.IncludeTimestamps = !noTimestamps

			resp, err := s.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if flags.jsonOutput {
				return out.JSON(resp)
			}
			out.SearchResponse(resp)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&noTimestamps, "no-timestamps", false, "Omit document timestamps")

	return cmd
}
