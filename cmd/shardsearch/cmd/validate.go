package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/output"
	"github.com/Aman-CERP/shardsearch/internal/validation"
)

func newValidateCmd() *cobra.Command {
	var (
		flags      clusterFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "validate <suite.yaml>",
		Short: "Run a suite of golden queries against the cluster",
		Long: `Run every query in the suite and check that an expected document
appears among the top results. Negative queries must return nothing.
Exits non-zero when any query fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := validation.LoadSuite(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, closeFn, err := flags.open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			res := validation.NewValidator(s).RunAll(cmd.Context(), suite)

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if err := out.JSON(res); err != nil {
					return err
				}
			} else {
				printValidation(out, res)
			}
			if !res.OK() {
				return fmt.Errorf("%d of %d queries failed", (res.Total-res.Pass)+(res.NegTotal-res.NegPass), res.Total+res.NegTotal)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printValidation(out *output.Writer, res *validation.Result) {
	for _, tr := range append(append([]validation.TestResult{}, res.Queries...), res.Negative...) {
		label := tr.Spec.ID
		if tr.Spec.Name != "" {
			label += " " + tr.Spec.Name
		}
		switch {
		case tr.Passed && tr.Degraded:
			out.Warningf("%s (partial result)", label)
		case tr.Passed:
			out.Success(label)
		case tr.Error != "":
			out.Error(label + ": " + tr.Error)
		default:
			out.Error(label + ": got " + strings.Join(tr.TopResults, ", "))
		}
	}
	out.Newline()
	out.Successf("queries %d/%d, negative %d/%d", res.Pass, res.Total, res.NegPass, res.NegTotal)
}
