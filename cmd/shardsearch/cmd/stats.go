package cmd

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/config"
	"github.com/Aman-CERP/shardsearch/internal/output"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
	"github.com/Aman-CERP/shardsearch/internal/shard"
)

func newStatsCmd() *cobra.Command {
	var (
		db, shardURL string
		top          int
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics for one shard",
		Long: `Show document, word and occurrence totals and the most frequent
words of one index, read directly from a database file (--db) or from a
running shard service (--shard).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (db == "") == (shardURL == "") {
				return errors.New("exactly one of --db or --shard is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var resp *protocol.StatsResponse
			if db != "" {
				sc := cfg.Shard
				sc.Database, sc.Watch, sc.CacheSize = db, false, 0
				idx, err := openIndex(cmd.Context(), sc)
				if err != nil {
					return err
				}
				defer func() { _ = idx.Close() }()

				st, err := idx.store.Stats(cmd.Context(), top)
				if err != nil {
					return err
				}
				id := strings.TrimSuffix(filepath.Base(db), filepath.Ext(db))
				resp = protocol.FromStats(id, st)
			} else {
				c, err := shard.NewHTTPClient(config.ShardEndpoint{ID: shardURL, URL: shardURL},
					shard.WithTimeout(15*time.Second))
				if err != nil {
					return err
				}
				if resp, err = c.Stats(cmd.Context(), top); err != nil {
					return err
				}
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(resp)
			}
			out.Stats(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "Index database to read")
	cmd.Flags().StringVar(&shardURL, "shard", "", "Shard service URL to query")
	cmd.Flags().IntVar(&top, "top", 10, "Number of most frequent words to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")

	return cmd
}
