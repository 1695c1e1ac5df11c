// Package cmd provides the CLI commands for shardsearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/shardsearch/internal/config"
	"github.com/Aman-CERP/shardsearch/internal/logging"
	"github.com/Aman-CERP/shardsearch/internal/profiling"
	"github.com/Aman-CERP/shardsearch/pkg/version"
)

// annotationOwnLogging marks commands that configure logging themselves.
const annotationOwnLogging = "own-logging"

var (
	debugMode      bool
	configPath     string
	profileOpts    profiling.Options
	profileSession *profiling.Session
	loggingCleanup func()
)

// NewRootCmd creates the root command for the shardsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shardsearch",
		Short: "Sharded inverted-index search",
		Long: `shardsearch answers term and wildcard queries over a document
collection split into independently indexed shards.

Run one 'shardsearch shard' per index database, a 'shardsearch coordinator'
in front of them, and query with 'shardsearch query' or over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("shardsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./shardsearch.yaml)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newShardCmd())
	cmd.AddCommand(newCoordinatorCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newPatternCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	if debugMode && cmd.Annotations[annotationOwnLogging] == "" {
		lc := logging.DefaultConfig("cli")
		lc.Level = "debug"
		cleanup, err := logging.SetupDefault(lc)
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.Debug("debug_logging_enabled", slog.String("log_file", lc.FilePath))
	}

	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = s
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// loadConfig reads the configuration named by --config, or the default
// file in the working directory.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(configPath, wd)
}

// setupServiceLogging installs the JSON logger for a long-running role.
func setupServiceLogging(cfg *config.Config, component string) (func(), error) {
	cleanup, err := logging.SetupDefault(cfg.LoggingConfig(component, debugMode))
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cleanup, nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
