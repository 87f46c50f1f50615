// Command stepflow runs a demo order pipeline on the stepflow engine and
// serves the mirrored run state over HTTP.
//
// Usage:
//
//	stepflow [--store memory|sqlite|redis] <command> [flags]
//
// Commands:
//
//	run    Run the pipeline once and print the final state as JSON
//	serve  Run the pipeline periodically and serve /runs and /metrics
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/petrijr/stepflow/internal/config"
)

// version is set with ldflags at build time.
var version = "dev"

type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "stepflow",
		Short:         "stepflow demo pipeline and state monitor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !config.ValidStore(a.cfg.Store) {
				return fmt.Errorf("unknown store %q (want memory, sqlite or redis)", a.cfg.Store)
			}
			if cmd.Flags().Changed("log-level") {
				a.cfg.LogLevel = config.ParseLogLevel(logLevel)
			}
			a.logger = config.NewLogger(cmd.ErrOrStderr(), a.cfg.LogLevel, a.cfg.LogFormat)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfg.Store, "store", cfg.Store, "monitor store backend: memory, sqlite or redis")
	flags.StringVar(&a.cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database path")
	flags.StringVar(&a.cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	flags.DurationVar(&a.cfg.RedisTTL, "redis-ttl", cfg.RedisTTL, "expiry of mirrored runs in Redis (0 keeps them)")
	flags.StringVar(&logLevel, "log-level", cfg.LogLevel.String(), "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}
