package main

import (
	"fmt"

	"github.com/aatumaykin/botsweep/internal/config"
	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./botsweep.toml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "botsweep",
	Short: "botsweep - session table garbage collector",
	Long: `botsweep deletes web sessions that belong to crawlers and bots, or whose
owner has been inactive longer than the session lifetime. It pages through
the session table in id order and reports what it removed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads and validates the configuration at path, printing every
// validation error before failing.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "❌ Configuration validation failed:")
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
		}
		return nil, fmt.Errorf("configuration has %d errors", len(errs))
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return log, nil
}
