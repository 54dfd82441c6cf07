package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/pidfile"
	"github.com/aatumaykin/botsweep/internal/report"
	"github.com/spf13/cobra"
)

var (
	runConfigPath string
	runFormat     string
	runDryRun     bool
	runDebug      bool
	runPIDFile    string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sweep and print the result",
	Long: `Run a single sweep over the session table with the given configuration
and print how many sessions were removed as bots, removed as inactive, kept
active or skipped as failures, plus the user agents of the kept sessions.

With --dry-run nothing is deleted: every session that would be removed is
counted as removed.`,
	Args: cobra.NoArgs,
	RunE: runHandler,
}

func runHandler(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(runFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, runConfigPath)
	if err != nil {
		return err
	}

	// Enable debug mode if flag is set
	if runDebug {
		cfg.Logging.Level = "debug"
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if runPIDFile != "" {
		pf, err := pidfile.Acquire(runPIDFile)
		if err != nil {
			return err
		}
		defer pf.Release()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout := cfg.SweepTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a, err := wireApp(ctx, cfg, log, wireOptions{dryRun: runDryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting sweep",
		logger.Field{Key: "config", Value: runConfigPath},
		logger.Field{Key: "dsn", Value: cfg.Redacted().Database.DSN},
		logger.Field{Key: "dry_run", Value: runDryRun})

	result, err := a.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	return report.Render(cmd.OutOrStdout(), result, report.Options{
		Format: format,
		DryRun: runDryRun,
	})
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to configuration file (default: ./botsweep.toml)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "text", "Output format: text, json, yaml")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Classify sessions without deleting them")
	runCmd.Flags().BoolVarP(&runDebug, "debug", "d", false, "Enable debug logging")
	runCmd.Flags().StringVar(&runPIDFile, "pid-file", "", "Refuse to run while the process in this PID file is alive")
}
