package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aatumaykin/botsweep/internal/cleanup"
	"github.com/aatumaykin/botsweep/internal/config"
	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/pidfile"
	"github.com/aatumaykin/botsweep/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string
	serveEnvFile    string
	serveLogLevel   string
	serveRunNow     bool
	servePIDFile    string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sweeps on a schedule",
	Long: `Run sweeps on the cron schedule from the [schedule] section until
interrupted. When [metrics] is enabled, Prometheus metrics are served at
/metrics and the last sweep result at /healthz.

SIGINT or SIGTERM cancels a running sweep between batches and shuts down.`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	// Load .env file if exists
	if err := config.LoadEnvOptional(serveEnvFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", serveEnvFile, err)
	}

	cfg, err := loadConfig(cmd, serveConfigPath)
	if err != nil {
		return err
	}

	// Override log level if flag is set
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	log.Info(version.FormatStartupMessage(),
		logger.Field{Key: "config", Value: serveConfigPath},
		logger.Field{Key: "driver", Value: cfg.Database.Driver},
		logger.Field{Key: "dsn", Value: cfg.Redacted().Database.DSN},
		logger.Field{Key: "schedule", Value: cfg.Schedule.Spec},
		logger.Field{Key: "metrics", Value: cfg.Metrics.Enabled})

	if servePIDFile != "" {
		pf, err := pidfile.Acquire(servePIDFile)
		if err != nil {
			return err
		}
		defer pf.Release()
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := wireApp(ctx, cfg, log, wireOptions{registry: reg})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil {
				log.Error("bot filter watcher stopped", err)
			}
		}()
	}

	sched := cleanup.NewScheduler(a.runner, cfg.Scheduler(), log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           newServeMux(reg, sched),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", logger.Field{Key: "addr", Value: cfg.Metrics.Listen})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server exited", err)
				stop()
			}
		}()
	}

	if serveRunNow {
		// sched.Stop waits for this sweep before the store is closed
		go func() {
			if _, err := sched.Trigger(ctx); err != nil {
				log.Warn("initial sweep did not complete", logger.Field{Key: "error", Value: err})
			}
		}()
	}

	<-ctx.Done()
	log.Info("⏳ Shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server forced to shutdown", err)
		}
	}

	return nil
}

type healthStatus struct {
	Status  string          `json:"status"`
	Version string          `json:"version"`
	LastRun *time.Time      `json:"last_run,omitempty"`
	Last    *cleanup.Result `json:"last_result,omitempty"`
}

func newServeMux(reg *prometheus.Registry, sched *cleanup.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Version: version.Version}
		if lastRun := sched.LastRun(); !lastRun.IsZero() {
			last := sched.LastResult()
			status.LastRun = &lastRun
			status.Last = &last
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (default: ./botsweep.toml)")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "Optional .env file loaded before the configuration")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override logging.level")
	serveCmd.Flags().BoolVar(&serveRunNow, "now", false, "Run one sweep immediately at startup")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", "", "Refuse to start while the process in this PID file is alive")
}
