package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/robfig/cron/v3"
)

// ErrSweepInProgress is returned by Trigger while another sweep runs.
var ErrSweepInProgress = errors.New("a sweep is already running")

// Schedules accept an optional seconds field and descriptors like "@hourly".
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec checks that spec is a schedule the scheduler can run.
func ValidateSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// SchedulerConfig holds configuration for the sweep scheduler.
type SchedulerConfig struct {
	Enabled bool          // Enable periodic sweeps
	Spec    string        // Cron expression or descriptor, e.g. "@hourly"
	Timeout time.Duration // Deadline for one sweep (0 = none)
}

// Scheduler runs sweeps on a cron schedule. At most one sweep runs at a
// time; ticks that fire while a sweep is running are skipped.
type Scheduler struct {
	runner  *Runner
	config  SchedulerConfig
	logger  *logger.Logger
	cron    *cron.Cron
	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new sweep scheduler.
func NewScheduler(runner *Runner, config SchedulerConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{
		runner: runner,
		config: config,
		logger: log,
	}
}

// Start registers the sweep with cron and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("sweep scheduler disabled")
		return nil
	}
	if s.cron != nil {
		return fmt.Errorf("sweep scheduler already started")
	}

	if err := ValidateSpec(s.config.Spec); err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithParser(specParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(s.config.Spec, s.tick); err != nil {
		s.cancel()
		s.cron = nil
		return fmt.Errorf("invalid schedule %q: %w", s.config.Spec, err)
	}

	s.cron.Start()
	s.logger.Info("sweep scheduler started", logger.Field{Key: "spec", Value: s.config.Spec})
	return nil
}

// Stop cancels scheduled sweeps and waits for any running sweep to return,
// including one started through Trigger.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cancel()
		<-s.cron.Stop().Done()
	}

	// a sweep started through Trigger outlives the cron jobs
	s.running.Lock()
	s.running.Unlock()

	if s.cron != nil {
		s.logger.Info("sweep scheduler stopped")
	}
}

func (s *Scheduler) tick() {
	_, err := s.Trigger(s.ctx)
	if errors.Is(err, ErrSweepInProgress) {
		s.logger.Warn("previous sweep still running, skipping tick")
	}
}

// Trigger runs one sweep immediately and waits for it.
func (s *Scheduler) Trigger(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	return s.runner.Run(ctx)
}

// LastResult returns the result of the last successful sweep.
func (s *Scheduler) LastResult() Result {
	return s.runner.LastResult()
}

// LastRun returns when the last successful sweep started.
func (s *Scheduler) LastRun() time.Time {
	return s.runner.LastRun()
}

// cronLogger routes robfig/cron messages into the application logger.
// Routine scheduling chatter goes to debug.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, err, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Field{Key: fmt.Sprint(kv[i]), Value: kv[i+1]})
	}
	return fields
}
