package cleanup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aatumaykin/botsweep/internal/filter"
	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/session"
)

// DefaultBatchLimit is the page size used when Config.BatchLimit is unset.
const DefaultBatchLimit = 1000

// ErrStore wraps every store failure that aborts a sweep.
var ErrStore = errors.New("session store failure")

// Store is the paged view of the session table a sweep needs.
type Store interface {
	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
	// FetchBatch returns up to limit records with id strictly greater than
	// afterID (from the start when nil), ascending by id.
	FetchBatch(ctx context.Context, afterID *string, limit int) ([]session.Record, error)
	// Delete removes id and returns the number of rows deleted, 0 or 1.
	Delete(ctx context.Context, id string) (int64, error)
}

// Decoder turns a stored payload into a Decoded session.
type Decoder interface {
	Decode(raw []byte) (session.Decoded, error)
}

// FilterSource yields the bot filter to use for one sweep.
// *filter.Filter and *filter.Watcher both implement it.
type FilterSource interface {
	Current() *filter.Filter
}

// Result is the aggregate outcome of one sweep.
type Result struct {
	RunID           string         `json:"run_id" yaml:"run_id"`
	Total           int            `json:"total" yaml:"total"`
	RemovedBots     int            `json:"removed_bots" yaml:"removed_bots"`
	RemovedInactive int            `json:"removed_inactive" yaml:"removed_inactive"`
	Active          int            `json:"active" yaml:"active"`
	Failures        int            `json:"failures" yaml:"failures"`
	Agents          map[string]int `json:"agents" yaml:"agents"`
	Duration        time.Duration  `json:"duration_ns" yaml:"duration"`
}

// Processed is the number of records visited. It never exceeds Total.
func (r Result) Processed() int {
	return r.RemovedBots + r.RemovedInactive + r.Active + r.Failures
}

// Config holds the sweep parameters.
type Config struct {
	BatchLimit      int   // page size (default: DefaultBatchLimit)
	LifetimeSeconds int64 // inactivity lifetime for human sessions
}

// Runner performs sweeps over one Store.
type Runner struct {
	store   Store
	decoder Decoder
	filters FilterSource
	config  Config
	logger  *logger.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	stats   Result
	lastRun time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithMetrics records sweep outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a new sweep runner.
func NewRunner(store Store, decoder Decoder, filters FilterSource, config Config, log *logger.Logger, opts ...Option) *Runner {
	if config.BatchLimit <= 0 {
		config.BatchLimit = DefaultBatchLimit
	}
	if filters == nil {
		filters = &filter.Filter{}
	}
	if log == nil {
		log = logger.Discard()
	}
	r := &Runner{
		store:   store,
		decoder: decoder,
		filters: filters,
		config:  config,
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
