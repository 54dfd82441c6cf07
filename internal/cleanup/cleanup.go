// Package cleanup sweeps the session table, deleting sessions that belong
// to bots or whose owner has been inactive longer than the configured
// lifetime.
//
// A sweep counts the table once and then pages through it by ascending id,
// using the last seen id as an exclusive cursor. The initial count bounds
// the sweep: rows inserted while it runs may or may not be visited, and
// rows deleted by someone else simply disappear from later pages or show
// up as a failed delete. This is a best-effort pass, not a snapshot.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/session"
	"github.com/google/uuid"
)

// Run performs one full sweep.
//
// Per-record problems (undecodable payloads, sessions without a user
// agent, deletes that affect no row) are counted in Result.Failures and
// never stop the sweep. Store errors and context cancellation abort it and
// only the error is returned; deletions already made stay committed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	startTime := r.now()
	runID := uuid.NewString()
	log := r.logger.With(logger.Field{Key: "run_id", Value: runID})

	result, err := r.sweep(ctx, log, startTime)
	result.RunID = runID
	result.Duration = r.now().Sub(startTime)

	if err != nil {
		r.metrics.observeSweep(result, err)
		log.Error("sweep aborted", err,
			logger.Field{Key: "processed", Value: result.Processed()},
			logger.Field{Key: "total", Value: result.Total})
		return Result{}, err
	}

	r.metrics.observeSweep(result, nil)

	r.mu.Lock()
	r.stats = result
	r.lastRun = startTime
	r.mu.Unlock()

	log.Info("sweep completed",
		logger.Field{Key: "total", Value: result.Total},
		logger.Field{Key: "removed_bots", Value: result.RemovedBots},
		logger.Field{Key: "removed_inactive", Value: result.RemovedInactive},
		logger.Field{Key: "active", Value: result.Active},
		logger.Field{Key: "failures", Value: result.Failures},
		logger.Field{Key: "duration_ms", Value: result.Duration.Milliseconds()})

	return result, nil
}

func (r *Runner) sweep(ctx context.Context, log *logger.Logger, startTime time.Time) (Result, error) {
	result := Result{Agents: make(map[string]int)}

	now := startTime.Unix()
	lifetime := r.config.LifetimeSeconds
	policy := Policy{Classifier: r.filters.Current()}

	total, err := r.store.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrStore, err)
	}
	result.Total = total

	log.Debug("sweep started",
		logger.Field{Key: "total", Value: total},
		logger.Field{Key: "batch_limit", Value: r.config.BatchLimit},
		logger.Field{Key: "lifetime_seconds", Value: lifetime})

	var cursor *string
	processed := 0

	for processed < total {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sweep interrupted after %d of %d sessions: %w", processed, total, err)
		}

		// never read past the count taken at start
		limit := min(r.config.BatchLimit, total-processed)

		batch, err := r.store.FetchBatch(ctx, cursor, limit)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrStore, err)
		}
		if len(batch) == 0 {
			log.Debug("store exhausted before initial count was reached",
				logger.Field{Key: "processed", Value: processed},
				logger.Field{Key: "total", Value: total})
			break
		}

		for _, rec := range batch {
			id := rec.ID
			cursor = &id
			processed++

			if err := r.process(ctx, log, policy, rec, now, lifetime, &result); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// process decides and acts on one record. Only store I/O errors are
// returned; everything else is folded into result.
func (r *Runner) process(ctx context.Context, log *logger.Logger, policy Policy, rec session.Record, now, lifetime int64, result *Result) error {
	decoded, err := r.decoder.Decode(rec.Data)
	if err != nil {
		log.Error("session cannot be decoded", err, logger.Field{Key: "session_id", Value: rec.ID})
		r.fail(result)
		return nil
	}

	disposition, agent := policy.Classify(decoded, now, rec.ExpiresAt, lifetime)
	if rec.NoExpiry && disposition != DeleteBot && disposition != MalformedNoUserAgent {
		log.Warn("session has no expiry time, skipping",
			logger.Field{Key: "session_id", Value: rec.ID},
			logger.Field{Key: "agent", Value: agent})
		r.fail(result)
		return nil
	}

	switch disposition {
	case DeleteBot:
		log.Debug("session belongs to bot",
			logger.Field{Key: "session_id", Value: rec.ID},
			logger.Field{Key: "agent", Value: agent})
		return r.remove(ctx, log, rec.ID, disposition, result)

	case DeleteInactive:
		log.Debug("session belongs to inactive user",
			logger.Field{Key: "session_id", Value: rec.ID},
			logger.Field{Key: "age_seconds", Value: now - rec.ExpiresAt})
		return r.remove(ctx, log, rec.ID, disposition, result)

	case Active:
		result.Active++
		result.Agents[agent]++
		r.metrics.observeOutcome(outcomeActive)

	default:
		log.Debug("session has no user agent, skipping",
			logger.Field{Key: "session_id", Value: rec.ID})
		r.fail(result)
	}

	return nil
}

func (r *Runner) remove(ctx context.Context, log *logger.Logger, id string, d Disposition, result *Result) error {
	deleted, err := r.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	if deleted != 1 {
		// someone else removed it between our read and our delete
		log.Error("cannot delete session", fmt.Errorf("%d rows affected", deleted),
			logger.Field{Key: "session_id", Value: id},
			logger.Field{Key: "disposition", Value: d.String()})
		r.fail(result)
		return nil
	}

	switch d {
	case DeleteBot:
		result.RemovedBots++
		r.metrics.observeOutcome(outcomeRemovedBot)
		log.Debug("session deleted as bot", logger.Field{Key: "session_id", Value: id})
	case DeleteInactive:
		result.RemovedInactive++
		r.metrics.observeOutcome(outcomeRemovedInactive)
		log.Debug("session deleted as inactive", logger.Field{Key: "session_id", Value: id})
	}
	return nil
}

func (r *Runner) fail(result *Result) {
	result.Failures++
	r.metrics.observeOutcome(outcomeFailure)
}

// LastResult returns the result of the last successful sweep.
func (r *Runner) LastResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// LastRun returns the start time of the last successful sweep.
func (r *Runner) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}
