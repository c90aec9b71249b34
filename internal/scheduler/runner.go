// Package scheduler runs named background jobs on a ticker, serialized across
// worker replicas by the database job lock.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/infrastructure/metrics"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// Job is one run of a background task. It must honor ctx cancellation; the
// runner cancels ctx when the job lock lease is lost.
type Job func(ctx context.Context) error

// Runner ticks a job on an interval. Each tick tries the job lock first, so
// at most one replica runs the job at a time while an idle replica picks the
// work up within one interval of the holder dying.
type Runner struct {
	locks    usecase.JobLockRepository
	holderID string
	ttl      time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewRunner creates a runner. holderID identifies this process instance and
// must be unique per replica.
func NewRunner(locks usecase.JobLockRepository, holderID string, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Runner {
	return &Runner{
		locks:    locks,
		holderID: holderID,
		ttl:      ttl,
		metrics:  m,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks job under the named lock until ctx is cancelled. The first tick
// fires immediately. Blocks; call in its own goroutine.
func (r *Runner) Run(ctx context.Context, name string, interval time.Duration, job Job) {
	logger := r.logger.With().Str("job", name).Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx, name, job, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOnce takes the lock, runs the job with a heartbeat renewing the lease at
// half the ttl, and releases the lock. A failed renewal cancels the job's
// context; the job must not assume exclusivity past that point.
func (r *Runner) runOnce(ctx context.Context, name string, job Job, logger zerolog.Logger) {
	_, err := r.locks.TryAcquire(ctx, name, r.holderID, r.ttl)
	if err != nil {
		if errors.Is(err, domain.ErrJobLockHeld) {
			logger.Debug().Msg("job lock held elsewhere, skipping tick")
			return
		}
		logger.Error().Err(err).Msg("failed to acquire job lock")
		return
	}
	if r.metrics != nil {
		r.metrics.JobLockAcquired.WithLabelValues(name).Inc()
	}

	jobCtx, cancelJob := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go r.heartbeat(jobCtx, name, cancelJob, heartbeatDone, logger)

	if err := job(jobCtx); err != nil {
		logger.Error().Err(err).Msg("job run failed")
	}

	cancelJob()
	<-heartbeatDone

	// Release with a fresh context so shutdown does not strand the lock for
	// a full ttl.
	releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRelease()
	if err := r.locks.Release(releaseCtx, name, r.holderID); err != nil {
		logger.Warn().Err(err).Msg("failed to release job lock")
	}
}

func (r *Runner) heartbeat(ctx context.Context, name string, cancelJob context.CancelFunc, done chan<- struct{}, logger zerolog.Logger) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.locks.Renew(ctx, name, r.holderID, r.ttl); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Msg("lost job lock lease, cancelling job")
				if r.metrics != nil {
					r.metrics.JobLockLost.WithLabelValues(name).Inc()
				}
				cancelJob()
				return
			}
		}
	}
}
