// Package jobs implements the lease-based worker that claims and executes
// queued strategy runs.
package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"strategy-engine/internal/briefing"
	"strategy-engine/internal/engine"
	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/logging"
	"strategy-engine/internal/models"
	"strategy-engine/internal/store"
)

// RunExecutor executes one claimed strategy run.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, strategy *models.Strategy, run *models.StrategyRun, progress engine.ProgressFunc) (*briefing.Briefing, error)
}

// Config holds worker timing parameters. HeartbeatInterval must be shorter
// than LeaseDuration or the lease expires between renewals.
type Config struct {
	PollInterval      time.Duration
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	Tier              string
}

// Worker claims pending jobs one at a time and drives them through the
// executor. Claims are atomic: at most one worker holds a job's lease at any
// moment, and an expired lease makes the job claimable again.
type Worker struct {
	id       string
	store    store.DataStore
	executor RunExecutor
	cfg      Config
	logger   zerolog.Logger
}

// NewWorker creates a worker with a unique identity derived from the
// hostname.
func NewWorker(st store.DataStore, executor RunExecutor, cfg Config, logger zerolog.Logger) *Worker {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	id := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 2 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	return &Worker{
		id:       id,
		store:    st,
		executor: executor,
		cfg:      cfg,
		logger:   logging.WithWorker(logger, id),
	}
}

// ID returns the worker's identity.
func (w *Worker) ID() string {
	return w.id
}

// Run polls for pending jobs until the context is cancelled. An idle poll
// sleeps for the poll interval; a claimed job is processed to completion
// before the next poll.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Str("tier", w.cfg.Tier).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := w.store.ClaimPendingJob(ctx, w.id, w.cfg.Tier, w.cfg.LeaseDuration)
		if err != nil {
			w.logger.Error().Err(err).Msg("claiming job")
		} else if job != nil {
			w.process(ctx, job)
			continue // immediately check for more work
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process runs one claimed job. A heartbeat goroutine renews the lease for
// the duration of the run; losing the lease cancels the run, and the job is
// abandoned for whichever worker claimed it next.
func (w *Worker) process(ctx context.Context, job *models.Job) {
	logger := w.logger.With().Str("job_id", job.ID).Str("strategy_id", job.StrategyID).Logger()
	logger.Info().Msg("job claimed")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	leaseLost := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.heartbeat(runCtx, job.ID, leaseLost, logger)
	}()

	go func() {
		select {
		case <-leaseLost:
			cancel()
		case <-runCtx.Done():
		}
	}()

	err := w.execute(runCtx, job)

	cancel()
	<-heartbeatDone

	select {
	case <-leaseLost:
		// Another worker may own this job now; leave its row alone.
		logger.Warn().Msg("lease lost, abandoning job")
		return
	default:
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		if ferr := w.store.FailJob(context.Background(), job.ID, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("marking job failed")
		}
		return
	}
	logger.Info().Msg("job completed")
}

func (w *Worker) execute(ctx context.Context, job *models.Job) error {
	strategy, err := w.store.GetStrategy(ctx, job.StrategyID)
	if err != nil {
		return enginerrors.Wrap(err, "loading strategy")
	}
	if !strategy.Enabled {
		return enginerrors.ErrStrategyDisabled
	}

	run, err := w.store.CreateStrategyRun(ctx, strategy.ID)
	if err != nil {
		return enginerrors.Wrap(err, "creating run")
	}

	progress := func(phase models.RunStatus, pct float64, message string, processed, total int) {
		if err := w.store.UpdateJobProgress(context.Background(), job.ID, pct, message, processed, total); err != nil {
			w.logger.Warn().Err(err).Msg("updating job progress")
		}
	}

	brief, err := w.executor.ExecuteRun(ctx, strategy, run, progress)
	if err != nil {
		return err
	}

	return w.store.CompleteJob(context.Background(), job.ID, brief.Render())
}

// heartbeat renews the job lease until the context ends. A renewal that
// reports the lease gone closes leaseLost and exits.
func (w *Worker) heartbeat(ctx context.Context, jobID string, leaseLost chan<- struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.store.UpdateJobHeartbeat(ctx, jobID, w.id, w.cfg.LeaseDuration)
			if err == nil {
				continue
			}
			if enginerrors.Is(err, enginerrors.ErrLeaseLost) {
				logger.Warn().Msg("heartbeat rejected: lease lost")
				close(leaseLost)
				return
			}
			// Transient store error: keep trying, the lease window gives us
			// several more beats before expiry.
			logger.Warn().Err(err).Msg("heartbeat failed")
		}
	}
}
