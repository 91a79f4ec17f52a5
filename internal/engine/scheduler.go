package engine

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"strategy-engine/internal/models"
	"strategy-engine/internal/store"
)

// Scheduler enqueues a job for each enabled strategy on its cron schedule.
// It only produces work; workers claim and execute it. Enqueueing is
// deduplicated at the store level, so an overlapping tick while a job is
// still pending or running is a no-op.
type Scheduler struct {
	store  store.DataStore
	tier   string
	logger zerolog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID // strategy ID -> cron entry
}

// NewScheduler creates a job scheduler.
func NewScheduler(st store.DataStore, tier string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		tier:    tier,
		logger:  logger,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads enabled strategies, registers their schedules, and starts the
// cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Int("strategies", len(s.entries)).Msg("scheduler started")
	return nil
}

// Reload re-registers schedules from the store. Strategies that were
// disabled or deleted since the last load are dropped.
func (s *Scheduler) Reload(ctx context.Context) error {
	strategies, err := s.store.GetEnabledStrategies(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(strategies))
	for _, st := range strategies {
		st := st
		seen[st.ID] = true
		if _, registered := s.entries[st.ID]; registered {
			continue
		}
		if st.Schedule == "" {
			continue
		}
		id, err := s.cron.AddFunc(st.Schedule, func() { s.enqueue(st) })
		if err != nil {
			s.logger.Error().Err(err).
				Str("strategy_id", st.ID).
				Str("schedule", st.Schedule).
				Msg("invalid cron schedule")
			continue
		}
		s.entries[st.ID] = id
	}

	for strategyID, entryID := range s.entries {
		if !seen[strategyID] {
			s.cron.Remove(entryID)
			delete(s.entries, strategyID)
		}
	}
	return nil
}

func (s *Scheduler) enqueue(strategy models.Strategy) {
	ctx := context.Background()
	job, err := s.store.EnqueueJob(ctx, strategy.ID, s.tier)
	if err != nil {
		s.logger.Error().Err(err).Str("strategy_id", strategy.ID).Msg("enqueueing job")
		return
	}
	if job == nil {
		// A pending or running job already exists for this strategy.
		s.logger.Debug().Str("strategy_id", strategy.ID).Msg("job already queued, skipping")
		return
	}
	s.logger.Info().
		Str("strategy_id", strategy.ID).
		Str("job_id", job.ID).
		Msg("job enqueued")
}

// Stop stops the cron loop and waits for in-flight enqueues.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("scheduler stopped")
}
