package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategy-engine/internal/models"
	"strategy-engine/internal/store"
)

func newSchedulerStore(t *testing.T) store.DataStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func saveSchedulerStrategy(t *testing.T, st store.DataStore, name, schedule string, enabled bool) *models.Strategy {
	t.Helper()
	ctx := context.Background()
	p, err := st.CreatePortfolio(ctx, "pending", 100000)
	if err != nil {
		t.Fatalf("creating portfolio: %v", err)
	}
	strategy := &models.Strategy{
		Name:        name,
		Enabled:     enabled,
		Schedule:    schedule,
		PortfolioID: p.ID,
		Consensus:   models.ConsensusConfig{Mode: models.ConsensusVetoPower},
		Sizing:      models.SizingConfig{Method: models.SizingEqualWeight, MaxPositions: 10},
	}
	if err := st.SaveStrategy(ctx, strategy); err != nil {
		t.Fatalf("saving strategy: %v", err)
	}
	return strategy
}

func TestScheduler_ReloadTracksEnabledStrategies(t *testing.T) {
	st := newSchedulerStore(t)
	ctx := context.Background()

	a := saveSchedulerStrategy(t, st, "a", "0 9 * * 1-5", true)
	saveSchedulerStrategy(t, st, "b", "30 9 * * 1-5", true)
	saveSchedulerStrategy(t, st, "off", "0 10 * * *", false)
	saveSchedulerStrategy(t, st, "no-schedule", "", true)
	saveSchedulerStrategy(t, st, "bad", "not a cron line", true)

	s := NewScheduler(st, "default", zerolog.Nop())
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	// Disabled, schedule-less, and unparseable strategies are not registered.
	if len(s.entries) != 2 {
		t.Fatalf("registered %d entries, want 2", len(s.entries))
	}
	if _, ok := s.entries[a.ID]; !ok {
		t.Error("strategy a not registered")
	}

	// Disabling a strategy drops its entry on the next reload.
	if err := st.SetStrategyEnabled(ctx, a.ID, false); err != nil {
		t.Fatalf("disabling: %v", err)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(s.entries) != 1 {
		t.Fatalf("registered %d entries after disable, want 1", len(s.entries))
	}
	if _, ok := s.entries[a.ID]; ok {
		t.Error("disabled strategy still registered")
	}
}

func TestScheduler_EnqueueDeduplicates(t *testing.T) {
	st := newSchedulerStore(t)
	ctx := context.Background()

	strategy := saveSchedulerStrategy(t, st, "a", "0 9 * * 1-5", true)
	s := NewScheduler(st, "default", zerolog.Nop())

	// Firing the tick twice enqueues one job: the second tick hits the
	// store-level dedupe and is a no-op.
	s.enqueue(*strategy)
	s.enqueue(*strategy)

	job, err := st.ClaimPendingJob(ctx, "w1", "default", time.Minute)
	if err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}
	if job.StrategyID != strategy.ID {
		t.Errorf("claimed job for %s, want %s", job.StrategyID, strategy.ID)
	}
	if second, err := st.ClaimPendingJob(ctx, "w2", "default", time.Minute); err != nil || second != nil {
		t.Errorf("duplicate job enqueued: job=%v err=%v", second, err)
	}
}
