package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategy-engine/internal/briefing"
	"strategy-engine/internal/engine"
	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/models"
	"strategy-engine/internal/store"
)

// stubExecutor stands in for the engine. It records which strategies it ran
// and can block or fail on demand.
type stubExecutor struct {
	block time.Duration
	err   error

	mu   sync.Mutex
	runs []string
}

func (s *stubExecutor) ExecuteRun(ctx context.Context, strategy *models.Strategy, run *models.StrategyRun, progress engine.ProgressFunc) (*briefing.Briefing, error) {
	s.mu.Lock()
	s.runs = append(s.runs, strategy.ID)
	s.mu.Unlock()

	if s.block > 0 {
		select {
		case <-time.After(s.block):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	progress(models.RunCompleted, 100, "done", 8, 8)
	return briefing.NewBuilder(strategy.Name, run.ID).WithPortfolio(100000, 100000).Build(), nil
}

func (s *stubExecutor) ranStrategies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs...)
}

func newWorkerStore(t *testing.T) (store.DataStore, *models.Strategy) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	p, err := st.CreatePortfolio(ctx, "pending", 100000)
	if err != nil {
		t.Fatalf("creating portfolio: %v", err)
	}
	strategy := &models.Strategy{
		Name:            "worker test",
		Enabled:         true,
		Schedule:        "0 9 * * 1-5",
		PortfolioID:     p.ID,
		BenchmarkSymbol: "SPY",
		Consensus:       models.ConsensusConfig{Mode: models.ConsensusVetoPower, Threshold: 70, VetoScoreThreshold: 30, LynchWeight: 0.5, BuffettWeight: 0.5, PrimaryCharacter: "lynch"},
		Sizing:          models.SizingConfig{Method: models.SizingEqualWeight, MaxPositionPct: 20, MaxPositions: 10, MinTradeAmount: 100},
	}
	if err := st.SaveStrategy(ctx, strategy); err != nil {
		t.Fatalf("saving strategy: %v", err)
	}
	return st, strategy
}

func testConfig() Config {
	return Config{
		PollInterval:      10 * time.Millisecond,
		LeaseDuration:     time.Minute,
		HeartbeatInterval: 20 * time.Millisecond,
		Tier:              "default",
	}
}

// runWorker starts the poll loop and returns a stop function that blocks
// until the worker exits.
func runWorker(t *testing.T, w *Worker) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorker_CompletesClaimedJob(t *testing.T) {
	st, strategy := newWorkerStore(t)
	ctx := context.Background()

	job, err := st.EnqueueJob(ctx, strategy.ID, "default")
	if err != nil || job == nil {
		t.Fatalf("enqueue: job=%v err=%v", job, err)
	}

	exec := &stubExecutor{}
	w := NewWorker(st, exec, testConfig(), zerolog.Nop())
	stop := runWorker(t, w)
	defer stop()

	// Completion clears the enqueue dedupe window, so a fresh enqueue
	// succeeding proves the job reached the completed state.
	waitFor(t, 5*time.Second, func() bool {
		if len(exec.ranStrategies()) == 0 {
			return false
		}
		next, err := st.EnqueueJob(ctx, strategy.ID, "other-tier")
		return err == nil && next != nil
	})

	if got := exec.ranStrategies(); got[0] != strategy.ID {
		t.Errorf("executed strategy %s, want %s", got[0], strategy.ID)
	}
}

func TestWorker_FailedRunMarksJobFailed(t *testing.T) {
	st, strategy := newWorkerStore(t)
	ctx := context.Background()

	if _, err := st.EnqueueJob(ctx, strategy.ID, "default"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	exec := &stubExecutor{err: errors.New("provider down")}
	w := NewWorker(st, exec, testConfig(), zerolog.Nop())
	stop := runWorker(t, w)
	defer stop()

	// A failed job leaves the queue; the strategy becomes enqueueable again.
	waitFor(t, 5*time.Second, func() bool {
		if len(exec.ranStrategies()) == 0 {
			return false
		}
		next, err := st.EnqueueJob(ctx, strategy.ID, "other-tier")
		return err == nil && next != nil
	})
}

func TestWorker_DisabledStrategyFailsJob(t *testing.T) {
	st, strategy := newWorkerStore(t)
	ctx := context.Background()

	if _, err := st.EnqueueJob(ctx, strategy.ID, "default"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := st.SetStrategyEnabled(ctx, strategy.ID, false); err != nil {
		t.Fatalf("disabling strategy: %v", err)
	}

	exec := &stubExecutor{}
	w := NewWorker(st, exec, testConfig(), zerolog.Nop())
	stop := runWorker(t, w)
	defer stop()

	waitFor(t, 5*time.Second, func() bool {
		// Disabled strategies are rejected before a run is created, and the
		// job is done with once it fails.
		next, err := st.EnqueueJob(ctx, strategy.ID, "other-tier")
		return err == nil && next != nil
	})

	if got := exec.ranStrategies(); len(got) != 0 {
		t.Errorf("executor ran for a disabled strategy: %v", got)
	}
}

func TestWorker_AbandonsJobOnLostLease(t *testing.T) {
	st, strategy := newWorkerStore(t)
	ctx := context.Background()

	job, err := st.EnqueueJob(ctx, strategy.ID, "default")
	if err != nil || job == nil {
		t.Fatalf("enqueue: job=%v err=%v", job, err)
	}

	// Heartbeats far apart and a short lease: the lease expires mid-run and
	// a rival worker steals the job before our heartbeat fires.
	cfg := testConfig()
	cfg.LeaseDuration = 50 * time.Millisecond
	cfg.HeartbeatInterval = 250 * time.Millisecond

	exec := &stubExecutor{block: 10 * time.Second}
	w := NewWorker(st, exec, cfg, zerolog.Nop())
	stop := runWorker(t, w)
	defer stop()

	waitFor(t, 5*time.Second, func() bool { return len(exec.ranStrategies()) > 0 })

	// Let the lease lapse, then steal it.
	time.Sleep(70 * time.Millisecond)
	var stolen *models.Job
	waitFor(t, 5*time.Second, func() bool {
		stolen, err = st.ClaimPendingJob(ctx, "rival-worker", "default", time.Minute)
		return err == nil && stolen != nil
	})

	// The original worker's next heartbeat notices the loss and cancels the
	// run. It must not touch the job row on its way out: the rival's lease
	// stays valid.
	waitFor(t, 5*time.Second, func() bool {
		return st.UpdateJobHeartbeat(ctx, stolen.ID, "rival-worker", time.Minute) == nil
	})

	if err := st.UpdateJobHeartbeat(ctx, stolen.ID, w.ID(), time.Minute); !enginerrors.Is(err, enginerrors.ErrLeaseLost) {
		t.Errorf("original worker should have lost the lease, got %v", err)
	}
}
