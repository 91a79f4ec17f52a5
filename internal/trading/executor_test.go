package trading

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategy-engine/internal/models"
	"strategy-engine/internal/sizing"
	"strategy-engine/internal/store"
)

func setup(t *testing.T, cash float64) (*Executor, store.DataStore, *models.Portfolio) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "trading.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	p, err := st.CreatePortfolio(context.Background(), "s1", cash)
	if err != nil {
		t.Fatalf("creating portfolio: %v", err)
	}
	return NewExecutor(st, zerolog.Nop()), st, p
}

func seed(t *testing.T, st store.DataStore, portfolioID, symbol string, qty int, price float64, version int64) int64 {
	t.Helper()
	v, err := st.ApplyTrade(context.Background(), &models.Trade{
		PortfolioID: portfolioID, Symbol: symbol, Side: models.SideBuy,
		Quantity: qty, Price: price, ExecutedAt: time.Now().UTC(),
	}, version)
	if err != nil {
		t.Fatalf("seeding %s: %v", symbol, err)
	}
	return v
}

func TestExecute_SellsBeforeBuys(t *testing.T) {
	exec, st, p := setup(t, 10000)
	ctx := context.Background()

	v := seed(t, st, p.ID, "OLD", 100, 90, 0) // 9000 invested, 1000 cash left
	summary, err := st.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Version != v {
		t.Fatalf("version mismatch: %d vs %d", summary.Version, v)
	}

	// Plan: exit OLD entirely, buy NEW with the proceeds. The buy only
	// clears if the exit lands on the ledger first.
	exits := []models.ExitSignal{{
		Symbol: "OLD", Quantity: 100, Reason: "displaced",
		ReasonCode: models.ExitReasonDisplacement, CurrentValue: 9000,
	}}
	plan := &sizing.OrderPlan{
		Allocations: []models.TargetAllocation{
			{Symbol: "NEW", TargetValue: 9500, Price: 95, Conviction: 80},
		},
		Buys: []models.PositionSize{
			{Symbol: "NEW", Side: models.SideBuy, Shares: 100, EstimatedValue: 9500},
		},
	}

	res, err := exec.Execute(ctx, summary, "r1", exits, plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Exits) != 1 || len(res.Buys) != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	after, _ := st.GetPortfolioSummary(ctx, p.ID)
	if _, held := after.Holdings["OLD"]; held {
		t.Error("OLD still held after exit")
	}
	if h := after.Holdings["NEW"]; h.Quantity != 100 {
		t.Errorf("NEW quantity = %d", h.Quantity)
	}
	if res.FinalVersion != after.Version {
		t.Errorf("final version %d != ledger version %d", res.FinalVersion, after.Version)
	}
}

func TestExecute_FailedBuySkippedNotFatal(t *testing.T) {
	exec, st, p := setup(t, 1000)
	ctx := context.Background()

	summary, _ := st.GetPortfolioSummary(ctx, p.ID)

	// Second buy overruns cash; it is skipped while the first sticks.
	plan := &sizing.OrderPlan{
		Allocations: []models.TargetAllocation{
			{Symbol: "AAA", Price: 50, Conviction: 90},
			{Symbol: "BBB", Price: 50, Conviction: 80},
		},
		Buys: []models.PositionSize{
			{Symbol: "AAA", Side: models.SideBuy, Shares: 10, EstimatedValue: 500},
			{Symbol: "BBB", Side: models.SideBuy, Shares: 40, EstimatedValue: 2000},
		},
	}

	res, err := exec.Execute(ctx, summary, "r1", nil, plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Buys) != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Buys[0].Symbol != "AAA" {
		t.Errorf("executed buy = %+v, want AAA", res.Buys[0])
	}

	after, _ := st.GetPortfolioSummary(ctx, p.ID)
	if after.Cash != 500 {
		t.Errorf("cash = %v, want 500", after.Cash)
	}
	if _, held := after.Holdings["BBB"]; held {
		t.Error("failed buy landed on the ledger")
	}
}

func TestExecute_VersionConflictAborts(t *testing.T) {
	exec, st, p := setup(t, 10000)
	ctx := context.Background()

	summary, _ := st.GetPortfolioSummary(ctx, p.ID)

	// Concurrent mutation after the snapshot was taken.
	seed(t, st, p.ID, "RACE", 10, 50, 0)

	plan := &sizing.OrderPlan{
		Allocations: []models.TargetAllocation{{Symbol: "AAA", Price: 50, Conviction: 90}},
		Buys: []models.PositionSize{
			{Symbol: "AAA", Side: models.SideBuy, Shares: 10, EstimatedValue: 500},
		},
	}

	if _, err := exec.Execute(ctx, summary, "r1", nil, plan); err == nil {
		t.Fatal("expected version conflict to abort the pass")
	}
}

func TestExecute_ExitClampedToHeldQuantity(t *testing.T) {
	exec, st, p := setup(t, 10000)
	ctx := context.Background()

	seed(t, st, p.ID, "AAA", 10, 100, 0)
	summary, _ := st.GetPortfolioSummary(ctx, p.ID)

	exits := []models.ExitSignal{{
		Symbol: "AAA", Quantity: 25, Reason: "stop loss",
		ReasonCode: models.ExitReasonStopLoss,
	}}
	res, err := exec.Execute(ctx, summary, "r1", exits, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Exits) != 1 {
		t.Fatalf("result = %+v", res)
	}
	// The recorded fill reflects the clamped quantity, not the signal's.
	if res.Exits[0].Quantity != 10 {
		t.Errorf("filled quantity = %d, want 10", res.Exits[0].Quantity)
	}

	after, _ := st.GetPortfolioSummary(ctx, p.ID)
	if _, held := after.Holdings["AAA"]; held {
		t.Error("oversized exit did not close the position cleanly")
	}
}
