package benchmark

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"strategy-engine/internal/models"
	"strategy-engine/internal/store"
)

type priceProvider struct {
	prices map[string]float64
	err    error
}

func (p *priceProvider) GetStockMetrics(ctx context.Context, symbol string) (*models.StockMetrics, error) {
	return nil, errors.New("not implemented")
}

func (p *priceProvider) GetMetricsSnapshot(ctx context.Context) ([]models.StockMetrics, error) {
	return nil, errors.New("not implemented")
}

func (p *priceProvider) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.prices, nil
}

func newTestTracker(t *testing.T, provider *priceProvider) (*Tracker, store.DataStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewTracker(st, provider, "SPY", zerolog.Nop()), st
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestCompare_ReturnsAndAlpha(t *testing.T) {
	tracker, st := newTestTracker(t, &priceProvider{})
	ctx := context.Background()

	for _, snap := range []models.BenchmarkSnapshot{
		{StrategyID: "s1", PortfolioValue: 100000, BenchmarkPrice: 500},
		{StrategyID: "s1", PortfolioValue: 105000, BenchmarkPrice: 510},
		{StrategyID: "s1", PortfolioValue: 110000, BenchmarkPrice: 515},
	} {
		if err := st.SaveBenchmarkSnapshot(ctx, snap); err != nil {
			t.Fatalf("saving snapshot: %v", err)
		}
	}

	cmp, err := tracker.Compare(ctx, "s1")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !approx(cmp.PortfolioReturn, 10) {
		t.Errorf("portfolio return = %v, want 10", cmp.PortfolioReturn)
	}
	if !approx(cmp.BenchmarkReturn, 3) {
		t.Errorf("benchmark return = %v, want 3", cmp.BenchmarkReturn)
	}
	if !approx(cmp.Alpha, 7) {
		t.Errorf("alpha = %v, want 7", cmp.Alpha)
	}
	if cmp.Snapshots != 3 {
		t.Errorf("snapshots = %d, want 3", cmp.Snapshots)
	}
}

func TestCompare_SkipsZeroBenchmarkPrices(t *testing.T) {
	tracker, st := newTestTracker(t, &priceProvider{})
	ctx := context.Background()

	// The middle snapshot was recorded while the provider was down.
	for _, snap := range []models.BenchmarkSnapshot{
		{StrategyID: "s1", PortfolioValue: 100000, BenchmarkPrice: 400},
		{StrategyID: "s1", PortfolioValue: 90000, BenchmarkPrice: 0},
		{StrategyID: "s1", PortfolioValue: 120000, BenchmarkPrice: 440},
	} {
		if err := st.SaveBenchmarkSnapshot(ctx, snap); err != nil {
			t.Fatalf("saving snapshot: %v", err)
		}
	}

	cmp, err := tracker.Compare(ctx, "s1")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !approx(cmp.PortfolioReturn, 20) {
		t.Errorf("portfolio return = %v, want 20", cmp.PortfolioReturn)
	}
	if !approx(cmp.BenchmarkReturn, 10) {
		t.Errorf("benchmark return = %v, want 10", cmp.BenchmarkReturn)
	}
}

func TestCompare_NotEnoughSnapshots(t *testing.T) {
	tracker, st := newTestTracker(t, &priceProvider{})
	ctx := context.Background()

	if _, err := tracker.Compare(ctx, "s1"); !errors.Is(err, ErrNotEnoughSnapshots) {
		t.Errorf("empty series: got %v, want ErrNotEnoughSnapshots", err)
	}

	if err := st.SaveBenchmarkSnapshot(ctx, models.BenchmarkSnapshot{
		StrategyID: "s1", PortfolioValue: 100000, BenchmarkPrice: 500,
	}); err != nil {
		t.Fatalf("saving snapshot: %v", err)
	}
	if _, err := tracker.Compare(ctx, "s1"); !errors.Is(err, ErrNotEnoughSnapshots) {
		t.Errorf("single snapshot: got %v, want ErrNotEnoughSnapshots", err)
	}
}

func TestRecord_ProviderFailureStillPersists(t *testing.T) {
	tracker, st := newTestTracker(t, &priceProvider{err: errors.New("timeout")})
	ctx := context.Background()

	if err := tracker.Record(ctx, "s1", "r1", 123456); err != nil {
		t.Fatalf("record should degrade, not fail: %v", err)
	}

	snaps, err := st.GetBenchmarkSnapshots(ctx, "s1")
	if err != nil {
		t.Fatalf("loading snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].PortfolioValue != 123456 {
		t.Errorf("portfolio value = %v", snaps[0].PortfolioValue)
	}
	if snaps[0].BenchmarkPrice != 0 {
		t.Errorf("degraded snapshot should carry a zero benchmark price, got %v", snaps[0].BenchmarkPrice)
	}
}

func TestRecord_CapturesBenchmarkPrice(t *testing.T) {
	tracker, st := newTestTracker(t, &priceProvider{prices: map[string]float64{"SPY": 512.34}})
	ctx := context.Background()

	if err := tracker.Record(ctx, "s1", "r1", 100000); err != nil {
		t.Fatalf("record: %v", err)
	}
	snaps, err := st.GetBenchmarkSnapshots(ctx, "s1")
	if err != nil {
		t.Fatalf("loading snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].BenchmarkPrice != 512.34 {
		t.Fatalf("snapshots = %+v", snaps)
	}
}
