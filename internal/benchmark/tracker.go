// Package benchmark records portfolio value against a benchmark index and
// computes relative performance.
package benchmark

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"strategy-engine/internal/marketdata"
	"strategy-engine/internal/models"
	"strategy-engine/internal/store"
)

// ErrNotEnoughSnapshots is returned by Compare when fewer than two snapshots
// exist for the strategy.
var ErrNotEnoughSnapshots = errors.New("not enough benchmark snapshots")

// Tracker snapshots portfolio value alongside the benchmark price at the end
// of each run.
type Tracker struct {
	store    store.DataStore
	provider marketdata.Provider
	symbol   string
	logger   zerolog.Logger
}

// NewTracker creates a benchmark tracker. Symbol is the benchmark proxy,
// typically an index ETF.
func NewTracker(st store.DataStore, provider marketdata.Provider, symbol string, logger zerolog.Logger) *Tracker {
	if symbol == "" {
		symbol = "SPY"
	}
	return &Tracker{store: st, provider: provider, symbol: symbol, logger: logger}
}

// Record fetches the benchmark price and persists a snapshot. A provider
// failure degrades: the snapshot is saved with a zero benchmark price so the
// portfolio series stays unbroken.
func (t *Tracker) Record(ctx context.Context, strategyID, runID string, portfolioValue float64) error {
	var benchPrice float64
	prices, err := t.provider.GetPrices(ctx, []string{t.symbol})
	if err != nil {
		t.logger.Warn().Err(err).Str("benchmark", t.symbol).Msg("benchmark price unavailable")
	} else {
		benchPrice = prices[t.symbol]
	}

	snap := models.BenchmarkSnapshot{
		StrategyID:     strategyID,
		RunID:          runID,
		PortfolioValue: portfolioValue,
		BenchmarkPrice: benchPrice,
		RecordedAt:     time.Now().UTC(),
	}
	return t.store.SaveBenchmarkSnapshot(ctx, snap)
}

// Comparison is portfolio return measured against the benchmark over the
// recorded snapshot series.
type Comparison struct {
	Symbol          string
	PortfolioReturn float64 // percent since first snapshot
	BenchmarkReturn float64 // percent since first snapshot
	Alpha           float64 // portfolio minus benchmark
	Snapshots       int
	Since           time.Time
}

// Compare computes strategy return versus benchmark return from the snapshot
// series. Snapshots with a zero benchmark price are skipped for the
// benchmark leg but still count for the portfolio leg.
func (t *Tracker) Compare(ctx context.Context, strategyID string) (*Comparison, error) {
	snaps, err := t.store.GetBenchmarkSnapshots(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if len(snaps) < 2 {
		return nil, ErrNotEnoughSnapshots
	}

	first, last := snaps[0], snaps[len(snaps)-1]
	cmp := &Comparison{
		Symbol:    t.symbol,
		Snapshots: len(snaps),
		Since:     first.RecordedAt,
	}
	if first.PortfolioValue > 0 {
		cmp.PortfolioReturn = (last.PortfolioValue - first.PortfolioValue) / first.PortfolioValue * 100
	}

	var firstBench, lastBench float64
	for _, s := range snaps {
		if s.BenchmarkPrice > 0 {
			if firstBench == 0 {
				firstBench = s.BenchmarkPrice
			}
			lastBench = s.BenchmarkPrice
		}
	}
	if firstBench > 0 && lastBench > 0 {
		cmp.BenchmarkReturn = (lastBench - firstBench) / firstBench * 100
	}
	cmp.Alpha = cmp.PortfolioReturn - cmp.BenchmarkReturn
	return cmp, nil
}
