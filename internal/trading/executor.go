// Package trading executes order plans against the simulated portfolio
// ledger.
package trading

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/logging"
	"strategy-engine/internal/models"
	"strategy-engine/internal/sizing"
	"strategy-engine/internal/store"
)

// Executor turns exit signals and an order plan into persisted trades.
// Trades run sequentially: exits first, then trims, then buys, so freed
// capital is on the ledger before any buy draws on it.
type Executor struct {
	store  store.DataStore
	logger zerolog.Logger
}

// NewExecutor creates a trade executor.
func NewExecutor(st store.DataStore, logger zerolog.Logger) *Executor {
	return &Executor{store: st, logger: logger}
}

// Result holds the trades that actually reached the ledger in one execution
// pass, with exit quantities as filled. Failed counts orders that were
// skipped.
type Result struct {
	Exits        []models.ExitSignal
	Sells        []models.PositionSize
	Buys         []models.PositionSize
	Failed       int
	FinalVersion int64
}

// Trades executed in this pass.
func (r *Result) Trades() int {
	return len(r.Exits) + len(r.Sells) + len(r.Buys)
}

// Execute runs exits, then the plan's sells and buys, against the portfolio.
// Each trade is applied with the version returned by the previous one; a
// version conflict aborts the pass so the caller can re-snapshot. Any other
// per-trade failure is logged and skipped.
func (e *Executor) Execute(ctx context.Context, portfolio *models.PortfolioSummary, runID string, exitSignals []models.ExitSignal, plan *sizing.OrderPlan) (*Result, error) {
	res := &Result{FinalVersion: portfolio.Version}
	version := portfolio.Version

	for _, sig := range exitSignals {
		h, held := portfolio.Holdings[sig.Symbol]
		if !held || h.Quantity <= 0 {
			continue
		}
		qty := sig.Quantity
		if qty <= 0 || qty > h.Quantity {
			qty = h.Quantity
		}
		newVersion, err := e.apply(ctx, portfolio.PortfolioID, runID, sig.Symbol, models.SideSell, qty, h.CurrentPrice, sig.Reason, version)
		if err != nil {
			if enginerrors.Is(err, enginerrors.ErrVersionConflict) {
				return res, err
			}
			res.Failed++
			continue
		}
		version = newVersion
		filled := sig
		filled.Quantity = qty
		filled.CurrentValue = float64(qty) * h.CurrentPrice
		res.Exits = append(res.Exits, filled)
		logging.LogExit(e.logger, sig.Symbol, string(sig.ReasonCode), qty, sig.GainPct)
	}

	if plan != nil {
		for _, sell := range plan.Sells {
			price := priceFor(portfolio, plan, sell.Symbol)
			if price <= 0 {
				res.Failed++
				continue
			}
			newVersion, err := e.apply(ctx, portfolio.PortfolioID, runID, sell.Symbol, models.SideSell, sell.Shares, price, sell.Reasoning, version)
			if err != nil {
				if enginerrors.Is(err, enginerrors.ErrVersionConflict) {
					return res, err
				}
				res.Failed++
				continue
			}
			version = newVersion
			res.Sells = append(res.Sells, sell)
		}

		for _, buy := range plan.Buys {
			price := priceFor(portfolio, plan, buy.Symbol)
			if price <= 0 {
				res.Failed++
				continue
			}
			newVersion, err := e.apply(ctx, portfolio.PortfolioID, runID, buy.Symbol, models.SideBuy, buy.Shares, price, buy.Reasoning, version)
			if err != nil {
				if enginerrors.Is(err, enginerrors.ErrVersionConflict) {
					return res, err
				}
				res.Failed++
				e.logger.Warn().Err(err).Str("symbol", buy.Symbol).Msg("buy skipped")
				continue
			}
			version = newVersion
			res.Buys = append(res.Buys, buy)
		}
	}

	res.FinalVersion = version
	return res, nil
}

func (e *Executor) apply(ctx context.Context, portfolioID, runID, symbol string, side models.OrderSide, qty int, price float64, note string, version int64) (int64, error) {
	trade := &models.Trade{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		RunID:       runID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		Value:       float64(qty) * price,
		Note:        note,
		ExecutedAt:  time.Now().UTC(),
	}

	newVersion, err := e.store.ApplyTrade(ctx, trade, version)
	if err != nil {
		return version, enginerrors.NewTradeError(portfolioID, symbol, string(side), "ledger apply failed", err)
	}
	logging.LogTrade(e.logger, symbol, string(side), qty, price)
	return newVersion, nil
}

// priceFor resolves the execution price for a symbol: the plan's allocation
// price for candidates, the holding's current price otherwise.
func priceFor(portfolio *models.PortfolioSummary, plan *sizing.OrderPlan, symbol string) float64 {
	for _, a := range plan.Allocations {
		if a.Symbol == symbol && a.Price > 0 {
			return a.Price
		}
	}
	if h, ok := portfolio.Holdings[symbol]; ok {
		return h.CurrentPrice
	}
	return 0
}
