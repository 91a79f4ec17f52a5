// Package sizing converts a scored candidate list, current holdings, and
// portfolio value into an ideal target allocation, then reconciles it into
// concrete sell/buy instructions.
package sizing

import (
	"fmt"
	"math"
	"sort"

	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/models"
)

// Input is the snapshot the sizer works from. Portfolio reads are taken once
// at the start of sizing; no lock is held through trade execution.
type Input struct {
	Candidates []models.Candidate
	Portfolio  *models.PortfolioSummary
	Config     models.SizingConfig
}

// OrderPlan is the reconciliation output: displacement exits free capital,
// sells shrink overweight positions, buys grow underweight ones. Sells
// always execute before buys.
type OrderPlan struct {
	Allocations   []models.TargetAllocation
	Displacements []models.ExitSignal
	Sells         []models.PositionSize
	Buys          []models.PositionSize
}

// Orders reports whether the plan contains any instruction.
func (p *OrderPlan) Orders() int {
	return len(p.Displacements) + len(p.Sells) + len(p.Buys)
}

// Sizer implements target-allocation reconciliation.
type Sizer struct{}

// NewSizer creates a position sizer.
func NewSizer() *Sizer {
	return &Sizer{}
}

// buyOrder pairs a buy instruction with its conviction for the cash guard.
type buyOrder struct {
	order      models.PositionSize
	conviction float64
	price      float64
}

// CalculateTargetOrders transforms candidates, holdings, and portfolio value
// into buy/sell instructions that move the portfolio toward the ideal
// allocation without violating cash or position-count constraints.
//
// Re-running with unchanged inputs after the plan executes produces no new
// orders: residual drift is always smaller than one share's price, and
// sub-share buys are never emitted.
func (s *Sizer) CalculateTargetOrders(in Input) (*OrderPlan, error) {
	if in.Portfolio == nil {
		return nil, enginerrors.ErrPortfolioNotFound
	}
	cfg := in.Config
	pv := in.Portfolio.TotalValue

	// A candidate with a missing or non-positive price is excluded before
	// allocation, never treated as a zero-value target. If every price is
	// unusable the feed is down: hold everything rather than liquidate.
	usable := make([]models.Candidate, 0, len(in.Candidates))
	unpriced := make(map[string]bool)
	for _, c := range in.Candidates {
		if c.Price > 0 {
			usable = append(usable, c)
		} else {
			unpriced[c.Symbol] = true
		}
	}
	if len(in.Candidates) > 0 && len(usable) == 0 {
		return nil, enginerrors.ErrNoPrices
	}

	allocations := s.calculateIdealAllocation(usable, pv, cfg)

	plan := &OrderPlan{Allocations: allocations}

	kept := make(map[string]bool, len(allocations))
	for _, alloc := range allocations {
		kept[alloc.Symbol] = true
	}

	// Displacement: held symbols outside the kept set are exited in full,
	// freeing capital for higher-conviction candidates.
	for _, sym := range sortedSymbols(in.Portfolio.Holdings) {
		if kept[sym] {
			continue
		}
		// A held candidate dropped only because its price was unusable is a
		// feed gap, not a ranking loss: hold it rather than liquidate.
		if unpriced[sym] {
			continue
		}
		h := in.Portfolio.Holdings[sym]
		plan.Displacements = append(plan.Displacements, models.ExitSignal{
			Symbol:       sym,
			Quantity:     h.Quantity,
			Reason:       "displaced by higher-conviction candidate",
			ReasonCode:   models.ExitReasonDisplacement,
			CurrentValue: h.CurrentValue,
			GainPct:      h.GainPct,
			ExitType:     models.ExitFull,
		})
	}

	var buys []buyOrder
	for i := range plan.Allocations {
		alloc := &plan.Allocations[i]
		holding, held := in.Portfolio.Holdings[alloc.Symbol]
		if held {
			alloc.CurrentValue = holding.CurrentValue
		}
		alloc.Drift = alloc.TargetValue - alloc.CurrentValue

		// Drift inside the tolerance band generates no order; this is what
		// prevents thrashing on small rebalances.
		tolerance := cfg.MinTradeAmount
		if !held {
			if cfg.MinPositionValue > 0 {
				tolerance = cfg.MinPositionValue
			}
		}
		if math.Abs(alloc.Drift) < tolerance {
			continue
		}

		if alloc.Drift < 0 {
			if !held {
				continue // nothing to trim
			}
			shares := int(math.Floor(-alloc.Drift / alloc.Price))
			if shares > holding.Quantity {
				shares = holding.Quantity
			}
			if shares <= 0 {
				continue
			}
			reason := fmt.Sprintf("trim toward target %.0f", alloc.TargetValue)
			if shares == holding.Quantity {
				reason = "full exit toward zero target"
			}
			plan.Sells = append(plan.Sells, models.PositionSize{
				Symbol:         alloc.Symbol,
				Side:           models.SideSell,
				Shares:         shares,
				EstimatedValue: float64(shares) * alloc.Price,
				Reasoning:      reason,
			})
			continue
		}

		shares := int(math.Floor(alloc.Drift / alloc.Price))
		if shares <= 0 {
			continue
		}

		// Position-limit guard: cap the buy so the projected value stays
		// within max_position_pct of portfolio value.
		capValue := cfg.MaxPositionPct / 100 * pv
		if cfg.MaxPositionPct > 0 {
			projected := alloc.CurrentValue + float64(shares)*alloc.Price
			if projected > capValue {
				headroom := capValue - alloc.CurrentValue
				shares = int(math.Floor(headroom / alloc.Price))
				if shares <= 0 {
					continue // already at max position
				}
			}
		}

		buys = append(buys, buyOrder{
			order: models.PositionSize{
				Symbol:         alloc.Symbol,
				Side:           models.SideBuy,
				Shares:         shares,
				EstimatedValue: float64(shares) * alloc.Price,
				Reasoning:      fmt.Sprintf("conviction %.0f, drift %.0f toward target", alloc.Conviction, alloc.Drift),
			},
			conviction: alloc.Conviction,
			price:      alloc.Price,
		})
	}

	plan.Buys = s.applyCashGuard(buys, in.Portfolio.Cash, plan)
	return plan, nil
}

// calculateIdealAllocation ranks candidates by conviction, keeps at most
// max_positions, and computes each kept candidate's target dollar value.
func (s *Sizer) calculateIdealAllocation(candidates []models.Candidate, pv float64, cfg models.SizingConfig) []models.TargetAllocation {
	ranked := make([]models.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Conviction != ranked[j].Conviction {
			return ranked[i].Conviction > ranked[j].Conviction
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	if len(ranked) > cfg.MaxPositions {
		ranked = ranked[:cfg.MaxPositions]
	}
	if len(ranked) == 0 {
		return nil
	}

	allocations := make([]models.TargetAllocation, 0, len(ranked))

	switch cfg.Method {
	case models.SizingFixedPct:
		target := pv * cfg.FixedPositionPct / 100
		for _, c := range ranked {
			allocations = append(allocations, models.TargetAllocation{
				Symbol: c.Symbol, Conviction: c.Conviction, TargetValue: target, Price: c.Price,
			})
		}

	case models.SizingConvictionWeighted:
		var total float64
		for _, c := range ranked {
			total += c.Conviction
		}
		capValue := cfg.MaxPositionPct / 100 * pv
		for _, c := range ranked {
			target := pv / float64(len(ranked))
			if total > 0 {
				target = pv * c.Conviction / total
			}
			if cfg.MaxPositionPct > 0 && target > capValue {
				target = capValue
			}
			allocations = append(allocations, models.TargetAllocation{
				Symbol: c.Symbol, Conviction: c.Conviction, TargetValue: target, Price: c.Price,
			})
		}

	default: // equal_weight
		n := len(ranked)
		if n > cfg.MaxPositions {
			n = cfg.MaxPositions
		}
		target := pv / float64(n)
		for _, c := range ranked {
			allocations = append(allocations, models.TargetAllocation{
				Symbol: c.Symbol, Conviction: c.Conviction, TargetValue: target, Price: c.Price,
			})
		}
	}

	// Targets never sum past portfolio value; fixed_pct with many positions
	// is scaled down proportionally.
	var sum float64
	for _, a := range allocations {
		sum += a.TargetValue
	}
	if sum > pv && sum > 0 {
		scale := pv / sum
		for i := range allocations {
			allocations[i].TargetValue *= scale
		}
	}

	return allocations
}

// applyCashGuard drops or shrinks buys, lowest conviction first, until the
// aggregate cost fits the cash that will be available after sells execute.
func (s *Sizer) applyCashGuard(buys []buyOrder, cash float64, plan *OrderPlan) []models.PositionSize {
	if len(buys) == 0 {
		return nil
	}

	budget := cash
	for _, d := range plan.Displacements {
		budget += d.CurrentValue
	}
	for _, sell := range plan.Sells {
		budget += sell.EstimatedValue
	}

	sort.SliceStable(buys, func(i, j int) bool {
		if buys[i].conviction != buys[j].conviction {
			return buys[i].conviction > buys[j].conviction
		}
		return buys[i].order.Symbol < buys[j].order.Symbol
	})

	var kept []models.PositionSize
	remaining := budget
	for _, b := range buys {
		if b.order.EstimatedValue <= remaining {
			kept = append(kept, b.order)
			remaining -= b.order.EstimatedValue
			continue
		}
		shares := int(math.Floor(remaining / b.price))
		if shares <= 0 {
			continue // dropped: lower-conviction buys go first
		}
		order := b.order
		order.Shares = shares
		order.EstimatedValue = float64(shares) * b.price
		order.Reasoning = order.Reasoning + "; scaled down to fit cash"
		kept = append(kept, order)
		remaining -= order.EstimatedValue
	}
	return kept
}

func sortedSymbols(holdings map[string]models.Holding) []string {
	symbols := make([]string, 0, len(holdings))
	for sym := range holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}
