// Package exits evaluates existing holdings for forced exits: price and time
// thresholds, score degradation, and universe non-compliance.
package exits

import (
	"fmt"
	"sort"
	"time"

	"strategy-engine/internal/models"
)

// Input is the holdings snapshot an exit check runs against. Evaluators are
// state-free; everything they need arrives here.
type Input struct {
	Holdings     map[string]models.Holding
	EntryDates   map[string]time.Time
	Conditions   models.ExitConditions
	Opinions     map[string]map[string]models.Opinion // re-scored holdings, by symbol then character
	CandidateSet map[string]bool                      // symbols passing the current universe filters
	Now          time.Time
}

// Checker evaluates exit conditions against a holdings snapshot.
type Checker struct{}

// NewChecker creates an exit-condition checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check runs all exit sources and merges their signals, deduplicated by
// symbol with the first match winning. Price/time exits are checked first,
// then score degradation, then universe compliance.
func (c *Checker) Check(in Input) []models.ExitSignal {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	var all []models.ExitSignal
	all = append(all, c.CheckPriceTimeExits(in)...)
	all = append(all, c.CheckScoreDegradation(in)...)
	all = append(all, c.CheckUniverseCompliance(in)...)

	return dedupeBySymbol(all)
}

// CheckPriceTimeExits compares each holding's gain against the profit target
// and stop loss, and its age against max_hold_days.
func (c *Checker) CheckPriceTimeExits(in Input) []models.ExitSignal {
	cond := in.Conditions
	var signals []models.ExitSignal

	for _, sym := range sortedSymbols(in.Holdings) {
		h := in.Holdings[sym]
		if h.Quantity <= 0 {
			continue
		}

		if cond.ProfitTargetPct > 0 && h.GainPct >= cond.ProfitTargetPct {
			signals = append(signals, signal(h, models.ExitReasonProfitTarget,
				fmt.Sprintf("profit target reached: %.1f%% >= %.1f%%", h.GainPct, cond.ProfitTargetPct)))
			continue
		}

		if cond.StopLossPct > 0 && h.GainPct <= -cond.StopLossPct {
			signals = append(signals, signal(h, models.ExitReasonStopLoss,
				fmt.Sprintf("stop loss hit: %.1f%% <= -%.1f%%", h.GainPct, cond.StopLossPct)))
			continue
		}

		if cond.MaxHoldDays > 0 {
			entry, ok := in.EntryDates[sym]
			if ok {
				heldDays := int(in.Now.Sub(entry).Hours() / 24)
				if heldDays >= cond.MaxHoldDays {
					signals = append(signals, signal(h, models.ExitReasonMaxHoldDays,
						fmt.Sprintf("held %d days, limit %d", heldDays, cond.MaxHoldDays)))
				}
			}
		}
	}
	return signals
}

// CheckScoreDegradation exits a holding when every configured character's
// re-score falls below its threshold. Any one passing opinion preserves the
// hold. A missing opinion counts as passing.
func (c *Checker) CheckScoreDegradation(in Input) []models.ExitSignal {
	thresholds := in.Conditions.ScoreDegradation
	if len(thresholds) == 0 {
		return nil
	}

	var signals []models.ExitSignal
	for _, sym := range sortedSymbols(in.Holdings) {
		h := in.Holdings[sym]
		if h.Quantity <= 0 || c.inGracePeriod(sym, in) {
			continue
		}

		opinions := in.Opinions[sym]
		allBelow := true
		for character, threshold := range thresholds {
			op, ok := opinions[character]
			if !ok || op.Score >= threshold {
				allBelow = false
				break
			}
		}
		if allBelow {
			signals = append(signals, signal(h, models.ExitReasonScoreDegradation,
				"all character scores degraded below thresholds"))
		}
	}
	return signals
}

// CheckUniverseCompliance exits a held symbol absent from the current
// filtered candidate set. A plain set lookup keeps this cheap enough to run
// every cycle.
func (c *Checker) CheckUniverseCompliance(in Input) []models.ExitSignal {
	if in.CandidateSet == nil {
		return nil
	}

	var signals []models.ExitSignal
	for _, sym := range sortedSymbols(in.Holdings) {
		h := in.Holdings[sym]
		if h.Quantity <= 0 || c.inGracePeriod(sym, in) {
			continue
		}
		if !in.CandidateSet[sym] {
			signals = append(signals, signal(h, models.ExitReasonUniverse,
				"no longer passes universe filters"))
		}
	}
	return signals
}

// inGracePeriod exempts recently opened positions from universe and scoring
// re-checks, preventing churn immediately after entry. Price and time exits
// are not exempted.
func (c *Checker) inGracePeriod(symbol string, in Input) bool {
	if in.Conditions.GracePeriodDays <= 0 {
		return false
	}
	entry, ok := in.EntryDates[symbol]
	if !ok {
		return false
	}
	heldDays := int(in.Now.Sub(entry).Hours() / 24)
	return heldDays < in.Conditions.GracePeriodDays
}

func signal(h models.Holding, code models.ExitReason, reason string) models.ExitSignal {
	return models.ExitSignal{
		Symbol:       h.Symbol,
		Quantity:     h.Quantity,
		Reason:       reason,
		ReasonCode:   code,
		CurrentValue: h.CurrentValue,
		GainPct:      h.GainPct,
		ExitType:     models.ExitFull,
	}
}

// Merge combines exit signals from multiple sources (checker output plus
// sizing displacements), deduplicated by symbol with first match winning.
func Merge(sources ...[]models.ExitSignal) []models.ExitSignal {
	var all []models.ExitSignal
	for _, src := range sources {
		all = append(all, src...)
	}
	return dedupeBySymbol(all)
}

func dedupeBySymbol(signals []models.ExitSignal) []models.ExitSignal {
	seen := make(map[string]bool, len(signals))
	var out []models.ExitSignal
	for _, s := range signals {
		if seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		out = append(out, s)
	}
	return out
}

func sortedSymbols(holdings map[string]models.Holding) []string {
	symbols := make([]string, 0, len(holdings))
	for sym := range holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}
