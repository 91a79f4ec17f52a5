// Package scoring produces the two independent per-symbol opinions that feed
// consensus: a growth-oriented scorer ("lynch") and a value-oriented scorer
// ("buffett"). Each is a weighted composite over the fundamentals snapshot.
package scoring

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"strategy-engine/internal/models"
)

// Character names used throughout the engine.
const (
	CharacterLynch   = "lynch"
	CharacterBuffett = "buffett"
)

// Scorer produces one character's opinion of a symbol.
type Scorer interface {
	Name() string
	Score(m models.StockMetrics) models.Opinion
}

// statusFor maps a composite score to a directional stance.
func statusFor(score float64) models.OpinionStatus {
	switch {
	case score >= 60:
		return models.StatusBullish
	case score <= 40:
		return models.StatusBearish
	default:
		return models.StatusNeutral
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// LynchScorer favors growth: earnings and revenue momentum, growth at a
// reasonable price, margins.
type LynchScorer struct{}

// Name returns the character name.
func (s *LynchScorer) Name() string { return CharacterLynch }

// Score computes the growth composite for one symbol.
func (s *LynchScorer) Score(m models.StockMetrics) models.Opinion {
	earnings := clamp(m.EarningsGrowth * 200) // 25% growth -> 50 points
	revenue := clamp(m.RevenueGrowth * 250)
	margin := clamp(m.ProfitMargin * 400)

	// Growth at a reasonable price: PEG below 1 scores full marks.
	garp := 50.0
	if m.PERatio > 0 && m.EarningsGrowth > 0 {
		peg := m.PERatio / (m.EarningsGrowth * 100)
		garp = clamp((2 - peg) * 50)
	}

	score := earnings*0.35 + revenue*0.25 + garp*0.25 + margin*0.15
	return models.Opinion{
		Character: s.Name(),
		Score:     clamp(score),
		Status:    statusFor(score),
	}
}

// BuffettScorer favors durable value: returns on equity, conservative
// leverage, free-cash-flow yield, and a price that is not exuberant.
type BuffettScorer struct{}

// Name returns the character name.
func (s *BuffettScorer) Name() string { return CharacterBuffett }

// Score computes the value composite for one symbol.
func (s *BuffettScorer) Score(m models.StockMetrics) models.Opinion {
	roe := clamp(m.ReturnOnEquity * 400) // 25% ROE -> full marks

	leverage := 50.0
	if m.DebtToEquity >= 0 {
		leverage = clamp((1.5 - m.DebtToEquity) * 66.7)
	}

	fcfYield := 0.0
	if m.MarketCap > 0 && m.FreeCashFlow > 0 {
		fcfYield = clamp(m.FreeCashFlow / m.MarketCap * 1250) // 8% yield -> full marks
	}

	valuation := 50.0
	if m.PERatio > 0 {
		valuation = clamp((35 - m.PERatio) * 4)
	}

	margin := clamp(m.ProfitMargin * 400)

	score := roe*0.30 + leverage*0.15 + fcfYield*0.20 + valuation*0.20 + margin*0.15
	return models.Opinion{
		Character: s.Name(),
		Score:     clamp(score),
		Status:    statusFor(score),
	}
}

// DefaultScorers returns the engine's two character scorers.
func DefaultScorers() []Scorer {
	return []Scorer{&LynchScorer{}, &BuffettScorer{}}
}

// ScoreAll scores every symbol with every scorer over a bounded worker pool
// and returns opinions keyed by symbol then character.
func ScoreAll(ctx context.Context, scorers []Scorer, metrics []models.StockMetrics, concurrency int) map[string]map[string]models.Opinion {
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	opinions := make(map[string]map[string]models.Opinion, len(metrics))

	p := pool.New().WithMaxGoroutines(concurrency)
	for _, m := range metrics {
		m := m
		p.Go(func() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			perSymbol := make(map[string]models.Opinion, len(scorers))
			for _, sc := range scorers {
				perSymbol[sc.Name()] = sc.Score(m)
			}
			mu.Lock()
			opinions[m.Symbol] = perSymbol
			mu.Unlock()
		})
	}
	p.Wait()

	return opinions
}
