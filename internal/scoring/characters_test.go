package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"strategy-engine/internal/models"
)

func TestLynchScorer_GrowthProfile(t *testing.T) {
	s := &LynchScorer{}

	growth := models.StockMetrics{
		Symbol:         "GRW",
		PERatio:        18,
		EarningsGrowth: 0.30,
		RevenueGrowth:  0.25,
		ProfitMargin:   0.18,
	}
	op := s.Score(growth)
	if op.Character != CharacterLynch {
		t.Errorf("character = %s", op.Character)
	}
	if op.Status != models.StatusBullish {
		t.Errorf("fast grower should be bullish, got %s (score %.1f)", op.Status, op.Score)
	}

	stagnant := models.StockMetrics{
		Symbol:         "STG",
		PERatio:        40,
		EarningsGrowth: 0.01,
		RevenueGrowth:  0.00,
		ProfitMargin:   0.03,
	}
	op = s.Score(stagnant)
	if op.Status != models.StatusBearish {
		t.Errorf("stagnant company should be bearish, got %s (score %.1f)", op.Status, op.Score)
	}
}

func TestBuffettScorer_ValueProfile(t *testing.T) {
	s := &BuffettScorer{}

	quality := models.StockMetrics{
		Symbol:         "QLT",
		PERatio:        15,
		MarketCap:      50e9,
		FreeCashFlow:   4e9, // 8% fcf yield
		ReturnOnEquity: 0.25,
		DebtToEquity:   0.3,
		ProfitMargin:   0.20,
	}
	op := s.Score(quality)
	if op.Status != models.StatusBullish {
		t.Errorf("quality compounder should be bullish, got %s (score %.1f)", op.Status, op.Score)
	}

	levered := models.StockMetrics{
		Symbol:         "LEV",
		PERatio:        60,
		MarketCap:      10e9,
		FreeCashFlow:   -1e9,
		ReturnOnEquity: 0.02,
		DebtToEquity:   3.5,
		ProfitMargin:   0.01,
	}
	op = s.Score(levered)
	if op.Status != models.StatusBearish {
		t.Errorf("levered low-return company should be bearish, got %s (score %.1f)", op.Status, op.Score)
	}
}

func TestStatusBands(t *testing.T) {
	tests := []struct {
		score float64
		want  models.OpinionStatus
	}{
		{60, models.StatusBullish},
		{59.9, models.StatusNeutral},
		{40.1, models.StatusNeutral},
		{40, models.StatusBearish},
		{0, models.StatusBearish},
		{100, models.StatusBullish},
	}
	for _, tt := range tests {
		if got := statusFor(tt.score); got != tt.want {
			t.Errorf("statusFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestScoreAll_CompleteAndIndependent(t *testing.T) {
	snapshot := []models.StockMetrics{
		{Symbol: "AAA", EarningsGrowth: 0.2, RevenueGrowth: 0.15, ProfitMargin: 0.1, PERatio: 20, ReturnOnEquity: 0.15},
		{Symbol: "BBB", EarningsGrowth: 0.05, RevenueGrowth: 0.02, ProfitMargin: 0.04, PERatio: 35, ReturnOnEquity: 0.05},
		{Symbol: "CCC"},
	}

	opinions := ScoreAll(context.Background(), DefaultScorers(), snapshot, 2)
	if len(opinions) != len(snapshot) {
		t.Fatalf("expected opinions for all %d symbols, got %d", len(snapshot), len(opinions))
	}
	for _, m := range snapshot {
		perSymbol := opinions[m.Symbol]
		if len(perSymbol) != 2 {
			t.Errorf("%s: expected 2 opinions, got %d", m.Symbol, len(perSymbol))
		}
		for _, character := range []string{CharacterLynch, CharacterBuffett} {
			if _, ok := perSymbol[character]; !ok {
				t.Errorf("%s: missing %s opinion", m.Symbol, character)
			}
		}
	}
}

// Property: every composite score stays in [0, 100] and its status matches
// the documented bands, for any fundamentals input.
func TestProperty_ScoresAlwaysInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("score in [0,100] with consistent status", prop.ForAll(
		func(pe, growth, rev, margin, roe, dte, fcf, cap float64) bool {
			m := models.StockMetrics{
				Symbol:         "X",
				PERatio:        pe,
				EarningsGrowth: growth,
				RevenueGrowth:  rev,
				ProfitMargin:   margin,
				ReturnOnEquity: roe,
				DebtToEquity:   dte,
				FreeCashFlow:   fcf,
				MarketCap:      cap,
			}
			for _, s := range DefaultScorers() {
				op := s.Score(m)
				if op.Score < 0 || op.Score > 100 {
					return false
				}
				switch {
				case op.Score >= 60 && op.Status != models.StatusBullish:
					return false
				case op.Score <= 40 && op.Status != models.StatusBearish:
					return false
				case op.Score > 40 && op.Score < 60 && op.Status != models.StatusNeutral:
					return false
				}
			}
			return true
		},
		gen.Float64Range(-50, 200),
		gen.Float64Range(-1, 2),
		gen.Float64Range(-1, 2),
		gen.Float64Range(-0.5, 0.6),
		gen.Float64Range(-0.5, 1),
		gen.Float64Range(-1, 10),
		gen.Float64Range(-1e10, 1e10),
		gen.Float64Range(0, 1e12),
	))

	properties.TestingRun(t)
}
