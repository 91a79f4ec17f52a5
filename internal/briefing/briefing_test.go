package briefing

import (
	"strings"
	"testing"

	"strategy-engine/internal/benchmark"
	"strategy-engine/internal/models"
)

func TestRender_FullBriefing(t *testing.T) {
	brief := NewBuilder("growth blend", "run-42").
		WithCounts(120, 35, 8).
		WithTrades(
			[]models.PositionSize{
				{Symbol: "AAA", Side: models.SideBuy, Shares: 10, EstimatedValue: 1234.5, Reasoning: "conviction 85"},
			},
			[]models.PositionSize{
				{Symbol: "BBB", Side: models.SideSell, Shares: 5, EstimatedValue: 500, Reasoning: "trim toward target"},
			},
			[]models.ExitSignal{
				{Symbol: "CCC", Quantity: 20, Reason: "profit target reached", GainPct: 27.5},
			},
		).
		WithDecisions([]models.RunDecision{
			{Symbol: "ZZZ", Verdict: models.VerdictWatch, CombinedScore: 55, Action: "skipped", Reasoning: "below threshold"},
			{Symbol: "AAA", Verdict: models.VerdictBuy, CombinedScore: 82, Action: "bought", Reasoning: "both bullish"},
		}).
		WithPortfolio(105432.10, 4321.99).
		WithBenchmark(&benchmark.Comparison{
			Symbol:          "SPY",
			PortfolioReturn: 5.4,
			BenchmarkReturn: 3.1,
			Alpha:           2.3,
			Snapshots:       10,
		}).
		Build()

	out := brief.Render()

	for _, want := range []string{
		"growth blend",
		"run-42",
		"Screened 120 symbols, scored 35, generated 8 theses",
		"$105,432.10",
		"$4,321.99",
		"SELL CCC",
		"profit target reached",
		"+27.50%",
		"BUY  AAA",
		"$1,234.50",
		"SELL BBB",
		"Vs SPY",
		"+5.40%",
		"+2.30%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("briefing missing %q:\n%s", want, out)
		}
	}

	// Decisions sort alphabetically regardless of insert order.
	if strings.Index(out, "AAA    BUY") > strings.Index(out, "ZZZ    WATCH") {
		t.Error("decisions not sorted by symbol")
	}
}

func TestRender_NoTrades(t *testing.T) {
	brief := NewBuilder("idle", "run-1").
		WithCounts(50, 10, 0).
		WithPortfolio(100000, 100000).
		Build()

	out := brief.Render()
	if !strings.Contains(out, "No trades") {
		t.Errorf("expected the no-trades line:\n%s", out)
	}
}

func TestRender_Warnings(t *testing.T) {
	b := NewBuilder("warned", "run-2")
	b.AddWarning("%d theses failed", 3)
	b.AddWarning("benchmark snapshot failed: %v", "timeout")
	out := b.Build().Render()

	if !strings.Contains(out, "3 theses failed") {
		t.Errorf("missing warning:\n%s", out)
	}
	if !strings.Contains(out, "benchmark snapshot failed") {
		t.Errorf("missing warning:\n%s", out)
	}
}
