// Package briefing assembles the end-of-run summary: what was screened,
// scored, traded, and why.
package briefing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"strategy-engine/internal/benchmark"
	"strategy-engine/internal/models"
	"strategy-engine/pkg/utils"
)

// Briefing is the structured end-of-run report persisted as the job result
// and rendered for the CLI.
type Briefing struct {
	StrategyName    string
	RunID           string
	GeneratedAt     time.Time
	StocksScreened  int
	StocksScored    int
	ThesesGenerated int
	Buys            []models.PositionSize
	Sells           []models.PositionSize
	Exits           []models.ExitSignal
	Decisions       []models.RunDecision
	PortfolioValue  float64
	Cash            float64
	Benchmark       *benchmark.Comparison
	Warnings        []string
}

// Builder accumulates run outcomes into a Briefing.
type Builder struct {
	b Briefing
}

// NewBuilder starts a briefing for one run.
func NewBuilder(strategyName, runID string) *Builder {
	return &Builder{b: Briefing{
		StrategyName: strategyName,
		RunID:        runID,
		GeneratedAt:  time.Now().UTC(),
	}}
}

// WithCounts records the phase counters.
func (bl *Builder) WithCounts(screened, scored, theses int) *Builder {
	bl.b.StocksScreened = screened
	bl.b.StocksScored = scored
	bl.b.ThesesGenerated = theses
	return bl
}

// WithTrades records the executed order plan legs.
func (bl *Builder) WithTrades(buys, sells []models.PositionSize, exits []models.ExitSignal) *Builder {
	bl.b.Buys = buys
	bl.b.Sells = sells
	bl.b.Exits = exits
	return bl
}

// WithDecisions records the per-symbol decision log.
func (bl *Builder) WithDecisions(decisions []models.RunDecision) *Builder {
	bl.b.Decisions = decisions
	return bl
}

// WithPortfolio records the closing portfolio state.
func (bl *Builder) WithPortfolio(totalValue, cash float64) *Builder {
	bl.b.PortfolioValue = totalValue
	bl.b.Cash = cash
	return bl
}

// WithBenchmark attaches the benchmark comparison, if one was computable.
func (bl *Builder) WithBenchmark(cmp *benchmark.Comparison) *Builder {
	bl.b.Benchmark = cmp
	return bl
}

// AddWarning records a degraded step worth surfacing in the report.
func (bl *Builder) AddWarning(format string, args ...interface{}) *Builder {
	bl.b.Warnings = append(bl.b.Warnings, fmt.Sprintf(format, args...))
	return bl
}

// Build finalizes the briefing.
func (bl *Builder) Build() *Briefing {
	sort.SliceStable(bl.b.Decisions, func(i, j int) bool {
		return bl.b.Decisions[i].Symbol < bl.b.Decisions[j].Symbol
	})
	return &bl.b
}

// Render produces the plain-text narrative of the run.
func (b *Briefing) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== %s — run %s ===\n", b.StrategyName, b.RunID)
	fmt.Fprintf(&sb, "Generated %s\n\n", b.GeneratedAt.Format(time.RFC1123))

	fmt.Fprintf(&sb, "Screened %d symbols, scored %d, generated %d theses.\n",
		b.StocksScreened, b.StocksScored, b.ThesesGenerated)
	fmt.Fprintf(&sb, "Portfolio value %s (cash %s)\n\n",
		utils.FormatMoney(b.PortfolioValue), utils.FormatMoney(b.Cash))

	if len(b.Exits) > 0 {
		sb.WriteString("Exits:\n")
		for _, e := range b.Exits {
			fmt.Fprintf(&sb, "  SELL %-6s %4d shares — %s (%s)\n",
				e.Symbol, e.Quantity, e.Reason, utils.FormatPercent(e.GainPct))
		}
		sb.WriteString("\n")
	}

	if len(b.Sells) > 0 {
		sb.WriteString("Trims:\n")
		for _, s := range b.Sells {
			fmt.Fprintf(&sb, "  SELL %-6s %4d shares ~%s — %s\n",
				s.Symbol, s.Shares, utils.FormatMoney(s.EstimatedValue), s.Reasoning)
		}
		sb.WriteString("\n")
	}

	if len(b.Buys) > 0 {
		sb.WriteString("Buys:\n")
		for _, buy := range b.Buys {
			fmt.Fprintf(&sb, "  BUY  %-6s %4d shares ~%s — %s\n",
				buy.Symbol, buy.Shares, utils.FormatMoney(buy.EstimatedValue), buy.Reasoning)
		}
		sb.WriteString("\n")
	}

	if len(b.Exits) == 0 && len(b.Sells) == 0 && len(b.Buys) == 0 {
		sb.WriteString("No trades: portfolio already within tolerance of targets.\n\n")
	}

	if len(b.Decisions) > 0 {
		sb.WriteString("Decisions:\n")
		for _, d := range b.Decisions {
			fmt.Fprintf(&sb, "  %-6s %-6s score %5.1f  %-7s %s\n",
				d.Symbol, d.Verdict, d.CombinedScore, d.Action, utils.Truncate(d.Reasoning, 60))
		}
		sb.WriteString("\n")
	}

	if b.Benchmark != nil {
		fmt.Fprintf(&sb, "Vs %s since %s: portfolio %s, benchmark %s, alpha %s\n\n",
			b.Benchmark.Symbol,
			b.Benchmark.Since.Format("2006-01-02"),
			utils.FormatPercent(b.Benchmark.PortfolioReturn),
			utils.FormatPercent(b.Benchmark.BenchmarkReturn),
			utils.FormatPercent(b.Benchmark.Alpha))
	}

	if len(b.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range b.Warnings {
			fmt.Fprintf(&sb, "  - %s\n", w)
		}
	}

	return sb.String()
}
