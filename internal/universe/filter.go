// Package universe selects candidate symbols by evaluating declarative
// predicates against the latest metrics snapshot.
package universe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"strategy-engine/internal/models"
)

// Result is the outcome of screening a single symbol.
type Result struct {
	Symbol  string
	Passed  bool
	Matches map[string]float64 // rule key -> actual value
}

// Filter evaluates a strategy's universe rules over a bounded worker pool.
type Filter struct {
	rules       []models.UniverseRule
	concurrency int
}

// NewFilter creates a universe filter for the given rules.
func NewFilter(rules []models.UniverseRule, concurrency int) *Filter {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Filter{rules: rules, concurrency: concurrency}
}

// Select returns the symbols whose metrics pass every rule, sorted
// alphabetically. All rules are combined with AND logic. A symbol whose
// metric is missing for some rule fails that rule, not the run.
func (f *Filter) Select(ctx context.Context, metrics []models.StockMetrics) ([]string, error) {
	if len(metrics) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var passed []string

	p := pool.New().WithMaxGoroutines(f.concurrency).WithContext(ctx)
	for _, m := range metrics {
		m := m
		p.Go(func(ctx context.Context) error {
			res := f.Evaluate(m)
			if res.Passed {
				mu.Lock()
				passed = append(passed, m.Symbol)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(passed)
	return passed, nil
}

// Evaluate applies every rule to one symbol's metrics.
func (f *Filter) Evaluate(m models.StockMetrics) Result {
	res := Result{
		Symbol:  m.Symbol,
		Passed:  true,
		Matches: make(map[string]float64, len(f.rules)),
	}

	for _, rule := range f.rules {
		value, ok := metricField(m, rule.Field)
		if !ok {
			res.Passed = false
			return res
		}
		res.Matches[fmt.Sprintf("%s_%s_%.2f", rule.Field, rule.Operator, rule.Value)] = value
		if !compare(value, rule.Operator, rule.Value) {
			res.Passed = false
			return res
		}
	}
	return res
}

func compare(actual float64, operator string, expected float64) bool {
	switch operator {
	case ">":
		return actual > expected
	case "<":
		return actual < expected
	case ">=":
		return actual >= expected
	case "<=":
		return actual <= expected
	case "=", "==":
		return actual == expected
	case "!=":
		return actual != expected
	default:
		return false
	}
}

// metricField resolves a rule field name against a metrics snapshot.
func metricField(m models.StockMetrics, field string) (float64, bool) {
	switch field {
	case "price":
		return m.Price, m.Price > 0
	case "market_cap":
		return m.MarketCap, m.MarketCap > 0
	case "pe_ratio":
		return m.PERatio, m.PERatio != 0
	case "pb_ratio":
		return m.PBRatio, m.PBRatio != 0
	case "debt_to_equity":
		return m.DebtToEquity, true
	case "return_on_equity":
		return m.ReturnOnEquity, true
	case "revenue_growth":
		return m.RevenueGrowth, true
	case "earnings_growth":
		return m.EarningsGrowth, true
	case "profit_margin":
		return m.ProfitMargin, true
	case "dividend_yield":
		return m.DividendYield, true
	case "free_cash_flow":
		return m.FreeCashFlow, true
	default:
		return 0, false
	}
}
