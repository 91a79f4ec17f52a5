package models

import "time"

// Portfolio is a simulated brokerage account tied to one strategy. Cash is
// never negative after trade execution. Version supports optimistic
// concurrency on mutation.
type Portfolio struct {
	ID         string
	StrategyID string
	Cash       float64
	TotalValue float64
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Holding is one position within a portfolio. Deleted when quantity reaches
// zero.
type Holding struct {
	PortfolioID  string
	Symbol       string
	Quantity     int
	CostBasis    float64 // average cost per share
	CurrentPrice float64
	CurrentValue float64
	GainPct      float64
	EntryDate    time.Time
}

// PortfolioSummary is the snapshot taken once at the start of sizing and
// exit detection.
type PortfolioSummary struct {
	PortfolioID string
	Cash        float64
	TotalValue  float64
	Holdings    map[string]Holding // keyed by symbol
	Version     int64
}

// HeldSymbols returns the set of currently held symbols.
func (s *PortfolioSummary) HeldSymbols() map[string]bool {
	held := make(map[string]bool, len(s.Holdings))
	for sym := range s.Holdings {
		held[sym] = true
	}
	return held
}

// Trade is one executed simulated trade against the cash ledger.
type Trade struct {
	ID          string
	PortfolioID string
	RunID       string
	Symbol      string
	Side        OrderSide
	Quantity    int
	Price       float64
	Value       float64
	Note        string
	ExecutedAt  time.Time
}

// BenchmarkSnapshot records portfolio value against a benchmark price at one
// point in time.
type BenchmarkSnapshot struct {
	StrategyID     string
	RunID          string
	PortfolioValue float64
	BenchmarkPrice float64
	RecordedAt     time.Time
}
