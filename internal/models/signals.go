package models

import "time"

// Verdict is the categorical output of consensus or exit evaluation.
type Verdict string

const (
	VerdictBuy   Verdict = "BUY"
	VerdictWatch Verdict = "WATCH"
	VerdictAvoid Verdict = "AVOID"
	VerdictVeto  Verdict = "VETO"
)

// OpinionStatus represents a scorer's directional stance on a symbol.
type OpinionStatus string

const (
	StatusBullish OpinionStatus = "bullish"
	StatusNeutral OpinionStatus = "neutral"
	StatusBearish OpinionStatus = "bearish"
)

// Opinion is one character's independent view of a symbol.
type Opinion struct {
	Character string
	Score     float64 // 0-100
	Status    OpinionStatus
}

// ConsensusResult is the output of merging two opinions for one symbol.
type ConsensusResult struct {
	Symbol        string
	Verdict       Verdict
	CombinedScore float64
	Reasoning     string
}

// Candidate is a scored universe member flowing into position sizing.
type Candidate struct {
	Symbol     string
	Conviction float64 // 0-100
	Price      float64
	Verdict    Verdict
	Thesis     string
	Opinions   map[string]Opinion
}

// TargetAllocation is the ideal dollar allocation for one candidate.
type TargetAllocation struct {
	Symbol       string
	Conviction   float64
	TargetValue  float64
	CurrentValue float64
	Drift        float64
	Price        float64
}

// OrderSide indicates the direction of an order instruction.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// PositionSize is a concrete order instruction produced by the sizer.
type PositionSize struct {
	Symbol         string
	Side           OrderSide
	Shares         int
	EstimatedValue float64
	Reasoning      string
}

// ExitType distinguishes full exits from partial trims.
type ExitType string

const (
	ExitFull ExitType = "full"
	ExitTrim ExitType = "trim"
)

// ExitReason identifies which rule generated an exit signal.
type ExitReason string

const (
	ExitReasonProfitTarget     ExitReason = "profit_target"
	ExitReasonStopLoss         ExitReason = "stop_loss"
	ExitReasonMaxHoldDays      ExitReason = "max_hold_days"
	ExitReasonScoreDegradation ExitReason = "score_degradation"
	ExitReasonUniverse         ExitReason = "universe_filters"
	ExitReasonDisplacement     ExitReason = "displacement"
)

// ExitSignal is a forced-sell instruction for a held symbol.
type ExitSignal struct {
	Symbol       string
	Quantity     int
	Reason       string
	ReasonCode   ExitReason
	CurrentValue float64
	GainPct      float64
	ExitType     ExitType
}

// StockMetrics is a fundamentals snapshot for one symbol.
type StockMetrics struct {
	Symbol          string
	Price           float64
	MarketCap       float64
	PERatio         float64
	PBRatio         float64
	DebtToEquity    float64
	ReturnOnEquity  float64
	RevenueGrowth   float64
	EarningsGrowth  float64
	ProfitMargin    float64
	DividendYield   float64
	FreeCashFlow    float64
	Sector          string
	AsOf            time.Time
}
