package models

import "time"

// RunStatus is the current phase of a strategy run. Phases run strictly in
// order within one execution; failed is reachable from any phase.
type RunStatus string

const (
	RunPending          RunStatus = "pending"
	RunScreening        RunStatus = "screening"
	RunScoring          RunStatus = "scoring"
	RunThesisGeneration RunStatus = "thesis_generation"
	RunConsensus        RunStatus = "consensus"
	RunSizing           RunStatus = "sizing"
	RunTrading          RunStatus = "trading"
	RunBenchmarking     RunStatus = "benchmarking"
	RunBriefing         RunStatus = "briefing"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
	RunCancelled        RunStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// StrategyRun is one execution instance of a strategy. Phase counters are
// monotonically non-decreasing within a run.
type StrategyRun struct {
	ID              string
	StrategyID      string
	Status          RunStatus
	Progress        float64 // 0-100
	StocksScreened  int
	StocksScored    int
	ThesesGenerated int
	TradesExecuted  int
	Error           string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// RunEvent is one append-only entry in a run's event log.
type RunEvent struct {
	RunID     string
	Timestamp time.Time
	Phase     RunStatus
	Level     string // info, warn, error
	Message   string
}

// RunDecision records the per-symbol outcome of a completed run, kept for
// post-hoc review.
type RunDecision struct {
	RunID         string
	Symbol        string
	Verdict       Verdict
	CombinedScore float64
	Action        string // bought, sold, trimmed, held, skipped
	Shares        int
	Value         float64
	Reasoning     string
}
