package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Strategy is a user's declarative trading policy. The engine treats it as
// read-only; mutation happens only through explicit store update calls.
type Strategy struct {
	ID              string
	Name            string
	Enabled         bool
	Schedule        string // cron expression
	PortfolioID     string
	BenchmarkSymbol string
	Universe        []UniverseRule
	Consensus       ConsensusConfig
	Sizing          SizingConfig
	Exits           *ExitConditions // nil when the user configured none
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UniverseRule is one declarative predicate evaluated against a metrics
// snapshot.
type UniverseRule struct {
	Field    string  `json:"field"`
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
}

// ConsensusMode selects how the two opinions are combined.
type ConsensusMode string

const (
	ConsensusVetoPower          ConsensusMode = "veto_power"
	ConsensusWeightedConfidence ConsensusMode = "weighted_confidence"
)

// ConsensusConfig holds consensus combination parameters.
type ConsensusConfig struct {
	Mode               ConsensusMode `json:"mode"`
	Threshold          float64       `json:"threshold"`
	VetoScoreThreshold float64       `json:"veto_score_threshold"`
	LynchWeight        float64       `json:"lynch_weight"`
	BuffettWeight      float64       `json:"buffett_weight"`
	PrimaryCharacter   string        `json:"primary_character"`
}

// SizingMethod selects how target dollar values are computed.
type SizingMethod string

const (
	SizingEqualWeight        SizingMethod = "equal_weight"
	SizingFixedPct           SizingMethod = "fixed_pct"
	SizingConvictionWeighted SizingMethod = "conviction_weighted"
)

// SizingConfig holds position-sizing parameters.
type SizingConfig struct {
	Method           SizingMethod `json:"method"`
	MaxPositionPct   float64      `json:"max_position_pct"`
	MaxPositions     int          `json:"max_positions"`
	MinTradeAmount   float64      `json:"min_trade_amount"`
	MinPositionValue float64      `json:"min_position_value"`
	FixedPositionPct float64      `json:"fixed_position_pct"`
}

// ExitConditions holds forced-exit thresholds for held positions.
type ExitConditions struct {
	ProfitTargetPct  float64            `json:"profit_target_pct"`
	StopLossPct      float64            `json:"stop_loss_pct"`
	MaxHoldDays      int                `json:"max_hold_days"`
	ScoreDegradation map[string]float64 `json:"score_degradation"`
	GracePeriodDays  int                `json:"grace_period_days"`
}

// DefaultScoreDegradation is the fallback degradation threshold applied only
// when a strategy has no custom exit conditions at all.
func DefaultScoreDegradation() map[string]float64 {
	return map[string]float64{"lynch": 50, "buffett": 50}
}

// ResolveExitConditions returns the effective exit configuration for a
// strategy. Explicit configuration always wins over the default fallback,
// never both.
func ResolveExitConditions(custom *ExitConditions) ExitConditions {
	if custom == nil {
		return ExitConditions{ScoreDegradation: DefaultScoreDegradation()}
	}
	return *custom
}

// ParseConsensusConfig parses a consensus JSON blob, applying documented
// defaults for absent fields.
func ParseConsensusConfig(raw []byte) (ConsensusConfig, error) {
	cfg := ConsensusConfig{
		Mode:               ConsensusVetoPower,
		Threshold:          70,
		VetoScoreThreshold: 30,
		LynchWeight:        0.5,
		BuffettWeight:      0.5,
		PrimaryCharacter:   "lynch",
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing consensus config: %w", err)
	}
	if cfg.Mode != ConsensusVetoPower && cfg.Mode != ConsensusWeightedConfidence {
		return cfg, fmt.Errorf("unknown consensus mode: %s", cfg.Mode)
	}
	return cfg, nil
}

// ParseSizingConfig parses a position_sizing JSON blob, applying documented
// defaults for absent fields.
func ParseSizingConfig(raw []byte) (SizingConfig, error) {
	cfg := SizingConfig{
		Method:           SizingEqualWeight,
		MaxPositionPct:   20,
		MaxPositions:     10,
		MinTradeAmount:   100,
		FixedPositionPct: 10,
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing position_sizing config: %w", err)
	}
	switch cfg.Method {
	case SizingEqualWeight, SizingFixedPct, SizingConvictionWeighted:
	default:
		return cfg, fmt.Errorf("unknown sizing method: %s", cfg.Method)
	}
	if cfg.MaxPositions <= 0 {
		return cfg, fmt.Errorf("max_positions must be positive")
	}
	return cfg, nil
}

// ParseExitConditions parses an exit_conditions JSON blob. A nil result means
// the strategy has no custom exit conditions.
func ParseExitConditions(raw []byte) (*ExitConditions, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var cfg ExitConditions
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing exit_conditions config: %w", err)
	}
	return &cfg, nil
}

// ParseUniverseRules parses the universe filters JSON blob.
func ParseUniverseRules(raw []byte) ([]UniverseRule, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rules []UniverseRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parsing universe filters: %w", err)
	}
	return rules, nil
}
