// Package consensus merges two independent per-symbol opinions into one
// verdict using a pluggable combination rule.
package consensus

import (
	"fmt"

	"strategy-engine/internal/models"
)

// Engine combines character opinions according to strategy configuration.
type Engine struct{}

// NewEngine creates a consensus engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Combine merges two opinions for one symbol. A nil opinion is treated as
// score 0 with neutral status, not an error.
func (e *Engine) Combine(symbol string, a, b *models.Opinion, cfg models.ConsensusConfig) models.ConsensusResult {
	first := normalize(a, "lynch")
	second := normalize(b, "buffett")

	switch cfg.Mode {
	case models.ConsensusWeightedConfidence:
		return e.weightedConfidence(symbol, first, second, cfg)
	default:
		return e.vetoPower(symbol, first, second, cfg)
	}
}

func normalize(op *models.Opinion, character string) models.Opinion {
	if op == nil {
		return models.Opinion{Character: character, Score: 0, Status: models.StatusNeutral}
	}
	norm := *op
	if norm.Status == "" {
		norm.Status = models.StatusNeutral
	}
	return norm
}

// vetoPower gives either opinion veto power: a hard-negative stance with a
// score below the veto threshold vetoes regardless of the other opinion.
func (e *Engine) vetoPower(symbol string, a, b models.Opinion, cfg models.ConsensusConfig) models.ConsensusResult {
	for _, op := range []models.Opinion{a, b} {
		if op.Status == models.StatusBearish && op.Score < cfg.VetoScoreThreshold {
			return models.ConsensusResult{
				Symbol:        symbol,
				Verdict:       models.VerdictVeto,
				CombinedScore: combined(a, b, cfg),
				Reasoning:     fmt.Sprintf("%s vetoed: bearish with score %.0f below %.0f", op.Character, op.Score, cfg.VetoScoreThreshold),
			}
		}
	}

	primary := a
	if b.Character == cfg.PrimaryCharacter {
		primary = b
	}

	verdict := models.VerdictWatch
	reasoning := fmt.Sprintf("%s score %.0f below threshold %.0f", primary.Character, primary.Score, cfg.Threshold)
	if primary.Score >= cfg.Threshold {
		verdict = models.VerdictBuy
		reasoning = fmt.Sprintf("%s score %.0f meets threshold %.0f", primary.Character, primary.Score, cfg.Threshold)
	}

	return e.applyTieBreak(models.ConsensusResult{
		Symbol:        symbol,
		Verdict:       verdict,
		CombinedScore: combined(a, b, cfg),
		Reasoning:     reasoning,
	}, a, b)
}

// weightedConfidence blends the two scores; a soft band 10 points under the
// threshold maps to WATCH.
func (e *Engine) weightedConfidence(symbol string, a, b models.Opinion, cfg models.ConsensusConfig) models.ConsensusResult {
	score := combined(a, b, cfg)

	var verdict models.Verdict
	switch {
	case score >= cfg.Threshold:
		verdict = models.VerdictBuy
	case score >= cfg.Threshold-10:
		verdict = models.VerdictWatch
	default:
		verdict = models.VerdictAvoid
	}

	return e.applyTieBreak(models.ConsensusResult{
		Symbol:        symbol,
		Verdict:       verdict,
		CombinedScore: score,
		Reasoning:     fmt.Sprintf("weighted score %.1f against threshold %.0f", score, cfg.Threshold),
	}, a, b)
}

// applyTieBreak downgrades BUY to WATCH when the two opinions score equally
// but disagree on stance. The conservative default keeps a contested symbol
// on the watchlist instead of buying it.
func (e *Engine) applyTieBreak(res models.ConsensusResult, a, b models.Opinion) models.ConsensusResult {
	if res.Verdict == models.VerdictBuy && a.Score == b.Score && a.Status != b.Status {
		res.Verdict = models.VerdictWatch
		res.Reasoning = fmt.Sprintf("equal scores %.0f with split stance, holding at WATCH", a.Score)
	}
	return res
}

func combined(a, b models.Opinion, cfg models.ConsensusConfig) float64 {
	lynch, buffett := a, b
	if a.Character == "buffett" {
		lynch, buffett = b, a
	}
	return lynch.Score*cfg.LynchWeight + buffett.Score*cfg.BuffettWeight
}
