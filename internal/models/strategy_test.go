package models

import "testing"

func TestParseConsensusConfig(t *testing.T) {
	t.Run("empty blob yields defaults", func(t *testing.T) {
		cfg, err := ParseConsensusConfig(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Mode != ConsensusVetoPower || cfg.Threshold != 70 || cfg.VetoScoreThreshold != 30 {
			t.Errorf("defaults not applied: %+v", cfg)
		}
		if cfg.LynchWeight != 0.5 || cfg.BuffettWeight != 0.5 {
			t.Errorf("default weights not applied: %+v", cfg)
		}
	})

	t.Run("partial blob keeps remaining defaults", func(t *testing.T) {
		cfg, err := ParseConsensusConfig([]byte(`{"mode":"weighted_confidence","threshold":65}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Mode != ConsensusWeightedConfidence || cfg.Threshold != 65 {
			t.Errorf("explicit fields lost: %+v", cfg)
		}
		if cfg.PrimaryCharacter != "lynch" {
			t.Errorf("default primary character lost: %+v", cfg)
		}
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		if _, err := ParseConsensusConfig([]byte(`{"mode":"majority_vote"}`)); err == nil {
			t.Error("expected error for unknown mode")
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		if _, err := ParseConsensusConfig([]byte(`{`)); err == nil {
			t.Error("expected error for malformed json")
		}
	})
}

func TestParseSizingConfig(t *testing.T) {
	t.Run("empty blob yields defaults", func(t *testing.T) {
		cfg, err := ParseSizingConfig(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Method != SizingEqualWeight || cfg.MaxPositionPct != 20 || cfg.MaxPositions != 10 {
			t.Errorf("defaults not applied: %+v", cfg)
		}
		if cfg.MinTradeAmount != 100 {
			t.Errorf("default min trade amount lost: %+v", cfg)
		}
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		if _, err := ParseSizingConfig([]byte(`{"method":"kelly"}`)); err == nil {
			t.Error("expected error for unknown method")
		}
	})

	t.Run("non-positive max positions rejected", func(t *testing.T) {
		if _, err := ParseSizingConfig([]byte(`{"max_positions":0}`)); err == nil {
			t.Error("expected error for zero max_positions")
		}
	})
}

func TestParseExitConditions(t *testing.T) {
	t.Run("absent blob means no custom exits", func(t *testing.T) {
		for _, raw := range [][]byte{nil, []byte("null")} {
			cfg, err := ParseExitConditions(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg != nil {
				t.Errorf("expected nil for %q, got %+v", raw, cfg)
			}
		}
	})

	t.Run("explicit blob parses", func(t *testing.T) {
		cfg, err := ParseExitConditions([]byte(`{"profit_target_pct":25,"stop_loss_pct":10,"grace_period_days":7}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProfitTargetPct != 25 || cfg.StopLossPct != 10 || cfg.GracePeriodDays != 7 {
			t.Errorf("parsed = %+v", cfg)
		}
	})
}

func TestResolveExitConditions(t *testing.T) {
	t.Run("nil gets only the degradation fallback", func(t *testing.T) {
		resolved := ResolveExitConditions(nil)
		if resolved.ProfitTargetPct != 0 || resolved.StopLossPct != 0 || resolved.MaxHoldDays != 0 {
			t.Errorf("fallback must not invent price or time exits: %+v", resolved)
		}
		if resolved.ScoreDegradation["lynch"] != 50 || resolved.ScoreDegradation["buffett"] != 50 {
			t.Errorf("default degradation missing: %+v", resolved.ScoreDegradation)
		}
	})

	t.Run("custom config never mixes with the fallback", func(t *testing.T) {
		resolved := ResolveExitConditions(&ExitConditions{ProfitTargetPct: 30})
		if resolved.ProfitTargetPct != 30 {
			t.Errorf("custom threshold lost: %+v", resolved)
		}
		if resolved.ScoreDegradation != nil {
			t.Errorf("fallback degradation leaked into a custom config: %+v", resolved.ScoreDegradation)
		}
	})
}
