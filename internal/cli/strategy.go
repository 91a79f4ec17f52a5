package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"strategy-engine/internal/models"
	"strategy-engine/pkg/utils"
)

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage strategies",
	}
	cmd.AddCommand(
		newStrategyListCmd(app),
		newStrategyShowCmd(app),
		newStrategyCreateCmd(app),
		newStrategyEnableCmd(app, true),
		newStrategyEnableCmd(app, false),
	)
	return cmd
}

func newStrategyListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			strategies, err := app.Store.GetEnabledStrategies(cmd.Context())
			if err != nil {
				return err
			}
			if len(strategies) == 0 {
				fmt.Println("No enabled strategies.")
				return nil
			}
			for _, s := range strategies {
				fmt.Printf("%-36s  %-24s  %s\n", s.ID, s.Name, s.Schedule)
			}
			return nil
		},
	}
}

func newStrategyShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <strategy-id>",
		Short: "Show a strategy's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.Store.GetStrategy(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			color.Cyan("%s", s.Name)
			fmt.Printf("ID:        %s\n", s.ID)
			fmt.Printf("Enabled:   %v\n", s.Enabled)
			fmt.Printf("Schedule:  %s\n", s.Schedule)
			fmt.Printf("Benchmark: %s\n", s.BenchmarkSymbol)
			fmt.Printf("Portfolio: %s\n", s.PortfolioID)

			fmt.Println("\nUniverse filters:")
			if len(s.Universe) == 0 {
				fmt.Println("  (none: whole snapshot passes)")
			}
			for _, r := range s.Universe {
				fmt.Printf("  %s %s %g\n", r.Field, r.Operator, r.Value)
			}

			fmt.Printf("\nConsensus: mode=%s threshold=%.0f veto_below=%.0f primary=%s\n",
				s.Consensus.Mode, s.Consensus.Threshold, s.Consensus.VetoScoreThreshold, s.Consensus.PrimaryCharacter)
			fmt.Printf("Sizing:    method=%s max_position=%.0f%% max_positions=%d min_trade=%s\n",
				s.Sizing.Method, s.Sizing.MaxPositionPct, s.Sizing.MaxPositions, utils.FormatMoney(s.Sizing.MinTradeAmount))

			exits := models.ResolveExitConditions(s.Exits)
			fmt.Printf("Exits:     profit_target=%.0f%% stop_loss=%.0f%% max_hold=%dd grace=%dd degradation=%v\n",
				exits.ProfitTargetPct, exits.StopLossPct, exits.MaxHoldDays, exits.GracePeriodDays, exits.ScoreDegradation)
			return nil
		},
	}
}

// strategyFile is the JSON shape accepted by `strategy create`.
type strategyFile struct {
	Name            string          `json:"name"`
	Schedule        string          `json:"schedule"`
	BenchmarkSymbol string          `json:"benchmark_symbol"`
	InitialCash     float64         `json:"initial_cash"`
	Universe        json.RawMessage `json:"universe"`
	Consensus       json.RawMessage `json:"consensus"`
	PositionSizing  json.RawMessage `json:"position_sizing"`
	ExitConditions  json.RawMessage `json:"exit_conditions"`
}

func newStrategyCreateCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a strategy from a JSON definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			var def strategyFile
			if err := json.Unmarshal(raw, &def); err != nil {
				return fmt.Errorf("parsing %s: %w", file, err)
			}
			if def.Name == "" {
				return fmt.Errorf("strategy name is required")
			}
			if def.InitialCash <= 0 {
				def.InitialCash = 100000
			}

			universe, err := models.ParseUniverseRules(def.Universe)
			if err != nil {
				return err
			}
			consensusCfg, err := models.ParseConsensusConfig(def.Consensus)
			if err != nil {
				return err
			}
			sizingCfg, err := models.ParseSizingConfig(def.PositionSizing)
			if err != nil {
				return err
			}
			exitCfg, err := models.ParseExitConditions(def.ExitConditions)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			strategy := &models.Strategy{
				ID:              uuid.NewString(),
				Name:            def.Name,
				Enabled:         true,
				Schedule:        def.Schedule,
				BenchmarkSymbol: def.BenchmarkSymbol,
				Universe:        universe,
				Consensus:       consensusCfg,
				Sizing:          sizingCfg,
				Exits:           exitCfg,
				CreatedAt:       time.Now().UTC(),
				UpdatedAt:       time.Now().UTC(),
			}

			portfolio, err := app.Store.CreatePortfolio(ctx, strategy.ID, def.InitialCash)
			if err != nil {
				return fmt.Errorf("creating portfolio: %w", err)
			}
			strategy.PortfolioID = portfolio.ID

			if err := app.Store.SaveStrategy(ctx, strategy); err != nil {
				return fmt.Errorf("saving strategy: %w", err)
			}

			color.Green("Created strategy %s (%s) with %s starting cash",
				strategy.Name, strategy.ID, utils.FormatMoney(def.InitialCash))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the strategy JSON definition")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStrategyEnableCmd(app *App, enable bool) *cobra.Command {
	use, short := "enable <strategy-id>", "Enable a strategy's schedule"
	if !enable {
		use, short = "disable <strategy-id>", "Disable a strategy"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Store.SetStrategyEnabled(cmd.Context(), args[0], enable); err != nil {
				return err
			}
			if enable {
				color.Green("Strategy %s enabled.", args[0])
			} else {
				color.Yellow("Strategy %s disabled.", args[0])
			}
			return nil
		},
	}
}
