// Package cli implements the strategy-engine command-line interface.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"strategy-engine/internal/benchmark"
	"strategy-engine/internal/config"
	"strategy-engine/internal/engine"
	"strategy-engine/internal/logging"
	"strategy-engine/internal/marketdata"
	"strategy-engine/internal/store"
	"strategy-engine/internal/thesis"
)

// App holds the shared dependencies commands draw from. It is populated by
// the root command's PersistentPreRunE before any subcommand runs.
type App struct {
	Config *config.Config
	Store  store.DataStore
	Logger zerolog.Logger

	configDir string
}

// NewRootCmd creates the root command and wires all subcommands.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "strategy-engine",
		Short: "Autonomous investment-strategy execution engine",
		Long: `strategy-engine screens a stock universe, scores candidates with two
independent characters, merges their opinions into verdicts, reconciles the
portfolio toward target allocations, and executes simulated trades.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Store != nil {
				_ = app.Store.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configDir, "config-dir", "", "configuration directory (default ~/.config/strategy-engine)")

	rootCmd.AddCommand(
		newWorkerCmd(app),
		newRunCmd(app),
		newStrategyCmd(app),
		newPortfolioCmd(app),
		newRunsCmd(app),
	)

	return rootCmd
}

func (a *App) init() error {
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.Config = cfg

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Engine.LogLevel
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	st, err := store.NewSQLiteStore(cfg.Engine.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.Store = st
	return nil
}

// buildExecutor assembles the run executor from configuration. Thesis
// generation is skipped when disabled or unconfigured.
func (a *App) buildExecutor() *engine.Executor {
	provider := marketdata.NewClient(marketdata.ClientConfig{
		BaseURL:   a.Config.MarketData.BaseURL,
		APIKey:    a.Config.Credentials.MarketData.APIKey,
		Timeout:   a.Config.MarketData.Timeout,
		BatchSize: a.Config.MarketData.BatchSize,
		Logger:    a.Logger,
	})

	var gen *thesis.Generator
	if a.Config.Thesis.Enabled && a.Config.Credentials.OpenAI.APIKey != "" {
		client := thesis.NewOpenAIClient(a.Config.Credentials.OpenAI.APIKey, a.Config.Thesis.Model)
		gen = thesis.NewGenerator(client, a.Config.Thesis.Timeout, a.Config.Thesis.Concurrency)
	}

	tracker := benchmark.NewTracker(a.Store, provider, a.Config.Engine.BenchmarkSymbol, a.Logger)

	return engine.NewExecutor(engine.Options{
		Store:       a.Store,
		Provider:    provider,
		Thesis:      gen,
		Benchmark:   tracker,
		Concurrency: a.Config.Worker.Concurrency,
		Logger:      a.Logger,
	})
}
