// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"strategy-engine/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Strategies
	SaveStrategy(ctx context.Context, s *models.Strategy) error
	GetStrategy(ctx context.Context, id string) (*models.Strategy, error)
	GetEnabledStrategies(ctx context.Context) ([]models.Strategy, error)
	SetStrategyEnabled(ctx context.Context, id string, enabled bool) error

	// Portfolios
	CreatePortfolio(ctx context.Context, strategyID string, initialCash float64) (*models.Portfolio, error)
	GetPortfolioSummary(ctx context.Context, portfolioID string) (*models.PortfolioSummary, error)
	GetPortfolioHoldingsDetailed(ctx context.Context, portfolioID string) ([]models.Holding, error)
	GetPositionEntryDates(ctx context.Context, portfolioID string) (map[string]time.Time, error)
	UpdateHoldingPrices(ctx context.Context, portfolioID string, prices map[string]float64) error
	// ApplyTrade mutates the cash ledger and holdings in one transaction,
	// guarded by an optimistic version check. Returns the new version.
	ApplyTrade(ctx context.Context, trade *models.Trade, expectedVersion int64) (int64, error)
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	// Strategy runs
	CreateStrategyRun(ctx context.Context, strategyID string) (*models.StrategyRun, error)
	GetStrategyRun(ctx context.Context, runID string) (*models.StrategyRun, error)
	UpdateRunPhase(ctx context.Context, runID string, status models.RunStatus, progress float64) error
	IncrementRunCounters(ctx context.Context, runID string, screened, scored, theses, trades int) error
	CompleteRun(ctx context.Context, runID string) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	CancelRun(ctx context.Context, runID string) error
	IsRunCancelled(ctx context.Context, runID string) (bool, error)
	AppendToRunLog(ctx context.Context, event models.RunEvent) error
	GetRunLog(ctx context.Context, runID string) ([]models.RunEvent, error)
	SaveRunDecision(ctx context.Context, decision models.RunDecision) error
	GetRunDecisions(ctx context.Context, runID string) ([]models.RunDecision, error)

	// Job queue
	EnqueueJob(ctx context.Context, strategyID, tier string) (*models.Job, error)
	ClaimPendingJob(ctx context.Context, workerID, tier string, lease time.Duration) (*models.Job, error)
	UpdateJobHeartbeat(ctx context.Context, jobID, workerID string, lease time.Duration) error
	UpdateJobProgress(ctx context.Context, jobID string, pct float64, message string, processed, total int) error
	CompleteJob(ctx context.Context, jobID, result string) error
	FailJob(ctx context.Context, jobID, errMsg string) error

	// Benchmarks
	SaveBenchmarkSnapshot(ctx context.Context, snap models.BenchmarkSnapshot) error
	GetBenchmarkSnapshots(ctx context.Context, strategyID string) ([]models.BenchmarkSnapshot, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	PortfolioID string
	RunID       string
	Symbol      string
	StartDate   time.Time
	EndDate     time.Time
	Limit       int
}
