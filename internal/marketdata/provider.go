// Package marketdata provides access to the external metrics and pricing
// provider.
package marketdata

import (
	"context"

	"strategy-engine/internal/models"
)

// Provider defines the market-data collaborator consumed by the engine.
type Provider interface {
	// GetStockMetrics returns the latest fundamentals snapshot for one symbol.
	GetStockMetrics(ctx context.Context, symbol string) (*models.StockMetrics, error)
	// GetMetricsSnapshot returns the metrics universe the filters run over.
	GetMetricsSnapshot(ctx context.Context) ([]models.StockMetrics, error)
	// GetPrices returns current prices for a batch of symbols. Symbols with
	// no usable price are absent from the result, not zero-valued.
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}
