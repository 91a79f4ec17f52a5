package marketdata

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/logging"
	"strategy-engine/internal/models"
	"strategy-engine/pkg/utils"
)

// Client is an HTTP implementation of Provider.
type Client struct {
	http      *resty.Client
	batchSize int
	logger    zerolog.Logger
}

// ClientConfig holds market-data client configuration.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

// NewClient creates a market-data HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		http.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{http: http, batchSize: cfg.BatchSize, logger: cfg.Logger}
}

// classify maps transport failures onto the domain sentinels so callers can
// match rate limiting and timeouts with errors.Is.
func classify(operation string, resp *resty.Response, err error) error {
	if err != nil {
		var ne net.Error
		if enginerrors.Is(err, context.DeadlineExceeded) || (enginerrors.As(err, &ne) && ne.Timeout()) {
			return enginerrors.Wrapf(enginerrors.ErrTimeout, "%s: %v", operation, err)
		}
		return err
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusTooManyRequests {
			return enginerrors.Wrapf(enginerrors.ErrRateLimited, "%s: %s", operation, resp.Status())
		}
		return fmt.Errorf("%s failed: %s", operation, resp.Status())
	}
	return nil
}

// metricsDTO is the wire shape of one metrics snapshot.
type metricsDTO struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	MarketCap      float64 `json:"market_cap"`
	PERatio        float64 `json:"pe_ratio"`
	PBRatio        float64 `json:"pb_ratio"`
	DebtToEquity   float64 `json:"debt_to_equity"`
	ReturnOnEquity float64 `json:"return_on_equity"`
	RevenueGrowth  float64 `json:"revenue_growth"`
	EarningsGrowth float64 `json:"earnings_growth"`
	ProfitMargin   float64 `json:"profit_margin"`
	DividendYield  float64 `json:"dividend_yield"`
	FreeCashFlow   float64 `json:"free_cash_flow"`
	Sector         string  `json:"sector"`
	AsOf           string  `json:"as_of"`
}

func (d metricsDTO) toModel() models.StockMetrics {
	m := models.StockMetrics{
		Symbol:         d.Symbol,
		Price:          d.Price,
		MarketCap:      d.MarketCap,
		PERatio:        d.PERatio,
		PBRatio:        d.PBRatio,
		DebtToEquity:   d.DebtToEquity,
		ReturnOnEquity: d.ReturnOnEquity,
		RevenueGrowth:  d.RevenueGrowth,
		EarningsGrowth: d.EarningsGrowth,
		ProfitMargin:   d.ProfitMargin,
		DividendYield:  d.DividendYield,
		FreeCashFlow:   d.FreeCashFlow,
		Sector:         d.Sector,
	}
	if t, err := time.Parse(time.RFC3339, d.AsOf); err == nil {
		m.AsOf = t
	}
	return m
}

// GetStockMetrics returns the latest fundamentals for one symbol.
func (c *Client) GetStockMetrics(ctx context.Context, symbol string) (*models.StockMetrics, error) {
	start := time.Now()
	dto, err := utils.RetryWithResult(ctx, utils.SingleRetryConfig(), func() (*metricsDTO, error) {
		var out metricsDTO
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/v1/metrics/" + symbol)
		if cerr := classify("metrics request", resp, err); cerr != nil {
			return nil, cerr
		}
		return &out, nil
	})
	logging.LogAPICall(c.logger, "market_data", "get_stock_metrics", time.Since(start), err)
	if err != nil {
		return nil, enginerrors.NewServiceError("market_data", "get_stock_metrics", err)
	}
	m := dto.toModel()
	return &m, nil
}

// GetMetricsSnapshot returns the full metrics universe.
func (c *Client) GetMetricsSnapshot(ctx context.Context) ([]models.StockMetrics, error) {
	start := time.Now()
	dtos, err := utils.RetryWithResult(ctx, utils.SingleRetryConfig(), func() ([]metricsDTO, error) {
		var out []metricsDTO
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/v1/metrics")
		if cerr := classify("snapshot request", resp, err); cerr != nil {
			return nil, cerr
		}
		return out, nil
	})
	logging.LogAPICall(c.logger, "market_data", "get_metrics_snapshot", time.Since(start), err)
	if err != nil {
		return nil, enginerrors.NewServiceError("market_data", "get_metrics_snapshot", err)
	}

	metrics := make([]models.StockMetrics, 0, len(dtos))
	for _, d := range dtos {
		metrics = append(metrics, d.toModel())
	}
	return metrics, nil
}

// GetPrices returns current prices for a batch of symbols, chunked to the
// provider's batch limit.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))

	for start := 0; start < len(symbols); start += c.batchSize {
		end := start + c.batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[start:end]

		began := time.Now()
		batch, err := utils.RetryWithResult(ctx, utils.SingleRetryConfig(), func() (map[string]float64, error) {
			var out map[string]float64
			resp, err := c.http.R().
				SetContext(ctx).
				SetQueryParam("symbols", strings.Join(chunk, ",")).
				SetResult(&out).
				Get("/v1/prices")
			if cerr := classify("prices request", resp, err); cerr != nil {
				return nil, cerr
			}
			return out, nil
		})
		logging.LogAPICall(c.logger, "market_data", "get_prices", time.Since(began), err)
		if err != nil {
			return nil, enginerrors.NewServiceError("market_data", "get_prices", err)
		}
		for sym, price := range batch {
			if price > 0 {
				prices[sym] = price
			}
		}
	}
	return prices, nil
}

// Ensure Client implements Provider
var _ Provider = (*Client)(nil)
