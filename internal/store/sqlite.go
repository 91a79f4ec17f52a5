package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Strategies: declarative trading policies
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER DEFAULT 1,
		schedule TEXT,
		portfolio_id TEXT,
		benchmark_symbol TEXT,
		universe_filters TEXT,
		consensus TEXT,
		position_sizing TEXT,
		exit_conditions TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Portfolios: simulated cash ledgers
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		cash REAL NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Holdings: one row per open position
	CREATE TABLE IF NOT EXISTS holdings (
		portfolio_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_basis REAL NOT NULL,
		current_price REAL DEFAULT 0,
		entry_date DATETIME NOT NULL,
		PRIMARY KEY (portfolio_id, symbol)
	);

	-- Trades: executed simulated trades
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		run_id TEXT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		value REAL NOT NULL,
		note TEXT,
		executed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_portfolio ON trades(portfolio_id, executed_at);

	-- Strategy runs with phase counters
	CREATE TABLE IF NOT EXISTS strategy_runs (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		progress REAL DEFAULT 0,
		stocks_screened INTEGER DEFAULT 0,
		stocks_scored INTEGER DEFAULT 0,
		theses_generated INTEGER DEFAULT 0,
		trades_executed INTEGER DEFAULT 0,
		cancel_requested INTEGER DEFAULT 0,
		error TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON strategy_runs(strategy_id, started_at);

	-- Append-only run event log
	CREATE TABLE IF NOT EXISTS run_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		phase TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_log_run ON run_log(run_id, id);

	-- Per-symbol decisions recorded at the end of a run
	CREATE TABLE IF NOT EXISTS run_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		verdict TEXT NOT NULL,
		combined_score REAL,
		action TEXT,
		shares INTEGER,
		value REAL,
		reasoning TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_decisions_run ON run_decisions(run_id);

	-- Job queue with lease-based claims
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		tier TEXT NOT NULL DEFAULT 'standard',
		worker_id TEXT,
		lease_expires_at DATETIME,
		progress REAL DEFAULT 0,
		message TEXT,
		processed INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		result TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, tier, created_at);

	-- Benchmark snapshots
	CREATE TABLE IF NOT EXISTS benchmark_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id TEXT NOT NULL,
		run_id TEXT,
		portfolio_value REAL NOT NULL,
		benchmark_price REAL NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_benchmark_strategy ON benchmark_snapshots(strategy_id, recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Strategies ---

// SaveStrategy inserts or replaces a strategy.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, strat *models.Strategy) error {
	if strat.ID == "" {
		strat.ID = uuid.NewString()
	}
	universe, err := json.Marshal(strat.Universe)
	if err != nil {
		return fmt.Errorf("marshaling universe filters: %w", err)
	}
	consensus, err := json.Marshal(strat.Consensus)
	if err != nil {
		return fmt.Errorf("marshaling consensus config: %w", err)
	}
	sizing, err := json.Marshal(strat.Sizing)
	if err != nil {
		return fmt.Errorf("marshaling sizing config: %w", err)
	}
	var exits []byte
	if strat.Exits != nil {
		exits, err = json.Marshal(strat.Exits)
		if err != nil {
			return fmt.Errorf("marshaling exit conditions: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, name, enabled, schedule, portfolio_id, benchmark_symbol,
			universe_filters, consensus, position_sizing, exit_conditions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			schedule = excluded.schedule,
			portfolio_id = excluded.portfolio_id,
			benchmark_symbol = excluded.benchmark_symbol,
			universe_filters = excluded.universe_filters,
			consensus = excluded.consensus,
			position_sizing = excluded.position_sizing,
			exit_conditions = excluded.exit_conditions,
			updated_at = CURRENT_TIMESTAMP`,
		strat.ID, strat.Name, boolToInt(strat.Enabled), strat.Schedule, strat.PortfolioID,
		strat.BenchmarkSymbol, string(universe), string(consensus), string(sizing), nullString(string(exits)))
	return err
}

// GetStrategy returns a strategy by ID with its JSON blob columns parsed
// into typed configuration.
func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, enabled, schedule, portfolio_id, benchmark_symbol,
			universe_filters, consensus, position_sizing, exit_conditions, created_at, updated_at
		FROM strategies WHERE id = ?`, id)

	strat, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, enginerrors.ErrStrategyNotFound
	}
	return strat, err
}

// GetEnabledStrategies returns all enabled strategies.
func (s *SQLiteStore) GetEnabledStrategies(ctx context.Context) ([]models.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, schedule, portfolio_id, benchmark_symbol,
			universe_filters, consensus, position_sizing, exit_conditions, created_at, updated_at
		FROM strategies WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []models.Strategy
	for rows.Next() {
		strat, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, *strat)
	}
	return strategies, rows.Err()
}

// SetStrategyEnabled toggles the enabled flag.
func (s *SQLiteStore) SetStrategyEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(enabled), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return enginerrors.ErrStrategyNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	var strat models.Strategy
	var enabled int
	var universe, consensus, sizing string
	var exits sql.NullString

	err := row.Scan(&strat.ID, &strat.Name, &enabled, &strat.Schedule, &strat.PortfolioID,
		&strat.BenchmarkSymbol, &universe, &consensus, &sizing, &exits,
		&strat.CreatedAt, &strat.UpdatedAt)
	if err != nil {
		return nil, err
	}
	strat.Enabled = enabled != 0

	if strat.Universe, err = models.ParseUniverseRules([]byte(universe)); err != nil {
		return nil, err
	}
	if strat.Consensus, err = models.ParseConsensusConfig([]byte(consensus)); err != nil {
		return nil, err
	}
	if strat.Sizing, err = models.ParseSizingConfig([]byte(sizing)); err != nil {
		return nil, err
	}
	if exits.Valid {
		if strat.Exits, err = models.ParseExitConditions([]byte(exits.String)); err != nil {
			return nil, err
		}
	}
	return &strat, nil
}

// --- Portfolios ---

// CreatePortfolio creates a portfolio with an initial cash balance.
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, strategyID string, initialCash float64) (*models.Portfolio, error) {
	p := &models.Portfolio{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Cash:       initialCash,
		TotalValue: initialCash,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolios (id, strategy_id, cash, version) VALUES (?, ?, ?, 0)`,
		p.ID, p.StrategyID, p.Cash)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPortfolioSummary snapshots cash, holdings, and total value in one read.
func (s *SQLiteStore) GetPortfolioSummary(ctx context.Context, portfolioID string) (*models.PortfolioSummary, error) {
	summary := &models.PortfolioSummary{
		PortfolioID: portfolioID,
		Holdings:    make(map[string]models.Holding),
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT cash, version FROM portfolios WHERE id = ?`, portfolioID)
	if err := row.Scan(&summary.Cash, &summary.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, enginerrors.ErrPortfolioNotFound
		}
		return nil, err
	}

	holdings, err := s.GetPortfolioHoldingsDetailed(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	summary.TotalValue = summary.Cash
	for _, h := range holdings {
		summary.Holdings[h.Symbol] = h
		summary.TotalValue += h.CurrentValue
	}
	return summary, nil
}

// GetPortfolioHoldingsDetailed returns all open holdings with derived value
// and gain fields.
func (s *SQLiteStore) GetPortfolioHoldingsDetailed(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT portfolio_id, symbol, quantity, cost_basis, current_price, entry_date
		FROM holdings WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.PortfolioID, &h.Symbol, &h.Quantity, &h.CostBasis,
			&h.CurrentPrice, &h.EntryDate); err != nil {
			return nil, err
		}
		h.CurrentValue = h.CurrentPrice * float64(h.Quantity)
		invested := h.CostBasis * float64(h.Quantity)
		if invested > 0 {
			h.GainPct = (h.CurrentValue - invested) / invested * 100
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetPositionEntryDates returns the entry date of each held symbol.
func (s *SQLiteStore) GetPositionEntryDates(ctx context.Context, portfolioID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, entry_date FROM holdings WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates := make(map[string]time.Time)
	for rows.Next() {
		var symbol string
		var entry time.Time
		if err := rows.Scan(&symbol, &entry); err != nil {
			return nil, err
		}
		dates[symbol] = entry
	}
	return dates, rows.Err()
}

// UpdateHoldingPrices refreshes the cached current price of holdings.
func (s *SQLiteStore) UpdateHoldingPrices(ctx context.Context, portfolioID string, prices map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE holdings SET current_price = ? WHERE portfolio_id = ? AND symbol = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for symbol, price := range prices {
		if price <= 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, price, portfolioID, symbol); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ApplyTrade mutates cash and holdings in one transaction. The expected
// version guards against a concurrent manual trade on the same portfolio.
func (s *SQLiteStore) ApplyTrade(ctx context.Context, trade *models.Trade, expectedVersion int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var cash float64
	var version int64
	row := tx.QueryRowContext(ctx,
		`SELECT cash, version FROM portfolios WHERE id = ?`, trade.PortfolioID)
	if err := row.Scan(&cash, &version); err != nil {
		if err == sql.ErrNoRows {
			return 0, enginerrors.ErrPortfolioNotFound
		}
		return 0, err
	}
	if version != expectedVersion {
		return 0, enginerrors.ErrVersionConflict
	}
	if trade.Quantity <= 0 || trade.Price <= 0 {
		return 0, enginerrors.NewValidationError("trade", trade.Symbol, "quantity and price must be positive")
	}

	value := trade.Price * float64(trade.Quantity)

	switch trade.Side {
	case models.SideBuy:
		if value > cash {
			return 0, enginerrors.ErrInsufficientFunds
		}
		cash -= value

		var heldQty int
		var costBasis float64
		row := tx.QueryRowContext(ctx,
			`SELECT quantity, cost_basis FROM holdings WHERE portfolio_id = ? AND symbol = ?`,
			trade.PortfolioID, trade.Symbol)
		err := row.Scan(&heldQty, &costBasis)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO holdings (portfolio_id, symbol, quantity, cost_basis, current_price, entry_date)
				VALUES (?, ?, ?, ?, ?, ?)`,
				trade.PortfolioID, trade.Symbol, trade.Quantity, trade.Price, trade.Price, trade.ExecutedAt)
			if err != nil {
				return 0, err
			}
		case err != nil:
			return 0, err
		default:
			newQty := heldQty + trade.Quantity
			newBasis := (costBasis*float64(heldQty) + value) / float64(newQty)
			_, err = tx.ExecContext(ctx, `
				UPDATE holdings SET quantity = ?, cost_basis = ?, current_price = ?
				WHERE portfolio_id = ? AND symbol = ?`,
				newQty, newBasis, trade.Price, trade.PortfolioID, trade.Symbol)
			if err != nil {
				return 0, err
			}
		}

	case models.SideSell:
		var heldQty int
		row := tx.QueryRowContext(ctx,
			`SELECT quantity FROM holdings WHERE portfolio_id = ? AND symbol = ?`,
			trade.PortfolioID, trade.Symbol)
		if err := row.Scan(&heldQty); err != nil {
			if err == sql.ErrNoRows {
				return 0, enginerrors.ErrPositionNotFound
			}
			return 0, err
		}
		if trade.Quantity > heldQty {
			return 0, enginerrors.NewValidationError("quantity", trade.Quantity, "sell exceeds held quantity")
		}
		cash += value

		if trade.Quantity == heldQty {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM holdings WHERE portfolio_id = ? AND symbol = ?`,
				trade.PortfolioID, trade.Symbol)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE holdings SET quantity = quantity - ?, current_price = ?
				WHERE portfolio_id = ? AND symbol = ?`,
				trade.Quantity, trade.Price, trade.PortfolioID, trade.Symbol)
		}
		if err != nil {
			return 0, err
		}

	default:
		return 0, enginerrors.NewValidationError("side", trade.Side, "unknown order side")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE portfolios SET cash = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`,
		cash, trade.PortfolioID, expectedVersion)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, enginerrors.ErrVersionConflict
	}

	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	trade.Value = value
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (id, portfolio_id, run_id, symbol, side, quantity, price, value, note, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.PortfolioID, trade.RunID, trade.Symbol, string(trade.Side),
		trade.Quantity, trade.Price, value, trade.Note, trade.ExecutedAt)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

// GetTrades returns trades matching the filter.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT id, portfolio_id, run_id, symbol, side, quantity, price, value, note, executed_at
		FROM trades WHERE 1=1`
	var args []interface{}

	if filter.PortfolioID != "" {
		query += " AND portfolio_id = ?"
		args = append(args, filter.PortfolioID)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		query += " AND executed_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND executed_at <= ?"
		args = append(args, filter.EndDate)
	}
	query += " ORDER BY executed_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		var runID sql.NullString
		if err := rows.Scan(&t.ID, &t.PortfolioID, &runID, &t.Symbol, &side,
			&t.Quantity, &t.Price, &t.Value, &t.Note, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Side = models.OrderSide(side)
		t.RunID = runID.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- Strategy runs ---

// CreateStrategyRun creates a new pending run.
func (s *SQLiteStore) CreateStrategyRun(ctx context.Context, strategyID string) (*models.StrategyRun, error) {
	run := &models.StrategyRun{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Status:     models.RunPending,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_runs (id, strategy_id, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.StrategyID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetStrategyRun returns a run by ID.
func (s *SQLiteStore) GetStrategyRun(ctx context.Context, runID string) (*models.StrategyRun, error) {
	var run models.StrategyRun
	var status string
	var errMsg sql.NullString
	var completedAt sql.NullTime

	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy_id, status, progress, stocks_screened, stocks_scored,
			theses_generated, trades_executed, error, started_at, completed_at
		FROM strategy_runs WHERE id = ?`, runID)
	err := row.Scan(&run.ID, &run.StrategyID, &status, &run.Progress,
		&run.StocksScreened, &run.StocksScored, &run.ThesesGenerated, &run.TradesExecuted,
		&errMsg, &run.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, enginerrors.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.Error = errMsg.String
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return &run, nil
}

// UpdateRunPhase moves a run to a new phase and progress percentage.
func (s *SQLiteStore) UpdateRunPhase(ctx context.Context, runID string, status models.RunStatus, progress float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategy_runs SET status = ?, progress = ? WHERE id = ?`,
		string(status), progress, runID)
	return err
}

// IncrementRunCounters adds to the monotonically non-decreasing phase
// counters of a run. Negative deltas are rejected.
func (s *SQLiteStore) IncrementRunCounters(ctx context.Context, runID string, screened, scored, theses, trades int) error {
	if screened < 0 || scored < 0 || theses < 0 || trades < 0 {
		return enginerrors.NewValidationError("counters", runID, "counter deltas must be non-negative")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE strategy_runs SET
			stocks_screened = stocks_screened + ?,
			stocks_scored = stocks_scored + ?,
			theses_generated = theses_generated + ?,
			trades_executed = trades_executed + ?
		WHERE id = ?`,
		screened, scored, theses, trades, runID)
	return err
}

// CompleteRun marks a run completed.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE strategy_runs SET status = ?, progress = 100, completed_at = ?
		WHERE id = ?`,
		string(models.RunCompleted), time.Now().UTC(), runID)
	return err
}

// FailRun marks a run failed with its last error message.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE strategy_runs SET status = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		string(models.RunFailed), errMsg, time.Now().UTC(), runID)
	return err
}

// CancelRun requests cancellation; the executor checks the flag between
// phases.
func (s *SQLiteStore) CancelRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategy_runs SET cancel_requested = 1 WHERE id = ?`, runID)
	return err
}

// IsRunCancelled reports whether cancellation was requested.
func (s *SQLiteStore) IsRunCancelled(ctx context.Context, runID string) (bool, error) {
	var flag int
	row := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM strategy_runs WHERE id = ?`, runID)
	if err := row.Scan(&flag); err != nil {
		if err == sql.ErrNoRows {
			return false, enginerrors.ErrRunNotFound
		}
		return false, err
	}
	return flag != 0, nil
}

// AppendToRunLog appends one event to a run's event log.
func (s *SQLiteStore) AppendToRunLog(ctx context.Context, event models.RunEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = "info"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_log (run_id, timestamp, phase, level, message)
		VALUES (?, ?, ?, ?, ?)`,
		event.RunID, event.Timestamp, string(event.Phase), event.Level, event.Message)
	return err
}

// GetRunLog returns a run's event log in append order.
func (s *SQLiteStore) GetRunLog(ctx context.Context, runID string) ([]models.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, timestamp, phase, level, message
		FROM run_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		var e models.RunEvent
		var phase string
		if err := rows.Scan(&e.RunID, &e.Timestamp, &phase, &e.Level, &e.Message); err != nil {
			return nil, err
		}
		e.Phase = models.RunStatus(phase)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveRunDecision records one per-symbol decision.
func (s *SQLiteStore) SaveRunDecision(ctx context.Context, d models.RunDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_decisions (run_id, symbol, verdict, combined_score, action, shares, value, reasoning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Symbol, string(d.Verdict), d.CombinedScore, d.Action, d.Shares, d.Value, d.Reasoning)
	return err
}

// GetRunDecisions returns the decision record of a run.
func (s *SQLiteStore) GetRunDecisions(ctx context.Context, runID string) ([]models.RunDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, symbol, verdict, combined_score, action, shares, value, reasoning
		FROM run_decisions WHERE run_id = ? ORDER BY combined_score DESC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []models.RunDecision
	for rows.Next() {
		var d models.RunDecision
		var verdict string
		if err := rows.Scan(&d.RunID, &d.Symbol, &verdict, &d.CombinedScore,
			&d.Action, &d.Shares, &d.Value, &d.Reasoning); err != nil {
			return nil, err
		}
		d.Verdict = models.Verdict(verdict)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// --- Job queue ---

// EnqueueJob creates a pending job for a strategy unless one is already
// pending or claimed with a live lease. Returns nil without error when the
// enqueue was deduplicated.
func (s *SQLiteStore) EnqueueJob(ctx context.Context, strategyID, tier string) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existing int
	row := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE strategy_id = ?
		AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at > ?))`,
		strategyID, time.Now().UTC())
	if err := row.Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, nil
	}

	job := &models.Job{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Status:     models.JobPending,
		Tier:       tier,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, strategy_id, status, tier, created_at)
		VALUES (?, ?, 'pending', ?, ?)`,
		job.ID, job.StrategyID, job.Tier, job.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimPendingJob atomically hands one claimable job to the worker, setting
// its lease expiry. Expired leases are reclaimable. Returns nil when no job
// is available.
func (s *SQLiteStore) ClaimPendingJob(ctx context.Context, workerID, tier string, lease time.Duration) (*models.Job, error) {
	now := time.Now().UTC()

	// The guarded UPDATE is the atomicity point: a concurrent claimer's
	// UPDATE matches zero rows and loops to the next candidate.
	for attempt := 0; attempt < 3; attempt++ {
		var jobID string
		row := s.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE tier = ?
			AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at < ?))
			ORDER BY created_at LIMIT 1`,
			tier, now)
		if err := row.Scan(&jobID); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'claimed', worker_id = ?, claimed_at = ?, lease_expires_at = ?
			WHERE id = ?
			AND (status = 'pending' OR (status = 'claimed' AND lease_expires_at < ?))`,
			workerID, now, now.Add(lease), jobID, now)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue // lost the race, try the next candidate
		}

		return s.getJob(ctx, jobID)
	}
	return nil, nil
}

func (s *SQLiteStore) getJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	var status string
	var workerID, message, result, errMsg sql.NullString
	var leaseExpires, claimedAt, finishedAt sql.NullTime

	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy_id, status, tier, worker_id, lease_expires_at,
			progress, message, processed, total, result, error, created_at, claimed_at, finished_at
		FROM jobs WHERE id = ?`, jobID)
	err := row.Scan(&job.ID, &job.StrategyID, &status, &job.Tier, &workerID, &leaseExpires,
		&job.Progress, &message, &job.Processed, &job.Total, &result, &errMsg,
		&job.CreatedAt, &claimedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, enginerrors.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.WorkerID = workerID.String
	job.Message = message.String
	job.Result = result.String
	job.Error = errMsg.String
	if leaseExpires.Valid {
		job.LeaseExpiresAt = leaseExpires.Time
	}
	if claimedAt.Valid {
		job.ClaimedAt = claimedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = finishedAt.Time
	}
	return &job, nil
}

// UpdateJobHeartbeat renews the lease of a claimed job. Returns ErrLeaseLost
// when the job is no longer held by this worker.
func (s *SQLiteStore) UpdateJobHeartbeat(ctx context.Context, jobID, workerID string, lease time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET lease_expires_at = ?
		WHERE id = ? AND worker_id = ? AND status = 'claimed'`,
		time.Now().UTC().Add(lease), jobID, workerID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return enginerrors.ErrLeaseLost
	}
	return nil
}

// UpdateJobProgress records progress for live display.
func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, pct float64, message string, processed, total int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, message = ?, processed = ?, total = ?
		WHERE id = ?`,
		pct, message, processed, total, jobID)
	return err
}

// CompleteJob marks a job completed with its result payload.
func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID, result string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', result = ?, progress = 100, finished_at = ?
		WHERE id = ?`,
		result, time.Now().UTC(), jobID)
	return err
}

// FailJob marks a job failed with its error message.
func (s *SQLiteStore) FailJob(ctx context.Context, jobID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = ?, finished_at = ?
		WHERE id = ?`,
		errMsg, time.Now().UTC(), jobID)
	return err
}

// --- Benchmarks ---

// SaveBenchmarkSnapshot records one portfolio-vs-benchmark observation.
func (s *SQLiteStore) SaveBenchmarkSnapshot(ctx context.Context, snap models.BenchmarkSnapshot) error {
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO benchmark_snapshots (strategy_id, run_id, portfolio_value, benchmark_price, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.StrategyID, snap.RunID, snap.PortfolioValue, snap.BenchmarkPrice, snap.RecordedAt)
	return err
}

// GetBenchmarkSnapshots returns a strategy's snapshots in time order.
func (s *SQLiteStore) GetBenchmarkSnapshots(ctx context.Context, strategyID string) ([]models.BenchmarkSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_id, run_id, portfolio_value, benchmark_price, recorded_at
		FROM benchmark_snapshots WHERE strategy_id = ? ORDER BY recorded_at`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.BenchmarkSnapshot
	for rows.Next() {
		var snap models.BenchmarkSnapshot
		var runID sql.NullString
		if err := rows.Scan(&snap.StrategyID, &runID, &snap.PortfolioValue,
			&snap.BenchmarkPrice, &snap.RecordedAt); err != nil {
			return nil, err
		}
		snap.RunID = runID.String
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteStore implements DataStore
var _ DataStore = (*SQLiteStore)(nil)
