// Package engine drives strategy runs through their ordered phases:
// screening, scoring, thesis generation, consensus, sizing, trading,
// benchmarking, and briefing.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"strategy-engine/internal/benchmark"
	"strategy-engine/internal/briefing"
	"strategy-engine/internal/consensus"
	enginerrors "strategy-engine/internal/errors"
	"strategy-engine/internal/exits"
	"strategy-engine/internal/logging"
	"strategy-engine/internal/marketdata"
	"strategy-engine/internal/models"
	"strategy-engine/internal/scoring"
	"strategy-engine/internal/sizing"
	"strategy-engine/internal/store"
	"strategy-engine/internal/thesis"
	"strategy-engine/internal/trading"
	"strategy-engine/internal/universe"
)

// ProgressFunc receives phase transitions for job progress reporting.
// processed and total count completed phases out of the full sequence.
type ProgressFunc func(phase models.RunStatus, pct float64, message string, processed, total int)

// Executor runs one strategy through the full phase sequence. Screening and
// scoring failures abort the run; thesis and per-trade failures degrade and
// the run continues.
type Executor struct {
	store     store.DataStore
	provider  marketdata.Provider
	thesis    *thesis.Generator // nil disables thesis generation
	consensus *consensus.Engine
	sizer     *sizing.Sizer
	exits     *exits.Checker
	trader    *trading.Executor
	bench     *benchmark.Tracker

	concurrency int
	logger      zerolog.Logger
}

// Options configures an Executor.
type Options struct {
	Store       store.DataStore
	Provider    marketdata.Provider
	Thesis      *thesis.Generator
	Benchmark   *benchmark.Tracker
	Concurrency int
	Logger      zerolog.Logger
}

// NewExecutor creates a strategy executor.
func NewExecutor(opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Executor{
		store:       opts.Store,
		provider:    opts.Provider,
		thesis:      opts.Thesis,
		consensus:   consensus.NewEngine(),
		sizer:       sizing.NewSizer(),
		exits:       exits.NewChecker(),
		trader:      trading.NewExecutor(opts.Store, opts.Logger),
		bench:       opts.Benchmark,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

// phaseSequence is the forward order of run phases.
var phaseSequence = []models.RunStatus{
	models.RunScreening,
	models.RunScoring,
	models.RunThesisGeneration,
	models.RunConsensus,
	models.RunSizing,
	models.RunTrading,
	models.RunBenchmarking,
	models.RunBriefing,
}

// phase progress checkpoints, reported at phase entry.
var phaseProgress = map[models.RunStatus]float64{
	models.RunScreening:        5,
	models.RunScoring:          20,
	models.RunThesisGeneration: 35,
	models.RunConsensus:        55,
	models.RunSizing:           65,
	models.RunTrading:          75,
	models.RunBenchmarking:     90,
	models.RunBriefing:         95,
}

// phaseIndex returns how many phases precede status in the sequence.
func phaseIndex(status models.RunStatus) int {
	for i, s := range phaseSequence {
		if s == status {
			return i
		}
	}
	return 0
}

// ExecuteRun drives one run to completion. The returned briefing is non-nil
// on success. A fatal error marks the run failed; cancellation marks it
// cancelled. Both are reflected in the store before returning.
func (e *Executor) ExecuteRun(ctx context.Context, strategy *models.Strategy, run *models.StrategyRun, progress ProgressFunc) (*briefing.Briefing, error) {
	logger := logging.WithRun(logging.WithStrategy(e.logger, strategy.ID), run.ID)

	brief, err := e.executeRun(ctx, strategy, run, progress, logger)
	if err != nil {
		if enginerrors.Is(err, enginerrors.ErrRunCancelled) {
			logger.Info().Msg("run cancelled")
			return nil, err
		}
		logger.Error().Err(err).Msg("run failed")
		// The run context may already be dead; persist on a fresh one.
		if ferr := e.store.FailRun(context.Background(), run.ID, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Msg("marking run failed")
		}
		return nil, err
	}
	return brief, nil
}

func (e *Executor) executeRun(ctx context.Context, strategy *models.Strategy, run *models.StrategyRun, progress ProgressFunc, logger zerolog.Logger) (*briefing.Briefing, error) {
	bl := briefing.NewBuilder(strategy.Name, run.ID)

	// --- screening ---
	if err := e.enterPhase(ctx, run.ID, models.RunScreening, progress, logger); err != nil {
		return nil, err
	}
	snapshot, err := e.provider.GetMetricsSnapshot(ctx)
	if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunScreening), err)
	}

	filter := universe.NewFilter(strategy.Universe, e.concurrency)
	passed, err := filter.Select(ctx, snapshot)
	if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunScreening), err)
	}
	candidateSet := make(map[string]bool, len(passed))
	for _, sym := range passed {
		candidateSet[sym] = true
	}
	e.logEvent(ctx, run.ID, models.RunScreening, "info",
		fmt.Sprintf("%d of %d symbols passed universe filters", len(passed), len(snapshot)))

	summary, err := e.store.GetPortfolioSummary(ctx, strategy.PortfolioID)
	if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunScreening), err)
	}
	if len(passed) == 0 && len(summary.Holdings) == 0 {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunScreening), enginerrors.ErrNoCandidates)
	}

	// Refresh held prices from the snapshot so exit math sees current values.
	metricsBySymbol := make(map[string]models.StockMetrics, len(snapshot))
	heldPrices := make(map[string]float64)
	for _, m := range snapshot {
		metricsBySymbol[m.Symbol] = m
		if _, held := summary.Holdings[m.Symbol]; held && m.Price > 0 {
			heldPrices[m.Symbol] = m.Price
		}
	}
	if len(heldPrices) > 0 {
		if err := e.store.UpdateHoldingPrices(ctx, summary.PortfolioID, heldPrices); err != nil {
			return nil, enginerrors.NewRunError(run.ID, string(models.RunScreening), err)
		}
		summary, err = e.store.GetPortfolioSummary(ctx, strategy.PortfolioID)
		if err != nil {
			return nil, enginerrors.NewRunError(run.ID, string(models.RunScreening), err)
		}
	}
	if err := e.store.IncrementRunCounters(ctx, run.ID, len(snapshot), 0, 0, 0); err != nil {
		logger.Warn().Err(err).Msg("updating run counters")
	}

	// --- scoring ---
	if err := e.enterPhase(ctx, run.ID, models.RunScoring, progress, logger); err != nil {
		return nil, err
	}
	// Held symbols are always re-scored even when they fail the filters,
	// so score-degradation exits see fresh opinions.
	toScore := make([]models.StockMetrics, 0, len(passed)+len(summary.Holdings))
	for _, sym := range passed {
		toScore = append(toScore, metricsBySymbol[sym])
	}
	for sym := range summary.Holdings {
		if !candidateSet[sym] {
			if m, ok := metricsBySymbol[sym]; ok {
				toScore = append(toScore, m)
			}
		}
	}
	opinions := scoring.ScoreAll(ctx, scoring.DefaultScorers(), toScore, e.concurrency)
	if err := e.store.IncrementRunCounters(ctx, run.ID, 0, len(opinions), 0, 0); err != nil {
		logger.Warn().Err(err).Msg("updating run counters")
	}

	// --- thesis generation ---
	if err := e.enterPhase(ctx, run.ID, models.RunThesisGeneration, progress, logger); err != nil {
		return nil, err
	}
	prelim := make([]models.Candidate, 0, len(passed))
	for _, sym := range passed {
		m := metricsBySymbol[sym]
		prelim = append(prelim, models.Candidate{
			Symbol:   sym,
			Price:    m.Price,
			Opinions: opinions[sym],
		})
	}
	thesisResults := map[string]thesis.Result{}
	if e.thesis != nil {
		thesisResults = e.thesis.GenerateAll(ctx, prelim, metricsBySymbol)
		generated, failed := 0, 0
		for _, r := range thesisResults {
			if r.Err != nil {
				failed++
				e.logEvent(ctx, run.ID, models.RunThesisGeneration, "warn",
					fmt.Sprintf("%s: thesis failed, degraded to WATCH: %v", r.Symbol, r.Err))
				continue
			}
			generated++
		}
		if failed > 0 {
			bl.AddWarning("%d of %d theses failed; affected symbols held at WATCH", failed, len(prelim))
		}
		if err := e.store.IncrementRunCounters(ctx, run.ID, 0, 0, generated, 0); err != nil {
			logger.Warn().Err(err).Msg("updating run counters")
		}
	}

	// --- consensus ---
	if err := e.enterPhase(ctx, run.ID, models.RunConsensus, progress, logger); err != nil {
		return nil, err
	}
	var candidates []models.Candidate
	decisions := make(map[string]*models.RunDecision, len(prelim))
	for _, c := range prelim {
		lynch, buffett := opinionPtr(c.Opinions, scoring.CharacterLynch), opinionPtr(c.Opinions, scoring.CharacterBuffett)
		res := e.consensus.Combine(c.Symbol, lynch, buffett, strategy.Consensus)
		logging.LogVerdict(logger, c.Symbol, string(res.Verdict), res.CombinedScore)

		verdict := res.Verdict
		reasoning := res.Reasoning
		// An explicit AVOID from the analyst narrative overrides a consensus
		// BUY; a degraded or absent thesis never does.
		if tr, ok := thesisResults[c.Symbol]; ok && tr.Err == nil && tr.Verdict == models.VerdictAvoid && verdict == models.VerdictBuy {
			verdict = models.VerdictWatch
			reasoning = "consensus BUY overridden by thesis AVOID"
		}

		d := &models.RunDecision{
			RunID:         run.ID,
			Symbol:        c.Symbol,
			Verdict:       verdict,
			CombinedScore: res.CombinedScore,
			Action:        "skipped",
			Reasoning:     reasoning,
		}
		decisions[c.Symbol] = d

		if verdict != models.VerdictBuy {
			continue
		}
		cand := c
		cand.Verdict = verdict
		cand.Conviction = res.CombinedScore
		if tr, ok := thesisResults[c.Symbol]; ok {
			cand.Thesis = tr.Thesis
		}
		candidates = append(candidates, cand)
	}
	e.logEvent(ctx, run.ID, models.RunConsensus, "info",
		fmt.Sprintf("%d BUY candidates from %d screened", len(candidates), len(prelim)))

	// --- sizing ---
	if err := e.enterPhase(ctx, run.ID, models.RunSizing, progress, logger); err != nil {
		return nil, err
	}
	merged, plan, err := e.planOrders(ctx, run.ID, strategy, summary, candidates, opinions, candidateSet, bl)
	if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunSizing), err)
	}

	// --- trading ---
	if err := e.enterPhase(ctx, run.ID, models.RunTrading, progress, logger); err != nil {
		return nil, err
	}
	tradeResult, err := e.trader.Execute(ctx, summary, run.ID, merged, plan)
	if err != nil && enginerrors.Is(err, enginerrors.ErrVersionConflict) {
		// Something else touched the portfolio mid-run. Re-snapshot once and
		// rebuild the orders from the fresh ledger: trades committed before
		// the conflict now show as satisfied targets inside the tolerance
		// band, so they are never re-issued.
		e.logEvent(ctx, run.ID, models.RunTrading, "warn", "portfolio version conflict; re-snapshotting and replanning")
		summary, err = e.store.GetPortfolioSummary(ctx, strategy.PortfolioID)
		if err != nil {
			return nil, enginerrors.NewRunError(run.ID, string(models.RunTrading), err)
		}
		merged, plan, err = e.planOrders(ctx, run.ID, strategy, summary, candidates, opinions, candidateSet, bl)
		if err != nil {
			return nil, enginerrors.NewRunError(run.ID, string(models.RunTrading), err)
		}
		retryResult, rerr := e.trader.Execute(ctx, summary, run.ID, merged, plan)
		if rerr != nil {
			return nil, enginerrors.NewRunError(run.ID, string(models.RunTrading), rerr)
		}
		tradeResult.Exits = append(tradeResult.Exits, retryResult.Exits...)
		tradeResult.Sells = append(tradeResult.Sells, retryResult.Sells...)
		tradeResult.Buys = append(tradeResult.Buys, retryResult.Buys...)
		tradeResult.Failed += retryResult.Failed
		tradeResult.FinalVersion = retryResult.FinalVersion
	} else if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunTrading), err)
	}
	if tradeResult.Failed > 0 {
		bl.AddWarning("%d trades failed and were skipped", tradeResult.Failed)
	}
	if err := e.store.IncrementRunCounters(ctx, run.ID, 0, 0, 0, tradeResult.Trades()); err != nil {
		logger.Warn().Err(err).Msg("updating run counters")
	}
	applyTradeActions(decisions, tradeResult, run.ID)

	// --- benchmarking ---
	if err := e.enterPhase(ctx, run.ID, models.RunBenchmarking, progress, logger); err != nil {
		return nil, err
	}
	summary, err = e.store.GetPortfolioSummary(ctx, strategy.PortfolioID)
	if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunBenchmarking), err)
	}
	var cmp *benchmark.Comparison
	if e.bench != nil {
		if err := e.bench.Record(ctx, strategy.ID, run.ID, summary.TotalValue); err != nil {
			bl.AddWarning("benchmark snapshot failed: %v", err)
		}
		if c, err := e.bench.Compare(ctx, strategy.ID); err == nil {
			cmp = c
		}
	}

	// --- briefing ---
	if err := e.enterPhase(ctx, run.ID, models.RunBriefing, progress, logger); err != nil {
		return nil, err
	}
	finalRun, err := e.store.GetStrategyRun(ctx, run.ID)
	if err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunBriefing), err)
	}

	decisionList := make([]models.RunDecision, 0, len(decisions))
	for _, d := range decisions {
		decisionList = append(decisionList, *d)
		if err := e.store.SaveRunDecision(ctx, *d); err != nil {
			logger.Warn().Err(err).Str("symbol", d.Symbol).Msg("saving run decision")
		}
	}

	brief := bl.
		WithCounts(finalRun.StocksScreened, finalRun.StocksScored, finalRun.ThesesGenerated).
		WithTrades(tradeResult.Buys, tradeResult.Sells, tradeResult.Exits).
		WithDecisions(decisionList).
		WithPortfolio(summary.TotalValue, summary.Cash).
		WithBenchmark(cmp).
		Build()

	if err := e.store.CompleteRun(ctx, run.ID); err != nil {
		return nil, enginerrors.NewRunError(run.ID, string(models.RunBriefing), err)
	}
	if progress != nil {
		progress(models.RunCompleted, 100, "run completed", len(phaseSequence), len(phaseSequence))
	}
	logger.Info().
		Int("trades", tradeResult.Trades()).
		Int("candidates", len(candidates)).
		Msg("run completed")
	return brief, nil
}

// planOrders sizes the candidate list against a portfolio snapshot and runs
// the exit checks, returning the merged exit signals and the order plan. It
// is pure with respect to the ledger, so a version conflict during execution
// is handled by re-snapshotting and calling it again: positions already on
// the ledger show up as satisfied targets and generate no further orders.
func (e *Executor) planOrders(ctx context.Context, runID string, strategy *models.Strategy, summary *models.PortfolioSummary, candidates []models.Candidate, opinions map[string]map[string]models.Opinion, candidateSet map[string]bool, bl *briefing.Builder) ([]models.ExitSignal, *sizing.OrderPlan, error) {
	plan, err := e.sizer.CalculateTargetOrders(sizing.Input{
		Candidates: candidates,
		Portfolio:  summary,
		Config:     strategy.Sizing,
	})
	if err != nil {
		if !enginerrors.Is(err, enginerrors.ErrNoPrices) {
			return nil, nil, err
		}
		// Price feed down: hold everything, keep the run going.
		e.logEvent(ctx, runID, models.RunSizing, "warn", "no usable prices; holding all positions")
		bl.AddWarning("price feed unavailable; no trades executed")
		plan = &sizing.OrderPlan{}
	}

	entryDates, err := e.store.GetPositionEntryDates(ctx, summary.PortfolioID)
	if err != nil {
		return nil, nil, err
	}
	exitSignals := e.exits.Check(exits.Input{
		Holdings:     summary.Holdings,
		EntryDates:   entryDates,
		Conditions:   models.ResolveExitConditions(strategy.Exits),
		Opinions:     opinions,
		CandidateSet: candidateSet,
		Now:          time.Now().UTC(),
	})
	return exits.Merge(exitSignals, plan.Displacements), plan, nil
}

// enterPhase checks for cancellation, then records the transition. Phases
// only ever move forward.
func (e *Executor) enterPhase(ctx context.Context, runID string, status models.RunStatus, progress ProgressFunc, logger zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		// The run context is gone (worker shutdown or lease loss); the run
		// still needs a terminal state, so persist it on a fresh context.
		if uerr := e.store.UpdateRunPhase(context.Background(), runID, models.RunCancelled, phaseProgress[status]); uerr != nil {
			logger.Error().Err(uerr).Msg("marking run cancelled")
		}
		return enginerrors.Wrap(enginerrors.ErrRunCancelled, "context done")
	}
	cancelled, err := e.store.IsRunCancelled(ctx, runID)
	if err != nil {
		return enginerrors.NewRunError(runID, string(status), err)
	}
	if cancelled {
		if err := e.store.UpdateRunPhase(ctx, runID, models.RunCancelled, phaseProgress[status]); err != nil {
			logger.Error().Err(err).Msg("marking run cancelled")
		}
		return enginerrors.ErrRunCancelled
	}

	pct := phaseProgress[status]
	if err := e.store.UpdateRunPhase(ctx, runID, status, pct); err != nil {
		return enginerrors.NewRunError(runID, string(status), err)
	}
	logging.LogPhase(logger, runID, string(status), pct)
	if progress != nil {
		progress(status, pct, string(status), phaseIndex(status), len(phaseSequence))
	}
	return nil
}

func (e *Executor) logEvent(ctx context.Context, runID string, phase models.RunStatus, level, message string) {
	event := models.RunEvent{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Level:     level,
		Message:   message,
	}
	if err := e.store.AppendToRunLog(ctx, event); err != nil {
		e.logger.Warn().Err(err).Msg("appending run event")
	}
}

func opinionPtr(ops map[string]models.Opinion, character string) *models.Opinion {
	if op, ok := ops[character]; ok {
		return &op
	}
	return nil
}

// applyTradeActions folds executed trades back into the per-symbol decision
// log. Exited holdings that were never candidates get their own entries.
func applyTradeActions(decisions map[string]*models.RunDecision, res *trading.Result, runID string) {
	for _, sig := range res.Exits {
		d, ok := decisions[sig.Symbol]
		if !ok {
			d = &models.RunDecision{RunID: runID, Symbol: sig.Symbol}
			decisions[sig.Symbol] = d
		}
		d.Action = "sold"
		d.Shares = sig.Quantity
		d.Value = sig.CurrentValue
		d.Reasoning = sig.Reason
	}
	for _, s := range res.Sells {
		if d, ok := decisions[s.Symbol]; ok {
			d.Action = "trimmed"
			d.Shares = s.Shares
			d.Value = s.EstimatedValue
		}
	}
	for _, b := range res.Buys {
		if d, ok := decisions[b.Symbol]; ok {
			d.Action = "bought"
			d.Shares = b.Shares
			d.Value = b.EstimatedValue
		}
	}
	for _, d := range decisions {
		if d.Verdict == models.VerdictBuy && d.Action == "skipped" {
			d.Action = "held"
		}
	}
}
