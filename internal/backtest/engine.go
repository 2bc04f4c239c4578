// Package backtest implements the simulation engine: a deterministic
// sequential fold over the trading calendar that applies daily cash yield,
// stale-position liquidation, exit rules, and scheduled rebalance/entry
// screening to a portfolio.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/criteria"
	"carteira/internal/domain"
	"carteira/internal/marketdata"
	"carteira/internal/portfolio"
)

const (
	// A held position whose latest price is older than this is treated as
	// delisted/halted and force-liquidated.
	maxHoldingPriceAgeDays = 15

	// Entry candidates are rejected above these ages.
	maxEntryPriceAgeDays      = 5
	maxEntryFinancialsAgeDays = 500

	// Entry screening also runs off-slot when idle cash exceeds this share
	// of initial capital.
	idleCashFraction = 0.10

	// Minimum tradable share increment on this market.
	roundLot = 100
)

// Engine runs backtest simulations against a market data provider. It is
// stateless across runs; each run owns its own simulation context, so one
// Engine may serve concurrent runs of different configurations.
type Engine struct {
	data *marketdata.Provider
	eval *criteria.Evaluator
	log  *slog.Logger
}

// New creates an Engine reading from the given provider.
func New(data *marketdata.Provider, log *slog.Logger) *Engine {
	return &Engine{
		data: data,
		eval: criteria.NewEvaluator(data),
		log:  log,
	}
}

// simulationContext carries all per-run mutable state, threaded explicitly
// through each step function.
type simulationContext struct {
	cfg *domain.StrategyConfig
	pf  *portfolio.Portfolio

	totalInvested      decimal.Decimal
	daysSinceRebalance int
	rebalanceInterval  int

	// blacklist holds configured exclusions plus tickers delisted during the
	// run; forced contains configured must-hold tickers.
	blacklist map[string]bool
	forced    map[string]bool

	// highWater tracks the highest seen price per holding for the trailing
	// stop.
	highWater map[string]float64

	// Benchmark comparison curves accumulated alongside the history.
	benchmarkStart float64
	selicCurve     decimal.Decimal
}

// Run executes the backtest described by cfg and returns the aggregated
// result. ctx is checked once per simulated day; cancelling it aborts the
// run.
func (e *Engine) Run(ctx context.Context, cfg *domain.StrategyConfig) (*domain.BacktestResult, error) {
	start, err := cfg.Start()
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	end, err := cfg.End()
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}

	timeline, err := e.data.MarketTimeline(start, end)
	if err != nil {
		return nil, fmt.Errorf("building market timeline: %w", err)
	}

	initialCapital := decimal.NewFromFloat(cfg.InitialCapital)
	sim := &simulationContext{
		cfg:               cfg,
		pf:                portfolio.New(initialCapital),
		totalInvested:     initialCapital,
		rebalanceInterval: cfg.RebalancePeriod.Interval(),
		blacklist:         make(map[string]bool),
		forced:            make(map[string]bool),
		highWater:         make(map[string]float64),
		selicCurve:        initialCapital,
	}
	for _, t := range cfg.BlacklistedAssets {
		sim.blacklist[t] = true
	}
	for _, t := range cfg.ForcedAssets {
		sim.forced[t] = true
	}

	e.seedInitialPortfolio(sim, timeline[0])

	if v, ok := e.data.BenchmarkValueAsOf(cfg.Benchmark, start); ok {
		sim.benchmarkStart = v
	}

	e.log.Info("starting simulation",
		"start", cfg.StartDate, "end", cfg.EndDate,
		"capital", cfg.InitialCapital, "days", len(timeline))

	for _, date := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation cancelled at %s: %w", date.Format(domain.DateLayout), err)
		}
		e.processDay(sim, date)
		e.enrichHistory(sim, date)
	}

	return e.finalize(sim, start, end, timeline[len(timeline)-1]), nil
}

// seedInitialPortfolio executes the configured initial positions at the
// effective start date, preferring the market price and falling back to the
// configured price when none exists.
func (e *Engine) seedInitialPortfolio(sim *simulationContext, effectiveStart time.Time) {
	for _, item := range sim.cfg.InitialPortfolio {
		if item.Shares <= 0 {
			continue
		}
		executionPrice := item.Price
		if row, ok := e.data.LatestPriceRow(item.Ticker, effectiveStart); ok {
			executionPrice = row.Close
		} else {
			e.log.Warn("no market price for initial position, using configured price",
				"ticker", item.Ticker, "price", item.Price)
		}

		if !sim.pf.Buy(effectiveStart, item.Ticker, item.Shares, decimal.NewFromFloat(executionPrice), decimal.Zero) {
			e.log.Error("failed to execute initial buy",
				"ticker", item.Ticker, "shares", item.Shares, "cash", sim.pf.Cash())
		}
	}
}

// processDay advances the simulation by one trading day.
func (e *Engine) processDay(sim *simulationContext, date time.Time) {
	// 1. Idle cash accrues the daily risk-free factor.
	if sim.pf.Cash().IsPositive() {
		factor := decimal.NewFromFloat(e.data.SelicDailyFactor(date))
		sim.pf.AddCash(sim.pf.Cash().Mul(factor))
	}

	// 2. Valuation and delisting check.
	currentPrices := e.refreshHoldings(sim, date)

	// 3. Daily NAV snapshot.
	sim.pf.Snapshot(date, currentPrices)

	// 4. Exits run daily, independent of the rebalance cadence.
	e.checkExits(sim, date, currentPrices)

	// 5. Rebalance gate: contribution injection and entry screening.
	if sim.cfg.RebalancePeriod == domain.RebalanceNone {
		return
	}
	if sim.daysSinceRebalance < sim.rebalanceInterval {
		sim.daysSinceRebalance++
		return
	}
	sim.daysSinceRebalance = 0

	// Contributions ride the rebalance cadence; any positive amount is
	// injected and counted as invested capital.
	if sim.cfg.ContributionAmount > 0 {
		contribution := decimal.NewFromFloat(sim.cfg.ContributionAmount)
		sim.pf.AddCash(contribution)
		sim.totalInvested = sim.totalInvested.Add(contribution)
	}

	idleThreshold := decimal.NewFromFloat(sim.cfg.InitialCapital * idleCashFraction)
	if sim.pf.HoldingsCount() < sim.cfg.MaxAssets || sim.pf.Cash().GreaterThan(idleThreshold) {
		e.screenEntries(sim, date)
	}
}

// refreshHoldings updates every holding's current price and force-liquidates
// positions whose latest price is missing or stale, blacklisting the ticker
// for the rest of the run. It returns the fresh prices for valuation.
func (e *Engine) refreshHoldings(sim *simulationContext, date time.Time) map[string]decimal.Decimal {
	currentPrices := make(map[string]decimal.Decimal)

	for _, ticker := range sim.pf.Tickers() {
		row, ok := e.data.LatestPriceRow(ticker, date)
		stale := !ok || calendarDaysBetween(row.Date, date) > maxHoldingPriceAgeDays

		if stale {
			holding, _ := sim.pf.Holding(ticker)
			exitPrice := holding.CurrentPrice
			if exitPrice.IsZero() {
				exitPrice = holding.AvgPrice
			}
			e.log.Warn("position stale, force-liquidating",
				"ticker", ticker, "date", date.Format(domain.DateLayout), "price", exitPrice)
			sim.pf.Sell(date, ticker, holding.Quantity, exitPrice, decimal.Zero)
			sim.blacklist[ticker] = true
			delete(sim.highWater, ticker)
			continue
		}

		price := decimal.NewFromFloat(row.Close)
		sim.pf.SetCurrentPrice(ticker, price)
		currentPrices[ticker] = price
		if row.Close > sim.highWater[ticker] {
			sim.highWater[ticker] = row.Close
		}
	}
	return currentPrices
}

// checkExits liquidates holdings that breach the stop-loss, take-profit, or
// trailing-stop thresholds, or that pass the configured exit criteria
// against lagged fundamentals. Absent exit criteria mean no rule-based exit.
func (e *Engine) checkExits(sim *simulationContext, date time.Time, prices map[string]decimal.Decimal) {
	for _, ticker := range sim.pf.Tickers() {
		price, ok := prices[ticker]
		if !ok {
			continue
		}

		finRow, ok := e.data.LatestFinancialsRow(ticker, date)
		if !ok {
			continue
		}

		holding, _ := sim.pf.Holding(ticker)
		avg := holding.AvgPrice.InexactFloat64()
		if avg <= 0 {
			continue
		}
		priceF := price.InexactFloat64()
		pctChange := (priceF - avg) / avg

		liquidate := func(reason string) {
			e.log.Info("exit triggered", "ticker", ticker, "reason", reason,
				"date", date.Format(domain.DateLayout), "change", pctChange)
			sim.pf.Sell(date, ticker, holding.Quantity, price, decimal.Zero)
			delete(sim.highWater, ticker)
		}

		if sl := sim.cfg.StopLossPct; sl != nil && pctChange < -(*sl/100) {
			liquidate("stop_loss")
			continue
		}
		if tp := sim.cfg.TakeProfitPct; tp != nil && pctChange > *tp/100 {
			liquidate("take_profit")
			continue
		}
		if ts := sim.cfg.TrailingStopPct; ts != nil {
			if hw := sim.highWater[ticker]; hw > 0 && priceF < hw*(1-*ts/100) {
				liquidate("trailing_stop")
				continue
			}
		}

		if len(sim.cfg.ExitCriteria) > 0 &&
			e.eval.Evaluate(sim.cfg.ExitCriteria, sim.cfg.EntryLogic, ticker, date, priceF, finRow) {
			liquidate("exit_criteria")
		}
	}
}

// candidate is one asset that survived entry screening.
type candidate struct {
	ticker string
	price  float64
	score  float64
	forced bool
}

// screenEntries scans the universe for entry candidates, scores them, and
// allocates the available cash evenly across open slots in whole round
// lots. Candidate ordering is deterministic: forced tickers first, then
// ascending score, then ticker.
func (e *Engine) screenEntries(sim *simulationContext, date time.Time) {
	required := criteria.RequiredIndicators(sim.cfg.EntryCriteria)

	var candidates []candidate
	for _, ticker := range e.data.Universe() {
		if _, held := sim.pf.Holding(ticker); held {
			continue
		}
		if sim.blacklist[ticker] {
			continue
		}

		priceRow, ok := e.data.LatestPriceRow(ticker, date)
		if !ok || calendarDaysBetween(priceRow.Date, date) > maxEntryPriceAgeDays {
			continue
		}
		price := priceRow.Close
		if price <= 0 {
			continue
		}
		if sim.cfg.MinLiquidity > 0 && price*float64(priceRow.Volume) < sim.cfg.MinLiquidity {
			continue
		}

		finRow, ok := e.data.LatestFinancialsRow(ticker, date)
		if !ok || calendarDaysBetween(finRow.Date, date) > maxEntryFinancialsAgeDays {
			continue
		}

		forced := sim.forced[ticker]
		if !forced {
			// Every indicator the entry rules reference must be present, and
			// ratio indicators must be non-zero: a stored zero means "no
			// reliable data" for them.
			if !hasRequiredData(finRow, required) {
				continue
			}
			if !e.eval.Evaluate(sim.cfg.EntryCriteria, sim.cfg.EntryLogic, ticker, date, price, finRow) {
				continue
			}
		}

		candidates = append(candidates, candidate{
			ticker: ticker,
			price:  price,
			score:  Score(sim.cfg.EntryScoring, finRow),
			forced: forced,
		})
	}

	if len(candidates) == 0 {
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.forced != b.forced {
			return a.forced
		}
		if a.score != b.score {
			return a.score < b.score
		}
		return a.ticker < b.ticker
	})

	slots := sim.cfg.MaxAssets - sim.pf.HoldingsCount()
	if slots <= 0 {
		return
	}
	if len(candidates) > slots {
		candidates = candidates[:slots]
	}

	slotsDec := decimal.NewFromInt(int64(slots))
	for _, cand := range candidates {
		price := decimal.NewFromFloat(cand.price)
		allocPerSlot := sim.pf.Cash().Div(slotsDec)

		qty := allocPerSlot.Div(price).IntPart()
		qty = (qty / roundLot) * roundLot
		if qty <= 0 {
			continue
		}

		if sim.pf.Buy(date, cand.ticker, qty, price, decimal.Zero) {
			sim.highWater[cand.ticker] = cand.price
			e.log.Info("entry", "ticker", cand.ticker, "qty", qty,
				"price", cand.price, "score", cand.score, "date", date.Format(domain.DateLayout))
		}
	}
}

// hasRequiredData reports whether every required indicator is present on the
// row, with zero-sensitive indicators additionally required to be non-zero.
func hasRequiredData(row domain.FinancialsRow, required map[domain.Indicator]struct{}) bool {
	for ind := range required {
		val, ok := row.Value(ind)
		if !ok {
			return false
		}
		if val == 0 && criteria.IsZeroSensitive(ind) {
			return false
		}
	}
	return true
}

// enrichHistory writes the benchmark and SELIC comparison values onto the
// snapshot recorded for this day.
func (e *Engine) enrichHistory(sim *simulationContext, date time.Time) {
	// SELIC accumulation: initial capital compounded by the daily factor.
	factor := decimal.NewFromFloat(1 + e.data.SelicDailyFactor(date))
	sim.selicCurve = sim.selicCurve.Mul(factor)

	entry := sim.pf.LastHistoryEntry()
	if entry == nil {
		return
	}
	entry.SelicValue = sim.selicCurve.InexactFloat64()

	if sim.benchmarkStart > 0 {
		if curr, ok := e.data.BenchmarkValueAsOf(sim.cfg.Benchmark, date); ok {
			// Indexed to initial capital from the run start.
			entry.BenchmarkValue = curr / sim.benchmarkStart * sim.cfg.InitialCapital
		}
	}
}

// calendarDaysBetween returns the number of whole calendar days from a to b.
func calendarDaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// yearsBetween returns the fractional years from a to b.
func yearsBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24 / 365.25
}
