// Package domain defines the core types shared across the backtest system:
// strategy configuration, criteria trees, market data rows, transactions,
// and the backtest result.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for all dates in configs and API payloads.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Criteria tree
// ---------------------------------------------------------------------------

// Logic combines the results of several boolean checks.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator is a comparison applied to an indicator value.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEq    Operator = ">="
	OpLess         Operator = "<"
	OpLessEq       Operator = "<="
	OpEqual        Operator = "=="
	OpRange        Operator = "range"
	OpOutsideRange Operator = "outsiderange"
)

// Indicator names a financial metric, either stored directly on a
// FinancialsRow or derived on demand by the criteria evaluator.
type Indicator string

const (
	IndPL                 Indicator = "p_l"
	IndPVP                Indicator = "p_vp"
	IndROE                Indicator = "roe"
	IndROIC               Indicator = "roic"
	IndDY                 Indicator = "dy"
	IndNetMargin          Indicator = "net_margin"
	IndAvgMargin5y        Indicator = "avg_margin_5y"
	IndNetMarginAvg5y     Indicator = "net_margin_avg_5y"
	IndRevenue            Indicator = "revenue"
	IndNetIncome          Indicator = "net_income"
	IndNetDebt            Indicator = "net_debt"
	IndEBIT               Indicator = "ebit"
	IndNetDebtEBITDA      Indicator = "net_debt_ebitda"
	IndEVEBITDA           Indicator = "ev_ebitda"
	IndConsecutiveProfits Indicator = "consecutive_profits"
	IndRevenueCAGR5y      Indicator = "revenue_cagr_5y"
)

// CriteriaItem is a single comparison against one indicator. Value is used by
// the scalar operators; ValueMin/ValueMax by range and outsiderange. Pointers
// distinguish "not supplied" from a literal zero.
type CriteriaItem struct {
	Indicator Indicator `yaml:"indicator" json:"indicator"`
	Operator  Operator  `yaml:"operator" json:"operator"`
	Value     *float64  `yaml:"value,omitempty" json:"value,omitempty"`
	ValueMin  *float64  `yaml:"value_min,omitempty" json:"value_min,omitempty"`
	ValueMax  *float64  `yaml:"value_max,omitempty" json:"value_max,omitempty"`
}

// CriteriaGroup is a list of items combined under the group's own logic. A
// list of groups is combined under a separate top-level logic carried on the
// StrategyConfig; the two levels are intentionally distinct.
type CriteriaGroup struct {
	Logic Logic          `yaml:"logic" json:"logic"`
	Items []CriteriaItem `yaml:"items" json:"items"`
}

// ---------------------------------------------------------------------------
// Strategy configuration
// ---------------------------------------------------------------------------

// ScoringMode selects how entry candidates are ranked. Lower scores rank
// first in every mode.
type ScoringMode string

const (
	ScoreValue    ScoringMode = "value"
	ScoreGrowth   ScoringMode = "growth"
	ScoreQuality  ScoringMode = "quality"
	ScoreBalanced ScoringMode = "balanced"
)

// RebalancePeriod is the cadence at which contributions are injected and
// entry screening runs.
type RebalancePeriod string

const (
	RebalanceNone      RebalancePeriod = "none"
	RebalanceMonthly   RebalancePeriod = "monthly"
	RebalanceQuarterly RebalancePeriod = "quarterly"
	RebalanceYearly    RebalancePeriod = "yearly"
)

// Interval returns the rebalance cadence in trading days. "none" maps to a
// sentinel large enough to never trigger within a realistic run.
func (p RebalancePeriod) Interval() int {
	switch p {
	case RebalanceNone:
		return 99999
	case RebalanceQuarterly:
		return 63
	case RebalanceYearly:
		return 252
	default:
		return 21 // monthly
	}
}

// InitialPosition pre-seeds the portfolio before the first simulated day.
// Price is a fallback used only when no market price exists at the effective
// start date.
type InitialPosition struct {
	Ticker string  `yaml:"ticker" json:"ticker"`
	Shares int64   `yaml:"shares" json:"shares"`
	Price  float64 `yaml:"price" json:"price"`
}

// StrategyConfig is the immutable input to a backtest run.
type StrategyConfig struct {
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	StartDate      string  `yaml:"start_date" json:"start_date"`
	EndDate        string  `yaml:"end_date" json:"end_date"`
	Benchmark      string  `yaml:"benchmark" json:"benchmark"`
	MaxAssets      int     `yaml:"max_assets" json:"max_assets"`
	MinLiquidity   float64 `yaml:"min_liquidity" json:"min_liquidity"`

	ForcedAssets      []string `yaml:"forced_assets" json:"forced_assets"`
	BlacklistedAssets []string `yaml:"blacklisted_assets" json:"blacklisted_assets"`

	EntryLogic    Logic           `yaml:"entry_logic" json:"entry_logic"`
	EntryCriteria []CriteriaGroup `yaml:"entry_criteria" json:"entry_criteria"`
	EntryScoring  ScoringMode     `yaml:"entry_score_weights" json:"entry_score_weights"`

	ExitCriteria    []CriteriaGroup `yaml:"exit_criteria" json:"exit_criteria"`
	StopLossPct     *float64        `yaml:"stop_loss" json:"stop_loss,omitempty"`
	TakeProfitPct   *float64        `yaml:"take_profit" json:"take_profit,omitempty"`
	TrailingStopPct *float64        `yaml:"trailing_stop" json:"trailing_stop,omitempty"`

	RebalancePeriod       RebalancePeriod `yaml:"rebalance_period" json:"rebalance_period"`
	ContributionAmount    float64         `yaml:"contribution_amount" json:"contribution_amount"`
	ContributionFrequency string          `yaml:"contribution_frequency" json:"contribution_frequency"`

	InitialPortfolio []InitialPosition `yaml:"initial_portfolio" json:"initial_portfolio"`
}

// Start parses the configured start date.
func (c *StrategyConfig) Start() (time.Time, error) {
	return time.Parse(DateLayout, c.StartDate)
}

// End parses the configured end date.
func (c *StrategyConfig) End() (time.Time, error) {
	return time.Parse(DateLayout, c.EndDate)
}

// ---------------------------------------------------------------------------
// Market data rows
// ---------------------------------------------------------------------------

// PriceRow is one daily price record for a ticker.
type PriceRow struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// FinancialsRow is one fundamental snapshot (quarterly granularity). Missing
// indicators are absent from Values; presence and value are distinct.
type FinancialsRow struct {
	Date   time.Time
	Values map[Indicator]float64
}

// Value looks up a directly stored indicator. The second return reports
// whether the indicator is present on the row.
func (r FinancialsRow) Value(ind Indicator) (float64, bool) {
	v, ok := r.Values[ind]
	return v, ok
}

// SeriesPoint is one observation of a benchmark time series (index points
// for IBOV, annualized rate for SELIC, monthly percent for IPCA).
type SeriesPoint struct {
	Date  time.Time
	Value float64
}

// ---------------------------------------------------------------------------
// Portfolio records
// ---------------------------------------------------------------------------

// Action is the direction of an executed order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Transaction is one executed order. The log is append-only.
type Transaction struct {
	Date       time.Time       `json:"date"`
	Ticker     string          `json:"ticker"`
	Action     Action          `json:"action"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fees       decimal.Decimal `json:"fees"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Holding is the live position state for one ticker.
type Holding struct {
	Quantity     int64
	AvgPrice     decimal.Decimal
	CurrentPrice decimal.Decimal
}

// HistoryEntry is one daily portfolio snapshot, enriched by the engine with
// benchmark and SELIC accumulation curves for comparison.
type HistoryEntry struct {
	Date           time.Time `json:"date"`
	TotalValue     float64   `json:"total_value"`
	Cash           float64   `json:"cash"`
	HoldingsCount  int       `json:"holdings_count"`
	BenchmarkValue float64   `json:"benchmark_value"`
	SelicValue     float64   `json:"selic_value"`
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// FinalHolding is one open position at the end of a run, valued at the last
// available price.
type FinalHolding struct {
	Ticker    string  `json:"ticker"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	AvgPrice  float64 `json:"avg_price"`
	ReturnPct float64 `json:"return_pct"`
}

// BacktestResult is the complete outcome of one simulation run.
type BacktestResult struct {
	FinalCapital  float64        `json:"final_capital"`
	TotalReturn   float64        `json:"total_return"`
	CAGR          float64        `json:"cagr"`
	TotalTrades   int            `json:"total_trades"`
	TradeLog      []Transaction  `json:"trade_log"`
	FinalHoldings []FinalHolding `json:"final_holdings"`
	TotalInvested float64        `json:"total_invested"`
	History       []HistoryEntry `json:"history"`
}
