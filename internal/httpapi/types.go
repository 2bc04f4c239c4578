// Package httpapi provides the HTTP REST API for configuring and running
// simulations, serving results in JSON form to the web UI.
package httpapi

import (
	"carteira/internal/domain"
	"carteira/internal/marketdata"
)

// AvailableAsset is one ticker the simulator can trade, with an indication
// of whether fundamentals are loaded for it.
type AvailableAsset struct {
	Ticker         string `json:"ticker"`
	HasFinancials  bool   `json:"has_financials"`
	LatestSnapshot string `json:"latest_snapshot,omitempty"`
}

// AssetsResponse lists the tradable universe plus the data quality report
// built at load time.
type AssetsResponse struct {
	Assets  []AvailableAsset         `json:"assets"`
	Quality marketdata.QualityReport `json:"quality"`
}

// RunResponse wraps one simulation outcome together with the benchmark
// curves over the same window.
type RunResponse struct {
	RunID      string                          `json:"run_id"`
	StartDate  string                          `json:"start_date"`
	EndDate    string                          `json:"end_date"`
	Benchmarks map[string][]domain.SeriesPoint `json:"benchmarks"`
	Summary    RunSummary                      `json:"summary"`
	History    []domain.HistoryEntry           `json:"history"`
	Holdings   []domain.FinalHolding           `json:"final_holdings"`
	Trades     []domain.Transaction            `json:"trades"`
}

// RunSummary is the headline numbers of a simulation.
type RunSummary struct {
	FinalCapital  float64 `json:"final_capital"`
	TotalInvested float64 `json:"total_invested"`
	TotalReturn   float64 `json:"total_return"`
	CAGR          float64 `json:"cagr"`
	TotalTrades   int     `json:"total_trades"`
}
