// Package store defines storage interfaces for the market data backing a
// backtest: daily price bars, quarterly fundamentals, and benchmark series.
package store

import (
	"context"

	"carteira/internal/domain"
)

// PriceStore persists and retrieves daily price bars per ticker.
type PriceStore interface {
	// WriteBars persists a batch of bars for a ticker, merging with any
	// already stored for the same dates.
	WriteBars(ctx context.Context, ticker string, bars []domain.PriceRow) error

	// ReadBars returns all stored bars for a ticker in date order.
	ReadBars(ctx context.Context, ticker string) ([]domain.PriceRow, error)

	// ListTickers returns all distinct tickers with stored bars.
	ListTickers(ctx context.Context) ([]string, error)
}

// FinancialsStore persists and retrieves fundamental snapshots per ticker.
type FinancialsStore interface {
	// SaveFinancials replaces the stored history for a ticker.
	SaveFinancials(ctx context.Context, ticker string, rows []domain.FinancialsRow) error

	// ReadFinancials returns the stored history for a ticker in date order.
	ReadFinancials(ctx context.Context, ticker string) ([]domain.FinancialsRow, error)

	// ListTickers returns all distinct tickers with stored financials.
	ListTickers(ctx context.Context) ([]string, error)
}

// BenchmarkStore persists and retrieves benchmark time series by name
// (e.g. IBOV, SELIC_Rate, IPCA).
type BenchmarkStore interface {
	// SaveSeries replaces the stored series for a benchmark name.
	SaveSeries(ctx context.Context, name string, points []domain.SeriesPoint) error

	// ReadSeries returns the stored series for a benchmark name in date order.
	ReadSeries(ctx context.Context, name string) ([]domain.SeriesPoint, error)
}
