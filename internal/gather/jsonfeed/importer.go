// Package jsonfeed imports processed fundamentals and price history from
// JSON files into the persistent stores. The files come from an upstream
// scraping pipeline and vary slightly in shape, so parsing is tolerant:
// unknown keys are ignored and non-numeric indicator values are dropped.
package jsonfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"carteira/internal/domain"
	"carteira/internal/gather"
	"carteira/internal/store"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var (
	_ gather.Gatherer = (*FinancialsImporter)(nil)
	_ gather.Gatherer = (*PriceImporter)(nil)
)

// dateLayouts are tried in order when parsing record dates.
var dateLayouts = []string{
	domain.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseRecordDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// recordDate extracts the date from a raw record under any of the accepted
// key names.
func recordDate(record map[string]any) (time.Time, bool) {
	for _, key := range []string{"date", "datetime", "timestamp"} {
		raw, ok := record[key].(string)
		if !ok {
			continue
		}
		if ts, ok := parseRecordDate(raw); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ---------------------------------------------------------------------------
// FinancialsImporter — quarterly fundamentals JSON into the SQL store.
// ---------------------------------------------------------------------------

// FinancialsImporter reads a ticker-keyed JSON file of quarterly indicator
// records and replaces each ticker's stored history.
type FinancialsImporter struct {
	path  string
	store store.FinancialsStore
	log   *slog.Logger
}

// NewFinancialsImporter creates a FinancialsImporter reading from path.
func NewFinancialsImporter(path string, st store.FinancialsStore, log *slog.Logger) *FinancialsImporter {
	return &FinancialsImporter{path: path, store: st, log: log}
}

// Name returns the gatherer identifier.
func (i *FinancialsImporter) Name() string { return "json-financials" }

// Run imports the whole file in one pass. Tickers with no parsable records
// are skipped and logged, not fatal.
func (i *FinancialsImporter) Run(ctx context.Context) error {
	data, err := os.ReadFile(i.path)
	if err != nil {
		return fmt.Errorf("reading financials file: %w", err)
	}

	var byTicker map[string][]map[string]any
	if err := json.Unmarshal(data, &byTicker); err != nil {
		return fmt.Errorf("parsing financials file %s: %w", i.path, err)
	}

	imported := 0
	for ticker, records := range byTicker {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows := make([]domain.FinancialsRow, 0, len(records))
		for _, record := range records {
			date, ok := recordDate(record)
			if !ok {
				continue
			}
			values := make(map[domain.Indicator]float64)
			for key, raw := range record {
				switch key {
				case "date", "datetime", "timestamp":
					continue
				}
				if num, ok := raw.(float64); ok {
					values[domain.Indicator(strings.ToLower(key))] = num
				}
			}
			rows = append(rows, domain.FinancialsRow{Date: date, Values: values})
		}
		if len(rows) == 0 {
			i.log.Warn("no parsable financial records", "ticker", ticker)
			continue
		}
		sort.Slice(rows, func(a, b int) bool { return rows[a].Date.Before(rows[b].Date) })

		if err := i.store.SaveFinancials(ctx, ticker, rows); err != nil {
			return fmt.Errorf("saving financials for %s: %w", ticker, err)
		}
		imported++
	}

	i.log.Info("financials import finished", "tickers", imported)
	return nil
}

// ---------------------------------------------------------------------------
// PriceImporter — daily price history JSON into the bar store.
// ---------------------------------------------------------------------------

// PriceImporter reads a ticker-keyed JSON file of daily bars. Each ticker
// maps either to a bare record list or to an envelope holding the list under
// "prices", "data", or "records".
type PriceImporter struct {
	path  string
	store store.PriceStore
	log   *slog.Logger
}

// NewPriceImporter creates a PriceImporter reading from path.
func NewPriceImporter(path string, st store.PriceStore, log *slog.Logger) *PriceImporter {
	return &PriceImporter{path: path, store: st, log: log}
}

// Name returns the gatherer identifier.
func (i *PriceImporter) Name() string { return "json-prices" }

// Run imports the whole file in one pass.
func (i *PriceImporter) Run(ctx context.Context) error {
	data, err := os.ReadFile(i.path)
	if err != nil {
		return fmt.Errorf("reading price file: %w", err)
	}

	var byTicker map[string]json.RawMessage
	if err := json.Unmarshal(data, &byTicker); err != nil {
		return fmt.Errorf("parsing price file %s: %w", i.path, err)
	}

	imported := 0
	for ticker, payload := range byTicker {
		if err := ctx.Err(); err != nil {
			return err
		}

		records := extractRecords(payload)
		bars := make([]domain.PriceRow, 0, len(records))
		for _, record := range records {
			date, ok := recordDate(record)
			if !ok {
				continue
			}
			bars = append(bars, domain.PriceRow{
				Date:   date,
				Open:   numberAt(record, "open"),
				High:   numberAt(record, "high"),
				Low:    numberAt(record, "low"),
				Close:  numberAt(record, "close"),
				Volume: int64(numberAt(record, "volume")),
			})
		}
		if len(bars) == 0 {
			i.log.Warn("no parsable price records", "ticker", ticker)
			continue
		}
		sort.Slice(bars, func(a, b int) bool { return bars[a].Date.Before(bars[b].Date) })

		if err := i.store.WriteBars(ctx, ticker, bars); err != nil {
			return fmt.Errorf("writing bars for %s: %w", ticker, err)
		}
		imported++
	}

	i.log.Info("price import finished", "tickers", imported)
	return nil
}

// extractRecords accepts either a bare record array or an envelope object.
func extractRecords(payload json.RawMessage) []map[string]any {
	var records []map[string]any
	if err := json.Unmarshal(payload, &records); err == nil {
		return records
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil
	}
	for _, key := range []string{"prices", "data", "records"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &records); err == nil && len(records) > 0 {
			return records
		}
	}
	return nil
}

func numberAt(record map[string]any, key string) float64 {
	if num, ok := record[key].(float64); ok {
		return num
	}
	return 0
}
