package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"carteira/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore using Parquet files on disk, one file
// per ticker and year.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data
// directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily price bars.
type BarRecord struct {
	Ticker    string  `parquet:"ticker"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars for a ticker, grouped into one Parquet file per
// year at <DataDir>/prices/<TICKER>/<YYYY>.parquet, merging with any bars
// already stored for the same dates.
func (s *ParquetStore) WriteBars(_ context.Context, ticker string, bars []domain.PriceRow) error {
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		groups[b.Date.Year()] = append(groups[b.Date.Year()], BarRecord{
			Ticker:    strings.ToUpper(ticker),
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for year, records := range groups {
		path := s.barPath(ticker, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", ticker, year, err)
		}
	}
	return nil
}

// ReadBars reads all stored bars for a ticker across year files, in date
// order.
func (s *ParquetStore) ReadBars(_ context.Context, ticker string) ([]domain.PriceRow, error) {
	dir := filepath.Join(s.DataDir, "prices", strings.ToUpper(ticker))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var bars []domain.PriceRow
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		records, err := readParquetFile[BarRecord](filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		for _, r := range records {
			bars = append(bars, domain.PriceRow{
				Date:   time.UnixMilli(r.Timestamp).UTC(),
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// ListTickers lists all tickers that have stored bars.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "prices")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/prices/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) barPath(ticker string, year int) string {
	return filepath.Join(s.DataDir, "prices", strings.ToUpper(ticker), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
