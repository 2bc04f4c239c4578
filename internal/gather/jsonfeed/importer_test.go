package jsonfeed

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carteira/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

// memFinancialsStore records SaveFinancials calls.
type memFinancialsStore struct {
	saved map[string][]domain.FinancialsRow
}

func (m *memFinancialsStore) SaveFinancials(_ context.Context, ticker string, rows []domain.FinancialsRow) error {
	if m.saved == nil {
		m.saved = make(map[string][]domain.FinancialsRow)
	}
	m.saved[ticker] = rows
	return nil
}

func (m *memFinancialsStore) ReadFinancials(_ context.Context, ticker string) ([]domain.FinancialsRow, error) {
	return m.saved[ticker], nil
}

func (m *memFinancialsStore) ListTickers(_ context.Context) ([]string, error) { return nil, nil }

// memPriceStore records WriteBars calls.
type memPriceStore struct {
	saved map[string][]domain.PriceRow
}

func (m *memPriceStore) WriteBars(_ context.Context, ticker string, bars []domain.PriceRow) error {
	if m.saved == nil {
		m.saved = make(map[string][]domain.PriceRow)
	}
	m.saved[ticker] = bars
	return nil
}

func (m *memPriceStore) ReadBars(_ context.Context, ticker string) ([]domain.PriceRow, error) {
	return m.saved[ticker], nil
}

func (m *memPriceStore) ListTickers(_ context.Context) ([]string, error) { return nil, nil }

func TestFinancialsImporter(t *testing.T) {
	path := writeFixture(t, "data.json", `{
		"AAAA3": [
			{"date": "2023-06-30", "p_l": 9.1, "roe": 0.18, "segment": "mining"},
			{"date": "2023-03-31", "p_l": 8.3, "roe": 0.2}
		],
		"EMPTY3": []
	}`)

	st := &memFinancialsStore{}
	imp := NewFinancialsImporter(path, st, testLogger())
	if err := imp.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := st.saved["AAAA3"]
	if len(rows) != 2 {
		t.Fatalf("AAAA3 rows = %d, want 2", len(rows))
	}
	// Records sorted ascending by date regardless of file order.
	if !rows[0].Date.Before(rows[1].Date) {
		t.Errorf("rows not sorted: %v, %v", rows[0].Date, rows[1].Date)
	}
	if v, ok := rows[1].Value(domain.IndPL); !ok || v != 9.1 {
		t.Errorf("latest p_l = %v (ok=%v), want 9.1", v, ok)
	}
	// Non-numeric fields are dropped, not stored as zero.
	if _, ok := rows[1].Value(domain.Indicator("segment")); ok {
		t.Error("non-numeric field was stored")
	}
	if _, ok := st.saved["EMPTY3"]; ok {
		t.Error("ticker without records was saved")
	}
}

func TestPriceImporterBareList(t *testing.T) {
	path := writeFixture(t, "prices.json", `{
		"AAAA3.SA": [
			{"date": "2024-01-03", "open": 10.5, "high": 11, "low": 10.2, "close": 10.8, "volume": 5000},
			{"date": "2024-01-02", "open": 10, "high": 10.6, "low": 9.9, "close": 10.5, "volume": 4000}
		]
	}`)

	st := &memPriceStore{}
	imp := NewPriceImporter(path, st, testLogger())
	if err := imp.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bars := st.saved["AAAA3.SA"]
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2", len(bars))
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !bars[0].Date.Equal(want) {
		t.Errorf("bars[0].Date = %v, want %v", bars[0].Date, want)
	}
	if bars[0].Close != 10.5 || bars[0].Volume != 4000 {
		t.Errorf("bars[0] = %+v, want close 10.5 volume 4000", bars[0])
	}
}

func TestPriceImporterEnvelope(t *testing.T) {
	path := writeFixture(t, "prices.json", `{
		"BBBB3": {
			"meta": {"currency": "BRL"},
			"prices": [
				{"datetime": "2024-01-02T00:00:00", "close": 20.1, "volume": 100}
			]
		}
	}`)

	st := &memPriceStore{}
	imp := NewPriceImporter(path, st, testLogger())
	if err := imp.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	bars := st.saved["BBBB3"]
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(bars))
	}
	if bars[0].Close != 20.1 {
		t.Errorf("close = %v, want 20.1", bars[0].Close)
	}
}

func TestPriceImporterSkipsUndatedRecords(t *testing.T) {
	path := writeFixture(t, "prices.json", `{
		"CCCC3": [{"close": 5}]
	}`)

	st := &memPriceStore{}
	imp := NewPriceImporter(path, st, testLogger())
	if err := imp.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := st.saved["CCCC3"]; ok {
		t.Error("ticker with only undated records was saved")
	}
}

func TestImportersMissingFile(t *testing.T) {
	if err := NewFinancialsImporter("/nonexistent.json", &memFinancialsStore{}, testLogger()).Run(context.Background()); err == nil {
		t.Error("financials importer succeeded on missing file")
	}
	if err := NewPriceImporter("/nonexistent.json", &memPriceStore{}, testLogger()).Run(context.Background()); err == nil {
		t.Error("price importer succeeded on missing file")
	}
}
