package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"carteira/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.PriceRow{
		{Date: day(2023, 1, 2), Open: 24.5, High: 25.1, Low: 24.2, Close: 25.0, Volume: 30000000},
		{Date: day(2023, 1, 3), Open: 25.0, High: 25.6, Low: 24.8, Close: 25.4, Volume: 28000000},
		{Date: day(2024, 1, 2), Open: 31.0, High: 31.5, Low: 30.7, Close: 31.2, Volume: 26000000},
	}
	if err := ps.WriteBars(ctx, "petr4", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Ticker lookup is case-normalized and spans year files.
	got, err := ps.ReadBars(ctx, "PETR4")
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadBars returned %d bars, want 3", len(got))
	}
	if !got[0].Date.Equal(day(2023, 1, 2)) || got[0].Close != 25.0 {
		t.Errorf("first bar = %+v", got[0])
	}
	if !got[2].Date.Equal(day(2024, 1, 2)) || got[2].Close != 31.2 {
		t.Errorf("last bar = %+v", got[2])
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.PriceRow{{Date: day(2023, 3, 1), Close: 10.0, Volume: 1000}}
	if err := ps.WriteBars(ctx, "VALE3", first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Same date is overwritten, new date is appended.
	second := []domain.PriceRow{
		{Date: day(2023, 3, 1), Close: 10.5, Volume: 1100},
		{Date: day(2023, 3, 2), Close: 10.8, Volume: 1200},
	}
	if err := ps.WriteBars(ctx, "VALE3", second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "VALE3")
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 10.5 {
		t.Errorf("merged bar Close = %v, want 10.5 (incoming wins)", got[0].Close)
	}
}

func TestParquetStoreListTickers(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, "PETR4", []domain.PriceRow{{Date: day(2023, 1, 2), Close: 25}}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if err := ps.WriteBars(ctx, "ITUB4", []domain.PriceRow{{Date: day(2023, 1, 2), Close: 28}}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	tickers, err := ps.ListTickers(ctx)
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "ITUB4" || tickers[1] != "PETR4" {
		t.Errorf("ListTickers = %v, want [ITUB4 PETR4]", tickers)
	}
}

func TestSQLiteStoreFinancials(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	rows := []domain.FinancialsRow{
		{Date: day(2023, 3, 31), Values: map[domain.Indicator]float64{
			domain.IndPL: 8.2, domain.IndROE: 0.18, domain.IndRevenue: 1.2e9,
		}},
		{Date: day(2023, 6, 30), Values: map[domain.Indicator]float64{
			domain.IndPL: 7.9, domain.IndRevenue: 1.3e9,
		}},
	}
	if err := s.SaveFinancials(ctx, "PETR4", rows); err != nil {
		t.Fatalf("SaveFinancials: %v", err)
	}

	got, err := s.ReadFinancials(ctx, "PETR4")
	if err != nil {
		t.Fatalf("ReadFinancials: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadFinancials returned %d rows, want 2", len(got))
	}
	if v, ok := got[0].Value(domain.IndROE); !ok || v != 0.18 {
		t.Errorf("Q1 roe = %v, %v; want 0.18", v, ok)
	}
	// ROE absent in Q2 stays absent.
	if _, ok := got[1].Value(domain.IndROE); ok {
		t.Error("Q2 roe should be absent")
	}

	// Saving again replaces, not appends.
	if err := s.SaveFinancials(ctx, "PETR4", rows[:1]); err != nil {
		t.Fatalf("SaveFinancials (replace): %v", err)
	}
	got, err = s.ReadFinancials(ctx, "PETR4")
	if err != nil {
		t.Fatalf("ReadFinancials: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("after replace got %d rows, want 1", len(got))
	}

	tickers, err := s.ListTickers(ctx)
	if err != nil {
		t.Fatalf("ListTickers: %v", err)
	}
	if len(tickers) != 1 || tickers[0] != "PETR4" {
		t.Errorf("ListTickers = %v, want [PETR4]", tickers)
	}
}

func TestSQLiteStoreBenchmarks(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	points := []domain.SeriesPoint{
		{Date: day(2023, 1, 2), Value: 109000},
		{Date: day(2023, 1, 3), Value: 110250},
	}
	if err := s.SaveSeries(ctx, "IBOV", points); err != nil {
		t.Fatalf("SaveSeries: %v", err)
	}

	got, err := s.ReadSeries(ctx, "IBOV")
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(got) != 2 || got[1].Value != 110250 {
		t.Errorf("ReadSeries = %+v", got)
	}

	missing, err := s.ReadSeries(ctx, "IPCA")
	if err != nil {
		t.Fatalf("ReadSeries (missing): %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("ReadSeries for unknown name = %+v, want empty", missing)
	}
}
