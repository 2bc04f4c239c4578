// Package marketdata implements the read-only market data port consumed by
// the backtest engine: as-of price and fundamentals lookups, the trading
// calendar, benchmark series, and the daily SELIC factor. All data is loaded
// up front; lookups never touch I/O. Source-format quirks (ticker suffixes,
// percent-vs-decimal rates) are normalized here so the engine never sees
// them.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"carteira/internal/domain"
	"carteira/internal/store"
)

// Benchmark series names as stored.
const (
	BenchmarkIBOV  = "IBOV"
	BenchmarkSelic = "SELIC_Rate"
	BenchmarkIPCA  = "IPCA"
)

// fallbackSelicDaily is used when no SELIC series is loaded; it corresponds
// to roughly 10% a.a.
const fallbackSelicDaily = 0.0004

// trackedIndicators are tallied in the data quality report at load time.
var trackedIndicators = []domain.Indicator{
	domain.IndPL, domain.IndPVP, domain.IndROE, domain.IndROIC,
	domain.IndDY, domain.IndNetMargin, domain.IndRevenue, domain.IndNetIncome,
}

// timelineProxyTickers are liquid tickers whose price dates refine the
// market timeline when present.
var timelineProxyTickers = []string{"VALE3", "PETR4", "ITUB4"}

// QualityReport summarizes gaps found while loading market data.
type QualityReport struct {
	TotalPriceTickers        int                           `json:"total_price_tickers"`
	TotalFinancialTickers    int                           `json:"total_financial_tickers"`
	TickersWithoutFinancials []string                      `json:"tickers_without_financials"`
	TickersWithoutPrices     []string                      `json:"tickers_without_prices"`
	MissingIndicators        map[domain.Indicator][]string `json:"missing"`
	ZeroIndicators           map[domain.Indicator][]string `json:"zero"`
}

// Provider answers market data queries from pre-loaded in-memory series. It
// is read-only after construction and safe to share across concurrent runs.
type Provider struct {
	prices     map[string][]domain.PriceRow
	financials map[string][]domain.FinancialsRow
	benchmarks map[string][]domain.SeriesPoint
	universe   []string
	quality    QualityReport
}

// Load reads every ticker's prices and financials plus all benchmark series
// from the stores and builds a Provider. It fails when the price universe is
// empty, since nothing can be simulated without prices.
func Load(ctx context.Context, prices store.PriceStore, financials store.FinancialsStore, benchmarks store.BenchmarkStore, log *slog.Logger) (*Provider, error) {
	priceTickers, err := prices.ListTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing price tickers: %w", err)
	}
	if len(priceTickers) == 0 {
		return nil, fmt.Errorf("no price data available")
	}

	priceData := make(map[string][]domain.PriceRow, len(priceTickers))
	for _, raw := range priceTickers {
		bars, err := prices.ReadBars(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", raw, err)
		}
		if len(bars) == 0 {
			continue
		}
		priceData[normalizeTicker(raw)] = bars
	}

	finTickers, err := financials.ListTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing financial tickers: %w", err)
	}
	finData := make(map[string][]domain.FinancialsRow, len(finTickers))
	for _, raw := range finTickers {
		rows, err := financials.ReadFinancials(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("reading financials for %s: %w", raw, err)
		}
		finData[normalizeTicker(raw)] = rows
	}

	benchData := make(map[string][]domain.SeriesPoint)
	for _, name := range []string{BenchmarkIBOV, BenchmarkSelic, BenchmarkIPCA} {
		series, err := benchmarks.ReadSeries(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reading benchmark %s: %w", name, err)
		}
		if len(series) == 0 {
			log.Warn("benchmark series empty", "name", name)
			continue
		}
		benchData[name] = series
	}

	p := NewStatic(priceData, finData, benchData)
	log.Info("market data loaded",
		"price_tickers", p.quality.TotalPriceTickers,
		"financial_tickers", p.quality.TotalFinancialTickers,
		"benchmarks", len(benchData))
	return p, nil
}

// NewStatic builds a Provider from already-loaded data. Inputs are sorted by
// date; tickers are normalized. Intended for tests and for callers that
// assemble data themselves.
func NewStatic(prices map[string][]domain.PriceRow, financials map[string][]domain.FinancialsRow, benchmarks map[string][]domain.SeriesPoint) *Provider {
	p := &Provider{
		prices:     make(map[string][]domain.PriceRow, len(prices)),
		financials: make(map[string][]domain.FinancialsRow, len(financials)),
		benchmarks: make(map[string][]domain.SeriesPoint, len(benchmarks)),
	}

	for raw, bars := range prices {
		sorted := append([]domain.PriceRow(nil), bars...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
		p.prices[normalizeTicker(raw)] = sorted
	}
	for raw, rows := range financials {
		sorted := append([]domain.FinancialsRow(nil), rows...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
		p.financials[normalizeTicker(raw)] = sorted
	}
	for name, series := range benchmarks {
		sorted := append([]domain.SeriesPoint(nil), series...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
		p.benchmarks[name] = sorted
	}

	for ticker := range p.prices {
		p.universe = append(p.universe, ticker)
	}
	sort.Strings(p.universe)

	p.quality = buildQualityReport(p.prices, p.financials)
	return p
}

// normalizeTicker strips provider suffixes and upper-cases the symbol.
func normalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(raw, ".SA"), ".sa"))
}

func buildQualityReport(prices map[string][]domain.PriceRow, financials map[string][]domain.FinancialsRow) QualityReport {
	report := QualityReport{
		TotalPriceTickers:     len(prices),
		TotalFinancialTickers: len(financials),
		MissingIndicators:     make(map[domain.Indicator][]string),
		ZeroIndicators:        make(map[domain.Indicator][]string),
	}

	for ticker, rows := range financials {
		if len(rows) == 0 {
			report.TickersWithoutFinancials = append(report.TickersWithoutFinancials, ticker)
			continue
		}
		latest := rows[len(rows)-1]
		for _, ind := range trackedIndicators {
			val, ok := latest.Value(ind)
			switch {
			case !ok:
				report.MissingIndicators[ind] = append(report.MissingIndicators[ind], ticker)
			case val == 0:
				report.ZeroIndicators[ind] = append(report.ZeroIndicators[ind], ticker)
			}
		}
		if _, ok := prices[ticker]; !ok {
			report.TickersWithoutPrices = append(report.TickersWithoutPrices, ticker)
		}
	}

	// Coverage gaps run both ways: a priced ticker with no financials entry
	// at all is just as unusable for screening as one with zero rows.
	for ticker := range prices {
		if _, ok := financials[ticker]; !ok {
			report.TickersWithoutFinancials = append(report.TickersWithoutFinancials, ticker)
		}
	}

	sort.Strings(report.TickersWithoutFinancials)
	sort.Strings(report.TickersWithoutPrices)
	return report
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Universe returns all tickers with price data, sorted.
func (p *Provider) Universe() []string {
	return p.universe
}

// Quality returns the data quality report collected at load time.
func (p *Provider) Quality() QualityReport {
	return p.quality
}

// LatestPriceRow returns the latest price row at or before date, if any.
func (p *Provider) LatestPriceRow(ticker string, date time.Time) (domain.PriceRow, bool) {
	bars := p.prices[normalizeTicker(ticker)]
	idx := asOfIndex(len(bars), date, func(i int) time.Time { return bars[i].Date })
	if idx < 0 {
		return domain.PriceRow{}, false
	}
	return bars[idx], true
}

// LatestFinancialsRow returns the latest fundamental snapshot at or before
// date, if any.
func (p *Provider) LatestFinancialsRow(ticker string, date time.Time) (domain.FinancialsRow, bool) {
	rows := p.financials[normalizeTicker(ticker)]
	idx := asOfIndex(len(rows), date, func(i int) time.Time { return rows[i].Date })
	if idx < 0 {
		return domain.FinancialsRow{}, false
	}
	return rows[idx], true
}

// FinancialsHistory returns the full fundamental history for a ticker in
// date order. The returned slice must not be modified.
func (p *Provider) FinancialsHistory(ticker string) []domain.FinancialsRow {
	return p.financials[normalizeTicker(ticker)]
}

// BenchmarkSeries returns the stored series for a benchmark name in date
// order, or nil when absent.
func (p *Provider) BenchmarkSeries(name string) []domain.SeriesPoint {
	return p.benchmarks[name]
}

// BenchmarkValueAsOf returns the benchmark value at or before date, if any.
func (p *Provider) BenchmarkValueAsOf(name string, date time.Time) (float64, bool) {
	series := p.benchmarks[name]
	idx := asOfIndex(len(series), date, func(i int) time.Time { return series[i].Date })
	if idx < 0 {
		return 0, false
	}
	return series[idx].Value, true
}

// MarketTimeline returns the ordered trading days in [start, end]. The IBOV
// series is the source of truth for open days, refined by intersecting with
// a liquid proxy ticker's price dates when one is loaded. Weekends fall out
// by construction; Jan 1 is filtered explicitly. When no IBOV series is
// loaded, weekdays are used as a fallback. An empty result is an error: the
// simulation has no calendar to walk.
func (p *Provider) MarketTimeline(start, end time.Time) ([]time.Time, error) {
	var timeline []time.Time

	if ibov := p.benchmarks[BenchmarkIBOV]; len(ibov) > 0 {
		for _, pt := range ibov {
			if !pt.Date.Before(start) && !pt.Date.After(end) {
				timeline = append(timeline, pt.Date)
			}
		}
	} else {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
				timeline = append(timeline, d)
			}
		}
	}

	for _, proxy := range timelineProxyTickers {
		bars, ok := p.prices[proxy]
		if !ok {
			continue
		}
		have := make(map[time.Time]bool, len(bars))
		for _, b := range bars {
			have[b.Date] = true
		}
		var refined []time.Time
		for _, d := range timeline {
			if have[d] {
				refined = append(refined, d)
			}
		}
		timeline = refined
		break
	}

	var filtered []time.Time
	for _, d := range timeline {
		if d.Month() == time.January && d.Day() == 1 {
			continue
		}
		filtered = append(filtered, d)
	}

	if len(filtered) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}
	return filtered, nil
}

// SelicDailyFactor returns the daily compounding factor for idle cash on the
// given date. The stored series holds annualized rates as decimals (0.1375
// for 13.75% a.a.); values above 5.0 are assumed to be whole-number percents
// and re-scaled. The factor is (1+r)^(1/252) − 1.
func (p *Provider) SelicDailyFactor(date time.Time) float64 {
	series := p.benchmarks[BenchmarkSelic]
	if len(series) == 0 {
		return fallbackSelicDaily
	}

	idx := asOfIndex(len(series), date, func(i int) time.Time { return series[i].Date })
	if idx < 0 {
		return 0
	}
	rate := series[idx].Value
	if rate > 5.0 {
		rate /= 100.0
	}
	return math.Pow(1+rate, 1.0/252.0) - 1
}

// asOfIndex returns the index of the last element with date ≤ target, or -1.
// dateAt must be non-decreasing over [0, n).
func asOfIndex(n int, target time.Time, dateAt func(int) time.Time) int {
	// First element strictly after target.
	idx := sort.Search(n, func(i int) bool { return dateAt(i).After(target) })
	return idx - 1
}
