// Package benchmark converts raw benchmark series into cumulative return
// curves comparable with a simulation's equity curve.
package benchmark

import (
	"math"
	"time"

	"carteira/internal/domain"
	"carteira/internal/marketdata"
)

// Service computes cumulative return curves from the provider's benchmark
// series. Curves are normalized to zero at the window start.
type Service struct {
	data *marketdata.Provider
}

func NewService(data *marketdata.Provider) *Service {
	return &Service{data: data}
}

// Cumulative returns the cumulative return curve for the named benchmark
// over [start, end]. SELIC rates compound daily, IPCA monthly percents
// compound and forward-fill to calendar days, and index-point series (IBOV)
// normalize against their first value in the window. An unknown or empty
// series yields nil.
func (s *Service) Cumulative(name string, start, end time.Time) []domain.SeriesPoint {
	series := s.data.BenchmarkSeries(name)
	if len(series) == 0 {
		return nil
	}

	var window []domain.SeriesPoint
	for _, pt := range series {
		if !pt.Date.Before(start) && !pt.Date.After(end) {
			window = append(window, pt)
		}
	}
	if len(window) == 0 {
		return nil
	}

	switch name {
	case marketdata.BenchmarkSelic:
		return selicCumulative(window)
	case marketdata.BenchmarkIPCA:
		return ipcaCumulative(window, start, end)
	default:
		return indexCumulative(window)
	}
}

// selicCumulative compounds annualized rates into a daily cumulative curve.
// Whole-percent values are re-scaled to decimals first.
func selicCumulative(window []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(window))
	acc := 1.0
	for _, pt := range window {
		rate := pt.Value
		if rate > 5.0 {
			rate /= 100.0
		}
		acc *= math.Pow(1+rate, 1.0/252.0)
		out = append(out, domain.SeriesPoint{Date: pt.Date, Value: acc - 1})
	}
	return out
}

// ipcaCumulative compounds monthly percent observations and forward-fills
// the result to every calendar day in [start, end].
func ipcaCumulative(window []domain.SeriesPoint, start, end time.Time) []domain.SeriesPoint {
	monthly := make([]domain.SeriesPoint, 0, len(window))
	acc := 1.0
	for _, pt := range window {
		acc *= 1 + pt.Value/100
		monthly = append(monthly, domain.SeriesPoint{Date: pt.Date, Value: acc - 1})
	}

	var out []domain.SeriesPoint
	idx := -1
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for idx+1 < len(monthly) && !monthly[idx+1].Date.After(d) {
			idx++
		}
		if idx < 0 {
			continue
		}
		out = append(out, domain.SeriesPoint{Date: d, Value: monthly[idx].Value})
	}
	return out
}

// indexCumulative normalizes index points against the first value in the
// window. A zero first value flattens the whole curve to zero.
func indexCumulative(window []domain.SeriesPoint) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(window))
	startVal := window[0].Value
	for _, pt := range window {
		v := 0.0
		if startVal != 0 {
			v = pt.Value/startVal - 1
		}
		out = append(out, domain.SeriesPoint{Date: pt.Date, Value: v})
	}
	return out
}
