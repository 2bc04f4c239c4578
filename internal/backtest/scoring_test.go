package backtest

import (
	"math"
	"testing"

	"carteira/internal/domain"
)

func TestScoreModes(t *testing.T) {
	row := domain.FinancialsRow{Values: map[domain.Indicator]float64{
		domain.IndPL:            8,
		domain.IndPVP:           1.5,
		domain.IndROE:           0.22,
		domain.IndDY:            0.06,
		domain.IndNetDebtEBITDA: 1.2,
		domain.IndRevenueCAGR5y: 14.5,
	}}

	tests := []struct {
		mode domain.ScoringMode
		want float64
	}{
		{domain.ScoreValue, 0.6*8 + 0.4*1.5},
		{domain.ScoreGrowth, -14.5},
		{domain.ScoreQuality, -100*0.22 + 10*1.2},
		{domain.ScoreBalanced, 0.4*8 - 50*0.22 - 100*0.06},
	}
	for _, tt := range tests {
		if got := Score(tt.mode, row); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Score(%s) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestScoreMissingIndicatorsUseDefaults(t *testing.T) {
	empty := domain.FinancialsRow{Values: map[domain.Indicator]float64{}}

	// Value mode: defaults P/L 20 and P/VP 3.
	if got, want := Score(domain.ScoreValue, empty), 0.6*20.0+0.4*3.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("value score = %v, want %v", got, want)
	}
	// Growth mode: missing CAGR scores as zero growth.
	if got := Score(domain.ScoreGrowth, empty); got != 0 {
		t.Errorf("growth score = %v, want 0", got)
	}
	// Missing data must never rank ahead of a decent real candidate.
	good := domain.FinancialsRow{Values: map[domain.Indicator]float64{
		domain.IndPL: 6, domain.IndPVP: 1,
	}}
	if Score(domain.ScoreValue, empty) <= Score(domain.ScoreValue, good) {
		t.Error("empty row outranked a cheap candidate in value mode")
	}
}

func TestScoreUnknownModeFallsBackToBalanced(t *testing.T) {
	row := domain.FinancialsRow{Values: map[domain.Indicator]float64{
		domain.IndPL: 10, domain.IndROE: 0.1, domain.IndDY: 0.02,
	}}
	want := 0.4*10 - 50*0.1 - 100*0.02
	if got := Score(domain.ScoringMode("??"), row); math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want balanced %v", got, want)
	}
}
