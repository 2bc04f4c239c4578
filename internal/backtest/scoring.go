package backtest

import "carteira/internal/domain"

// Default indicator values used when a candidate's row lacks the indicator a
// scoring mode needs. They are deliberately unattractive so missing data
// ranks behind real data.
const (
	defaultPL            = 20.0
	defaultPVP           = 3.0
	defaultROE           = 0.05
	defaultDY            = 0.0
	defaultNetDebtEBITDA = 3.0
	defaultRevenueCAGR   = 0.0
)

// Score maps a candidate's indicator row to a scalar under the given mode.
// Lower is better in every mode; expensive, low-quality, or slow-growing
// candidates score high and sort last.
func Score(mode domain.ScoringMode, row domain.FinancialsRow) float64 {
	switch mode {
	case domain.ScoreValue:
		pl := valueOr(row, domain.IndPL, defaultPL)
		pvp := valueOr(row, domain.IndPVP, defaultPVP)
		return 0.6*pl + 0.4*pvp

	case domain.ScoreGrowth:
		return -valueOr(row, domain.IndRevenueCAGR5y, defaultRevenueCAGR)

	case domain.ScoreQuality:
		roe := valueOr(row, domain.IndROE, defaultROE)
		leverage := valueOr(row, domain.IndNetDebtEBITDA, defaultNetDebtEBITDA)
		return -100*roe + 10*leverage

	default: // balanced
		pl := valueOr(row, domain.IndPL, defaultPL)
		roe := valueOr(row, domain.IndROE, defaultROE)
		dy := valueOr(row, domain.IndDY, defaultDY)
		return 0.4*pl - 50*roe - 100*dy
	}
}

func valueOr(row domain.FinancialsRow, ind domain.Indicator, fallback float64) float64 {
	if v, ok := row.Value(ind); ok {
		return v
	}
	return fallback
}
