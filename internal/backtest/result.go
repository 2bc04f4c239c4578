package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain"
)

// finalize values the portfolio at the last trading day and aggregates the
// run into a BacktestResult. Holdings without a final market price fall back
// to their last seen price, then to average cost, so a delisting gap never
// zeroes a position.
func (e *Engine) finalize(sim *simulationContext, start, end, lastDay time.Time) *domain.BacktestResult {
	finalValue := sim.pf.Cash()
	var finalHoldings []domain.FinalHolding

	for _, ticker := range sim.pf.Tickers() {
		holding, _ := sim.pf.Holding(ticker)

		price := holding.CurrentPrice
		if row, ok := e.data.LatestPriceRow(ticker, lastDay); ok {
			price = decimal.NewFromFloat(row.Close)
		}
		if price.IsZero() {
			price = holding.AvgPrice
		}

		value := price.Mul(decimal.NewFromInt(holding.Quantity))
		finalValue = finalValue.Add(value)

		avg := holding.AvgPrice.InexactFloat64()
		priceF := price.InexactFloat64()
		returnPct := 0.0
		if avg > 0 {
			returnPct = (priceF - avg) / avg * 100
		}
		finalHoldings = append(finalHoldings, domain.FinalHolding{
			Ticker:    ticker,
			Quantity:  holding.Quantity,
			Price:     priceF,
			Value:     value.InexactFloat64(),
			AvgPrice:  avg,
			ReturnPct: returnPct,
		})
	}

	finalF := finalValue.InexactFloat64()
	invested := sim.totalInvested.InexactFloat64()

	totalReturn := 0.0
	if invested > 0 {
		totalReturn = (finalF - invested) / invested
	}

	// Annualized over elapsed calendar time, not trading days. Undefined for
	// total losses and sub-minimal horizons.
	cagr := 0.0
	if years := yearsBetween(start, end); years > 0 && totalReturn > -1 {
		cagr = math.Pow(1+totalReturn, 1/years) - 1
	}

	trades := sim.pf.Transactions()
	e.log.Info("simulation finished",
		"final_capital", finalF, "total_return", totalReturn,
		"cagr", cagr, "trades", len(trades))

	return &domain.BacktestResult{
		FinalCapital:  finalF,
		TotalReturn:   totalReturn,
		CAGR:          cagr,
		TotalTrades:   len(trades),
		TradeLog:      trades,
		FinalHoldings: finalHoldings,
		TotalInvested: invested,
		History:       sim.pf.History(),
	}
}
