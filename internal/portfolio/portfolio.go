// Package portfolio tracks cash, holdings, the transaction log, and the
// daily valuation history of a single backtest run. Money is decimal
// throughout; cash never goes negative and an order that would overdraw is
// rejected whole rather than partially filled.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"carteira/internal/domain"
)

// Portfolio is mutated exclusively by the engine for the duration of one
// run. It is not safe for concurrent use.
type Portfolio struct {
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	holdings       map[string]*domain.Holding
	transactions   []domain.Transaction
	history        []domain.HistoryEntry
}

// New creates a Portfolio seeded with the given initial capital.
func New(initialCapital decimal.Decimal) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		cash:           initialCapital,
		holdings:       make(map[string]*domain.Holding),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// AddCash credits the cash balance (contributions, idle-cash yield).
func (p *Portfolio) AddCash(amount decimal.Decimal) {
	p.cash = p.cash.Add(amount)
}

// Holding returns the position for a ticker, if held.
func (p *Portfolio) Holding(ticker string) (domain.Holding, bool) {
	h, ok := p.holdings[ticker]
	if !ok {
		return domain.Holding{}, false
	}
	return *h, true
}

// Tickers returns the currently held tickers in no particular order.
func (p *Portfolio) Tickers() []string {
	out := make([]string, 0, len(p.holdings))
	for t := range p.holdings {
		out = append(out, t)
	}
	return out
}

// HoldingsCount returns the number of open positions.
func (p *Portfolio) HoldingsCount() int {
	return len(p.holdings)
}

// SetCurrentPrice records the latest known market price for a held ticker.
func (p *Portfolio) SetCurrentPrice(ticker string, price decimal.Decimal) {
	if h, ok := p.holdings[ticker]; ok {
		h.CurrentPrice = price
	}
}

// Transactions returns the append-only transaction log.
func (p *Portfolio) Transactions() []domain.Transaction {
	return p.transactions
}

// History returns the chronological daily snapshots.
func (p *Portfolio) History() []domain.HistoryEntry {
	return p.history
}

// LastHistoryEntry returns a pointer to the most recent snapshot so the
// engine can enrich it with benchmark values, or nil when no snapshot
// exists yet.
func (p *Portfolio) LastHistoryEntry() *domain.HistoryEntry {
	if len(p.history) == 0 {
		return nil
	}
	return &p.history[len(p.history)-1]
}

// Buy executes a purchase. It returns false without mutating anything when
// the quantity is non-positive or the total cost (price*qty + fees) exceeds
// available cash; there are no partial fills. On success the holding's
// weighted-average cost basis is updated and a BUY transaction appended.
func (p *Portfolio) Buy(date time.Time, ticker string, quantity int64, price, fees decimal.Decimal) bool {
	if quantity <= 0 {
		return false
	}
	qty := decimal.NewFromInt(quantity)
	totalCost := qty.Mul(price).Add(fees)
	if totalCost.GreaterThan(p.cash) {
		return false
	}

	p.cash = p.cash.Sub(totalCost)

	h, ok := p.holdings[ticker]
	if !ok {
		h = &domain.Holding{}
		p.holdings[ticker] = h
	}

	oldQty := decimal.NewFromInt(h.Quantity)
	newQty := oldQty.Add(qty)
	// new_avg = (old_qty*old_avg + qty*price) / new_qty
	h.AvgPrice = oldQty.Mul(h.AvgPrice).Add(qty.Mul(price)).Div(newQty)
	h.Quantity += quantity
	h.CurrentPrice = price

	p.transactions = append(p.transactions, domain.Transaction{
		Date:       date,
		Ticker:     ticker,
		Action:     domain.ActionBuy,
		Quantity:   quantity,
		Price:      price,
		Fees:       fees,
		TotalValue: totalCost,
	})
	return true
}

// Sell executes a sale. Quantity is clamped to the held amount, so a full
// liquidation can simply pass the holding size (or more). It returns false
// when the ticker is not held or the clamped quantity is non-positive. The
// average cost basis is untouched by sells; the holding entry is removed
// when its quantity reaches zero.
func (p *Portfolio) Sell(date time.Time, ticker string, quantity int64, price, fees decimal.Decimal) bool {
	h, ok := p.holdings[ticker]
	if !ok {
		return false
	}
	if quantity > h.Quantity {
		quantity = h.Quantity
	}
	if quantity <= 0 {
		return false
	}

	proceeds := decimal.NewFromInt(quantity).Mul(price).Sub(fees)
	p.cash = p.cash.Add(proceeds)

	h.Quantity -= quantity
	if h.Quantity == 0 {
		delete(p.holdings, ticker)
	}

	p.transactions = append(p.transactions, domain.Transaction{
		Date:       date,
		Ticker:     ticker,
		Action:     domain.ActionSell,
		Quantity:   quantity,
		Price:      price,
		Fees:       fees,
		TotalValue: proceeds,
	})
	return true
}

// TotalValue returns cash plus the value of all holdings at the given
// prices. A holding with no current price falls back to its average cost.
func (p *Portfolio) TotalValue(currentPrices map[string]decimal.Decimal) decimal.Decimal {
	total := p.cash
	for ticker, h := range p.holdings {
		price, ok := currentPrices[ticker]
		if !ok {
			price = h.AvgPrice
		}
		total = total.Add(decimal.NewFromInt(h.Quantity).Mul(price))
	}
	return total
}

// Snapshot appends one daily history entry valued at the given prices. The
// engine calls this exactly once per simulated day.
func (p *Portfolio) Snapshot(date time.Time, currentPrices map[string]decimal.Decimal) {
	total := p.TotalValue(currentPrices)
	p.history = append(p.history, domain.HistoryEntry{
		Date:          date,
		TotalValue:    total.InexactFloat64(),
		Cash:          p.cash.InexactFloat64(),
		HoldingsCount: len(p.holdings),
	})
}
