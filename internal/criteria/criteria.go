// Package criteria interprets configured boolean rule trees against a
// ticker's financial indicators. Items resolve their indicator directly from
// the fundamentals row or through a table of derived metrics; an indicator
// that cannot be resolved fails its item rather than erroring.
package criteria

import (
	"math"
	"time"

	"carteira/internal/domain"
)

// HistorySource supplies the full fundamental history needed by derived
// metrics (consecutive profits, revenue CAGR).
type HistorySource interface {
	FinancialsHistory(ticker string) []domain.FinancialsRow
}

// Evaluator evaluates criteria trees. It is stateless apart from its data
// source and safe for concurrent use.
type Evaluator struct {
	history HistorySource
}

// NewEvaluator creates an Evaluator reading histories from the given source.
func NewEvaluator(history HistorySource) *Evaluator {
	return &Evaluator{history: history}
}

// Evaluate runs the criteria groups for a ticker as of date against the
// given fundamentals row. Each group combines its items under the group's
// own logic; the groups combine under topLogic (OR: any group passes;
// anything else: all groups must pass). An empty group list passes — the
// permissive default is deliberate, so that a strategy with no rules screens
// nothing out. price is part of the contract for indicator derivations that
// need the quote; the current metric table resolves everything from
// fundamentals.
func (e *Evaluator) Evaluate(groups []domain.CriteriaGroup, topLogic domain.Logic, ticker string, date time.Time, price float64, row domain.FinancialsRow) bool {
	if len(groups) == 0 {
		return true
	}

	anyPassed := false
	allPassed := true
	for _, group := range groups {
		pass := e.evaluateGroup(group, ticker, date, row)
		anyPassed = anyPassed || pass
		allPassed = allPassed && pass
	}

	if topLogic == domain.LogicOr {
		return anyPassed
	}
	return allPassed
}

func (e *Evaluator) evaluateGroup(group domain.CriteriaGroup, ticker string, date time.Time, row domain.FinancialsRow) bool {
	if group.Logic == domain.LogicOr {
		// Default false: one passing item is required.
		for _, item := range group.Items {
			if e.evaluateItem(item, ticker, date, row) {
				return true
			}
		}
		return false
	}

	// AND (default): short-circuit on the first failing item.
	for _, item := range group.Items {
		if !e.evaluateItem(item, ticker, date, row) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateItem(item domain.CriteriaItem, ticker string, date time.Time, row domain.FinancialsRow) bool {
	val, ok := e.Resolve(item.Indicator, ticker, date, row)
	if !ok {
		return false
	}

	switch item.Operator {
	case domain.OpGreater:
		return item.Value != nil && val > *item.Value
	case domain.OpGreaterEq:
		return item.Value != nil && val >= *item.Value
	case domain.OpLess:
		return item.Value != nil && val < *item.Value
	case domain.OpLessEq:
		return item.Value != nil && val <= *item.Value
	case domain.OpEqual:
		return item.Value != nil && val == *item.Value
	case domain.OpRange:
		return item.ValueMin != nil && item.ValueMax != nil &&
			val >= *item.ValueMin && val <= *item.ValueMax
	case domain.OpOutsideRange:
		return item.ValueMin != nil && item.ValueMax != nil &&
			(val < *item.ValueMin || val > *item.ValueMax)
	default:
		return false
	}
}

// Resolve returns the value of an indicator for a ticker as of date:
// directly from the row when present, otherwise through the derived-metric
// table. The second return reports whether the indicator resolved.
func (e *Evaluator) Resolve(ind domain.Indicator, ticker string, date time.Time, row domain.FinancialsRow) (float64, bool) {
	if v, ok := row.Value(ind); ok {
		return v, true
	}

	switch ind {
	case domain.IndNetDebtEBITDA:
		netDebt, okDebt := row.Value(domain.IndNetDebt)
		ebit, okEbit := row.Value(domain.IndEBIT)
		if okDebt && okEbit && ebit != 0 {
			return netDebt / ebit, true
		}
		return 0, false

	case domain.IndPVP:
		// P/VP = P/L × ROE.
		pl, okPL := row.Value(domain.IndPL)
		roe, okROE := row.Value(domain.IndROE)
		if okPL && okROE {
			return pl * roe, true
		}
		return 0, false

	case domain.IndNetMarginAvg5y:
		v, _ := row.Value(domain.IndAvgMargin5y)
		return v, true

	case domain.IndConsecutiveProfits:
		return e.consecutiveProfitYears(ticker, date), true

	case domain.IndRevenueCAGR5y:
		return e.revenueCAGR(ticker, date)
	}

	return 0, false
}

// consecutiveProfitYears walks the fundamental history backward from date
// and counts consecutive reports with positive net income. Reports are
// quarterly, so the count is divided by 4 to express years.
func (e *Evaluator) consecutiveProfitYears(ticker string, date time.Time) float64 {
	history := e.history.FinancialsHistory(ticker)

	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Date.After(date) {
			continue
		}
		netIncome, ok := history[i].Value(domain.IndNetIncome)
		if !ok || netIncome <= 0 {
			break
		}
		count++
	}
	return float64(count) / 4
}

// revenueCAGR computes the compound annual revenue growth over the history
// window up to date, as a percentage. Fewer than four reports (one year of
// quarters) cannot resolve; non-positive revenues yield a neutral zero.
func (e *Evaluator) revenueCAGR(ticker string, date time.Time) (float64, bool) {
	history := e.history.FinancialsHistory(ticker)

	var window []domain.FinancialsRow
	for _, row := range history {
		if !row.Date.After(date) {
			window = append(window, row)
		}
	}
	if len(window) < 4 {
		return 0, false
	}

	startRev, okStart := window[0].Value(domain.IndRevenue)
	endRev, okEnd := window[len(window)-1].Value(domain.IndRevenue)
	if !okStart || !okEnd {
		return 0, false
	}
	if startRev <= 0 || endRev <= 0 {
		return 0, true
	}

	years := window[len(window)-1].Date.Sub(window[0].Date).Hours() / 24 / 365.25
	if years < 1 {
		return 0, true
	}

	cagr := math.Pow(endRev/startRev, 1/years) - 1
	return cagr * 100, true
}

// ---------------------------------------------------------------------------
// Screening helpers
// ---------------------------------------------------------------------------

// RequiredIndicators collects the distinct indicators referenced by the
// given criteria groups.
func RequiredIndicators(groups []domain.CriteriaGroup) map[domain.Indicator]struct{} {
	required := make(map[domain.Indicator]struct{})
	for _, group := range groups {
		for _, item := range group.Items {
			if item.Indicator != "" {
				required[item.Indicator] = struct{}{}
			}
		}
	}
	return required
}

// zeroSensitive are ratio indicators for which a stored zero signals "no
// reliable data" rather than a true zero.
var zeroSensitive = map[domain.Indicator]bool{
	domain.IndPL:       true,
	domain.IndPVP:      true,
	domain.IndROE:      true,
	domain.IndROIC:     true,
	domain.IndEVEBITDA: true,
}

// IsZeroSensitive reports whether a zero value for the indicator should be
// treated as missing data during entry screening.
func IsZeroSensitive(ind domain.Indicator) bool {
	return zeroSensitive[ind]
}
