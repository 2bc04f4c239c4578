package criteria

import (
	"testing"
	"time"

	"carteira/internal/domain"
)

var asOf = time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)

// staticHistory implements HistorySource over a fixed map.
type staticHistory map[string][]domain.FinancialsRow

func (h staticHistory) FinancialsHistory(ticker string) []domain.FinancialsRow {
	return h[ticker]
}

func f(v float64) *float64 { return &v }

func row(values map[domain.Indicator]float64) domain.FinancialsRow {
	return domain.FinancialsRow{Date: asOf, Values: values}
}

func evaluator() *Evaluator {
	return NewEvaluator(staticHistory{})
}

func TestAndGroup(t *testing.T) {
	groups := []domain.CriteriaGroup{{
		Logic: domain.LogicAnd,
		Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpLess, Value: f(10)},
			{Indicator: domain.IndROE, Operator: domain.OpGreater, Value: f(0.15)},
		},
	}}
	e := evaluator()

	if !e.Evaluate(groups, domain.LogicAnd, "T", asOf, 10,
		row(map[domain.Indicator]float64{domain.IndPL: 5, domain.IndROE: 0.20})) {
		t.Error("p_l=5, roe=0.20 should pass")
	}
	if e.Evaluate(groups, domain.LogicAnd, "T", asOf, 10,
		row(map[domain.Indicator]float64{domain.IndPL: 5, domain.IndROE: 0.10})) {
		t.Error("p_l=5, roe=0.10 should fail")
	}
}

func TestOrGroup(t *testing.T) {
	groups := []domain.CriteriaGroup{{
		Logic: domain.LogicOr,
		Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpLess, Value: f(5)},
			{Indicator: domain.IndDY, Operator: domain.OpGreater, Value: f(0.08)},
		},
	}}
	e := evaluator()

	if !e.Evaluate(groups, domain.LogicAnd, "T", asOf, 10,
		row(map[domain.Indicator]float64{domain.IndPL: 20, domain.IndDY: 0.10})) {
		t.Error("one passing item should satisfy an OR group")
	}
	if e.Evaluate(groups, domain.LogicAnd, "T", asOf, 10,
		row(map[domain.Indicator]float64{domain.IndPL: 20, domain.IndDY: 0.02})) {
		t.Error("no passing item should fail an OR group")
	}
	// An OR group with no items has nothing to pass.
	empty := []domain.CriteriaGroup{{Logic: domain.LogicOr}}
	if e.Evaluate(empty, domain.LogicAnd, "T", asOf, 10, row(nil)) {
		t.Error("empty OR group should fail")
	}
}

func TestNoCriteriaPassesByDefault(t *testing.T) {
	e := evaluator()
	if !e.Evaluate(nil, domain.LogicAnd, "T", asOf, 10, row(nil)) {
		t.Error("no criteria must pass by default")
	}
}

func TestTopLevelLogicAcrossGroups(t *testing.T) {
	groups := []domain.CriteriaGroup{
		{Logic: domain.LogicAnd, Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpLess, Value: f(10)},
		}},
		{Logic: domain.LogicAnd, Items: []domain.CriteriaItem{
			{Indicator: domain.IndROE, Operator: domain.OpGreater, Value: f(0.50)},
		}},
	}
	data := row(map[domain.Indicator]float64{domain.IndPL: 5, domain.IndROE: 0.10})
	e := evaluator()

	// First group passes, second fails.
	if e.Evaluate(groups, domain.LogicAnd, "T", asOf, 10, data) {
		t.Error("top-level AND requires all groups")
	}
	if !e.Evaluate(groups, domain.LogicOr, "T", asOf, 10, data) {
		t.Error("top-level OR requires any group")
	}
}

func TestUnresolvableIndicatorFailsItem(t *testing.T) {
	groups := []domain.CriteriaGroup{{
		Logic: domain.LogicAnd,
		Items: []domain.CriteriaItem{
			{Indicator: "made_up_metric", Operator: domain.OpGreater, Value: f(1)},
		},
	}}
	if evaluator().Evaluate(groups, domain.LogicAnd, "T", asOf, 10, row(nil)) {
		t.Error("unresolvable indicator must fail its item, not pass or panic")
	}
}

func TestRangeOperators(t *testing.T) {
	e := evaluator()
	inRange := []domain.CriteriaGroup{{
		Logic: domain.LogicAnd,
		Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpRange, ValueMin: f(5), ValueMax: f(15)},
		},
	}}
	outside := []domain.CriteriaGroup{{
		Logic: domain.LogicAnd,
		Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpOutsideRange, ValueMin: f(5), ValueMax: f(15)},
		},
	}}

	cases := []struct {
		pl          float64
		wantIn      bool
		wantOutside bool
	}{
		{4.9, false, true},
		{5, true, false}, // bounds are inclusive for range
		{10, true, false},
		{15, true, false},
		{15.1, false, true},
	}
	for _, c := range cases {
		data := row(map[domain.Indicator]float64{domain.IndPL: c.pl})
		if got := e.Evaluate(inRange, domain.LogicAnd, "T", asOf, 10, data); got != c.wantIn {
			t.Errorf("range p_l=%v: got %v, want %v", c.pl, got, c.wantIn)
		}
		if got := e.Evaluate(outside, domain.LogicAnd, "T", asOf, 10, data); got != c.wantOutside {
			t.Errorf("outsiderange p_l=%v: got %v, want %v", c.pl, got, c.wantOutside)
		}
	}
}

func TestDerivedLeverageAndPriceToBook(t *testing.T) {
	e := evaluator()

	data := row(map[domain.Indicator]float64{
		domain.IndNetDebt: 500, domain.IndEBIT: 250,
		domain.IndPL: 10, domain.IndROE: 0.2,
	})

	if v, ok := e.Resolve(domain.IndNetDebtEBITDA, "T", asOf, data); !ok || v != 2 {
		t.Errorf("net_debt_ebitda = %v, %v; want 2", v, ok)
	}
	if v, ok := e.Resolve(domain.IndPVP, "T", asOf, data); !ok || v != 2 {
		t.Errorf("p_vp = %v, %v; want 2 (p_l*roe)", v, ok)
	}

	// Zero EBIT is guarded, never a division panic.
	zeroEbit := row(map[domain.Indicator]float64{domain.IndNetDebt: 500, domain.IndEBIT: 0})
	if _, ok := e.Resolve(domain.IndNetDebtEBITDA, "T", asOf, zeroEbit); ok {
		t.Error("zero ebit should not resolve leverage")
	}

	// A stored value takes precedence over derivation.
	stored := row(map[domain.Indicator]float64{domain.IndPVP: 1.4, domain.IndPL: 10, domain.IndROE: 0.2})
	if v, _ := e.Resolve(domain.IndPVP, "T", asOf, stored); v != 1.4 {
		t.Errorf("stored p_vp = %v, want 1.4", v)
	}
}

func quarters(ticker string, startYear int, netIncomes []float64, revenues []float64) staticHistory {
	var rows []domain.FinancialsRow
	date := time.Date(startYear, 3, 31, 0, 0, 0, 0, time.UTC)
	for i := range netIncomes {
		values := map[domain.Indicator]float64{domain.IndNetIncome: netIncomes[i]}
		if revenues != nil {
			values[domain.IndRevenue] = revenues[i]
		}
		rows = append(rows, domain.FinancialsRow{Date: date, Values: values})
		date = date.AddDate(0, 3, 0)
	}
	return staticHistory{ticker: rows}
}

func TestConsecutiveProfitYears(t *testing.T) {
	// 8 quarters: a loss in the third-from-last breaks the streak at 2.
	hist := quarters("LREN3", 2021, []float64{5, 5, 5, 5, 5, -1, 5, 5}, nil)
	e := NewEvaluator(hist)

	v, ok := e.Resolve(domain.IndConsecutiveProfits, "LREN3", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), row(nil))
	if !ok {
		t.Fatal("consecutive_profits should always resolve")
	}
	if v != 0.5 { // 2 quarters / 4
		t.Errorf("consecutive profit years = %v, want 0.5", v)
	}

	// Unbroken streak of 8 quarters = 2 years.
	hist = quarters("LREN3", 2021, []float64{5, 5, 5, 5, 5, 5, 5, 5}, nil)
	v, _ = NewEvaluator(hist).Resolve(domain.IndConsecutiveProfits, "LREN3", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), row(nil))
	if v != 2 {
		t.Errorf("consecutive profit years = %v, want 2", v)
	}

	// No history at all: zero years, still resolved.
	v, ok = NewEvaluator(staticHistory{}).Resolve(domain.IndConsecutiveProfits, "NONE3", asOf, row(nil))
	if !ok || v != 0 {
		t.Errorf("empty history = %v, %v; want 0, true", v, ok)
	}
}

func TestRevenueCAGR(t *testing.T) {
	// Revenue doubles over 2 years of quarters (8 reports).
	revs := []float64{100, 110, 120, 130, 140, 160, 180, 200}
	incomes := make([]float64, len(revs))
	hist := quarters("MGLU3", 2021, incomes, revs)
	e := NewEvaluator(hist)

	v, ok := e.Resolve(domain.IndRevenueCAGR5y, "MGLU3", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), row(nil))
	if !ok {
		t.Fatal("revenue_cagr_5y should resolve with 8 reports")
	}
	// (200/100)^(1/1.75) − 1 ≈ 48.6%, reported as a percentage.
	if v < 40 || v > 60 {
		t.Errorf("revenue CAGR = %v%%, want ~48.6%%", v)
	}

	// Fewer than 4 reports cannot resolve.
	short := quarters("NEW4", 2023, []float64{1, 1}, []float64{50, 60})
	if _, ok := NewEvaluator(short).Resolve(domain.IndRevenueCAGR5y, "NEW4", asOf, row(nil)); ok {
		t.Error("under four reports should not resolve")
	}

	// Non-positive base revenue yields neutral zero, not an error.
	negative := quarters("BAD3", 2021, make([]float64, 8), []float64{-10, 10, 20, 30, 40, 50, 60, 70})
	v, ok = NewEvaluator(negative).Resolve(domain.IndRevenueCAGR5y, "BAD3", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), row(nil))
	if !ok || v != 0 {
		t.Errorf("negative base revenue = %v, %v; want 0, true", v, ok)
	}
}

func TestRequiredIndicators(t *testing.T) {
	groups := []domain.CriteriaGroup{
		{Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpLess, Value: f(10)},
			{Indicator: domain.IndROE, Operator: domain.OpGreater, Value: f(0.1)},
		}},
		{Items: []domain.CriteriaItem{
			{Indicator: domain.IndPL, Operator: domain.OpGreater, Value: f(2)},
		}},
	}
	required := RequiredIndicators(groups)
	if len(required) != 2 {
		t.Errorf("required = %v, want p_l and roe", required)
	}
	if _, ok := required[domain.IndPL]; !ok {
		t.Error("p_l missing from required set")
	}
}

func TestIsZeroSensitive(t *testing.T) {
	for _, ind := range []domain.Indicator{domain.IndPL, domain.IndPVP, domain.IndROE, domain.IndROIC, domain.IndEVEBITDA} {
		if !IsZeroSensitive(ind) {
			t.Errorf("%s should be zero-sensitive", ind)
		}
	}
	if IsZeroSensitive(domain.IndRevenue) {
		t.Error("revenue zero is a real zero")
	}
}
