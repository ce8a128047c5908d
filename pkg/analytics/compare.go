package analytics

import (
	"github.com/shopspring/decimal"
)

// KPI names.
const (
	KPIRevenue = "revenue"
	KPIUnits   = "units"
	KPIAOV     = "aov"
)

// KPIChange is one metric in both windows. Current and Prior are null only
// for AOV over a window without invoices; Change is null when either side is.
type KPIChange struct {
	Metric    string              `json:"metric"`
	Current   decimal.NullDecimal `json:"current"`
	Prior     decimal.NullDecimal `json:"prior"`
	Change    decimal.NullDecimal `json:"change"`
	PctChange decimal.NullDecimal `json:"pct_change"`
}

// WindowComparison is the result of CompareWindows.
type WindowComparison struct {
	Windows         Windows   `json:"windows"`
	Revenue         KPIChange `json:"revenue"`
	Units           KPIChange `json:"units"`
	AOV             KPIChange `json:"aov"`
	CurrentInvoices int       `json:"current_invoices"`
	PriorInvoices   int       `json:"prior_invoices"`
}

// KPIs returns the three metrics in display order.
func (c *WindowComparison) KPIs() []KPIChange {
	return []KPIChange{c.Revenue, c.Units, c.AOV}
}

type windowTotals struct {
	revenue  decimal.Decimal
	units    int64
	invoices map[string]struct{}
}

// CompareWindows aggregates revenue, units and AOV per window in one pass.
func CompareWindows(rows []FactRow, w Windows) *WindowComparison {
	cur := windowTotals{invoices: make(map[string]struct{})}
	pri := windowTotals{invoices: make(map[string]struct{})}

	partition(rows, w, func(row FactRow, current bool) {
		t := &pri
		if current {
			t = &cur
		}
		t.revenue = t.revenue.Add(row.Revenue())
		t.units += row.Quantity
		t.invoices[row.InvoiceNo] = struct{}{}
	})

	return &WindowComparison{
		Windows:         w,
		Revenue:         change(KPIRevenue, decimal.NewNullDecimal(cur.revenue), decimal.NewNullDecimal(pri.revenue)),
		Units:           change(KPIUnits, decimal.NewNullDecimal(decimal.NewFromInt(cur.units)), decimal.NewNullDecimal(decimal.NewFromInt(pri.units))),
		AOV:             change(KPIAOV, aov(cur), aov(pri)),
		CurrentInvoices: len(cur.invoices),
		PriorInvoices:   len(pri.invoices),
	}
}

func aov(t windowTotals) decimal.NullDecimal {
	if len(t.invoices) == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(t.revenue.Div(decimal.NewFromInt(int64(len(t.invoices)))))
}

func change(metric string, current, prior decimal.NullDecimal) KPIChange {
	k := KPIChange{Metric: metric, Current: current, Prior: prior}
	if current.Valid && prior.Valid {
		diff := current.Decimal.Sub(prior.Decimal)
		k.Change = decimal.NewNullDecimal(diff)
		k.PctChange = pctChange(diff, prior.Decimal)
	}
	return k
}
