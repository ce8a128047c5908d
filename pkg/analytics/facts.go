// Package analytics reproduces the window comparison, contributor ranking,
// price/volume decomposition and data quality semantics in process, over fact
// rows pulled once for both windows.
package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// FactRow is one invoice line.
type FactRow struct {
	InvoiceNo   string
	StockCode   string
	Quantity    int64
	UnitPrice   decimal.NullDecimal
	InvoiceDate time.Time
	CustomerID  *string
	Country     *string
}

// Revenue is quantity times unit price. An unknown price contributes zero.
func (f FactRow) Revenue() decimal.Decimal {
	if !f.UnitPrice.Valid {
		return decimal.Zero
	}
	return f.UnitPrice.Decimal.Mul(decimal.NewFromInt(f.Quantity))
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Length is End minus Start.
func (w Window) Length() time.Duration { return w.End.Sub(w.Start) }

// Days is the window length in (possibly fractional) calendar days.
func (w Window) Days() float64 { return w.Length().Hours() / 24 }

// Validate requires Start strictly before End.
func (w Window) Validate(label string) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return &core.ValidationError{Reason: fmt.Sprintf("%s window needs both start and end", label)}
	}
	if !w.Start.Before(w.End) {
		return &core.ValidationError{Reason: fmt.Sprintf("%s window start %s is not before end %s",
			label, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))}
	}
	return nil
}

func (w Window) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// Windows pairs the compared intervals. They may overlap, be non-contiguous
// or differ in length; a row inside both counts toward both.
type Windows struct {
	Current Window `json:"current"`
	Prior   Window `json:"prior"`
}

// Validate checks both windows.
func (w Windows) Validate() error {
	if err := w.Current.Validate("current"); err != nil {
		return err
	}
	return w.Prior.Validate("prior")
}

// Params renders the windows as the placeholders window templates expect.
func (w Windows) Params() map[string]any {
	return map[string]any{
		"current_start_ts": w.Current.Start,
		"current_end_ts":   w.Current.End,
		"prior_start_ts":   w.Prior.Start,
		"prior_end_ts":     w.Prior.End,
	}
}

// partition applies fn to each row once per window it belongs to.
func partition(rows []FactRow, w Windows, fn func(row FactRow, current bool)) {
	for _, row := range rows {
		if w.Current.Contains(row.InvoiceDate) {
			fn(row, true)
		}
		if w.Prior.Contains(row.InvoiceDate) {
			fn(row, false)
		}
	}
}

// pctChange is change/prior, or null when prior is exactly zero.
func pctChange(change, prior decimal.Decimal) decimal.NullDecimal {
	if prior.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(change.Div(prior))
}

// share is 100*part/total, or null when total is exactly zero.
func share(part, total decimal.Decimal) decimal.NullDecimal {
	if total.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(part.Mul(hundred).Div(total))
}

var hundred = decimal.NewFromInt(100)
