package analytics

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// Columns the fact_rows template returns.
var factColumns = []string{"invoice_no", "stock_code", "quantity", "unit_price", "invoice_date", "customer_id", "country"}

// ScanFacts converts a fact_rows result into FactRows. Drivers disagree on
// how they return numerics and timestamps, so each column accepts the shapes
// the supported drivers produce.
func ScanFacts(res *core.Result) ([]FactRow, error) {
	idx := make(map[string]int, len(res.Columns))
	for i, c := range res.Columns {
		idx[strings.ToLower(c)] = i
	}
	for _, c := range factColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("fact rows: missing column %q", c)
		}
	}

	facts := make([]FactRow, 0, len(res.Rows))
	for n, row := range res.Rows {
		get := func(col string) any { return row.Values[idx[col]] }

		var (
			f   FactRow
			err error
		)
		f.InvoiceNo = textOf(get("invoice_no"))
		f.StockCode = textOf(get("stock_code"))
		if f.Quantity, err = toInt64(get("quantity")); err != nil {
			return nil, fmt.Errorf("fact row %d: quantity: %w", n, err)
		}
		if f.UnitPrice, err = toNullDecimal(get("unit_price")); err != nil {
			return nil, fmt.Errorf("fact row %d: unit_price: %w", n, err)
		}
		if f.InvoiceDate, err = toTime(get("invoice_date")); err != nil {
			return nil, fmt.Errorf("fact row %d: invoice_date: %w", n, err)
		}
		f.CustomerID = nullableText(get("customer_id"))
		f.Country = nullableText(get("country"))
		facts = append(facts, f)
	}
	return facts, nil
}

func textOf(v any) string {
	if s := nullableText(v); s != nil {
		return *s
	}
	return ""
}

// nullableText renders identifiers. Integral floats, as produced when a
// customer id column was loaded as a double, lose their ".0".
func nullableText(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int:
		s = strconv.Itoa(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			s = strconv.FormatInt(int64(x), 10)
		} else {
			s = strconv.FormatFloat(x, 'f', -1, 64)
		}
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case *big.Int:
		return x.Int64(), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

// floater matches driver decimal types that expose a float view.
type floater interface{ Float64() float64 }

func toNullDecimal(v any) (decimal.NullDecimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case decimal.Decimal:
		d = x
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(x))
	case []byte:
		d, err = decimal.NewFromString(strings.TrimSpace(string(x)))
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case int64:
		d = decimal.NewFromInt(x)
	case int32:
		d = decimal.NewFromInt32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case *big.Int:
		if x == nil {
			return decimal.NullDecimal{}, nil
		}
		d = decimal.NewFromBigInt(x, 0)
	default:
		d, err = driverNumeric(v)
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// driverNumeric reads driver decimal types through String or Float64. Some
// drivers return the value while declaring those methods on the pointer, so
// the addressable copy is tried as well.
func driverNumeric(v any) (decimal.Decimal, error) {
	candidates := []any{v}
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() != reflect.Pointer {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		candidates = append(candidates, p.Interface())
	}
	for _, c := range candidates {
		if s, ok := c.(fmt.Stringer); ok {
			if d, err := decimal.NewFromString(s.String()); err == nil {
				return d, nil
			}
		}
		if f, ok := c.(floater); ok {
			return decimal.NewFromFloat(f.Float64()), nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("unexpected type %T", v)
}

var driverTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func toTime(v any) (time.Time, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
	for _, layout := range driverTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return templates.ParseTime(s)
}
