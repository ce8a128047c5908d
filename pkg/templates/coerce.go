package templates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts textual parameter values, as they arrive from flags or
// query strings, into the scalar type each param documents. Names the
// template does not declare are passed through as strings.
func (t *Template) Coerce(raw map[string]string) (map[string]any, error) {
	types := make(map[string]string, len(t.Params))
	for _, p := range t.Params {
		types[p.Name] = p.Type
	}

	out := make(map[string]any, len(raw))
	for name, s := range raw {
		v, err := CoerceValue(types[name], s)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// CoerceValue parses s as the given param type. Unknown and "any" types
// yield the string unchanged.
func CoerceValue(typ, s string) (any, error) {
	switch typ {
	case TypeTimestamp, TypeDate:
		return ParseTime(s)
	case TypeInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", s)
		}
		return n, nil
	case TypeNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return f, nil
	case TypeDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q", s)
		}
		return d, nil
	case TypeBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return b, nil
	default:
		return s, nil
	}
}

// ParseTime accepts RFC 3339 timestamps, naive date-times and bare dates.
// Naive values are interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC 3339 or YYYY-MM-DD)", s)
}
