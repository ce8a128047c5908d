package core

import (
	"bytes"
	"encoding/json"
	"time"
)

// BoundStatement is SQL text whose named placeholders have been rewritten to
// the driver's positional form, with Args in matching order.
type BoundStatement struct {
	SQL  string
	Args []any
	// Names lists the placeholder names that were bound, in first-use order.
	Names []string
}

// Row is one result row: an ordered mapping from column name to value.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// MarshalJSON encodes the row as an object whose keys follow column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is the successful outcome of one gateway call.
type Result struct {
	Columns     []string      `json:"columns"`
	Rows        []Row         `json:"rows"`
	RowCount    int           `json:"row_count"`
	Duration    time.Duration `json:"-"`
	DurationMS  float64       `json:"duration_ms"`
	Fingerprint string        `json:"fingerprint"`
	Truncated   bool          `json:"truncated,omitempty"`
}

// NewResult builds a Result from a raw row set.
func NewResult(rs *RowSet, d time.Duration, fingerprint string) *Result {
	res := &Result{
		Columns:     rs.Columns,
		Rows:        make([]Row, len(rs.Rows)),
		RowCount:    len(rs.Rows),
		Duration:    d,
		DurationMS:  float64(d.Microseconds()) / 1000,
		Fingerprint: fingerprint,
		Truncated:   rs.Truncated,
	}
	if res.Columns == nil {
		res.Columns = []string{}
	}
	for i, vals := range rs.Rows {
		res.Rows[i] = Row{Columns: rs.Columns, Values: vals}
	}
	return res
}
