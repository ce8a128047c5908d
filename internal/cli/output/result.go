package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Result formats.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
)

// Formats lists the accepted --format values.
var Formats = []string{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// RenderResult writes res in the given format. Unknown formats render a table.
func RenderResult(w io.Writer, res *core.Result, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatCSV:
		return renderCSV(w, res)
	case FormatMarkdown, "markdown":
		return renderMarkdown(w, res)
	default:
		return renderTable(w, res)
	}
}

// RenderList writes a listing that is not a statement result, such as the
// template catalogue. Tables get no summary footer.
func RenderList(w io.Writer, columns []string, rows [][]string, format string) error {
	res := &core.Result{Columns: columns, RowCount: len(rows), Rows: make([]core.Row, 0, len(rows))}
	for _, r := range rows {
		values := make([]any, len(r))
		for i, v := range r {
			values[i] = v
		}
		res.Rows = append(res.Rows, core.Row{Columns: columns, Values: values})
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Rows)
	case FormatCSV:
		return renderCSV(w, res)
	case FormatMarkdown, "markdown":
		return renderMarkdown(w, res)
	default:
		writeTable(w, res)
		return nil
	}
}

func renderTable(w io.Writer, res *core.Result) error {
	writeTable(w, res)
	_, _ = fmt.Fprintln(w, Summary(res))
	return nil
}

func writeTable(w io.Writer, res *core.Result) {
	if len(res.Rows) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)

		header := make(table.Row, len(res.Columns))
		for i, col := range res.Columns {
			header[i] = col
		}
		t.AppendHeader(header)

		for _, row := range res.Rows {
			r := make(table.Row, len(row.Values))
			for i, v := range row.Values {
				r[i] = FormatValue(v)
			}
			t.AppendRow(r)
		}
		t.Render()
	}
}

// Summary is the one-line footer printed under a table.
func Summary(res *core.Result) string {
	noun := "rows"
	if res.RowCount == 1 {
		noun = "row"
	}
	s := fmt.Sprintf("(%d %s, %s, fingerprint %s", res.RowCount, noun, res.Duration.Round(time.Microsecond), res.Fingerprint)
	if res.Truncated {
		s += ", truncated"
	}
	return s + ")"
}

func renderCSV(w io.Writer, res *core.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return err
	}
	for _, row := range res.Rows {
		rec := make([]string, len(row.Values))
		for i, v := range row.Values {
			if v != nil {
				rec[i] = FormatValue(v)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderMarkdown(w io.Writer, res *core.Result) error {
	if len(res.Columns) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(res.Columns, " | "))
	seps := make([]string, len(res.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, row := range res.Rows {
		values := make([]string, len(row.Values))
		for i, v := range row.Values {
			values[i] = strings.ReplaceAll(FormatValue(v), "|", `\|`)
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

// FormatValue renders a scalar for human output.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
