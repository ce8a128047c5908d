// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/internal/testutil"
)

// SetupTestProject creates a temporary project whose retailsql.yaml points
// at a seeded SQLite sales database. It returns the project directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := testutil.SeedRetailSQLite(t)

	if err := os.MkdirAll(filepath.Join(tmpDir, "templates"), 0755); err != nil {
		t.Fatalf("failed to create templates directory: %v", err)
	}

	cfg := fmt.Sprintf(`target:
  type: sqlite
  database: %s
query:
  timeout: 5s
  max_rows: 100
audit:
  path: .retailsql/audit.db
quality:
  min_rows_per_day: 0.1
templates_dir: templates
log:
  level: error
`, dbPath)
	if err := os.WriteFile(filepath.Join(tmpDir, "retailsql.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create retailsql.yaml: %v", err)
	}

	// A project template next to the embedded ones.
	countInvoices := `/*---
name: invoice_count
description: Invoices in a window.
dialects: [sqlite]
params:
  - name: start_ts
    type: timestamp
  - name: end_ts
    type: timestamp
---*/
SELECT COUNT(*) AS invoices
FROM invoices
WHERE invoice_date >= :start_ts AND invoice_date < :end_ts
`
	if err := os.WriteFile(filepath.Join(tmpDir, "templates", "invoice_count.sql"),
		[]byte(countInvoices), 0644); err != nil {
		t.Fatalf("failed to create invoice_count.sql: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer whose output is captured in buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a renderer with the given mode and TTY state.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a renderer in text mode on a simulated TTY.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the captured stdout.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown checks for unclosed code fences, empty headers and
// table rows whose cell count differs from the header's.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}

	cells := -1
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
		if !strings.HasPrefix(trimmed, "|") {
			cells = -1
			continue
		}
		n := strings.Count(trimmed, "|") - strings.Count(trimmed, `\|`)
		if cells == -1 {
			cells = n
		} else if n != cells {
			t.Errorf("table row at line %d has %d separators, header has %d: %q", i+1, n, cells, line)
		}
	}
}
