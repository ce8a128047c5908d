package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/retailsql/internal/cli/config"
	clitestutil "github.com/leapstack-labs/retailsql/internal/cli/testutil"
	"github.com/leapstack-labs/retailsql/internal/state"
	"github.com/leapstack-labs/retailsql/pkg/core"

	_ "github.com/leapstack-labs/retailsql/pkg/adapters/sqlite"
)

// setupProject loads a seeded project's config as the current config.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := clitestutil.SetupTestProject(t)

	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	_, err := config.LoadConfig(filepath.Join(dir, "retailsql.yaml"), nil)
	require.NoError(t, err)
	return dir
}

func execute(cmd *cobra.Command, stdin io.Reader, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	cmd.SetIn(stdin)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestQueryCommand_Table(t *testing.T) {
	setupProject(t)

	out, err := execute(NewQueryCommand(), nil,
		"SELECT country FROM customers WHERE country IS NOT NULL ORDER BY country")
	require.NoError(t, err)

	assert.Contains(t, out, "France")
	assert.Contains(t, out, "United Kingdom")
	assert.Contains(t, out, "(2 rows")
	assert.Contains(t, out, "fingerprint")
}

func TestQueryCommand_JSONWithParams(t *testing.T) {
	setupProject(t)

	out, err := execute(NewQueryCommand(), nil,
		"SELECT invoice_no FROM invoices WHERE customer_id = :cid ORDER BY invoice_no",
		"-p", "cid:int=1", "--format", "json")
	require.NoError(t, err)

	var res struct {
		Columns  []string            `json:"columns"`
		Rows     []map[string]string `json:"rows"`
		RowCount int                 `json:"row_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"invoice_no"}, res.Columns)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, "C1", res.Rows[0]["invoice_no"])
}

func TestQueryCommand_CSV(t *testing.T) {
	setupProject(t)

	out, err := execute(NewQueryCommand(), nil,
		"SELECT stock_code, description FROM products ORDER BY stock_code", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "stock_code,description\nA,Widget\nB,Gadget\nC,Gizmo\n", out)
}

func TestQueryCommand_Limit(t *testing.T) {
	setupProject(t)

	out, err := execute(NewQueryCommand(), nil,
		"SELECT invoice_no FROM invoices ORDER BY invoice_no", "--limit", "2", "--format", "json")
	require.NoError(t, err)

	var res struct {
		RowCount  int  `json:"row_count"`
		Truncated bool `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestQueryCommand_Stdin(t *testing.T) {
	setupProject(t)

	out, err := execute(NewQueryCommand(), strings.NewReader("SELECT 41 + 1 AS answer"), "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "answer\n42\n", out)
}

func TestQueryCommand_RejectsWrites(t *testing.T) {
	setupProject(t)

	tests := []string{
		"DELETE FROM invoices",
		"SELECT 1; DROP TABLE invoices",
		"UPDATE products SET unit_price = 0",
	}
	for _, sql := range tests {
		t.Run(sql, func(t *testing.T) {
			_, err := execute(NewQueryCommand(), nil, sql)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestQueryCommand_MissingParameter(t *testing.T) {
	setupProject(t)

	_, err := execute(NewQueryCommand(), nil, "SELECT * FROM invoices WHERE customer_id = :cid")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingParameter)
}

func TestTemplateCommand_List(t *testing.T) {
	setupProject(t)

	out, err := execute(NewTemplateCommand(), nil, "list")
	require.NoError(t, err)

	assert.Contains(t, out, "invoice_count")
	assert.Contains(t, out, "fact_rows")
	assert.Contains(t, out, "data_quality")
}

func TestTemplateCommand_Run(t *testing.T) {
	setupProject(t)

	out, err := execute(NewTemplateCommand(), nil,
		"run", "invoice_count", "-p", "start_ts=2011-01-08", "-p", "end_ts=2011-01-15", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "invoices\n3\n", out)
}

func TestTemplateCommand_RunMissingParameter(t *testing.T) {
	setupProject(t)

	_, err := execute(NewTemplateCommand(), nil, "run", "invoice_count", "-p", "start_ts=2011-01-08")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingParameter)
}

func TestTemplateCommand_ShowUnknown(t *testing.T) {
	setupProject(t)

	_, err := execute(NewTemplateCommand(), nil, "show", "no_such_template")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

var weekArgs = []string{
	"--current-start", "2011-01-08", "--current-end", "2011-01-15",
	"--prior-start", "2011-01-01", "--prior-end", "2011-01-08",
}

func TestAnalyzeCommand_CompareJSON(t *testing.T) {
	t.Setenv("RETAILSQL_OUTPUT", "json")
	setupProject(t)

	out, err := execute(NewAnalyzeCommand(), nil, append([]string{"compare"}, weekArgs...)...)
	require.NoError(t, err)

	var report struct {
		Revenue struct {
			Current decimal.NullDecimal `json:"current"`
			Prior   decimal.NullDecimal `json:"prior"`
		} `json:"revenue"`
		CurrentInvoices int `json:"current_invoices"`
		PriorInvoices   int `json:"prior_invoices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Revenue.Current.Decimal.Equal(decimal.NewFromInt(45)), "current revenue %s", report.Revenue.Current.Decimal)
	assert.True(t, report.Revenue.Prior.Decimal.Equal(decimal.NewFromInt(44)), "prior revenue %s", report.Revenue.Prior.Decimal)
	assert.Equal(t, 3, report.CurrentInvoices)
	assert.Equal(t, 3, report.PriorInvoices)
}

func TestAnalyzeCommand_Contributors(t *testing.T) {
	setupProject(t)

	out, err := execute(NewAnalyzeCommand(), nil,
		append([]string{"contributors", "--dimension", "stock_code", "--top", "2"}, weekArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Top contributors by stock_code")
	assert.Contains(t, out, "revenue")
}

func TestAnalyzeCommand_ContributorsBadDimension(t *testing.T) {
	setupProject(t)

	_, err := execute(NewAnalyzeCommand(), nil,
		append([]string{"contributors", "--dimension", "colour"}, weekArgs...)...)
	require.Error(t, err)
}

func TestAnalyzeCommand_Decompose(t *testing.T) {
	setupProject(t)

	out, err := execute(NewAnalyzeCommand(), nil, append([]string{"decompose"}, weekArgs...)...)
	require.NoError(t, err)
	for _, measure := range []string{"price_effect", "volume_effect", "interaction_effect", "total_revenue_change"} {
		assert.Contains(t, out, measure)
	}
}

func TestAnalyzeCommand_QualityFailsOnNullCustomers(t *testing.T) {
	setupProject(t)

	// One of five current-week lines has no customer.
	out, err := execute(NewAnalyzeCommand(), nil,
		"quality", "--start", "2011-01-08", "--end", "2011-01-15", "--reference", "2011-01-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null_rate(customer_id)")
	assert.Contains(t, out, "freshness")
}

func TestAnalyzeCommand_QualityStartNeedsEnd(t *testing.T) {
	setupProject(t)

	_, err := execute(NewAnalyzeCommand(), nil, "quality", "--start", "2011-01-08")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--end")
}

func TestHistoryCommand(t *testing.T) {
	setupProject(t)

	_, err := execute(NewQueryCommand(), nil, "SELECT 1 AS one")
	require.NoError(t, err)
	_, err = execute(NewQueryCommand(), nil, "SELECT * FROM no_such_table")
	require.Error(t, err)

	out, err := execute(NewHistoryCommand(), nil, "--format", "json")
	require.NoError(t, err)

	var records []state.Execution
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "query", r.Source)
		assert.NotEmpty(t, r.Fingerprint)
	}

	out, err = execute(NewHistoryCommand(), nil, "--failed", "--format", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2, "header and one failed record")
	assert.Contains(t, lines[1], "error")
}

func TestHistoryCommand_Prune(t *testing.T) {
	setupProject(t)

	_, err := execute(NewQueryCommand(), nil, "SELECT 1 AS one")
	require.NoError(t, err)

	out, err := execute(NewHistoryCommand(), nil, "--prune", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 record(s)")
}

func TestHealthCommand(t *testing.T) {
	setupProject(t)

	out, err := execute(NewHealthCommand(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")
}
