package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/retailsql/internal/testutil"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
	"github.com/leapstack-labs/retailsql/pkg/adapters/duckdb"
	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// seedRetail writes the normalised sales schema into a DuckDB file, then runs
// any extra statements.
func seedRetail(t *testing.T, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retail.duckdb")

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	for _, stmt := range append([]string{
		"CREATE TABLE customers (customer_id INTEGER, country VARCHAR)",
		"CREATE TABLE products (stock_code VARCHAR, description VARCHAR, unit_price DECIMAL(10,2))",
		"CREATE TABLE invoices (invoice_no VARCHAR, customer_id INTEGER, invoice_date TIMESTAMP)",
		"CREATE TABLE invoice_items (invoice_no VARCHAR, stock_code VARCHAR, quantity INTEGER)",
		"INSERT INTO customers VALUES (1, 'United Kingdom'), (2, 'France'), (3, NULL)",
		"INSERT INTO products VALUES ('A', 'Widget', 2.00), ('B', 'Gadget', 4.00), ('C', 'Gizmo', 1.50)",
		`INSERT INTO invoices VALUES
			('P1', 1, '2011-01-02 10:00:00'),
			('P2', 2, '2011-01-03 11:00:00'),
			('P3', 3, '2011-01-05 09:00:00'),
			('C1', 1, '2011-01-09 10:00:00'),
			('C2', 2, '2011-01-10 12:00:00'),
			('C3', NULL, '2011-01-12 08:00:00'),
			('X1', 1, '2011-01-20 08:00:00')`,
		`INSERT INTO invoice_items VALUES
			('P1', 'A', 10), ('P1', 'B', 2),
			('P2', 'A', 5),
			('P3', 'C', 4),
			('C1', 'A', 12), ('C1', 'C', 6),
			('C2', 'B', 1), ('C2', 'A', -2),
			('C3', 'B', 3),
			('X1', 'A', 100)`,
	}, extra...) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())
	return path
}

func retailGateway(t *testing.T, extra ...string) *gateway.Gateway {
	t.Helper()
	ctx := context.Background()
	adp, err := adapter.Open(ctx, core.AdapterConfig{Type: "duckdb", Path: seedRetail(t, extra...)}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adp.Close() })

	reg, err := templates.New(templates.Embedded())
	require.NoError(t, err)
	return gateway.New(adp, reg, gateway.WithLogger(testutil.NewTestLogger(t)))
}

// num reads a numeric cell of any driver shape; ok is false for NULL.
func num(t *testing.T, row core.Row, col string) (float64, bool) {
	t.Helper()
	v, found := row.Get(col)
	require.True(t, found, "column %s", col)
	d, err := toNullDecimal(v)
	require.NoError(t, err, "column %s", col)
	return d.Decimal.InexactFloat64(), d.Valid
}

func assertCell(t *testing.T, row core.Row, col string, want decimal.NullDecimal) {
	t.Helper()
	got, ok := num(t, row, col)
	if !want.Valid {
		assert.False(t, ok, "column %s: want NULL, got %v", col, got)
		return
	}
	require.True(t, ok, "column %s: want %s, got NULL", col, want.Decimal)
	assert.InDelta(t, want.Decimal.InexactFloat64(), got, 1e-6, "column %s", col)
}

func valid(d decimal.Decimal) decimal.NullDecimal { return decimal.NewNullDecimal(d) }

func intCell(n int64) decimal.NullDecimal { return valid(decimal.NewFromInt(n)) }

func TestTemplatesAgreeWithInProcess(t *testing.T) {
	gw := retailGateway(t)
	svc := NewService(gw, testutil.NewTestLogger(t), QualityConfig{})
	ctx := context.Background()

	t.Run("window comparison", func(t *testing.T) {
		want, err := svc.Compare(ctx, weeks)
		require.NoError(t, err)

		res, err := gw.RunTemplate(ctx, "kpi_trend_window_comparison", weeks.Params())
		require.NoError(t, err)
		require.Equal(t, 1, res.RowCount)
		row := res.Rows[0]

		// Current: 12*2 + 6*1.5 + 1*4 - 2*2 + 3*4 = 45; prior: 10*2 + 2*4 + 5*2 + 4*1.5 = 44.
		assertNullDec(t, "45", want.Revenue.Current)
		assertNullDec(t, "44", want.Revenue.Prior)

		assertCell(t, row, "current_revenue", want.Revenue.Current)
		assertCell(t, row, "prior_revenue", want.Revenue.Prior)
		assertCell(t, row, "revenue_change", want.Revenue.Change)
		assertCell(t, row, "revenue_pct_change", want.Revenue.PctChange)
		assertCell(t, row, "current_units", want.Units.Current)
		assertCell(t, row, "prior_units", want.Units.Prior)
		assertCell(t, row, "units_change", want.Units.Change)
		assertCell(t, row, "units_pct_change", want.Units.PctChange)
		assertCell(t, row, "current_aov", want.AOV.Current)
		assertCell(t, row, "prior_aov", want.AOV.Prior)
		assertCell(t, row, "aov_change", want.AOV.Change)
		assertCell(t, row, "aov_pct_change", want.AOV.PctChange)
		assertCell(t, row, "current_invoices", intCell(int64(want.CurrentInvoices)))
		assertCell(t, row, "prior_invoices", intCell(int64(want.PriorInvoices)))
	})

	t.Run("price volume decomposition", func(t *testing.T) {
		want, err := svc.Decompose(ctx, weeks)
		require.NoError(t, err)

		res, err := gw.RunTemplate(ctx, "price_volume_decomposition", weeks.Params())
		require.NoError(t, err)
		require.Equal(t, 1, res.RowCount)
		row := res.Rows[0]

		assertCell(t, row, "current_revenue", valid(want.CurrentRevenue))
		assertCell(t, row, "prior_revenue", valid(want.PriorRevenue))
		assertCell(t, row, "total_revenue_change", valid(want.TotalRevenueChange))
		assertCell(t, row, "price_effect", valid(want.PriceEffect))
		assertCell(t, row, "volume_effect", valid(want.VolumeEffect))
		assertCell(t, row, "decomposition_total", valid(want.DecompositionTotal))
		assertCell(t, row, "interaction_effect", valid(want.InteractionEffect))
		assertCell(t, row, "price_effect_pct", want.PriceEffectPct)
		assertCell(t, row, "volume_effect_pct", want.VolumeEffectPct)
		assertCell(t, row, "current_quantity", intCell(want.CurrentQuantity))
		assertCell(t, row, "prior_quantity", intCell(want.PriorQuantity))
		assertCell(t, row, "total_quantity_change", intCell(want.TotalQuantityChange))
	})

	for _, dim := range Dimensions {
		t.Run("top contributors by "+string(dim), func(t *testing.T) {
			want, err := svc.Contributors(ctx, weeks, dim, 2)
			require.NoError(t, err)

			params := weeks.Params()
			params["dimension"] = string(dim)
			params["top_n"] = 2
			res, err := gw.RunTemplate(ctx, "top_contributors", params)
			require.NoError(t, err)

			expected := want.All()
			require.Equal(t, len(expected), res.RowCount)

			got := make(map[string]core.Row, res.RowCount)
			for _, row := range res.Rows {
				m := row.Map()
				got[fmt.Sprintf("%v/%v/%v", m["metric"], m["direction"], m["rank"])] = row
			}
			for _, c := range expected {
				row, ok := got[fmt.Sprintf("%s/%s/%d", c.Metric, c.Direction, c.Rank)]
				require.True(t, ok, "%s %s #%d missing", c.Metric, c.Direction, c.Rank)

				key, _ := row.Get("dimension_value")
				assert.Equal(t, c.Key, key)
				assertCell(t, row, "current_value", valid(c.Current))
				assertCell(t, row, "prior_value", valid(c.Prior))
				assertCell(t, row, "contribution", valid(c.Contribution))
				assertCell(t, row, "contribution_pct", c.ContributionPct)
			}
		})
	}

	t.Run("data quality", func(t *testing.T) {
		res, err := gw.RunTemplate(ctx, "data_quality", map[string]any{
			"start_ts": weeks.Current.Start,
			"end_ts":   weeks.Current.End,
		})
		require.NoError(t, err)
		row := res.Rows[0]
		assertCell(t, row, "row_count", intCell(5))
		assertCell(t, row, "null_customer_id", intCell(1))
		assertCell(t, row, "null_country", intCell(1))
	})

	t.Run("read-only session", func(t *testing.T) {
		_, err := gw.Query(ctx, "SELECT * FROM invoices WHERE invoice_no = :no", map[string]any{"no": "C1"})
		require.NoError(t, err)

		_, err = gw.Query(ctx, "DELETE FROM invoices", nil)
		assert.ErrorIs(t, err, core.ErrValidation)

		res, err := gw.Query(ctx, "SELECT count(*) AS n FROM invoices", nil)
		require.NoError(t, err)
		assertCell(t, res.Rows[0], "n", intCell(7))
	})
}

func TestService_OnDuckDB(t *testing.T) {
	svc := NewService(retailGateway(t), testutil.NewTestLogger(t), QualityConfig{})
	ctx := context.Background()

	facts, err := svc.Facts(ctx, weeks)
	require.NoError(t, err)
	require.Len(t, facts, 9)
	assert.True(t, decimal.RequireFromString("2").Equal(facts[0].UnitPrice.Decimal), "DECIMAL column scans as a number")

	cmp, err := svc.Compare(ctx, weeks)
	require.NoError(t, err)
	assertNullDec(t, "45", cmp.Revenue.Current)
	assertNullDec(t, "44", cmp.Revenue.Prior)

	split, err := svc.Decompose(ctx, weeks)
	require.NoError(t, err)
	assertDec(t, "1", split.TotalRevenueChange)
	assertDec(t, "1", split.PriceEffect.Add(split.VolumeEffect).Add(split.InteractionEffect))

	// UK 28 -> 33, France 10 -> 0, Unknown 6 -> 12.
	rep, err := svc.Contributors(ctx, weeks, Dimension("Country"), 3)
	require.NoError(t, err)
	require.Len(t, rep.Revenue.Negative, 1)
	assert.Equal(t, "France", rep.Revenue.Negative[0].Key)
	assertDec(t, "-10", rep.Revenue.Negative[0].Contribution)
	require.Len(t, rep.Revenue.Positive, 2)
	assert.Equal(t, UnknownBucket, rep.Revenue.Positive[0].Key)
	assert.Equal(t, "United Kingdom", rep.Revenue.Positive[1].Key)

	q, err := svc.Quality(ctx, weeks.Current, date(2011, 1, 15))
	require.NoError(t, err)
	assert.Equal(t, StatusFail, q.NullRates[0].Status, "one of five lines has no customer")
}

func TestTopContributors_EmptyValueIsUnknown(t *testing.T) {
	gw := retailGateway(t,
		"INSERT INTO customers VALUES (4, '')",
		"INSERT INTO invoices VALUES ('C4', 4, '2011-01-13 09:00:00')",
		"INSERT INTO invoice_items VALUES ('C4', 'C', 2)",
	)
	svc := NewService(gw, testutil.NewTestLogger(t), QualityConfig{})
	ctx := context.Background()

	want, err := svc.Contributors(ctx, weeks, DimensionCountry, 5)
	require.NoError(t, err)

	params := weeks.Params()
	params["dimension"] = string(DimensionCountry)
	params["top_n"] = 5
	res, err := gw.RunTemplate(ctx, "top_contributors", params)
	require.NoError(t, err)

	for _, row := range res.Rows {
		m := row.Map()
		if m["metric"] != KPIRevenue {
			continue
		}
		assert.NotEqual(t, "", m["dimension_value"])
		if m["dimension_value"] == UnknownBucket {
			// Null-customer C3 (12) plus empty-country C4 (3) against P3 (6).
			assertCell(t, row, "current_value", intCell(15))
			assertCell(t, row, "prior_value", intCell(6))
		}
	}

	var unknown *Contributor
	for _, c := range want.Revenue.Positive {
		if c.Key == UnknownBucket {
			unknown = &c
		}
	}
	require.NotNil(t, unknown)
	assertDec(t, "15", unknown.Current)
}

// Compile-time check that the DuckDB adapter is linked in.
var _ core.Adapter = (*duckdb.Adapter)(nil)
