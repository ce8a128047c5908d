package analytics

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/retailsql/internal/testutil"
	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
)

type fakeRunner struct {
	result *core.Result
	err    error
	calls  []map[string]any
	names  []string
}

func (f *fakeRunner) RunTemplate(_ context.Context, name string, params map[string]any, _ ...gateway.CallOption) (*core.Result, error) {
	f.names = append(f.names, name)
	f.calls = append(f.calls, params)
	return f.result, f.err
}

func factResult(rows ...[]any) *core.Result {
	return core.NewResult(&core.RowSet{Columns: factColumns, Rows: rows}, time.Millisecond, "0123456789abcdef")
}

func TestService_PullsFactsOnce(t *testing.T) {
	runner := &fakeRunner{result: factResult(
		[]any{"C1", "A", int64(5), "4.00", inCurrent, int64(12346), "United Kingdom"},
		[]any{"P1", "A", int64(10), "2.00", inPrior, int64(12346), "United Kingdom"},
	)}
	svc := NewService(runner, testutil.NewTestLogger(t), QualityConfig{})
	ctx := context.Background()

	cmp, err := svc.Compare(ctx, weeks)
	require.NoError(t, err)
	assertNullDec(t, "0", cmp.Revenue.Change)

	split, err := svc.Decompose(ctx, weeks)
	require.NoError(t, err)
	assertDec(t, "20", split.PriceEffect)
	assertDec(t, "-10", split.VolumeEffect)

	rep, err := svc.Contributors(ctx, weeks, DimensionCustomerID, 5)
	require.NoError(t, err)
	assert.Equal(t, "12346", rep.Units.Negative[0].Key)

	// One statement per analysis, always the fact template with both windows.
	assert.Equal(t, []string{FactTemplate, FactTemplate, FactTemplate}, runner.names)
	for _, p := range runner.calls {
		assert.Equal(t, weeks.Params(), p)
	}
}

func TestService_ValidatesBeforeQuerying(t *testing.T) {
	runner := &fakeRunner{result: factResult()}
	svc := NewService(runner, nil, QualityConfig{})
	ctx := context.Background()

	bad := Windows{Current: Window{Start: weeks.Current.End, End: weeks.Current.Start}, Prior: weeks.Prior}
	_, err := svc.Compare(ctx, bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Contributors(ctx, weeks, Dimension("region"), 5)
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Empty(t, runner.calls)
}

func TestService_ContributorsNormalizesDimension(t *testing.T) {
	runner := &fakeRunner{result: factResult(
		[]any{"C1", "A", int64(5), "4.00", inCurrent, int64(12346), "France"},
		[]any{"P1", "A", int64(10), "2.00", inPrior, int64(12347), "United Kingdom"},
	)}
	svc := NewService(runner, nil, QualityConfig{})

	rep, err := svc.Contributors(context.Background(), weeks, Dimension(" Country "), 5)
	require.NoError(t, err)
	assert.Equal(t, DimensionCountry, rep.Dimension)
	require.Len(t, rep.Revenue.Positive, 1)
	assert.Equal(t, "France", rep.Revenue.Positive[0].Key)
	require.Len(t, rep.Revenue.Negative, 1)
	assert.Equal(t, "United Kingdom", rep.Revenue.Negative[0].Key)
}

func TestService_UnequalWindowsAllowed(t *testing.T) {
	runner := &fakeRunner{result: factResult()}
	svc := NewService(runner, testutil.NewTestLogger(t), QualityConfig{})

	w := Windows{
		Current: Window{Start: date(2011, 1, 8), End: date(2011, 1, 15)},
		Prior:   Window{Start: date(2010, 12, 1), End: date(2011, 1, 1)},
	}
	_, err := svc.Compare(context.Background(), w)
	assert.NoError(t, err)
}

func TestService_PropagatesGatewayErrors(t *testing.T) {
	want := &core.TimeoutError{Fingerprint: "abc", Timeout: time.Second}
	svc := NewService(&fakeRunner{err: want}, nil, QualityConfig{})

	_, err := svc.Compare(context.Background(), weeks)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.True(t, errors.Is(err, want))
}

func TestService_Quality(t *testing.T) {
	window := Window{Start: date(2011, 12, 1), End: date(2011, 12, 2)}
	runner := &fakeRunner{result: factResult(
		[]any{"I1", "A", int64(1), "1.00", date(2011, 12, 1).Add(time.Hour), nil, nil},
	)}
	svc := NewService(runner, nil, QualityConfig{MinRowsPerDay: 1, NullRateThreshold: 0.5, RequiredColumns: []string{ColumnCustomerID}})

	rep, err := svc.Quality(context.Background(), window, date(2011, 12, 6))
	require.NoError(t, err)
	assert.Equal(t, StatusFail, rep.Freshness.Status)
	assert.Equal(t, StatusPass, rep.Volume.Status)
	require.Len(t, rep.NullRates, 1)
	assert.Equal(t, StatusFail, rep.NullRates[0].Status)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, window.Start, runner.calls[0]["prior_start_ts"])
}

func TestScanFacts_DriverShapes(t *testing.T) {
	res := factResult(
		// pgx: numeric as string, timestamp as time.Time, int4 as int32.
		[]any{"536365", "85123A", int32(6), "2.55", date(2010, 12, 1), int32(17850), "United Kingdom"},
		// mysql via []byte, normalised to strings.
		[]any{"536366", "22633", "8", "1.85", "2010-12-01 08:28:00", "17850.0", nil},
		// sqlite: REAL price, text timestamp with zone, float customer id.
		[]any{"536367", "84879", int64(32), 1.69, "2010-12-01 08:34:00+00:00", 13047.0, "United Kingdom"},
		// duckdb: DECIMAL(10,2) by value, HUGEINT sums as *big.Int.
		[]any{"536368", "22960", big.NewInt(3), goduckdb.Decimal{Width: 10, Scale: 2, Value: big.NewInt(425)}, date(2010, 12, 1), nil, nil},
	)
	facts, err := ScanFacts(res)
	require.NoError(t, err)
	require.Len(t, facts, 4)

	assert.Equal(t, int64(6), facts[0].Quantity)
	assert.True(t, decimal.RequireFromString("2.55").Equal(facts[0].UnitPrice.Decimal))
	assert.Equal(t, "17850", *facts[0].CustomerID)

	assert.Equal(t, int64(8), facts[1].Quantity)
	assert.Equal(t, time.Date(2010, 12, 1, 8, 28, 0, 0, time.UTC), facts[1].InvoiceDate)
	assert.Nil(t, facts[1].Country)
	assert.Equal(t, "17850.0", *facts[1].CustomerID)

	assert.True(t, decimal.RequireFromString("1.69").Equal(facts[2].UnitPrice.Decimal))
	assert.Equal(t, "13047", *facts[2].CustomerID)
	assert.True(t, time.Date(2010, 12, 1, 8, 34, 0, 0, time.UTC).Equal(facts[2].InvoiceDate))

	assert.Equal(t, int64(3), facts[3].Quantity)
	assert.True(t, decimal.RequireFromString("4.25").Equal(facts[3].UnitPrice.Decimal))
	assert.Nil(t, facts[3].CustomerID)
}

func TestScanFacts_Errors(t *testing.T) {
	_, err := ScanFacts(core.NewResult(&core.RowSet{Columns: []string{"invoice_no"}}, 0, ""))
	assert.ErrorContains(t, err, `missing column "stock_code"`)

	_, err = ScanFacts(factResult([]any{"I", "A", "many", "1", date(2011, 1, 1), nil, nil}))
	assert.ErrorContains(t, err, "fact row 0: quantity")

	_, err = ScanFacts(factResult([]any{"I", "A", int64(1), "1", "not a date", nil, nil}))
	assert.ErrorContains(t, err, "invoice_date")
}
