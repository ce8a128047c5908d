package sink

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	recs []core.ExecutionRecord
}

func (c *collector) Record(_ context.Context, rec core.ExecutionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func record(source string, ok bool) core.ExecutionRecord {
	rec := core.ExecutionRecord{
		Fingerprint: "0123456789abcdef",
		Source:      source,
		StartedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:    42 * time.Millisecond,
		RowCount:    7,
		Success:     ok,
	}
	if !ok {
		rec.Error = "statement timed out"
		rec.RowCount = 0
	}
	return rec
}

func TestMulti(t *testing.T) {
	a, b := &collector{}, &collector{}
	s := Multi(a, nil, b)
	s.Record(context.Background(), record("query", true))

	assert.Equal(t, 1, a.len())
	assert.Equal(t, 1, b.len())

	assert.NotNil(t, Multi())
	Multi().Record(context.Background(), record("query", true))
	assert.Same(t, a, Multi(nil, a))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Record(context.Background(), record("template:revenue_daily", true))
	l.Record(context.Background(), record("query", false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"INFO"`)
	assert.Contains(t, lines[0], `"source":"template:revenue_daily"`)
	assert.Contains(t, lines[0], `"duration_ms":42`)
	assert.NotContains(t, lines[0], `"error"`)
	assert.Contains(t, lines[1], `"level":"WARN"`)
	assert.Contains(t, lines[1], `"error":"statement timed out"`)
}

func TestAsyncDelivers(t *testing.T) {
	c := &collector{}
	a := NewAsync(c, 8, slog.New(slog.DiscardHandler))

	for range 5 {
		a.Record(context.Background(), record("query", true))
	}
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, 5, c.len())
	assert.Zero(t, a.Dropped())

	// After close records are dropped, not panicking.
	a.Record(context.Background(), record("query", true))
	assert.Equal(t, int64(1), a.Dropped())
}

type blocking struct {
	release chan struct{}
	c       collector
}

func (b *blocking) Record(ctx context.Context, rec core.ExecutionRecord) {
	<-b.release
	b.c.Record(ctx, rec)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	b := &blocking{release: make(chan struct{})}
	a := NewAsync(b, 1, slog.New(slog.DiscardHandler))

	start := time.Now()
	for range 10 {
		a.Record(context.Background(), record("query", true))
	}
	assert.Less(t, time.Since(start), time.Second, "Record must not block")
	assert.Positive(t, a.Dropped())

	close(b.release)
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, int64(10), a.Dropped()+int64(b.c.len()))
}

type panicking struct{}

func (panicking) Record(context.Context, core.ExecutionRecord) { panic("boom") }

func TestAsyncSurvivesPanickingSink(t *testing.T) {
	a := NewAsync(panicking{}, 4, slog.New(slog.DiscardHandler))
	a.Record(context.Background(), record("query", true))
	a.Record(context.Background(), record("query", true))
	assert.NoError(t, a.Close(context.Background()))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Record(context.Background(), record("template:top_contributors", true))
	m.Record(context.Background(), record("query", true))
	m.Record(context.Background(), record("query", false))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.total.WithLabelValues("top_contributors", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.total.WithLabelValues("query", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.total.WithLabelValues("query", "error")))

	n, err := testutil.GatherAndCount(reg, "retailsql_statement_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "query", sourceLabel("query"))
	assert.Equal(t, "fact_rows", sourceLabel("template:fact_rows"))
	assert.Equal(t, "query", sourceLabel("template:"))
}
