package sink

import (
	"context"
	"strings"

	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports execution records as Prometheus series labelled by source
// kind and outcome.
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		total: f.NewCounterVec(prometheus.CounterOpts{
			Name: "retailsql_statements_total",
			Help: "Executed statements by source and outcome",
		}, []string{"source", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retailsql_statement_duration_seconds",
			Help:    "Statement execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"source"}),
		rows: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retailsql_statement_rows",
			Help:    "Rows returned per successful statement",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		}, []string{"source"}),
	}
}

// Record implements core.Sink.
func (m *Metrics) Record(_ context.Context, rec core.ExecutionRecord) {
	source := sourceLabel(rec.Source)
	outcome := "success"
	if !rec.Success {
		outcome = "error"
	}
	m.total.WithLabelValues(source, outcome).Inc()
	m.duration.WithLabelValues(source).Observe(rec.Duration.Seconds())
	if rec.Success {
		m.rows.WithLabelValues(source).Observe(float64(rec.RowCount))
	}
}

// sourceLabel keeps the template name but bounds ad hoc statements to a
// single label value.
func sourceLabel(source string) string {
	if name, ok := strings.CutPrefix(source, "template:"); ok && name != "" {
		return name
	}
	return "query"
}
