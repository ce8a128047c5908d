package analytics

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Status is the outcome of a single quality check.
type Status string

// Check statuses.
const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
)

// Freshness thresholds in whole days.
const (
	FreshPassDays    = 1
	FreshWarningDays = 3
)

// Columns that can be checked for nulls.
const (
	ColumnCustomerID = "customer_id"
	ColumnCountry    = "country"
	ColumnUnitPrice  = "unit_price"
)

// NullableColumns lists the columns accepted in QualityConfig.RequiredColumns.
var NullableColumns = []string{ColumnCustomerID, ColumnCountry, ColumnUnitPrice}

// QualityConfig holds the configured thresholds.
type QualityConfig struct {
	MinRowsPerDay     float64  `koanf:"min_rows_per_day"`
	NullRateThreshold float64  `koanf:"null_rate_threshold"`
	RequiredColumns   []string `koanf:"required_columns"`
}

// DefaultQualityConfig returns the thresholds used when none are configured.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinRowsPerDay:     100,
		NullRateThreshold: 0.05,
		RequiredColumns:   []string{ColumnCustomerID, ColumnCountry},
	}
}

// Validate rejects negative thresholds and unknown columns.
func (c QualityConfig) Validate() error {
	if c.MinRowsPerDay < 0 {
		return fmt.Errorf("quality.min_rows_per_day must not be negative")
	}
	if c.NullRateThreshold < 0 || c.NullRateThreshold > 1 {
		return fmt.Errorf("quality.null_rate_threshold must be between 0 and 1")
	}
	for _, col := range c.RequiredColumns {
		if !slices.Contains(NullableColumns, col) {
			return fmt.Errorf("quality.required_columns: unknown column %q (want one of %v)", col, NullableColumns)
		}
	}
	return nil
}

// Check is one independent quality verdict. Value is nil when it cannot be
// computed, for example the age of an empty window.
type Check struct {
	Name      string   `json:"name"`
	Column    string   `json:"column,omitempty"`
	Status    Status   `json:"status"`
	Value     *float64 `json:"value"`
	Threshold float64  `json:"threshold"`
	Detail    string   `json:"detail"`
}

// QualityReport holds every check. The checks are never rolled up into a
// single score.
type QualityReport struct {
	Window    Window    `json:"window"`
	Reference time.Time `json:"reference"`
	Rows      int       `json:"rows"`
	Freshness Check     `json:"freshness"`
	Volume    Check     `json:"volume"`
	NullRates []Check   `json:"null_rates"`
}

// Checks returns every check in display order.
func (r *QualityReport) Checks() []Check {
	return append([]Check{r.Freshness, r.Volume}, r.NullRates...)
}

// CheckQuality evaluates rows inside window against cfg. Rows outside the
// window are ignored.
func CheckQuality(rows []FactRow, window Window, reference time.Time, cfg QualityConfig) *QualityReport {
	var (
		inWindow int
		latest   time.Time
		nulls    = make(map[string]int, len(cfg.RequiredColumns))
	)
	for _, row := range rows {
		if !window.Contains(row.InvoiceDate) {
			continue
		}
		inWindow++
		if row.InvoiceDate.After(latest) {
			latest = row.InvoiceDate
		}
		for _, col := range cfg.RequiredColumns {
			if isNull(row, col) {
				nulls[col]++
			}
		}
	}

	report := &QualityReport{
		Window:    window,
		Reference: reference,
		Rows:      inWindow,
		Freshness: freshness(latest, reference),
		Volume:    volume(inWindow, window, cfg.MinRowsPerDay),
	}
	for _, col := range cfg.RequiredColumns {
		report.NullRates = append(report.NullRates, nullRate(col, nulls[col], inWindow, cfg.NullRateThreshold))
	}
	return report
}

func isNull(row FactRow, col string) bool {
	switch col {
	case ColumnCustomerID:
		return row.CustomerID == nil
	case ColumnCountry:
		return row.Country == nil
	case ColumnUnitPrice:
		return !row.UnitPrice.Valid
	}
	return false
}

// FreshnessDays counts calendar days (UTC) from latest to reference.
// A latest timestamp after the reference counts as zero days.
func FreshnessDays(latest, reference time.Time) int {
	l := latest.UTC().Truncate(24 * time.Hour)
	r := reference.UTC().Truncate(24 * time.Hour)
	days := int(r.Sub(l).Hours() / 24)
	return max(days, 0)
}

func freshness(latest, reference time.Time) Check {
	c := Check{Name: "freshness", Threshold: FreshPassDays}
	if latest.IsZero() {
		c.Status = StatusFail
		c.Detail = "no fact rows in window"
		return c
	}
	days := FreshnessDays(latest, reference)
	v := float64(days)
	c.Value = &v
	switch {
	case days <= FreshPassDays:
		c.Status = StatusPass
	case days <= FreshWarningDays:
		c.Status = StatusWarning
	default:
		c.Status = StatusFail
	}
	c.Detail = fmt.Sprintf("latest invoice %s, %d day(s) before %s",
		latest.UTC().Format(time.DateTime), days, reference.UTC().Format(time.DateOnly))
	return c
}

func volume(rows int, window Window, minPerDay float64) Check {
	c := Check{Name: "volume", Threshold: minPerDay}
	days := window.Days()
	if days <= 0 {
		c.Status = StatusFail
		c.Detail = "empty window"
		return c
	}
	avg := float64(rows) / days
	v := math.Round(avg*100) / 100
	c.Value = &v
	switch {
	case avg >= minPerDay:
		c.Status = StatusPass
	case avg >= minPerDay/2:
		c.Status = StatusWarning
	default:
		c.Status = StatusFail
	}
	c.Detail = fmt.Sprintf("%d rows over %.2f day(s), %.2f per day", rows, days, avg)
	return c
}

func nullRate(col string, nulls, rows int, threshold float64) Check {
	c := Check{Name: "null_rate", Column: col, Threshold: threshold}
	if rows == 0 {
		c.Status = StatusPass
		c.Detail = "no rows to check"
		return c
	}
	rate := float64(nulls) / float64(rows)
	c.Value = &rate
	// The warning band is (threshold, 2*threshold), capped below 1 so a
	// column that is entirely null fails unless the threshold allows it.
	switch {
	case rate <= threshold:
		c.Status = StatusPass
	case rate < math.Min(2*threshold, 1):
		c.Status = StatusWarning
	default:
		c.Status = StatusFail
	}
	c.Detail = fmt.Sprintf("%d of %d rows null", nulls, rows)
	return c
}
