package analytics

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Dimension is a grouping key for contributor analysis.
type Dimension string

// Supported dimensions.
const (
	DimensionCountry    Dimension = "country"
	DimensionStockCode  Dimension = "stock_code"
	DimensionCustomerID Dimension = "customer_id"
)

// Dimensions lists the supported dimensions.
var Dimensions = []Dimension{DimensionCountry, DimensionStockCode, DimensionCustomerID}

// UnknownBucket holds rows whose dimension value is null or empty.
const UnknownBucket = "Unknown"

// DefaultTopN is used when the caller asks for zero or fewer contributors.
const DefaultTopN = 10

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Dimensions, d) {
		return d, nil
	}
	return "", &core.ValidationError{Reason: fmt.Sprintf("unknown dimension %q (want country, stock_code or customer_id)", s)}
}

// key returns the bucket of row under d.
func (d Dimension) key(row FactRow) string {
	var v *string
	switch d {
	case DimensionCountry:
		v = row.Country
	case DimensionStockCode:
		v = &row.StockCode
	case DimensionCustomerID:
		v = row.CustomerID
	}
	if v == nil || *v == "" {
		return UnknownBucket
	}
	return *v
}

// Direction of a contribution.
const (
	DirectionPositive = "positive"
	DirectionNegative = "negative"
)

// Contributor is one ranked bucket for one metric.
type Contributor struct {
	Metric          string              `json:"metric"`
	Direction       string              `json:"direction"`
	Rank            int                 `json:"rank"`
	Key             string              `json:"dimension_value"`
	Current         decimal.Decimal     `json:"current_value"`
	Prior           decimal.Decimal     `json:"prior_value"`
	Contribution    decimal.Decimal     `json:"contribution"`
	ContributionPct decimal.NullDecimal `json:"contribution_pct"`
}

// Ranking holds the top positive and negative buckets of one metric.
type Ranking struct {
	Metric   string          `json:"metric"`
	Delta    decimal.Decimal `json:"total_delta"`
	Positive []Contributor   `json:"positive"`
	Negative []Contributor   `json:"negative"`
}

// ContributorReport is the result of TopContributors.
type ContributorReport struct {
	Windows   Windows   `json:"windows"`
	Dimension Dimension `json:"dimension"`
	TopN      int       `json:"top_n"`
	Buckets   int       `json:"buckets"`
	Revenue   Ranking   `json:"revenue"`
	Units     Ranking   `json:"units"`
}

// All returns every returned contributor, revenue first.
func (r *ContributorReport) All() []Contributor {
	var out []Contributor
	for _, rk := range []Ranking{r.Revenue, r.Units} {
		out = append(out, rk.Positive...)
		out = append(out, rk.Negative...)
	}
	return out
}

type bucket struct {
	key                      string
	curRevenue, priRevenue   decimal.Decimal
	curUnits, priUnits       int64
	revenueDelta, unitsDelta decimal.Decimal
}

// TopContributors groups rows by dimension, computes per-bucket deltas for
// revenue and units, and returns the top n positive and negative buckets of
// each metric. Buckets that are zero in every value are dropped before
// ranking. Ties are broken by bucket key ascending.
func TopContributors(rows []FactRow, w Windows, dim Dimension, n int) *ContributorReport {
	if n <= 0 {
		n = DefaultTopN
	}

	byKey := make(map[string]*bucket)
	partition(rows, w, func(row FactRow, current bool) {
		k := dim.key(row)
		b, ok := byKey[k]
		if !ok {
			b = &bucket{key: k}
			byKey[k] = b
		}
		if current {
			b.curRevenue = b.curRevenue.Add(row.Revenue())
			b.curUnits += row.Quantity
		} else {
			b.priRevenue = b.priRevenue.Add(row.Revenue())
			b.priUnits += row.Quantity
		}
	})

	buckets := make([]*bucket, 0, len(byKey))
	var revenueDelta decimal.Decimal
	var unitsDelta int64
	for _, b := range byKey {
		if b.curRevenue.IsZero() && b.priRevenue.IsZero() && b.curUnits == 0 && b.priUnits == 0 {
			continue
		}
		b.revenueDelta = b.curRevenue.Sub(b.priRevenue)
		b.unitsDelta = decimal.NewFromInt(b.curUnits - b.priUnits)
		revenueDelta = revenueDelta.Add(b.revenueDelta)
		unitsDelta += b.curUnits - b.priUnits
		buckets = append(buckets, b)
	}

	report := &ContributorReport{
		Windows:   w,
		Dimension: dim,
		TopN:      n,
		Buckets:   len(buckets),
	}
	report.Revenue = rank(KPIRevenue, buckets, n, revenueDelta,
		func(b *bucket) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
			return b.curRevenue, b.priRevenue, b.revenueDelta
		})
	report.Units = rank(KPIUnits, buckets, n, decimal.NewFromInt(unitsDelta),
		func(b *bucket) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
			return decimal.NewFromInt(b.curUnits), decimal.NewFromInt(b.priUnits), b.unitsDelta
		})
	return report
}

func rank(metric string, buckets []*bucket, n int, total decimal.Decimal,
	values func(*bucket) (cur, pri, delta decimal.Decimal)) Ranking {
	ranking := Ranking{Metric: metric, Delta: total}

	sorted := slices.Clone(buckets)
	slices.SortFunc(sorted, func(a, b *bucket) int {
		_, _, da := values(a)
		_, _, db := values(b)
		if c := db.Cmp(da); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})

	contributor := func(b *bucket, direction string, pos int) Contributor {
		cur, pri, delta := values(b)
		return Contributor{
			Metric:          metric,
			Direction:       direction,
			Rank:            pos,
			Key:             b.key,
			Current:         cur,
			Prior:           pri,
			Contribution:    delta,
			ContributionPct: share(delta, total),
		}
	}

	for _, b := range sorted {
		if len(ranking.Positive) == n {
			break
		}
		if _, _, d := values(b); d.IsPositive() {
			ranking.Positive = append(ranking.Positive, contributor(b, DirectionPositive, len(ranking.Positive)+1))
		}
	}

	// Most negative first, ties still by key ascending.
	slices.SortStableFunc(sorted, func(a, b *bucket) int {
		_, _, da := values(a)
		_, _, db := values(b)
		if c := da.Cmp(db); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	for _, b := range sorted {
		if len(ranking.Negative) == n {
			break
		}
		if _, _, d := values(b); d.IsNegative() {
			ranking.Negative = append(ranking.Negative, contributor(b, DirectionNegative, len(ranking.Negative)+1))
		}
	}
	return ranking
}
