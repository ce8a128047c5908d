package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/retailsql/internal/cli/output"
	"github.com/leapstack-labs/retailsql/pkg/analytics"
	"github.com/leapstack-labs/retailsql/pkg/templates"
)

// windowFlags selects the compared windows: either all four explicit bounds,
// or two adjacent windows of --days ending at --end.
type windowFlags struct {
	currentStart, currentEnd string
	priorStart, priorEnd     string
	end                      string
	days                     int
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.currentStart, "current-start", "", "Inclusive start of the current window")
	cmd.Flags().StringVar(&f.currentEnd, "current-end", "", "Exclusive end of the current window")
	cmd.Flags().StringVar(&f.priorStart, "prior-start", "", "Inclusive start of the prior window")
	cmd.Flags().StringVar(&f.priorEnd, "prior-end", "", "Exclusive end of the prior window")
	cmd.Flags().StringVar(&f.end, "end", "", "End of the current window when bounds are not given (default: today, UTC)")
	cmd.Flags().IntVar(&f.days, "days", 7, "Window length in days when bounds are not given")
}

func (f *windowFlags) explicit() bool {
	return f.currentStart != "" || f.currentEnd != "" || f.priorStart != "" || f.priorEnd != ""
}

func (f *windowFlags) windows(now time.Time) (analytics.Windows, error) {
	if f.explicit() {
		var w analytics.Windows
		bounds := []struct {
			flag string
			raw  string
			dst  *time.Time
		}{
			{"current-start", f.currentStart, &w.Current.Start},
			{"current-end", f.currentEnd, &w.Current.End},
			{"prior-start", f.priorStart, &w.Prior.Start},
			{"prior-end", f.priorEnd, &w.Prior.End},
		}
		for _, b := range bounds {
			if b.raw == "" {
				return w, fmt.Errorf("--%s is required when window bounds are given", b.flag)
			}
			ts, err := templates.ParseTime(b.raw)
			if err != nil {
				return w, fmt.Errorf("--%s: %w", b.flag, err)
			}
			*b.dst = ts
		}
		return w, nil
	}

	if f.days <= 0 {
		return analytics.Windows{}, fmt.Errorf("--days must be positive")
	}
	end := now.UTC().Truncate(24 * time.Hour)
	if f.end != "" {
		ts, err := templates.ParseTime(f.end)
		if err != nil {
			return analytics.Windows{}, fmt.Errorf("--end: %w", err)
		}
		end = ts
	}
	return analytics.LastWindows(end, time.Duration(f.days)*24*time.Hour), nil
}

// NewAnalyzeCommand creates the analyze command group.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compare sales windows",
		Long: `Run the retail analyses over two time windows.

Windows are half-open [start, end). Give all four bounds, or let --end and
--days pick two adjacent windows of equal length.`,
	}

	cmd.AddCommand(newAnalyzeCompareCommand())
	cmd.AddCommand(newAnalyzeContributorsCommand())
	cmd.AddCommand(newAnalyzeDecomposeCommand())
	cmd.AddCommand(newAnalyzeQualityCommand())

	return cmd
}

func newAnalyzeCompareCommand() *cobra.Command {
	wf := &windowFlags{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Revenue, units and average order value, current vs prior",
		Example: `  retailsql analyze compare --end 2011-12-09 --days 7
  retailsql analyze compare --current-start 2011-11-01 --current-end 2011-12-01 \
    --prior-start 2011-10-01 --prior-end 2011-11-01 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := wf.windows(time.Now())
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := cmdCtx.Analytics.Compare(cmd.Context(), w)
			if err != nil {
				return err
			}
			return renderComparison(cmdCtx.Renderer, report)
		},
	}
	wf.register(cmd)
	return cmd
}

func newAnalyzeContributorsCommand() *cobra.Command {
	wf := &windowFlags{}
	var (
		dimension string
		topN      int
	)
	cmd := &cobra.Command{
		Use:   "contributors",
		Short: "Buckets that drove the change in revenue and units",
		Example: `  retailsql analyze contributors --dimension stock_code --top 5 --end 2011-12-09`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dim, err := analytics.ParseDimension(dimension)
			if err != nil {
				return err
			}
			w, err := wf.windows(time.Now())
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := cmdCtx.Analytics.Contributors(cmd.Context(), w, dim, topN)
			if err != nil {
				return err
			}
			return renderContributors(cmdCtx.Renderer, report)
		},
	}
	wf.register(cmd)
	cmd.Flags().StringVar(&dimension, "dimension", string(analytics.DimensionCountry), "Grouping: country, stock_code or customer_id")
	cmd.Flags().IntVar(&topN, "top", analytics.DefaultTopN, "Contributors per direction and metric")
	_ = cmd.RegisterFlagCompletionFunc("dimension", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, len(analytics.Dimensions))
		for i, d := range analytics.Dimensions {
			names[i] = string(d)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newAnalyzeDecomposeCommand() *cobra.Command {
	wf := &windowFlags{}
	cmd := &cobra.Command{
		Use:   "decompose",
		Short: "Split the revenue change into price and volume effects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := wf.windows(time.Now())
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := cmdCtx.Analytics.Decompose(cmd.Context(), w)
			if err != nil {
				return err
			}
			return renderDecomposition(cmdCtx.Renderer, report)
		},
	}
	wf.register(cmd)
	return cmd
}

func newAnalyzeQualityCommand() *cobra.Command {
	var start, end, reference string
	var days int
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Freshness, volume and null-rate checks for one window",
		Long: `Check one window of fact rows against the configured thresholds
(quality.min_rows_per_day, quality.null_rate_threshold, quality.required_columns).

Exits with status 1 when any check fails.`,
		Example: `  retailsql analyze quality --end 2011-12-10 --days 7 --reference 2011-12-10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf := &windowFlags{end: end, days: days}
			if start != "" {
				if end == "" {
					return fmt.Errorf("--end is required with --start")
				}
				wf.currentStart, wf.currentEnd = start, end
				wf.priorStart, wf.priorEnd = start, end
			}
			w, err := wf.windows(time.Now())
			if err != nil {
				return err
			}
			var ref time.Time
			if reference != "" {
				if ref, err = templates.ParseTime(reference); err != nil {
					return fmt.Errorf("--reference: %w", err)
				}
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := cmdCtx.Analytics.Quality(cmd.Context(), w.Current, ref)
			if err != nil {
				return err
			}
			if err := renderQuality(cmdCtx.Renderer, report); err != nil {
				return err
			}
			for _, c := range report.Checks() {
				if c.Status == analytics.StatusFail {
					return fmt.Errorf("data quality check %s failed", checkLabel(c))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Inclusive window start (default: --end minus --days)")
	cmd.Flags().StringVar(&end, "end", "", "Exclusive window end (default: today, UTC)")
	cmd.Flags().IntVar(&days, "days", 7, "Window length in days when --start is not given")
	cmd.Flags().StringVar(&reference, "reference", "", "Reference time for freshness (default: now)")
	return cmd
}

func renderComparison(r *output.Renderer, c *analytics.WindowComparison) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(c)
	}

	r.Header(1, "Window comparison")
	renderWindows(r, c.Windows)
	r.Println()

	rows := make([][]string, 0, 4)
	for _, k := range c.KPIs() {
		rows = append(rows, []string{k.Metric, nullDec(k.Current), nullDec(k.Prior), nullDec(k.Change), ratio(k.PctChange)})
	}
	rows = append(rows, []string{"invoices", strconv.Itoa(c.CurrentInvoices), strconv.Itoa(c.PriorInvoices),
		strconv.Itoa(c.CurrentInvoices - c.PriorInvoices), ""})
	return output.RenderList(r.Writer(), []string{"metric", "current", "prior", "change", "pct_change"}, rows, listFormat(r))
}

func renderContributors(r *output.Renderer, c *analytics.ContributorReport) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(c)
	}

	r.Header(1, "Top contributors by "+string(c.Dimension))
	renderWindows(r, c.Windows)
	r.Println(output.FormatKeyValue("Buckets", strconv.Itoa(c.Buckets)))

	for _, rk := range []analytics.Ranking{c.Revenue, c.Units} {
		r.Println()
		r.Header(2, fmt.Sprintf("%s (total change %s)", rk.Metric, rk.Delta.String()))
		var rows [][]string
		for _, ct := range append(append([]analytics.Contributor{}, rk.Positive...), rk.Negative...) {
			rows = append(rows, []string{
				ct.Direction, strconv.Itoa(ct.Rank), ct.Key,
				ct.Current.String(), ct.Prior.String(), ct.Contribution.String(), pct(ct.ContributionPct),
			})
		}
		if len(rows) == 0 {
			r.Muted("no change")
			continue
		}
		if err := output.RenderList(r.Writer(),
			[]string{"direction", "rank", string(c.Dimension), "current", "prior", "contribution", "share"},
			rows, listFormat(r)); err != nil {
			return err
		}
	}
	return nil
}

func renderDecomposition(r *output.Renderer, d *analytics.Decomposition) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(d)
	}

	r.Header(1, "Price / volume decomposition")
	renderWindows(r, d.Windows)
	r.Println(output.FormatKeyValue("Products", strconv.Itoa(d.Products)))
	r.Println()

	rows := [][]string{
		{"current_revenue", d.CurrentRevenue.String(), ""},
		{"prior_revenue", d.PriorRevenue.String(), ""},
		{"total_revenue_change", d.TotalRevenueChange.String(), ""},
		{"price_effect", d.PriceEffect.String(), pct(d.PriceEffectPct)},
		{"volume_effect", d.VolumeEffect.String(), pct(d.VolumeEffectPct)},
		{"decomposition_total", d.DecompositionTotal.String(), ""},
		{"interaction_effect", d.InteractionEffect.String(), ""},
		{"current_quantity", strconv.FormatInt(d.CurrentQuantity, 10), ""},
		{"prior_quantity", strconv.FormatInt(d.PriorQuantity, 10), ""},
		{"total_quantity_change", strconv.FormatInt(d.TotalQuantityChange, 10), ""},
	}
	return output.RenderList(r.Writer(), []string{"measure", "value", "share"}, rows, listFormat(r))
}

func renderQuality(r *output.Renderer, q *analytics.QualityReport) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(q)
	}

	r.Header(1, "Data quality")
	r.Println(output.FormatKeyValue("Window", q.Window.String()))
	r.Println(output.FormatKeyValue("Reference", q.Reference.UTC().Format(time.RFC3339)))
	r.Println(output.FormatKeyValue("Rows", strconv.Itoa(q.Rows)))
	r.Println()

	styles := r.Styles()
	for _, c := range q.Checks() {
		r.Printf("%-24s %s  %s\n", checkLabel(c), styles.Status(string(c.Status)), c.Detail)
	}
	return nil
}

func renderWindows(r *output.Renderer, w analytics.Windows) {
	r.Println(output.FormatKeyValue("Current", w.Current.String()))
	r.Println(output.FormatKeyValue("Prior", w.Prior.String()))
}

// listFormat maps the renderer mode onto a list format.
func listFormat(r *output.Renderer) string {
	if r.EffectiveMode() == output.ModeMarkdown {
		return output.FormatMarkdown
	}
	return output.FormatTable
}

func checkLabel(c analytics.Check) string {
	if c.Column != "" {
		return c.Name + "(" + c.Column + ")"
	}
	return c.Name
}

func nullDec(d decimal.NullDecimal) string {
	if !d.Valid {
		return "NULL"
	}
	return d.Decimal.StringFixed(2)
}

// ratio renders a change ratio as a percentage.
func ratio(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return pct(decimal.NewNullDecimal(d.Decimal.Mul(decimal.NewFromInt(100))))
}

// pct renders a value already scaled to 0..100.
func pct(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return strings.TrimSuffix(d.Decimal.StringFixed(2), ".00") + "%"
}
