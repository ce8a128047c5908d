package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/gateway"
)

// FactTemplate is the template every analysis pulls its rows through.
const FactTemplate = "fact_rows"

// Runner runs templates. *gateway.Gateway satisfies it.
type Runner interface {
	RunTemplate(ctx context.Context, name string, params map[string]any, opts ...gateway.CallOption) (*core.Result, error)
}

// Service runs the analyses against a store. Each call pulls the fact rows
// for both windows in a single statement, so both windows see one snapshot.
type Service struct {
	runner  Runner
	logger  *slog.Logger
	quality QualityConfig
}

// NewService builds a Service. A zero QualityConfig means the defaults.
func NewService(runner Runner, logger *slog.Logger, quality QualityConfig) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if quality.MinRowsPerDay == 0 && quality.NullRateThreshold == 0 && len(quality.RequiredColumns) == 0 {
		quality = DefaultQualityConfig()
	}
	return &Service{runner: runner, logger: logger, quality: quality}
}

// Facts validates the windows and pulls every fact row inside either one.
// The pull is not subject to the gateway's row cap.
func (s *Service) Facts(ctx context.Context, w Windows) ([]FactRow, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if w.Current.Length() != w.Prior.Length() {
		s.logger.Debug("comparing windows of different length",
			slog.Duration("current", w.Current.Length()),
			slog.Duration("prior", w.Prior.Length()))
	}

	res, err := s.runner.RunTemplate(ctx, FactTemplate, w.Params(), gateway.WithRowLimit(0))
	if err != nil {
		return nil, err
	}
	facts, err := ScanFacts(res)
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", res.Fingerprint, err)
	}
	s.logger.Debug("fact rows loaded",
		slog.Int("rows", len(facts)),
		slog.String("fingerprint", res.Fingerprint),
		slog.Duration("duration", res.Duration))
	return facts, nil
}

// Compare runs the window comparison.
func (s *Service) Compare(ctx context.Context, w Windows) (*WindowComparison, error) {
	facts, err := s.Facts(ctx, w)
	if err != nil {
		return nil, err
	}
	return CompareWindows(facts, w), nil
}

// Contributors ranks buckets of dim. n <= 0 means DefaultTopN.
func (s *Service) Contributors(ctx context.Context, w Windows, dim Dimension, n int) (*ContributorReport, error) {
	dim, err := ParseDimension(string(dim))
	if err != nil {
		return nil, err
	}
	facts, err := s.Facts(ctx, w)
	if err != nil {
		return nil, err
	}
	return TopContributors(facts, w, dim, n), nil
}

// Decompose runs the price/volume decomposition.
func (s *Service) Decompose(ctx context.Context, w Windows) (*Decomposition, error) {
	facts, err := s.Facts(ctx, w)
	if err != nil {
		return nil, err
	}
	return DecomposePriceVolume(facts, w), nil
}

// Quality checks one window against the configured thresholds. A zero
// reference means now.
func (s *Service) Quality(ctx context.Context, window Window, reference time.Time) (*QualityReport, error) {
	if reference.IsZero() {
		reference = time.Now()
	}
	// Both slots of the fact template get the same window.
	facts, err := s.Facts(ctx, Windows{Current: window, Prior: window})
	if err != nil {
		return nil, err
	}
	return CheckQuality(facts, window, reference, s.quality), nil
}

// LastWindows returns two adjacent windows of length d, the current one
// ending at end.
func LastWindows(end time.Time, d time.Duration) Windows {
	return Windows{
		Current: Window{Start: end.Add(-d), End: end},
		Prior:   Window{Start: end.Add(-2 * d), End: end.Add(-d)},
	}
}
