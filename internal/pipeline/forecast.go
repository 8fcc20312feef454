package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
)

// LocationResolver turns a location query into a coordinate.
type LocationResolver interface {
	Resolve(ctx context.Context, q domain.LocationQuery) (domain.Coordinate, error)
}

// Pipeline runs resolve, fetch, and normalize for one location at a time.
// It holds no per-call state and is safe for concurrent use when its
// resolver and forecaster are.
type Pipeline struct {
	resolver   LocationResolver
	forecaster domain.Forecaster
	spec       domain.VariableSpec
	window     domain.Window
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Pipeline using the process-wide variable list and window.
func New(resolver LocationResolver, forecaster domain.Forecaster, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		forecaster: forecaster,
		spec:       domain.DefaultVariables,
		window:     domain.DefaultWindow,
		logger:     logger.With("component", "pipeline"),
		metrics:    metrics,
	}
}

// Run executes the pipeline and folds the result into an Outcome.
func (p *Pipeline) Run(ctx context.Context, q domain.LocationQuery) domain.Outcome {
	return domain.OutcomeOf(p.Forecast(ctx, q))
}

// Forecast resolves q, fetches its forecast window, and normalizes it. The
// first failing step ends the run and its error is returned as is.
func (p *Pipeline) Forecast(ctx context.Context, q domain.LocationQuery) (ts domain.TimeSeries, err error) {
	start := time.Now()
	defer func() {
		p.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		p.metrics.PipelineRuns.WithLabelValues(outcomeLabel(err)).Inc()
	}()

	coord, err := p.resolver.Resolve(ctx, q)
	p.metrics.ResolveRequests.WithLabelValues(queryLabel(q), outcomeLabel(err)).Inc()
	if err != nil {
		p.logger.Info("resolve failed", "query", label(q), "kind", domain.KindOf(err), "error", err)
		return domain.TimeSeries{}, err
	}

	raw, err := p.forecaster.Fetch(ctx, coord, p.spec, p.window)
	if err != nil {
		p.logger.Warn("forecast fetch failed", "query", label(q), "lat", coord.Lat, "lon", coord.Lon, "error", err)
		return domain.TimeSeries{}, err
	}

	ts, err = domain.NormalizeSeries(raw, p.spec)
	if err != nil {
		p.logger.Warn("normalize failed", "query", label(q), "error", err)
		return domain.TimeSeries{}, err
	}

	p.logger.Debug("forecast ready", "query", label(q), "samples", ts.Len())
	return ts, nil
}

// Report runs the pipeline and enriches the result with heat index samples.
func (p *Pipeline) Report(ctx context.Context, q domain.LocationQuery, runID string) (domain.ForecastReport, error) {
	ts, err := p.Forecast(ctx, q)
	if err != nil {
		return domain.ForecastReport{}, err
	}
	return BuildReport(ts, q.Label(), runID)
}

// BuildReport wraps a normalized series in a ForecastReport with heat
// enrichment and its peak danger level.
func BuildReport(ts domain.TimeSeries, lbl, runID string) (domain.ForecastReport, error) {
	heat, err := domain.EnrichHeatIndex(ts)
	if err != nil {
		return domain.ForecastReport{}, err
	}
	report := domain.ForecastReport{
		RunID:       runID,
		Label:       lbl,
		Coordinate:  ts.Coordinate,
		Series:      ts,
		HeatIndex:   heat,
		GeneratedAt: ts.GeneratedAt,
	}
	if peak, ok := domain.PeakHeat(heat); ok {
		report.PeakLevel = peak.Level.String()
	}
	return report, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

func queryLabel(q domain.LocationQuery) string {
	switch q.(type) {
	case domain.ByPlace:
		return "place"
	case domain.ByPostalCode:
		return "postal"
	default:
		return "unknown"
	}
}

func label(q domain.LocationQuery) string {
	if q == nil {
		return ""
	}
	return q.Label()
}
