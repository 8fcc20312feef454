package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/couchcryptid/heat-forecast/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStart = int64(1752494400) // 2025-07-14T12:00:00Z

var alexandria = domain.Coordinate{Lat: 38.8048, Lon: -77.0469}

// --- mocks ---

type fakeResolver struct {
	coords map[string]domain.Coordinate
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, q domain.LocationQuery) (domain.Coordinate, error) {
	if f.err != nil {
		return domain.Coordinate{}, f.err
	}
	if q == nil {
		return domain.Coordinate{}, fmt.Errorf("%w: no location given", domain.ErrInvalidInput)
	}
	c, ok := f.coords[q.Label()]
	if !ok {
		return domain.Coordinate{}, &domain.NotFoundError{PostalCode: q.Label()}
	}
	return c, nil
}

type fakeForecaster struct {
	mu     sync.Mutex
	raw    domain.RawForecast
	err    error
	calls  int
	coords []domain.Coordinate
	spec   domain.VariableSpec
	window domain.Window
}

func (f *fakeForecaster) Fetch(_ context.Context, coord domain.Coordinate, spec domain.VariableSpec, window domain.Window) (domain.RawForecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.coords = append(f.coords, coord)
	f.spec = spec
	f.window = window
	if f.err != nil {
		return domain.RawForecast{}, f.err
	}
	return f.raw, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rawForecast builds an n-sample block for DefaultVariables: temperature
// 70+i °F, humidity 50%, radiation 0.
func rawForecast(n int) domain.RawForecast {
	values := make([][]float64, len(domain.DefaultVariables))
	for i := range values {
		values[i] = make([]float64, n)
	}
	for j := 0; j < n; j++ {
		values[0][j] = float64(70 + j)
		values[1][j] = 50
	}
	return domain.RawForecast{
		Latitude:         alexandria.Lat,
		Longitude:        alexandria.Lon,
		Timezone:         "America/New_York",
		UTCOffsetSeconds: -4 * 3600,
		StartTime:        testStart,
		EndTime:          testStart + int64(n)*900,
		IntervalSeconds:  900,
		Values:           values,
	}
}

func newTestPipeline(fc *fakeForecaster, resolver *fakeResolver) (*pipeline.Pipeline, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	if resolver == nil {
		resolver = &fakeResolver{coords: map[string]domain.Coordinate{"22314": alexandria}}
	}
	return pipeline.New(resolver, fc, discardLogger(), metrics), metrics
}

// --- tests ---

func TestPipeline_Forecast_EndToEnd(t *testing.T) {
	fc := &fakeForecaster{raw: rawForecast(8)}
	fc.raw.Values[4] = []float64{0, 120, 900, 4500, 3000, 10, 0, 0}
	p, metrics := newTestPipeline(fc, nil)

	ts, err := p.Forecast(context.Background(), domain.ByPostalCode{Code: "22314"})
	require.NoError(t, err)

	keys := make([]string, 0, len(ts.Series))
	for k := range ts.Series {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, domain.DefaultVariables.Keys(), keys)

	require.Len(t, ts.Timestamps, 8)
	for i := 1; i < len(ts.Timestamps); i++ {
		assert.Equal(t, domain.DefaultWindow.Interval, ts.Timestamps[i].Sub(ts.Timestamps[i-1]))
	}

	peak, ok := ts.Series[domain.KeyDirectRadiation].Max()
	require.True(t, ok)
	assert.InDelta(t, 45.0, peak, 1e-9)

	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, []domain.Coordinate{alexandria}, fc.coords)
	if diff := cmp.Diff(domain.DefaultVariables, fc.spec); diff != "" {
		t.Errorf("variable spec mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.DefaultWindow, fc.window)

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("ok")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ResolveRequests.WithLabelValues("postal", "ok")), 1e-9)
}

func TestPipeline_Run_Success(t *testing.T) {
	p, _ := newTestPipeline(&fakeForecaster{raw: rawForecast(4)}, nil)

	out := p.Run(context.Background(), domain.ByPostalCode{Code: "22314"})
	require.True(t, out.OK())
	assert.Equal(t, domain.KindNone, out.Kind)
	assert.Equal(t, 4, out.Series.Len())
}

func TestPipeline_Run_FailuresKeepTheirKind(t *testing.T) {
	providerErr := fmt.Errorf("%w: open-meteo API error: status 503", domain.ErrProvider)

	tests := []struct {
		name          string
		query         domain.LocationQuery
		resolver      *fakeResolver
		forecaster    *fakeForecaster
		wantKind      domain.FailureKind
		wantErr       error
		wantFetches   int
		wantQueryType string
	}{
		{
			name:          "invalid postal code",
			query:         domain.ByPostalCode{Code: "2231"},
			resolver:      &fakeResolver{err: fmt.Errorf("%w: postal code must be 5 digits", domain.ErrInvalidInput)},
			forecaster:    &fakeForecaster{raw: rawForecast(4)},
			wantKind:      domain.KindInvalidInput,
			wantErr:       domain.ErrInvalidInput,
			wantQueryType: "postal",
		},
		{
			name:          "place not found",
			query:         domain.ByPlace{Name: "Nowhereville", Region: "ZZ"},
			forecaster:    &fakeForecaster{raw: rawForecast(4)},
			wantKind:      domain.KindLocationNotFound,
			wantErr:       domain.ErrLocationNotFound,
			wantQueryType: "place",
		},
		{
			name:          "provider failure",
			query:         domain.ByPostalCode{Code: "22314"},
			forecaster:    &fakeForecaster{err: providerErr},
			wantKind:      domain.KindProviderError,
			wantErr:       providerErr,
			wantFetches:   1,
			wantQueryType: "postal",
		},
		{
			name:          "nil query",
			query:         nil,
			forecaster:    &fakeForecaster{raw: rawForecast(4)},
			wantKind:      domain.KindInvalidInput,
			wantErr:       domain.ErrInvalidInput,
			wantQueryType: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, metrics := newTestPipeline(tt.forecaster, tt.resolver)

			out := p.Run(context.Background(), tt.query)
			assert.False(t, out.OK())
			assert.Nil(t, out.Series)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.ErrorIs(t, out.Err, tt.wantErr)
			assert.NotEmpty(t, out.Message)
			assert.Equal(t, tt.wantFetches, tt.forecaster.calls)
			assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues(string(tt.wantKind))), 1e-9)
			if tt.wantFetches == 0 {
				assert.InDelta(t, 1.0,
					testutil.ToFloat64(metrics.ResolveRequests.WithLabelValues(tt.wantQueryType, string(tt.wantKind))), 1e-9)
			}
		})
	}
}

func TestPipeline_Forecast_ProviderErrorIsNotRewrapped(t *testing.T) {
	providerErr := fmt.Errorf("%w: forecast provider unavailable", domain.ErrProvider)
	p, _ := newTestPipeline(&fakeForecaster{err: providerErr}, nil)

	_, err := p.Forecast(context.Background(), domain.ByPostalCode{Code: "22314"})
	assert.Same(t, providerErr, err)
}

func TestPipeline_Forecast_MalformedBlockIsProviderError(t *testing.T) {
	raw := rawForecast(8)
	raw.Values[2] = raw.Values[2][:7]
	p, _ := newTestPipeline(&fakeForecaster{raw: raw}, nil)

	_, err := p.Forecast(context.Background(), domain.ByPostalCode{Code: "22314"})
	require.Error(t, err)
	assert.Equal(t, domain.KindProviderError, domain.KindOf(err))
	assert.Contains(t, err.Error(), domain.KeyRain)
}

func TestPipeline_Report(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 14, 16, 5, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	raw := rawForecast(8)
	raw.Values[0][3] = 90
	raw.Values[1][3] = 60
	p, _ := newTestPipeline(&fakeForecaster{raw: raw}, nil)

	report, err := p.Report(context.Background(), domain.ByPostalCode{Code: "22314"}, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "22314", report.Label)
	assert.Equal(t, alexandria, report.Coordinate)
	assert.Equal(t, fakeClock.Now(), report.GeneratedAt)
	require.Len(t, report.HeatIndex, 8)
	assert.InDelta(t, 100.0, report.HeatIndex[3].HeatIndexF, 1e-9)
	assert.Equal(t, domain.ExtremeCaution, report.HeatIndex[3].Level)
	assert.Equal(t, "extreme_caution", report.PeakLevel)
}

func TestPipeline_Report_Failure(t *testing.T) {
	p, _ := newTestPipeline(&fakeForecaster{raw: rawForecast(4)}, nil)

	_, err := p.Report(context.Background(), domain.ByPostalCode{Code: "99999"}, "run-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLocationNotFound))
}

func TestBuildReport_MissingHumidity(t *testing.T) {
	ts := domain.TimeSeries{
		Timestamps: []time.Time{time.Unix(testStart, 0).UTC()},
		Series:     map[string]domain.Samples{domain.KeyTemperature: {90}},
	}
	_, err := pipeline.BuildReport(ts, "22314", "run-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
