package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "heat_forecast"

// Metrics holds the Prometheus counters, histograms, and gauges for the forecast service.
type Metrics struct {
	// Pipeline metrics.
	PipelineRuns     *prometheus.CounterVec // labels: outcome={ok,invalid_input,location_not_found,provider_error}
	PipelineDuration prometheus.Histogram
	WatcherRunning   prometheus.Gauge
	PeakHeatLevel    *prometheus.GaugeVec // labels: location; value is the HeatDangerLevel ordinal

	// Resolution metrics.
	ResolveRequests *prometheus.CounterVec // labels: query={place,postal}, outcome={success,<failure kind>}
	DirectoryRows   prometheus.Gauge

	// Provider metrics.
	ForecastRequests    *prometheus.CounterVec // labels: outcome={success,error}
	ForecastCache       *prometheus.CounterVec // labels: result={hit,miss,stale}
	ForecastAPIDuration prometheus.Histogram
	CircuitOpen         prometheus.Gauge

	// Publishing metrics.
	ReportsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.PipelineRuns,
		m.PipelineDuration,
		m.WatcherRunning,
		m.PeakHeatLevel,
		m.ResolveRequests,
		m.DirectoryRows,
		m.ForecastRequests,
		m.ForecastCache,
		m.ForecastAPIDuration,
		m.CircuitOpen,
		m.ReportsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Forecast pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a resolve-fetch-normalize run.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		WatcherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watcher_running",
			Help:      "1 when the scheduled watcher is active, 0 otherwise.",
		}),
		PeakHeatLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_heat_level",
			Help:      "Peak heat danger level (0 normal to 4 extreme danger) of the last watch run per location.",
		}, []string{"location"}),
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_requests_total",
			Help:      "Location resolutions by query type and outcome.",
		}, []string{"query", "outcome"}),
		DirectoryRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_rows",
			Help:      "Rows loaded into the place directory.",
		}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_requests_total",
			Help:      "Forecast provider requests by outcome.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_api_duration_seconds",
			Help:      "Open-Meteo request duration in seconds, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CircuitOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forecast_circuit_open",
			Help:      "1 while the provider circuit breaker is open.",
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Forecast reports written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed Kafka report writes.",
		}),
	}
}
