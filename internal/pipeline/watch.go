package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

// defaultRunTimeout bounds one scheduled tick across all locations.
const defaultRunTimeout = 2 * time.Minute

// Reporter produces an enriched forecast report for one location.
type Reporter interface {
	Report(ctx context.Context, q domain.LocationQuery, runID string) (domain.ForecastReport, error)
}

// Publisher delivers a batch of reports downstream.
type Publisher interface {
	Publish(ctx context.Context, reports []domain.ForecastReport) error
}

// RunSummary describes one watch run.
type RunSummary struct {
	RunID   string
	Reports []domain.ForecastReport
	Failed  int
}

// Watcher runs the pipeline for a fixed list of locations on a schedule and
// publishes the resulting reports.
type Watcher struct {
	reporter   Reporter
	publisher  Publisher
	queries    []domain.LocationQuery
	interval   time.Duration
	runTimeout time.Duration
	scheduler  *gocron.Scheduler
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWatcher creates a Watcher. A nil publisher keeps reports local; runs
// still update metrics and logs.
func NewWatcher(reporter Reporter, publisher Publisher, queries []domain.LocationQuery, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Watcher {
	return &Watcher{
		reporter:   reporter,
		publisher:  publisher,
		queries:    queries,
		interval:   interval,
		runTimeout: defaultRunTimeout,
		scheduler:  gocron.NewScheduler(time.UTC),
		logger:     logger.With("component", "watcher"),
		metrics:    metrics,
	}
}

// Start schedules a run every interval, the first one immediately. Runs use
// contexts derived from ctx.
func (w *Watcher) Start(ctx context.Context) error {
	if len(w.queries) == 0 {
		w.logger.Info("no watch locations configured")
		return nil
	}
	if w.interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", w.interval)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	_, err := w.scheduler.Every(w.interval).SingletonMode().Do(func() {
		tickCtx, cancelTick := context.WithTimeout(runCtx, w.runTimeout)
		defer cancelTick()
		w.RunOnce(tickCtx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule watch job: %w", err)
	}

	w.scheduler.StartAsync()
	w.metrics.WatcherRunning.Set(1)
	w.logger.Info("watcher started", "locations", len(w.queries), "interval", w.interval)
	return nil
}

// Stop cancels in-flight runs and stops the scheduler.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.scheduler.Stop()
	w.metrics.WatcherRunning.Set(0)
}

// RunOnce reports on every watched location concurrently and publishes the
// successful reports in one batch. Failures are logged and counted; they
// never stop the other locations.
func (w *Watcher) RunOnce(ctx context.Context) RunSummary {
	runID := uuid.NewString()
	logger := w.logger.With("run_id", runID)
	logger.Info("watch run started", "locations", len(w.queries))

	results := make([]*domain.ForecastReport, len(w.queries))
	var wg sync.WaitGroup
	for i, q := range w.queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := w.reporter.Report(ctx, q, runID)
			if err != nil {
				logger.Warn("watch location failed", "query", q.Label(), "kind", domain.KindOf(err), "error", err)
				return
			}
			results[i] = &report
		}()
	}
	wg.Wait()

	summary := RunSummary{RunID: runID}
	for _, r := range results {
		if r == nil {
			summary.Failed++
			continue
		}
		summary.Reports = append(summary.Reports, *r)
		w.recordPeak(*r)
	}

	w.publish(ctx, logger, summary.Reports)
	logger.Info("watch run completed", "reports", len(summary.Reports), "failed", summary.Failed)
	return summary
}

func (w *Watcher) recordPeak(r domain.ForecastReport) {
	var level domain.HeatDangerLevel
	if err := level.UnmarshalText([]byte(r.PeakLevel)); err != nil {
		return
	}
	w.metrics.PeakHeatLevel.WithLabelValues(r.Label).Set(float64(level))
}

func (w *Watcher) publish(ctx context.Context, logger *slog.Logger, reports []domain.ForecastReport) {
	if w.publisher == nil || len(reports) == 0 {
		return
	}
	if err := w.publisher.Publish(ctx, reports); err != nil {
		w.metrics.PublishErrors.Inc()
		logger.Error("publish reports failed", "count", len(reports), "error", err)
		return
	}
	w.metrics.ReportsPublished.Add(float64(len(reports)))
}

// ParseWatchList parses a semicolon-separated list of locations. An entry
// with a comma is a "Place,Region" pair; anything else is a postal code.
// Blank entries are skipped.
func ParseWatchList(s string) ([]domain.LocationQuery, error) {
	var queries []domain.LocationQuery
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.LastIndex(entry, ",")
		if idx < 0 {
			queries = append(queries, domain.ByPostalCode{Code: entry})
			continue
		}
		name := strings.TrimSpace(entry[:idx])
		region := strings.TrimSpace(entry[idx+1:])
		if name == "" || region == "" {
			return nil, fmt.Errorf("%w: watch entry %q needs both place and region", domain.ErrInvalidInput, entry)
		}
		queries = append(queries, domain.ByPlace{Name: name, Region: region})
	}
	return queries, nil
}
