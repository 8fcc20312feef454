package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/heat-forecast/internal/adapter/geonames"
	"github.com/couchcryptid/heat-forecast/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/heat-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/heat-forecast/internal/adapter/openmeteo"
	"github.com/couchcryptid/heat-forecast/internal/config"
	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/couchcryptid/heat-forecast/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := geonames.Build(ctx, geonames.Source{
		Path: cfg.GeoNamesPath,
		URL:  cfg.GeoNamesURL,
		DSN:  cfg.DirectoryDSN,
	}, logger)
	if err != nil {
		logger.Error("failed to build place directory", "error", err)
		os.Exit(1)
	}
	if n, err := store.Count(ctx); err == nil {
		metrics.DirectoryRows.Set(float64(n))
		logger.Info("place directory loaded", "rows", n)
	}

	client := openmeteo.NewClient(openmeteo.Options{
		BaseURL:    cfg.OpenMeteoBaseURL,
		Timeout:    cfg.OpenMeteoTimeout,
		Retries:    retries(cfg.OpenMeteoRetries),
		Backoff:    cfg.OpenMeteoBackoff,
		MaxBackoff: cfg.OpenMeteoMaxBackoff,
		RateLimit:  cfg.OpenMeteoRateLimit,
	}, metrics, logger)

	var forecaster domain.Forecaster = client
	if cfg.ForecastCacheTTL > 0 {
		forecaster = openmeteo.NewCachedForecaster(client, cfg.ForecastCacheTTL, cfg.ForecastCacheSize, nil, metrics, logger)
		logger.Info("forecast cache enabled", "ttl", cfg.ForecastCacheTTL, "size", cfg.ForecastCacheSize)
	}

	resolver := domain.NewResolver(store, cfg.FuzzyThreshold, logger)
	p := pipeline.New(resolver, forecaster, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, p, logger)

	// Reports are published only when Kafka is enabled; the watcher still
	// runs without it and feeds the peak heat gauge.
	var writer *kafkaadapter.Writer
	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	queries, err := pipeline.ParseWatchList(cfg.WatchLocations)
	if err != nil {
		logger.Error("invalid watch list", "error", err)
		os.Exit(1)
	}
	watcher := pipeline.NewWatcher(p, publisher, queries, cfg.WatchInterval, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if err := watcher.Start(ctx); err != nil {
		logger.Error("watcher start error", "error", err)
		stop()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	watcher.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("place directory close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// retries maps the configured count onto the client's convention, where
// zero means "use the default" and a negative value disables retries.
func retries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
