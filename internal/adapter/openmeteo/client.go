package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Open-Meteo API host.
const DefaultBaseURL = "https://api.open-meteo.com"

const forecastPath = "/v1/forecast"

// Request policy. These are not configurable.
const (
	weatherModel      = "gfs_seamless"
	forecastTimezone  = "America/New_York"
	forecastDays      = "1"
	temperatureUnit   = "fahrenheit"
	windSpeedUnit     = "mph"
	precipitationUnit = "inch"
	subHourlyInterval = 15 * time.Minute
)

// Options tunes transport behavior. Zero values pick the defaults noted on
// each field.
type Options struct {
	BaseURL    string        // DefaultBaseURL
	Timeout    time.Duration // 10s
	Retries    int           // 5; negative disables retries
	Backoff    time.Duration // 200ms, doubled per attempt
	MaxBackoff time.Duration // 5s
	RateLimit  float64       // requests per second; 0 disables
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Retries == 0 {
		o.Retries = 5
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	return o
}

// Client implements domain.Forecaster against the Open-Meteo forecast API.
// Transient failures (transport errors, 429, 5xx) are retried with
// exponential backoff; consecutive failures open a circuit breaker.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates an Open-Meteo client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	opts = opts.withDefaults()
	logger = logger.With("component", "openmeteo")

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.Backoff).
		SetRetryMaxWaitTime(opts.MaxBackoff).
		AddRetryCondition(isTransient)

	c := &Client{
		http:    httpClient,
		metrics: metrics,
		logger:  logger,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.CircuitOpen.Set(open)
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// errRejected marks 4xx answers. The provider understood the request and
// declined it, so it does not count against the breaker.
var errRejected = errors.New("request rejected")

// isTransient decides whether resty retries a response.
func isTransient(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Fetch requests the sub-hourly block for coord. The returned Values are in
// VariableSpec ordinal order.
func (c *Client) Fetch(ctx context.Context, coord domain.Coordinate, spec domain.VariableSpec, window domain.Window) (domain.RawForecast, error) {
	if err := spec.Validate(); err != nil {
		return domain.RawForecast{}, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	if err := validateWindow(window); err != nil {
		return domain.RawForecast{}, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.RawForecast{}, domain.ProviderError(err, "rate limit wait canceled")
		}
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, requestParams(coord, spec, window))
	})
	c.metrics.ForecastAPIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.RawForecast{}, domain.ProviderError(err, "forecast provider unavailable")
		}
		c.logger.Warn("forecast request failed", "coordinate", coord.String(), "error", err)
		return domain.RawForecast{}, domain.ProviderError(err, "fetch forecast")
	}

	body, ok := result.([]byte)
	if !ok {
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		return domain.RawForecast{}, domain.ProviderError(fmt.Errorf("unexpected result type %T", result), "fetch forecast")
	}

	raw, err := decodeForecast(body, spec, window)
	if err != nil {
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		return domain.RawForecast{}, domain.ProviderError(err, "decode forecast")
	}

	c.metrics.ForecastRequests.WithLabelValues("success").Inc()
	c.logger.Debug("forecast fetched", "coordinate", coord.String(), "samples", len(raw.Values[0]))
	return raw, nil
}

func (c *Client) get(ctx context.Context, params map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(forecastPath)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}

	if resp.IsError() {
		reason := apiErrorReason(resp.Body())
		if resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d: %s", errRejected, resp.StatusCode(), reason)
		}
		return nil, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode(), reason)
	}
	return resp.Body(), nil
}

func validateWindow(w domain.Window) error {
	if w.PastSteps < 0 || w.ForecastSteps <= 0 {
		return fmt.Errorf("%w: window needs a non-negative lookback and a positive lookahead, got %d/%d",
			domain.ErrProvider, w.PastSteps, w.ForecastSteps)
	}
	if w.Interval != subHourlyInterval {
		return fmt.Errorf("%w: only %s windows are supported, got %s", domain.ErrProvider, subHourlyInterval, w.Interval)
	}
	return nil
}

func requestParams(coord domain.Coordinate, spec domain.VariableSpec, window domain.Window) map[string]string {
	return map[string]string{
		"latitude":             strconv.FormatFloat(coord.Lat, 'f', -1, 64),
		"longitude":            strconv.FormatFloat(coord.Lon, 'f', -1, 64),
		"minutely_15":          strings.Join(spec.Keys(), ","),
		"models":               weatherModel,
		"timezone":             forecastTimezone,
		"forecast_days":        forecastDays,
		"past_minutely_15":     strconv.Itoa(window.PastSteps),
		"forecast_minutely_15": strconv.Itoa(window.ForecastSteps),
		"temperature_unit":     temperatureUnit,
		"wind_speed_unit":      windSpeedUnit,
		"precipitation_unit":   precipitationUnit,
		"timeformat":           "unixtime",
	}
}
