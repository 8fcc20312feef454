package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ForecastService produces a normalized forecast for a location.
type ForecastService interface {
	Forecast(ctx context.Context, q domain.LocationQuery) (domain.TimeSeries, error)
}

// Server exposes the forecast API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	forecasts  ForecastService
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /v1/forecast routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, forecasts ForecastService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		forecasts: forecasts,
		logger:    logger.With("component", "http"),
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/forecast", s.handleForecast)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type forecastResponse struct {
	Query           string                    `json:"query"`
	Coordinate      domain.Coordinate         `json:"coordinate"`
	Timezone        string                    `json:"timezone,omitempty"`
	IntervalSeconds int64                     `json:"interval_seconds"`
	Timestamps      []time.Time               `json:"timestamps"`
	Series          map[string]domain.Samples `json:"series"`
	Scales          map[string]float64        `json:"scales,omitempty"`
	HeatIndex       []domain.HeatSample       `json:"heat_index,omitempty"`
	PeakLevel       string                    `json:"peak_level,omitempty"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

type errorResponse struct {
	Kind  domain.FailureKind `json:"kind"`
	Error string             `json:"error"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q, withHeat, err := parseForecastQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ts, err := s.forecasts.Forecast(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := forecastResponse{
		Query:           q.Label(),
		Coordinate:      ts.Coordinate,
		Timezone:        ts.Timezone,
		IntervalSeconds: int64(ts.Interval / time.Second),
		Timestamps:      ts.Timestamps,
		Series:          ts.Series,
		Scales:          ts.Scales,
		GeneratedAt:     ts.GeneratedAt,
	}
	if withHeat {
		heat, err := domain.EnrichHeatIndex(ts)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.HeatIndex = heat
		if peak, ok := domain.PeakHeat(heat); ok {
			resp.PeakLevel = peak.Level.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseForecastQuery reads ?zip= or ?city=&state=, plus an optional heat flag.
func parseForecastQuery(r *http.Request) (domain.LocationQuery, bool, error) {
	values := r.URL.Query()

	withHeat := false
	if raw := values.Get("heat"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false, invalidParam("heat must be a boolean")
		}
		withHeat = b
	}

	zip := strings.TrimSpace(values.Get("zip"))
	city := strings.TrimSpace(values.Get("city"))
	state := strings.TrimSpace(values.Get("state"))
	switch {
	case zip != "" && (city != "" || state != ""):
		return nil, false, invalidParam("use either zip or city and state, not both")
	case zip != "":
		return domain.ByPostalCode{Code: zip}, withHeat, nil
	case city != "" && state != "":
		return domain.ByPlace{Name: city, Region: state}, withHeat, nil
	default:
		return nil, false, invalidParam("zip or city and state are required")
	}
}

type paramError string

func (e paramError) Error() string { return string(e) }

func (e paramError) Is(target error) bool { return target == domain.ErrInvalidInput }

func invalidParam(msg string) error { return paramError(msg) }

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("forecast request failed", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorResponse{Kind: kind, Error: err.Error()})
}

func statusFor(kind domain.FailureKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindLocationNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
