//go:build openmeteo

package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/heat-forecast/internal/domain"
	"github.com/couchcryptid/heat-forecast/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the live Open-Meteo API.
// Run with: go test -tags=openmeteo ./internal/adapter/openmeteo/ -v -count=1

func smokeClient() *Client {
	return NewClient(Options{Timeout: 15 * time.Second, Retries: 2}, observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_FetchAlexandria(t *testing.T) {
	c := smokeClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := c.Fetch(ctx, domain.Coordinate{Lat: 38.8048, Lon: -77.0469}, domain.DefaultVariables, domain.DefaultWindow)
	require.NoError(t, err)

	ts, err := domain.NormalizeSeries(raw, domain.DefaultVariables)
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", ts.Timezone)
	assert.Equal(t, 15*time.Minute, ts.Interval)
	assert.GreaterOrEqual(t, ts.Len(), domain.DefaultWindow.PastSteps+domain.DefaultWindow.ForecastSteps)
	for _, key := range domain.DefaultVariables.Keys() {
		assert.Len(t, ts.Series[key], ts.Len(), key)
	}
	if peak, ok := ts.Series[domain.KeyDirectRadiation].Max(); ok {
		assert.LessOrEqual(t, peak, 100.0)
	}
}
