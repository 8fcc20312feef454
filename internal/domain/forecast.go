package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Window bounds a forecast request in sampling steps around "now".
type Window struct {
	PastSteps     int
	ForecastSteps int
	Interval      time.Duration
}

// DefaultWindow is one hour back and twelve hours ahead at 15-minute steps.
var DefaultWindow = Window{
	PastSteps:     4,
	ForecastSteps: 48,
	Interval:      15 * time.Minute,
}

// RawForecast is the provider's sub-hourly block for one location. Times are
// Unix seconds in UTC; UTCOffsetSeconds shifts them to the target timezone.
// Values is indexed by variable ordinal. Callers must not mutate it.
type RawForecast struct {
	Latitude         float64
	Longitude        float64
	Timezone         string
	UTCOffsetSeconds int64
	StartTime        int64
	EndTime          int64
	IntervalSeconds  int64
	Values           [][]float64
}

// Variable returns the array at ordinal, or false when the provider left it out.
func (r RawForecast) Variable(ordinal int) ([]float64, bool) {
	if ordinal < 0 || ordinal >= len(r.Values) || r.Values[ordinal] == nil {
		return nil, false
	}
	return r.Values[ordinal], true
}

// Forecaster fetches a forecast window for a coordinate.
type Forecaster interface {
	Fetch(ctx context.Context, coord Coordinate, spec VariableSpec, window Window) (RawForecast, error)
}

// TimeSeries is an aligned, labeled forecast. Every key of the requesting
// VariableSpec is present and each array has len(Timestamps) samples.
type TimeSeries struct {
	Timestamps  []time.Time        `json:"timestamps"`
	Interval    time.Duration      `json:"interval"`
	Series      map[string]Samples `json:"series"`
	Scales      map[string]float64 `json:"scales,omitempty"`
	Coordinate  Coordinate         `json:"coordinate"`
	Timezone    string             `json:"timezone,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Samples is one variable's values. Missing values are NaN in memory and
// null on the wire.
type Samples []float64

func (s Samples) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (s *Samples) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Samples, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*s = out
	return nil
}

// Max returns the largest finite value, or false if there is none.
func (s Samples) Max() (float64, bool) {
	maxVal, found := math.Inf(-1), false
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v > maxVal {
			maxVal = v
		}
		found = true
	}
	return maxVal, found
}

// Len returns the number of samples.
func (ts TimeSeries) Len() int { return len(ts.Timestamps) }

// ForecastReport is a normalized forecast plus heat enrichment, ready to publish.
type ForecastReport struct {
	RunID       string       `json:"run_id"`
	Label       string       `json:"label"`
	Coordinate  Coordinate   `json:"coordinate"`
	Series      TimeSeries   `json:"series"`
	HeatIndex   []HeatSample `json:"heat_index,omitempty"`
	PeakLevel   string       `json:"peak_level,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Outcome is either a populated series or a tagged failure.
type Outcome struct {
	Series  *TimeSeries
	Kind    FailureKind
	Message string
	Err     error
}

// OK reports whether the outcome carries a series.
func (o Outcome) OK() bool { return o.Kind == KindNone && o.Series != nil }

// OutcomeOf builds an Outcome from a pipeline result.
func OutcomeOf(ts TimeSeries, err error) Outcome {
	if err != nil {
		return Outcome{Kind: KindOf(err), Message: err.Error(), Err: err}
	}
	return Outcome{Series: &ts}
}
