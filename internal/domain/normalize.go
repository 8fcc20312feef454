package domain

import (
	"math"
	"time"
)

// rescaledKeys lists variables whose provider magnitude is ambiguous. They are
// divided by 10 until the peak is at most rescaleCeiling.
var rescaledKeys = map[string]bool{
	KeyDirectRadiation: true,
}

const rescaleCeiling = 100.0

// NormalizeSeries reshapes a provider block into a TimeSeries. Timestamps span
// [start+offset, end+offset) at the response interval; every variable array
// must have exactly that many samples. The input is never modified.
func NormalizeSeries(raw RawForecast, spec VariableSpec) (TimeSeries, error) {
	if raw.IntervalSeconds <= 0 {
		return TimeSeries{}, providerErrorf("non-positive sampling interval %d", raw.IntervalSeconds)
	}
	if raw.EndTime < raw.StartTime {
		return TimeSeries{}, providerErrorf("end time %d before start time %d", raw.EndTime, raw.StartTime)
	}

	n, ok := sampleCount(raw.StartTime, raw.EndTime, raw.IntervalSeconds)
	if !ok {
		return TimeSeries{}, providerErrorf("time span %d..%d at %ds is too long", raw.StartTime, raw.EndTime, raw.IntervalSeconds)
	}

	// Array lengths are checked against the expected count before the axis
	// is allocated.
	for _, v := range spec {
		values, ok := raw.Variable(v.Ordinal)
		if !ok {
			return TimeSeries{}, providerErrorf("variable %q missing at ordinal %d", v.Key, v.Ordinal)
		}
		if int64(len(values)) != n {
			return TimeSeries{}, providerErrorf("variable %q has %d samples, time axis has %d",
				v.Key, len(values), n)
		}
	}

	ts := TimeSeries{
		Timestamps:  timeAxis(raw.StartTime+raw.UTCOffsetSeconds, int(n), raw.IntervalSeconds),
		Interval:    time.Duration(raw.IntervalSeconds) * time.Second,
		Series:      make(map[string]Samples, len(spec)),
		Coordinate:  Coordinate{Lat: raw.Latitude, Lon: raw.Longitude},
		Timezone:    raw.Timezone,
		GeneratedAt: clock.Now().UTC(),
	}

	for _, v := range spec {
		values, _ := raw.Variable(v.Ordinal)
		series := make(Samples, len(values))
		copy(series, values)

		if rescaledKeys[v.Key] {
			divisor := rescale(series)
			if ts.Scales == nil {
				ts.Scales = make(map[string]float64)
			}
			ts.Scales[v.Key] = divisor
		}
		ts.Series[v.Key] = series
	}

	return ts, nil
}

// sampleCount returns how many steps fit in [start, end), counting a partial
// final step. It reports false when the span overflows int64 or the count
// would not fit in an int. Callers guarantee end >= start and step > 0.
func sampleCount(start, end, step int64) (int64, bool) {
	span := end - start
	if span < 0 {
		return 0, false
	}
	n := span / step
	if span%step != 0 {
		n++
	}
	if n > math.MaxInt32 {
		return 0, false
	}
	return n, true
}

// timeAxis builds n UTC timestamps from Unix seconds, step apart.
func timeAxis(start int64, n int, step int64) []time.Time {
	axis := make([]time.Time, n)
	for i := range axis {
		axis[i] = time.Unix(start+int64(i)*step, 0).UTC()
	}
	return axis
}

// rescale divides values in place by 10 until the finite peak is at most
// rescaleCeiling and returns the total divisor applied (1 when untouched).
func rescale(values Samples) float64 {
	divisor := 1.0
	peak, ok := values.Max()
	if !ok {
		return divisor
	}
	for peak > rescaleCeiling {
		for i := range values {
			values[i] /= 10
		}
		peak /= 10
		divisor *= 10
	}
	return divisor
}
