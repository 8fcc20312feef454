package openmeteo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/heat-forecast/internal/domain"
)

// Open-Meteo response types. The API answers with an object for a single
// location and an array when several were requested.

type response struct {
	Latitude         float64                    `json:"latitude"`
	Longitude        float64                    `json:"longitude"`
	UTCOffsetSeconds int64                      `json:"utc_offset_seconds"`
	Timezone         string                     `json:"timezone"`
	Minutely15       map[string]json.RawMessage `json:"minutely_15"`
}

type apiError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

const timeKey = "time"

func apiErrorReason(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Reason != "" {
		return e.Reason
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// decodeForecast turns a response body into a RawForecast. Only the first
// location is used. The time axis must be evenly spaced. A variable absent
// from the block is an error; null samples become NaN.
func decodeForecast(body []byte, spec domain.VariableSpec, window domain.Window) (domain.RawForecast, error) {
	resp, err := firstResult(body)
	if err != nil {
		return domain.RawForecast{}, err
	}
	if resp.Minutely15 == nil {
		return domain.RawForecast{}, errors.New("response has no minutely_15 block")
	}

	times, err := decodeTimes(resp.Minutely15[timeKey])
	if err != nil {
		return domain.RawForecast{}, err
	}

	interval := int64(window.Interval.Seconds())
	if len(times) >= 2 {
		interval = times[1] - times[0]
	}

	raw := domain.RawForecast{
		Latitude:         resp.Latitude,
		Longitude:        resp.Longitude,
		Timezone:         resp.Timezone,
		UTCOffsetSeconds: resp.UTCOffsetSeconds,
		IntervalSeconds:  interval,
		Values:           make([][]float64, len(spec)),
	}
	if len(times) > 0 {
		raw.StartTime = times[0]
		raw.EndTime = times[len(times)-1] + interval
	}

	for _, v := range spec {
		data, ok := resp.Minutely15[v.Key]
		if !ok {
			return domain.RawForecast{}, fmt.Errorf("variable %q missing from response", v.Key)
		}
		values, err := decodeValues(data)
		if err != nil {
			return domain.RawForecast{}, fmt.Errorf("variable %q: %w", v.Key, err)
		}
		raw.Values[v.Ordinal] = values
	}
	return raw, nil
}

func firstResult(body []byte) (response, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var many []response
		if err := json.Unmarshal(body, &many); err != nil {
			return response{}, fmt.Errorf("decode response list: %w", err)
		}
		if len(many) == 0 {
			return response{}, errors.New("response list is empty")
		}
		return many[0], nil
	}

	var one response
	if err := json.Unmarshal(body, &one); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return one, nil
}

func decodeTimes(data json.RawMessage) ([]int64, error) {
	if data == nil {
		return nil, errors.New("response has no time axis")
	}
	var times []int64
	if err := json.Unmarshal(data, &times); err != nil {
		return nil, fmt.Errorf("decode time axis: %w", err)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("time axis not increasing at index %d", i)
		}
		if step := times[i] - times[i-1]; i > 1 && step != times[1]-times[0] {
			return nil, fmt.Errorf("time axis uneven at index %d: step %ds, want %ds", i, step, times[1]-times[0])
		}
	}
	return times, nil
}

func decodeValues(data json.RawMessage) ([]float64, error) {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	values := make([]float64, len(raw))
	for i, v := range raw {
		if v == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = *v
	}
	return values, nil
}
