package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// HeatDangerLevel orders heat-index danger brackets from Normal to ExtremeDanger.
type HeatDangerLevel int

const (
	Normal HeatDangerLevel = iota
	Caution
	ExtremeCaution
	Danger
	ExtremeDanger
)

var heatDangerNames = [...]string{"normal", "caution", "extreme_caution", "danger", "extreme_danger"}

func (l HeatDangerLevel) String() string {
	if l < Normal || l > ExtremeDanger {
		return fmt.Sprintf("HeatDangerLevel(%d)", int(l))
	}
	return heatDangerNames[l]
}

func (l HeatDangerLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *HeatDangerLevel) UnmarshalText(text []byte) error {
	for i, name := range heatDangerNames {
		if name == string(text) {
			*l = HeatDangerLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown heat danger level %q", text)
}

// Danger thresholds in °F. Each bound belongs to the higher bracket.
const (
	heatCautionF        = 80
	heatExtremeCautionF = 90
	heatDangerF         = 103
	heatExtremeDangerF  = 125
)

// Heat-index grid geometry. Columns step 2°F from 80°F, rows step 5% RH from 40%.
const (
	heatGridBaseTempF    = 80.0
	heatGridTempStepF    = 2.0
	heatGridBaseHumidity = 40.0
	heatGridHumidityStep = 5.0
	heatGridRows         = 13
	heatGridCols         = 16

	// HeatIndexAboveTable is returned for inputs past the tabulated range.
	HeatIndexAboveTable = 150.0
)

// heatGrid holds NWS heat-index values. Rows get shorter as humidity rises;
// heatGridRowLen is the number of valid columns per row and cells past it are
// zero.
var heatGrid = [heatGridRows][heatGridCols]float64{
	{80, 81, 83, 85, 88, 91, 94, 97, 101, 105, 109, 114, 119, 124, 130, 136}, // 40%
	{80, 82, 84, 87, 89, 93, 96, 100, 104, 109, 114, 119, 124, 130, 137},     // 45%
	{81, 83, 85, 88, 91, 95, 99, 103, 108, 113, 118, 124, 131, 137},          // 50%
	{81, 84, 86, 89, 93, 97, 101, 106, 112, 117, 124, 130, 137},              // 55%
	{82, 84, 88, 91, 95, 100, 105, 110, 116, 123, 129, 137},                  // 60%
	{82, 85, 89, 93, 98, 103, 108, 114, 121, 128, 136},                       // 65%
	{83, 86, 90, 95, 100, 105, 112, 119, 126, 134},                           // 70%
	{84, 88, 92, 97, 103, 109, 116, 124, 132},                                // 75%
	{84, 89, 94, 100, 106, 113, 121, 129},                                    // 80%
	{85, 90, 96, 102, 110, 117, 126, 135},                                    // 85%
	{86, 91, 98, 105, 113, 122, 131},                                         // 90%
	{86, 93, 100, 108, 117, 127},                                             // 95%
	{87, 95, 103, 112, 121, 132},                                             // 100%
}

var heatGridRowLen = [heatGridRows]int{16, 15, 14, 13, 12, 11, 10, 9, 8, 8, 7, 6, 6}

// LookupHeatIndex approximates the apparent temperature in °F by snapping
// (tempF, humidityPct) to the nearest grid cell. Below 80°F or 40% RH the
// temperature is returned unchanged; past the tabulated range the result is
// HeatIndexAboveTable. Ties snap to the even index.
func LookupHeatIndex(tempF, humidityPct float64) float64 {
	if math.IsNaN(tempF) || math.IsNaN(humidityPct) {
		return tempF
	}
	if tempF < heatGridBaseTempF || humidityPct < heatGridBaseHumidity {
		return tempF
	}

	col := math.RoundToEven((tempF - heatGridBaseTempF) / heatGridTempStepF)
	row := math.RoundToEven((humidityPct - heatGridBaseHumidity) / heatGridHumidityStep)

	if row >= heatGridRows || col >= float64(heatGridRowLen[int(row)]) {
		return HeatIndexAboveTable
	}
	return heatGrid[int(row)][int(col)]
}

// ClassifyHeatIndex maps a heat index in °F to its danger bracket. A missing
// (NaN) value is Normal.
func ClassifyHeatIndex(heatIndexF float64) HeatDangerLevel {
	switch {
	case math.IsNaN(heatIndexF), heatIndexF < heatCautionF:
		return Normal
	case heatIndexF < heatExtremeCautionF:
		return Caution
	case heatIndexF < heatDangerF:
		return ExtremeCaution
	case heatIndexF < heatExtremeDangerF:
		return Danger
	default:
		return ExtremeDanger
	}
}

// HeatSample is one enriched forecast sample.
type HeatSample struct {
	Time         time.Time       `json:"time"`
	TemperatureF float64         `json:"temperature_f"`
	HumidityPct  float64         `json:"humidity_pct"`
	HeatIndexF   float64         `json:"heat_index_f"`
	Level        HeatDangerLevel `json:"level"`
}

func (s HeatSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time         time.Time       `json:"time"`
		TemperatureF *float64        `json:"temperature_f"`
		HumidityPct  *float64        `json:"humidity_pct"`
		HeatIndexF   *float64        `json:"heat_index_f"`
		Level        HeatDangerLevel `json:"level"`
	}{s.Time, finiteOrNil(s.TemperatureF), finiteOrNil(s.HumidityPct), finiteOrNil(s.HeatIndexF), s.Level})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// EnrichHeatIndex computes a heat sample for every timestamp of ts.
func EnrichHeatIndex(ts TimeSeries) ([]HeatSample, error) {
	temps, ok := ts.Series[KeyTemperature]
	if !ok {
		return nil, invalidInputf("series has no %s", KeyTemperature)
	}
	humidity, ok := ts.Series[KeyHumidity]
	if !ok {
		return nil, invalidInputf("series has no %s", KeyHumidity)
	}
	if len(temps) != ts.Len() || len(humidity) != ts.Len() {
		return nil, invalidInputf("series lengths do not match time axis")
	}

	samples := make([]HeatSample, ts.Len())
	for i, at := range ts.Timestamps {
		hi := LookupHeatIndex(temps[i], humidity[i])
		samples[i] = HeatSample{
			Time:         at,
			TemperatureF: temps[i],
			HumidityPct:  humidity[i],
			HeatIndexF:   hi,
			Level:        ClassifyHeatIndex(hi),
		}
	}
	return samples, nil
}

// PeakHeat returns the sample with the highest finite heat index.
func PeakHeat(samples []HeatSample) (HeatSample, bool) {
	var peak HeatSample
	found := false
	for _, s := range samples {
		if math.IsNaN(s.HeatIndexF) {
			continue
		}
		if !found || s.HeatIndexF > peak.HeatIndexF {
			peak = s
			found = true
		}
	}
	return peak, found
}
