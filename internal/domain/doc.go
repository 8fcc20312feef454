// Package domain models short-horizon heat forecasts for US locations.
//
// # Location Resolution
//
// Queries come in two shapes: a place name with a state ([ByPlace]) or a
// 5-digit ZIP code ([ByPostalCode]). Both resolve against a [Directory] built
// from the GeoNames US postal dump:
//
//	ByPlace{Name: "vienna", Region: "VA"}        → state code match
//	ByPlace{Name: "Vienna", Region: "Virginia"}  → state name match
//	ByPostalCode{Code: "22314"}                  → exact postal code
//
// Place names are trimmed and title-cased before lookup. The directory matches
// names by substring first and falls back to fuzzy similarity (0-100, default
// 70). GeoNames leaves some coordinates empty; those load as NaN and such rows
// never resolve.
//
// # Forecast Data
//
// Forecasts come from the Open-Meteo minutely_15 block. The request is fixed
// policy: GFS seamless model, America/New_York time axis, 4 steps back and 48
// ahead at 15 minutes, imperial units (°F, mph, inches).
//
// Variables are requested in [DefaultVariables] order and the provider answers
// positionally, so a [Variable] carries both its ordinal and its series key:
//
//	0 temperature_2m        °F
//	1 relative_humidity_2m  %
//	2 rain                  in
//	3 wind_speed_10m        mph
//	4 direct_radiation      scaled 0-100
//
// Direct radiation arrives with an ambiguous magnitude. [NormalizeSeries]
// divides it by 10 until the peak is at most 100 and records the divisor in
// [TimeSeries.Scales].
//
// Time axis: start and end are Unix seconds plus the response UTC offset,
// giving local wall-clock instants labeled UTC. The axis is half-open,
// [start, end), at the response interval.
//
// # Heat Index
//
// [LookupHeatIndex] snaps temperature and humidity to the NWS heat-index table
// (80-110°F in 2°F steps, 40-100% RH in 5% steps). Rows shorten as humidity
// rises; inputs past a row return 150. Danger brackets:
//
//	<80 normal | <90 caution | <103 extreme caution | <125 danger | ≥125 extreme danger
//
// # Failures
//
// Every error wraps one of [ErrInvalidInput], [ErrLocationNotFound] or
// [ErrProvider]; [KindOf] recovers the tag.
package domain
