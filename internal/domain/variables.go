package domain

import (
	"errors"
	"fmt"
)

// Canonical series keys. They double as the provider's variable names.
const (
	KeyTemperature     = "temperature_2m"
	KeyHumidity        = "relative_humidity_2m"
	KeyRain            = "rain"
	KeyWindSpeed       = "wind_speed_10m"
	KeyDirectRadiation = "direct_radiation"

	// KeyDate labels the time axis in serialized output.
	KeyDate = "date"
)

// Variable binds a provider response position to a series key.
type Variable struct {
	Ordinal int
	Key     string
}

// VariableSpec is the ordered request list. The provider answers in request
// order, so Ordinal doubles as the response index.
type VariableSpec []Variable

// DefaultVariables is the process-wide variable list.
var DefaultVariables = VariableSpec{
	{Ordinal: 0, Key: KeyTemperature},
	{Ordinal: 1, Key: KeyHumidity},
	{Ordinal: 2, Key: KeyRain},
	{Ordinal: 3, Key: KeyWindSpeed},
	{Ordinal: 4, Key: KeyDirectRadiation},
}

// Keys returns the series keys in ordinal order.
func (s VariableSpec) Keys() []string {
	keys := make([]string, len(s))
	for i, v := range s {
		keys[i] = v.Key
	}
	return keys
}

// Validate checks that ordinals are 0..n-1 in order and keys are unique.
func (s VariableSpec) Validate() error {
	if len(s) == 0 {
		return errors.New("variable spec is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for i, v := range s {
		if v.Ordinal != i {
			return fmt.Errorf("variable %q has ordinal %d, want %d", v.Key, v.Ordinal, i)
		}
		if v.Key == "" {
			return fmt.Errorf("variable at ordinal %d has no key", i)
		}
		if _, dup := seen[v.Key]; dup {
			return fmt.Errorf("duplicate variable key %q", v.Key)
		}
		seen[v.Key] = struct{}{}
	}
	return nil
}
