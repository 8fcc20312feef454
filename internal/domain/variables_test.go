package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVariables(t *testing.T) {
	require.NoError(t, DefaultVariables.Validate())
	assert.Equal(t, []string{
		"temperature_2m",
		"relative_humidity_2m",
		"rain",
		"wind_speed_10m",
		"direct_radiation",
	}, DefaultVariables.Keys())
}

func TestVariableSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    VariableSpec
		wantErr string
	}{
		{"empty", VariableSpec{}, "empty"},
		{"gap in ordinals", VariableSpec{{0, "a"}, {2, "b"}}, "ordinal 2"},
		{"blank key", VariableSpec{{0, ""}}, "no key"},
		{"duplicate key", VariableSpec{{0, "a"}, {1, "a"}}, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCoordinate(t *testing.T) {
	c, err := NewCoordinate(38.8048, -77.0469)
	require.NoError(t, err)
	assert.Equal(t, "38.8048,-77.0469", c.String())

	for _, bad := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -180.5}} {
		_, err := NewCoordinate(bad[0], bad[1])
		assert.Error(t, err, "%v", bad)
	}
}

func TestLocationQuery_Label(t *testing.T) {
	assert.Equal(t, "Vienna, VA", ByPlace{Name: "Vienna", Region: "VA"}.Label())
	assert.Equal(t, "22314", ByPostalCode{Code: "22314"}.Label())
}
