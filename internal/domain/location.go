package domain

import (
	"fmt"
	"math"
)

// Coordinate is a WGS-84 latitude/longitude pair produced by the resolver.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewCoordinate validates lat/lon ranges. NaN and infinities are rejected.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return Coordinate{}, fmt.Errorf("coordinate is not finite: %v,%v", lat, lon)
	}
	if lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("latitude out of range: %v", lat)
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("longitude out of range: %v", lon)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// LocationQuery is either ByPlace or ByPostalCode.
type LocationQuery interface {
	// Label is a short human-readable description used for logs and report keys.
	Label() string
	isLocationQuery()
}

// ByPlace looks a location up by place name and state (code or full name).
type ByPlace struct {
	Name   string
	Region string
}

func (q ByPlace) Label() string { return q.Name + ", " + q.Region }

func (ByPlace) isLocationQuery() {}

// ByPostalCode looks a location up by 5-digit US ZIP code.
type ByPostalCode struct {
	Code string
}

func (q ByPostalCode) Label() string { return q.Code }

func (ByPostalCode) isLocationQuery() {}

// PlaceRecord is one row of the place/postal directory. Missing coordinates
// are NaN.
type PlaceRecord struct {
	PostalCode string
	PlaceName  string
	StateName  string
	StateCode  string
	County     string
	Lat        float64
	Lon        float64
}
