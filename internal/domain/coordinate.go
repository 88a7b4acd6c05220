package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned for latitude/longitude values out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// GeoCoordinate is a WGS 84 position in degrees.
type GeoCoordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// NewGeoCoordinate validates lat/lon and returns the coordinate.
func NewGeoCoordinate(lat, lon float64) (GeoCoordinate, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return GeoCoordinate{}, fmt.Errorf("%w: latitude must be between -90 and 90, got %v", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return GeoCoordinate{}, fmt.Errorf("%w: longitude must be between -180 and 180, got %v", ErrInvalidCoordinate, lon)
	}
	return GeoCoordinate{Latitude: lat, Longitude: lon}, nil
}

// MustGeoCoordinate is like NewGeoCoordinate but panics on invalid input.
// Intended for package-level constants.
func MustGeoCoordinate(lat, lon float64) GeoCoordinate {
	c, err := NewGeoCoordinate(lat, lon)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate re-checks a coordinate built as a struct literal.
func (c GeoCoordinate) Validate() error {
	_, err := NewGeoCoordinate(c.Latitude, c.Longitude)
	return err
}

// String implements fmt.Stringer.
func (c GeoCoordinate) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", c.Latitude, c.Longitude)
}

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance to other in kilometers.
func (c GeoCoordinate) DistanceKm(other GeoCoordinate) float64 {
	dLat := Deg2Rad(other.Latitude - c.Latitude)
	dLon := Deg2Rad(other.Longitude - c.Longitude)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(Deg2Rad(c.Latitude))*math.Cos(Deg2Rad(other.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
