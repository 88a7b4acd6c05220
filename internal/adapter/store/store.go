package store

import (
	"errors"

	"go.ngs.io/prayer-api/internal/domain"
)

// ErrCityNotFound is returned when no city matches an ID.
var ErrCityNotFound = errors.New("city not found")

// CityCatalog is the interface for looking up named places
type CityCatalog interface {
	// Get returns the city with the given ID (e.g., "jakarta")
	Get(id string) (domain.City, error)

	// Search returns cities whose name, ID or country contains query
	Search(query string) []domain.City

	// Nearest returns the closest city to c and its distance in kilometers
	Nearest(c domain.GeoCoordinate) (domain.City, float64, bool)
}
