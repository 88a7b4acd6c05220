package usecase

import (
	"time"

	"github.com/rs/zerolog/log"

	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/domain"
)

// --- Regional defaults (nearest catalog city) ---

// RegionDefaults are the method and time zone a request falls back to.
type RegionDefaults struct {
	City       *domain.City
	DistanceKm float64
	Method     domain.Method
	Location   *time.Location
}

// RegionResolver picks defaults from the nearest catalog city within a
// radius, or the configured defaults otherwise.
type RegionResolver struct {
	catalog       store.CityCatalog
	radiusKm      float64
	defaultMethod domain.Method
	defaultLoc    *time.Location
}

// NewRegionResolver creates a resolver. A nil catalog always yields the
// configured defaults.
func NewRegionResolver(catalog store.CityCatalog, radiusKm float64, method domain.Method, loc *time.Location) *RegionResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &RegionResolver{catalog: catalog, radiusKm: radiusKm, defaultMethod: method, defaultLoc: loc}
}

// For returns the defaults at c.
func (r *RegionResolver) For(c domain.GeoCoordinate) RegionDefaults {
	out := RegionDefaults{Method: r.defaultMethod, Location: r.defaultLoc}
	if r.catalog == nil {
		return out
	}
	city, dist, ok := r.catalog.Nearest(c)
	if !ok || dist > r.radiusKm {
		return out
	}
	return r.fromCity(city, dist)
}

// ForCity returns the defaults of a catalog city.
func (r *RegionResolver) ForCity(city domain.City) RegionDefaults {
	return r.fromCity(city, 0)
}

func (r *RegionResolver) fromCity(city domain.City, dist float64) RegionDefaults {
	out := RegionDefaults{City: &city, DistanceKm: dist, Method: r.defaultMethod, Location: r.defaultLoc}
	if city.Method != "" {
		out.Method = city.Method
	}
	if loc, err := city.Location(); err == nil {
		out.Location = loc
	} else {
		log.Warn().Err(err).Str("city", city.ID).Msg("city time zone unavailable, using default")
	}
	return out
}
