package domain

import "time"

// City is a named place with its regional calculation defaults.
type City struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Country    string        `json:"country"`
	Coordinate GeoCoordinate `json:"coordinate"`
	Timezone   string        `json:"timezone"`
	Method     Method        `json:"method,omitempty"`
}

// Location loads the city's IANA time zone.
func (c City) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
