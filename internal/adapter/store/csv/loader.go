// Package csv provides a CSV-backed city catalog.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/domain"
)

var expectedHeaders = []string{"id", "name", "country", "lat", "lon", "timezone", "method"}

// CityStore is an in-memory catalog read once from a CSV file.
type CityStore struct {
	cities []domain.City
	byID   map[string]int
}

// NewCityStore loads the catalog at path.
func NewCityStore(path string) (*CityStore, error) {
	//nolint:gosec // G304: Path comes from configuration.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open city catalog %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return ReadCities(file)
}

// ReadCities parses a catalog from r.
func ReadCities(r io.Reader) (*CityStore, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Validate header.
	if len(header) != len(expectedHeaders) {
		return nil, fmt.Errorf("invalid CSV header: expected %v, got %v", expectedHeaders, header)
	}
	for i, h := range header {
		if strings.TrimSpace(h) != expectedHeaders[i] {
			return nil, fmt.Errorf("invalid CSV header: expected column %d to be %s, got %s", i, expectedHeaders[i], h)
		}
	}

	s := &CityStore{byID: make(map[string]int)}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		city, err := parseCity(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		key := strings.ToLower(city.ID)
		if _, dup := s.byID[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate city id %q", line, city.ID)
		}
		s.byID[key] = len(s.cities)
		s.cities = append(s.cities, city)
	}

	if len(s.cities) == 0 {
		return nil, fmt.Errorf("no cities found in catalog")
	}
	return s, nil
}

func parseCity(record []string) (domain.City, error) {
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	id, name, country := record[0], record[1], record[2]
	if id == "" || name == "" {
		return domain.City{}, fmt.Errorf("id and name are required")
	}

	lat, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return domain.City{}, fmt.Errorf("invalid latitude for %s: %w", id, err)
	}
	lon, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return domain.City{}, fmt.Errorf("invalid longitude for %s: %w", id, err)
	}
	coord, err := domain.NewGeoCoordinate(lat, lon)
	if err != nil {
		return domain.City{}, fmt.Errorf("%s: %w", id, err)
	}

	if _, err := time.LoadLocation(record[5]); err != nil || record[5] == "" {
		return domain.City{}, fmt.Errorf("invalid timezone for %s: %q", id, record[5])
	}

	var method domain.Method
	if record[6] != "" {
		if method, err = domain.ParseMethod(record[6]); err != nil {
			return domain.City{}, fmt.Errorf("%s: %w", id, err)
		}
	}

	return domain.City{
		ID:         id,
		Name:       name,
		Country:    country,
		Coordinate: coord,
		Timezone:   record[5],
		Method:     method,
	}, nil
}

// Get returns a city by case-insensitive ID.
func (s *CityStore) Get(id string) (domain.City, error) {
	i, ok := s.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return domain.City{}, fmt.Errorf("%w: %q", store.ErrCityNotFound, id)
	}
	return s.cities[i], nil
}

// Search returns cities matching query, sorted by name. An empty query
// returns every city.
func (s *CityStore) Search(query string) []domain.City {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.City, 0)
	for _, c := range s.cities {
		if q == "" ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.ID), q) ||
			strings.Contains(strings.ToLower(c.Country), q) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Nearest returns the closest city to c by great-circle distance.
func (s *CityStore) Nearest(c domain.GeoCoordinate) (domain.City, float64, bool) {
	bestDist := math.MaxFloat64
	best := -1
	for i, city := range s.cities {
		d := c.DistanceKm(city.Coordinate)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return domain.City{}, 0, false
	}
	return s.cities[best], bestDist, true
}

// Len returns the number of cities.
func (s *CityStore) Len() int { return len(s.cities) }

var _ store.CityCatalog = (*CityStore)(nil)
