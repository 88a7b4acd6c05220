package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.ngs.io/prayer-api/internal/adapter/cache"
	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/domain"
)

// ErrInvalidRequest is returned for malformed request parameters.
var ErrInvalidRequest = errors.New("invalid request")

// ScheduleRequest encapsulates a prayer schedule request
type ScheduleRequest struct {
	// Location parameters (mutually exclusive with CityID)
	Lat *float64
	Lon *float64

	// City ID (mutually exclusive with Lat/Lon)
	CityID *string

	// Calendar date as YYYY-MM-DD in the resolved time zone; empty means today
	Date string

	// Optional parameters; empty values fall back to regional defaults
	Timezone         string
	Method           string
	Asr              string // "standard" or "hanafi"
	HighLatitudeRule string
	Adjustments      domain.TimeAdjustments
}

// Validate checks if the request is valid
func (r *ScheduleRequest) Validate() error {
	hasLatLon := r.Lat != nil && r.Lon != nil
	hasCity := r.CityID != nil && *r.CityID != ""

	if !hasLatLon && !hasCity {
		return fmt.Errorf("either lat/lon or city must be provided")
	}
	if hasLatLon && hasCity {
		return fmt.Errorf("lat/lon and city are mutually exclusive")
	}
	if (r.Lat == nil) != (r.Lon == nil) {
		return fmt.Errorf("lat and lon must be provided together")
	}

	if hasLatLon {
		if _, err := domain.NewGeoCoordinate(*r.Lat, *r.Lon); err != nil {
			return err
		}
	}

	for _, p := range domain.Prayers {
		if m := r.Adjustments.Minutes(p); m < -domain.MaxAdjustmentMinutes || m > domain.MaxAdjustmentMinutes {
			return fmt.Errorf("adjustment for %s must be between -%d and %d minutes, got %d",
				p, domain.MaxAdjustmentMinutes, domain.MaxAdjustmentMinutes, m)
		}
	}

	if r.Date != "" {
		if _, err := time.Parse(dateLayout, r.Date); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD, got %q", r.Date)
		}
	}
	return nil
}

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Resolved is a request with every default applied.
type Resolved struct {
	Coordinate  domain.GeoCoordinate
	City        *domain.City
	Location    *time.Location
	Profile     domain.CalculationProfile
	Adjustments domain.TimeAdjustments
}

// LocationInfo describes where a schedule applies.
type LocationInfo struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	City     string  `json:"city,omitempty"`
	CityID   string  `json:"city_id,omitempty"`
	Country  string  `json:"country,omitempty"`
	Timezone string  `json:"timezone"`
}

// PrayerTime is one row of a schedule
type PrayerTime struct {
	Prayer domain.Prayer `json:"prayer"`
	Name   string        `json:"name"`
	Time   string        `json:"time"`
	Local  string        `json:"local"`
}

// HijriInfo is a Hijri date in a response.
type HijriInfo struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Day       int    `json:"day"`
	MonthName string `json:"month_name"`
	Formatted string `json:"formatted"`
	Ramadan   bool   `json:"ramadan"`
}

// DaySchedule is one day in a response.
type DaySchedule struct {
	Date  string       `json:"date"`
	Hijri HijriInfo    `json:"hijri"`
	Times []PrayerTime `json:"times"`
}

// ScheduleResponse contains a single day's prayer times
type ScheduleResponse struct {
	Location    LocationInfo           `json:"location"`
	Method      domain.Method          `json:"method"`
	Asr         string                 `json:"asr"`
	HighLatRule string                 `json:"high_latitude_rule,omitempty"`
	Adjustments domain.TimeAdjustments `json:"adjustments"`
	QiblaDeg    float64                `json:"qibla_deg"`
	Cached      bool                   `json:"cached"`
	DaySchedule
	Meta map[string]string `json:"meta"`
}

// MonthResponse contains every day of one month
type MonthResponse struct {
	Location LocationInfo      `json:"location"`
	Method   domain.Method     `json:"method"`
	Asr      string            `json:"asr"`
	Month    string            `json:"month"`
	Days     []DaySchedule     `json:"days"`
	Meta     map[string]string `json:"meta"`
}

// ScheduleUseCase orchestrates schedule computation
type ScheduleUseCase struct {
	catalog  store.CityCatalog
	profiles *ProfileRegistry
	region   *RegionResolver
	cache    cache.ScheduleCache
	now      func() time.Time
}

// NewScheduleUseCase creates a new schedule use case. catalog and sc may be nil.
func NewScheduleUseCase(catalog store.CityCatalog, profiles *ProfileRegistry, region *RegionResolver, sc cache.ScheduleCache) *ScheduleUseCase {
	if profiles == nil {
		profiles = NewProfileRegistry(nil)
	}
	if region == nil {
		region = NewRegionResolver(catalog, 0, domain.MethodMuslimWorldLeague, time.UTC)
	}
	return &ScheduleUseCase{
		catalog:  catalog,
		profiles: profiles,
		region:   region,
		cache:    sc,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (uc *ScheduleUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// Now returns the current wall-clock time.
func (uc *ScheduleUseCase) Now() time.Time {
	return uc.now()
}

// Resolve applies regional defaults, the method, Asr school and
// high-latitude overrides to req.
func (uc *ScheduleUseCase) Resolve(req ScheduleRequest) (*Resolved, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	var (
		coord    domain.GeoCoordinate
		defaults RegionDefaults
	)
	if req.CityID != nil && *req.CityID != "" {
		if uc.catalog == nil {
			return nil, fmt.Errorf("%w: %q", store.ErrCityNotFound, *req.CityID)
		}
		city, err := uc.catalog.Get(*req.CityID)
		if err != nil {
			return nil, err
		}
		coord = city.Coordinate
		defaults = uc.region.ForCity(city)
	} else {
		coord = domain.GeoCoordinate{Latitude: *req.Lat, Longitude: *req.Lon}
		defaults = uc.region.For(coord)
	}

	loc := defaults.Location
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown time zone %q", ErrInvalidRequest, req.Timezone)
		}
		loc = l
	}

	method := string(defaults.Method)
	if req.Method != "" {
		method = req.Method
	}
	profile, err := uc.profiles.Lookup(method)
	if err != nil {
		return nil, err
	}
	if req.Asr != "" {
		factor, err := domain.ParseAsrFactor(req.Asr)
		if err != nil {
			return nil, err
		}
		profile = profile.WithAsrFactor(factor)
	}
	if req.HighLatitudeRule != "" {
		rule, err := domain.ParseHighLatitudeRule(req.HighLatitudeRule)
		if err != nil {
			return nil, err
		}
		profile = profile.WithHighLatitudeRule(rule)
	}

	return &Resolved{
		Coordinate:  coord,
		City:        defaults.City,
		Location:    loc,
		Profile:     profile,
		Adjustments: req.Adjustments,
	}, nil
}

// Execute computes one day's schedule
func (uc *ScheduleUseCase) Execute(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error) {
	r, err := uc.Resolve(req)
	if err != nil {
		return nil, err
	}
	date, err := r.date(req.Date, uc.now())
	if err != nil {
		return nil, err
	}

	s, cached, err := uc.Schedule(ctx, r, date)
	if err != nil {
		return nil, err
	}

	return &ScheduleResponse{
		Location:    r.locationInfo(),
		Method:      r.Profile.Method,
		Asr:         r.Profile.AsrFactor.String(),
		HighLatRule: string(r.Profile.HighLatitudeRule),
		Adjustments: r.Adjustments,
		QiblaDeg:    roundToDecimal(domain.QiblaBearing(r.Coordinate).Degrees(), 3),
		Cached:      cached,
		DaySchedule: r.day(date, s),
		Meta:        meta(r),
	}, nil
}

// Month computes every day of month (YYYY-MM).
func (uc *ScheduleUseCase) Month(ctx context.Context, req ScheduleRequest, month string) (*MonthResponse, error) {
	r, err := uc.Resolve(req)
	if err != nil {
		return nil, err
	}
	var first time.Time
	if month == "" {
		now := uc.now().In(r.Location)
		first = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.Location)
	} else {
		first, err = time.ParseInLocation(monthLayout, month, r.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: month must be YYYY-MM, got %q", ErrInvalidRequest, month)
		}
	}

	resp := &MonthResponse{
		Location: r.locationInfo(),
		Method:   r.Profile.Method,
		Asr:      r.Profile.AsrFactor.String(),
		Month:    first.Format(monthLayout),
		Meta:     meta(r),
	}
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		s, _, err := uc.Schedule(ctx, r, d)
		if err != nil {
			return nil, err
		}
		resp.Days = append(resp.Days, r.day(d, s))
	}
	return resp, nil
}

// Schedule builds (or loads from cache) the schedule of date's calendar day.
func (uc *ScheduleUseCase) Schedule(ctx context.Context, r *Resolved, date time.Time) (domain.DailySchedule, bool, error) {
	var key string
	if uc.cache != nil {
		key = cache.ScheduleKey(r.Coordinate, date, r.Profile, r.Adjustments)
		s, hit, err := uc.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("schedule cache read failed")
		} else if hit {
			return s, true, nil
		}
	}

	s, err := domain.BuildSchedule(r.Coordinate, date, r.Profile, r.Adjustments)
	if err != nil {
		return domain.DailySchedule{}, false, fmt.Errorf("%s on %s: %w", r.Profile.Method, date.Format(dateLayout), err)
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, s); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("schedule cache write failed")
		}
	}
	return s, false, nil
}

// Timeline returns the prayer day containing now with its neighbours. A
// neighbour that cannot be built is left out.
//
// The calendar day of now in r.Location is only a first guess: a zone far
// from the coordinate's longitude (UTC for an unlisted place in the
// Americas, say) is off by up to a day, so the window moves until it spans
// now.
func (uc *ScheduleUseCase) Timeline(ctx context.Context, r *Resolved, now time.Time) (domain.Timeline, error) {
	local := now.In(r.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.Location)

	tl, err := uc.timelineOn(ctx, r, day)
	if err != nil {
		return domain.Timeline{}, err
	}
	for i := 0; i < 2; i++ {
		switch {
		case tl.Previous != nil && now.Before(tl.Previous.Isha):
			day = day.AddDate(0, 0, -1)
		case tl.Next != nil && !now.Before(tl.Next.Fajr):
			day = day.AddDate(0, 0, 1)
		default:
			return tl, nil
		}
		if tl, err = uc.timelineOn(ctx, r, day); err != nil {
			return domain.Timeline{}, err
		}
	}
	return tl, nil
}

// timelineOn builds day and its two neighbours.
func (uc *ScheduleUseCase) timelineOn(ctx context.Context, r *Resolved, day time.Time) (domain.Timeline, error) {
	cur, _, err := uc.Schedule(ctx, r, day)
	if err != nil {
		return domain.Timeline{}, err
	}
	tl := domain.Timeline{Current: cur}
	if prev, _, err := uc.Schedule(ctx, r, day.AddDate(0, 0, -1)); err == nil {
		tl.Previous = &prev
	}
	if next, _, err := uc.Schedule(ctx, r, day.AddDate(0, 0, 1)); err == nil {
		tl.Next = &next
	}
	return tl, nil
}

func (r *Resolved) date(s string, now time.Time) (time.Time, error) {
	if s == "" {
		local := now.In(r.Location)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.Location), nil
	}
	d, err := time.ParseInLocation(dateLayout, s, r.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrInvalidRequest, s)
	}
	return d, nil
}

func (r *Resolved) locationInfo() LocationInfo {
	info := LocationInfo{
		Lat:      r.Coordinate.Latitude,
		Lon:      r.Coordinate.Longitude,
		Timezone: r.Location.String(),
	}
	if r.City != nil {
		info.City = r.City.Name
		info.CityID = r.City.ID
		info.Country = r.City.Country
	}
	return info
}

func (r *Resolved) day(date time.Time, s domain.DailySchedule) DaySchedule {
	local := s.In(r.Location)
	times := make([]PrayerTime, 0, len(domain.Prayers))
	for _, b := range local.Boundaries() {
		times = append(times, PrayerTime{
			Prayer: b.Prayer,
			Name:   b.Prayer.Title(),
			Time:   b.Time.Format(time.RFC3339),
			Local:  b.Time.Format("15:04"),
		})
	}
	return DaySchedule{
		Date:  date.Format(dateLayout),
		Hijri: hijriInfo(domain.ToHijri(date)),
		Times: times,
	}
}

func hijriInfo(h domain.HijriDate) HijriInfo {
	return HijriInfo{
		Year:      h.Year,
		Month:     h.Month,
		Day:       h.Day,
		MonthName: h.MonthName(),
		Formatted: h.String(),
		Ramadan:   h.IsRamadan(),
	}
}

func meta(r *Resolved) map[string]string {
	m := map[string]string{
		"model":       "solar_v1",
		"fingerprint": r.Profile.Fingerprint(),
	}
	if r.Profile.Description != "" {
		m["method_description"] = r.Profile.Description
	}
	return m
}

// ParseAdjustments reads adj_<prayer> style values through get.
func ParseAdjustments(get func(key string) string) (domain.TimeAdjustments, error) {
	var adj domain.TimeAdjustments
	for _, p := range domain.Prayers {
		v := strings.TrimSpace(get("adj_" + string(p)))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return adj, fmt.Errorf("%w: adj_%s must be an integer, got %q", ErrInvalidRequest, p, v)
		}
		adj = adj.Set(p, n)
	}
	return adj, nil
}

// Helper function to round to decimal places
func roundToDecimal(val float64, precision int) float64 {
	multiplier := math.Pow(10, float64(precision))
	return math.Round(val*multiplier) / multiplier
}
