package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/domain"
)

// StatusResponse describes where now falls in the prayer day.
type StatusResponse struct {
	Location   LocationInfo       `json:"location"`
	Method     domain.Method      `json:"method"`
	Now        string             `json:"now"`
	State      domain.State       `json:"state"`
	Current    domain.Prayer      `json:"current,omitempty"`
	Next       NextEvent          `json:"next"`
	Iqama      domain.IqamaDelays `json:"iqama_delays"`
	Hijri      HijriInfo          `json:"hijri"`
	QiblaDeg   float64            `json:"qibla_deg"`
	Evaluation domain.Evaluation  `json:"-"`
}

// NextEvent is the upcoming adhan or iqama.
type NextEvent struct {
	Prayer           domain.Prayer `json:"prayer"`
	Name             string        `json:"name"`
	Time             string        `json:"time"`
	IsIqama          bool          `json:"is_iqama"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	Remaining        string        `json:"remaining"`
}

// Status evaluates the instant now (the use case clock when zero).
func (uc *ScheduleUseCase) Status(ctx context.Context, req ScheduleRequest, delays domain.IqamaDelays, now time.Time) (*StatusResponse, error) {
	if err := delays.Validate(); err != nil {
		return nil, err
	}
	r, err := uc.Resolve(req)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = uc.now()
	}

	tl, err := uc.Timeline(ctx, r, now)
	if err != nil {
		return nil, err
	}
	ev := tl.Evaluate(delays, now)
	return &StatusResponse{
		Location:   r.locationInfo(),
		Method:     r.Profile.Method,
		Now:        now.In(r.Location).Format(time.RFC3339),
		State:      ev.State,
		Current:    ev.Current,
		Next:       nextEvent(ev.Next, r.Location),
		Iqama:      delays,
		Hijri:      hijriInfo(domain.ToHijri(now.In(r.Location))),
		QiblaDeg:   roundToDecimal(domain.QiblaBearing(r.Coordinate).Degrees(), 3),
		Evaluation: ev,
	}, nil
}

func nextEvent(e domain.ScheduleEvent, loc *time.Location) NextEvent {
	return NextEvent{
		Prayer:           e.Prayer,
		Name:             e.Prayer.Title(),
		Time:             e.Time.In(loc).Format(time.RFC3339),
		IsIqama:          e.IsIqama,
		RemainingSeconds: int64(e.Remaining / time.Second),
		Remaining:        domain.FormatRemaining(e.Remaining),
	}
}

// QiblaResponse is the Qibla direction at a point.
type QiblaResponse struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	BearingDeg float64  `json:"bearing_deg"`
	DistanceKm float64  `json:"distance_km"`
	HeadingDeg *float64 `json:"heading_deg,omitempty"`
	DeltaDeg   *float64 `json:"delta_deg,omitempty"`
	Aligned    *bool    `json:"aligned,omitempty"`
	Tolerance  float64  `json:"tolerance_deg"`
}

// Qibla computes the Qibla bearing at c. When heading is set, the signed
// turn from heading to the Qibla and the alignment within tolerance are
// reported too.
func (uc *ScheduleUseCase) Qibla(c domain.GeoCoordinate, heading *float64, tolerance float64) (*QiblaResponse, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if tolerance < 0 || tolerance > 180 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("%w: tolerance must be in [0, 180], got %g", ErrInvalidRequest, tolerance)
	}
	b := domain.QiblaBearing(c)
	resp := &QiblaResponse{
		Lat:        c.Latitude,
		Lon:        c.Longitude,
		BearingDeg: roundToDecimal(b.Degrees(), 3),
		DistanceKm: roundToDecimal(c.DistanceKm(domain.Kaaba), 1),
		Tolerance:  tolerance,
	}
	if heading != nil {
		if math.IsNaN(*heading) || math.IsInf(*heading, 0) {
			return nil, fmt.Errorf("%w: heading must be finite", ErrInvalidRequest)
		}
		h := domain.NormalizeDegrees(*heading)
		delta := roundToDecimal(domain.SignedDelta(h, b.Degrees()), 3)
		aligned := domain.IsAligned(h, b.Degrees(), tolerance)
		resp.HeadingDeg = &h
		resp.DeltaDeg = &delta
		resp.Aligned = &aligned
	}
	return resp, nil
}

// HijriResponse is a Gregorian date with its tabular Hijri equivalent.
type HijriResponse struct {
	Gregorian string `json:"gregorian"`
	HijriInfo
}

// Hijri converts date (YYYY-MM-DD, today in loc when empty).
func (uc *ScheduleUseCase) Hijri(date string, loc *time.Location) (*HijriResponse, error) {
	if loc == nil {
		loc = time.UTC
	}
	var d time.Time
	if date == "" {
		d = uc.now().In(loc)
	} else {
		var err error
		d, err = time.ParseInLocation(dateLayout, date, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrInvalidRequest, date)
		}
	}
	return &HijriResponse{Gregorian: d.Format(dateLayout), HijriInfo: hijriInfo(domain.ToHijri(d))}, nil
}

// Methods lists every known calculation profile.
func (uc *ScheduleUseCase) Methods() []domain.CalculationProfile {
	return uc.profiles.All()
}

// Cities searches the catalog. An empty query lists every city.
func (uc *ScheduleUseCase) Cities(query string) []domain.City {
	if uc.catalog == nil {
		return nil
	}
	return uc.catalog.Search(query)
}

// NearestCityResponse is the catalog city closest to a point.
type NearestCityResponse struct {
	City       domain.City `json:"city"`
	DistanceKm float64     `json:"distance_km"`
}

// NearestCity returns the catalog city closest to c.
func (uc *ScheduleUseCase) NearestCity(c domain.GeoCoordinate) (*NearestCityResponse, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if uc.catalog == nil {
		return nil, store.ErrCityNotFound
	}
	city, dist, ok := uc.catalog.Nearest(c)
	if !ok {
		return nil, store.ErrCityNotFound
	}
	return &NearestCityResponse{City: city, DistanceKm: roundToDecimal(dist, 1)}, nil
}
