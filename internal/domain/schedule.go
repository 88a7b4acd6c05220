package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrScheduleOrdering is returned when a built schedule is not strictly
// increasing. The schedule is never re-sorted.
var ErrScheduleOrdering = errors.New("schedule ordering violation")

// MaxAdjustmentMinutes bounds user adjustments at the API boundary.
const MaxAdjustmentMinutes = 30

// Prayer names one of the six daily boundaries.
type Prayer string

const (
	Fajr    Prayer = "fajr"
	Sunrise Prayer = "sunrise"
	Dhuhr   Prayer = "dhuhr"
	Asr     Prayer = "asr"
	Maghrib Prayer = "maghrib"
	Isha    Prayer = "isha"
)

// Prayers lists the boundaries in day order.
//
//nolint:gochecknoglobals // Read-only ordering table.
var Prayers = [...]Prayer{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// ParsePrayer resolves a boundary name case-insensitively.
func ParsePrayer(s string) (Prayer, error) {
	p := Prayer(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Prayers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown prayer %q", s)
}

// Title returns the display name, e.g. "Maghrib".
func (p Prayer) Title() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Congregational reports whether the boundary starts a prayer with an iqama.
func (p Prayer) Congregational() bool {
	return p != Sunrise && p != ""
}

// TimeAdjustments holds signed minute offsets per boundary.
type TimeAdjustments struct {
	Fajr    int `json:"fajr" yaml:"fajr"`
	Sunrise int `json:"sunrise" yaml:"sunrise"`
	Dhuhr   int `json:"dhuhr" yaml:"dhuhr"`
	Asr     int `json:"asr" yaml:"asr"`
	Maghrib int `json:"maghrib" yaml:"maghrib"`
	Isha    int `json:"isha" yaml:"isha"`
}

// Minutes returns the offset for p in minutes.
func (a TimeAdjustments) Minutes(p Prayer) int {
	switch p {
	case Fajr:
		return a.Fajr
	case Sunrise:
		return a.Sunrise
	case Dhuhr:
		return a.Dhuhr
	case Asr:
		return a.Asr
	case Maghrib:
		return a.Maghrib
	case Isha:
		return a.Isha
	}
	return 0
}

// For returns the offset for p as a duration.
func (a TimeAdjustments) For(p Prayer) time.Duration {
	return time.Duration(a.Minutes(p)) * time.Minute
}

// Set returns a copy of a with the offset for p replaced.
func (a TimeAdjustments) Set(p Prayer, minutes int) TimeAdjustments {
	switch p {
	case Fajr:
		a.Fajr = minutes
	case Sunrise:
		a.Sunrise = minutes
	case Dhuhr:
		a.Dhuhr = minutes
	case Asr:
		a.Asr = minutes
	case Maghrib:
		a.Maghrib = minutes
	case Isha:
		a.Isha = minutes
	}
	return a
}

// UniformAdjustments applies the same offset to every boundary.
func UniformAdjustments(minutes int) TimeAdjustments {
	return TimeAdjustments{minutes, minutes, minutes, minutes, minutes, minutes}
}

// DailySchedule is the six boundaries of one calendar day at one place.
type DailySchedule struct {
	Date    time.Time `json:"date"`
	Fajr    time.Time `json:"fajr"`
	Sunrise time.Time `json:"sunrise"`
	Dhuhr   time.Time `json:"dhuhr"`
	Asr     time.Time `json:"asr"`
	Maghrib time.Time `json:"maghrib"`
	Isha    time.Time `json:"isha"`
}

// Boundary pairs a prayer with its adhan time.
type Boundary struct {
	Prayer Prayer
	Time   time.Time
}

// Time returns the adhan time of p.
func (s DailySchedule) Time(p Prayer) time.Time {
	switch p {
	case Fajr:
		return s.Fajr
	case Sunrise:
		return s.Sunrise
	case Dhuhr:
		return s.Dhuhr
	case Asr:
		return s.Asr
	case Maghrib:
		return s.Maghrib
	case Isha:
		return s.Isha
	}
	return time.Time{}
}

// Boundaries returns the six boundaries in day order.
func (s DailySchedule) Boundaries() []Boundary {
	out := make([]Boundary, len(Prayers))
	for i, p := range Prayers {
		out[i] = Boundary{Prayer: p, Time: s.Time(p)}
	}
	return out
}

// In returns a copy with every time converted to loc.
func (s DailySchedule) In(loc *time.Location) DailySchedule {
	return DailySchedule{
		Date:    s.Date,
		Fajr:    s.Fajr.In(loc),
		Sunrise: s.Sunrise.In(loc),
		Dhuhr:   s.Dhuhr.In(loc),
		Asr:     s.Asr.In(loc),
		Maghrib: s.Maghrib.In(loc),
		Isha:    s.Isha.In(loc),
	}
}

// CheckOrdering verifies fajr < sunrise < dhuhr < asr < maghrib < isha.
func (s DailySchedule) CheckOrdering() error {
	b := s.Boundaries()
	for i := 1; i < len(b); i++ {
		if !b[i-1].Time.Before(b[i].Time) {
			return fmt.Errorf("%w: %s (%s) is not before %s (%s)", ErrScheduleOrdering,
				b[i-1].Prayer, b[i-1].Time.Format(time.RFC3339),
				b[i].Prayer, b[i].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// BuildSchedule resolves all six boundaries of date at c with profile p and
// then applies the user adjustments.
func BuildSchedule(c GeoCoordinate, date time.Time, p CalculationProfile, adj TimeAdjustments) (DailySchedule, error) {
	if err := c.Validate(); err != nil {
		return DailySchedule{}, err
	}
	if err := p.Validate(); err != nil {
		return DailySchedule{}, err
	}

	clock := NewAstronomicalClock(date, c)
	var times [len(Prayers)]time.Time
	for i, kind := range Prayers {
		t, err := p.Resolve(kind, clock)
		if err != nil {
			return DailySchedule{}, fmt.Errorf("resolve %s: %w", kind, err)
		}
		times[i] = t.Add(adj.For(kind))
	}

	s := DailySchedule{
		Date:    clock.Day(),
		Fajr:    times[0],
		Sunrise: times[1],
		Dhuhr:   times[2],
		Asr:     times[3],
		Maghrib: times[4],
		Isha:    times[5],
	}
	if err := s.CheckOrdering(); err != nil {
		return DailySchedule{}, err
	}
	return s, nil
}
