package domain

import (
	"math"
	"time"
)

// HorizonDepression is the depression of the sun's center at visible
// sunrise/sunset: 34' of refraction plus a 16' semi-diameter.
const HorizonDepression = 0.833

// solarIterations is the number of fixed-point refinements per event.
const solarIterations = 3

// SolarPosition holds the sun's declination and the equation of time.
type SolarPosition struct {
	DeclinationDeg    float64 // Declination in degrees.
	EquationOfTimeMin float64 // Apparent minus mean solar time, in minutes.
}

// SunTimes holds the two crossings of a depression angle around solar noon.
// An OK flag is false when the sun never reaches the angle on that side.
type SunTimes struct {
	BeforeNoon   time.Time
	AfterNoon    time.Time
	BeforeNoonOK bool
	AfterNoonOK  bool
}

// AstronomicalClock computes solar events for one calendar day at one place.
// The calendar day is taken from the date's own location; all returned
// times are UTC.
type AstronomicalClock struct {
	coord GeoCoordinate
	day   time.Time // 00:00 UT of the calendar day.
	jd0   float64   // Julian day at day.
}

// NewAstronomicalClock creates a clock for the calendar date of date at c.
func NewAstronomicalClock(date time.Time, c GeoCoordinate) AstronomicalClock {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return AstronomicalClock{
		coord: c,
		day:   day,
		jd0:   JulianDay(day),
	}
}

// Coordinate returns the observer location.
func (a AstronomicalClock) Coordinate() GeoCoordinate { return a.coord }

// Day returns 00:00 UTC of the clock's calendar day.
func (a AstronomicalClock) Day() time.Time { return a.day }

// NextDay returns the clock for the following calendar day.
func (a AstronomicalClock) NextDay() AstronomicalClock {
	return NewAstronomicalClock(a.day.AddDate(0, 0, 1), a.coord)
}

// SolarNoon returns the instant of the sun's upper transit.
func (a AstronomicalClock) SolarNoon() time.Time {
	return a.at(a.transitHours())
}

// SunTimes returns when the sun's center is depression degrees below the
// horizon, before and after noon. A depression of 0 is the geometric horizon.
func (a AstronomicalClock) SunTimes(depression float64) SunTimes {
	var st SunTimes
	if h, ok := a.eventHours(func(SolarPosition) float64 { return -depression }, false); ok {
		st.BeforeNoon, st.BeforeNoonOK = a.at(h), true
	}
	if h, ok := a.eventHours(func(SolarPosition) float64 { return -depression }, true); ok {
		st.AfterNoon, st.AfterNoonOK = a.at(h), true
	}
	return st
}

// AsrTime returns the afternoon instant when an object's shadow equals
// factor times its height plus its noon shadow.
func (a AstronomicalClock) AsrTime(factor AsrFactor) (time.Time, bool) {
	lat := a.coord.Latitude
	altitude := func(p SolarPosition) float64 {
		return darccot(float64(factor) + dtan(math.Abs(lat-p.DeclinationDeg)))
	}
	h, ok := a.eventHours(altitude, true)
	if !ok {
		return time.Time{}, false
	}
	return a.at(h), true
}

// Position returns the solar position at the given instant.
func (a AstronomicalClock) Position(t time.Time) SolarPosition {
	return SunPosition(JulianDay(t.UTC()))
}

// SunTimesFor is the free-function form of AstronomicalClock.SunTimes.
func SunTimesFor(date time.Time, c GeoCoordinate, depression float64) SunTimes {
	return NewAstronomicalClock(date, c).SunTimes(depression)
}

// SolarNoonFor is the free-function form of AstronomicalClock.SolarNoon.
func SolarNoonFor(date time.Time, c GeoCoordinate) time.Time {
	return NewAstronomicalClock(date, c).SolarNoon()
}

// AsrTimeFor is the free-function form of AstronomicalClock.AsrTime.
func AsrTimeFor(date time.Time, c GeoCoordinate, factor AsrFactor) (time.Time, bool) {
	return NewAstronomicalClock(date, c).AsrTime(factor)
}

// position evaluates the sun at hours UT after the start of the day.
func (a AstronomicalClock) position(hours float64) SolarPosition {
	return SunPosition(a.jd0 + hours/24.0)
}

// noonHours is the transit time in UT hours for the sun's state at hours.
func (a AstronomicalClock) noonHours(hours float64) float64 {
	p := a.position(hours)
	return 12.0 - a.coord.Longitude/15.0 - p.EquationOfTimeMin/60.0
}

func (a AstronomicalClock) transitHours() float64 {
	t := 12.0 - a.coord.Longitude/15.0
	for i := 0; i < solarIterations; i++ {
		t = a.noonHours(t)
	}
	return t
}

// eventHours finds the UT hours at which the sun's altitude equals
// altitude(position), on the requested side of noon.
func (a AstronomicalClock) eventHours(altitude func(SolarPosition) float64, afterNoon bool) (float64, bool) {
	t := 12.0 - a.coord.Longitude/15.0
	if afterNoon {
		t += 6
	} else {
		t -= 6
	}
	for i := 0; i < solarIterations; i++ {
		p := a.position(t)
		h, ok := hourAngleHours(altitude(p), a.coord.Latitude, p.DeclinationDeg)
		if !ok {
			return 0, false
		}
		noon := 12.0 - a.coord.Longitude/15.0 - p.EquationOfTimeMin/60.0
		if afterNoon {
			t = noon + h
		} else {
			t = noon - h
		}
	}
	return t, true
}

func (a AstronomicalClock) at(hours float64) time.Time {
	return a.day.Add(time.Duration(hours * float64(time.Hour))).Round(time.Second)
}

// hourAngleHours returns the hour angle, in hours, at which the sun reaches
// altitude degrees. ok is false when the sun never gets there.
func hourAngleHours(altitude, lat, decl float64) (float64, bool) {
	cosH := (dsin(altitude) - dsin(lat)*dsin(decl)) / (dcos(lat) * dcos(decl))
	if math.IsNaN(cosH) || cosH < -1 || cosH > 1 {
		return 0, false
	}
	return darccos(cosH) / 15.0, true
}

// JulianDay returns the Julian day number of t (UTC), including the
// fractional day.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	y, m, d := t.Date()
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4
	day := float64(d) +
		float64(t.Hour())/24.0 +
		float64(t.Minute())/1440.0 +
		float64(t.Second())/86400.0 +
		float64(t.Nanosecond())/8.64e13
	return math.Floor(365.25*float64(y+4716)) + math.Floor(30.6001*float64(int(m)+1)) + day + float64(b) - 1524.5
}

// SunPosition returns declination and equation of time for Julian day jd,
// using the low-precision solar coordinates from Meeus, ch. 25.
func SunPosition(jd float64) SolarPosition {
	T := (jd - 2451545.0) / 36525.0

	L0 := NormalizeDegrees(280.46646 + T*(36000.76983+T*0.0003032))
	M := 357.52911 + T*(35999.05029-0.0001537*T)
	e := 0.016708634 - T*(0.000042037+0.0000001267*T)

	C := dsin(M)*(1.914602-T*(0.004817+0.000014*T)) +
		dsin(2*M)*(0.019993-0.000101*T) +
		dsin(3*M)*0.000289

	omega := 125.04 - 1934.136*T
	lambda := L0 + C - 0.00569 - 0.00478*dsin(omega)

	eps0 := 23.0 + (26.0+(21.448-T*(46.815+T*(0.00059-0.001813*T)))/60.0)/60.0
	eps := eps0 + 0.00256*dcos(omega)

	decl := darcsin(dsin(eps) * dsin(lambda))

	y := dtan(eps / 2.0)
	y *= y
	eqTime := 4 * Rad2Deg(
		y*dsin(2*L0)-
			2*e*dsin(M)+
			4*e*y*dsin(M)*dcos(2*L0)-
			0.5*y*y*dsin(4*L0)-
			1.25*e*e*dsin(2*M),
	)

	return SolarPosition{
		DeclinationDeg:    decl,
		EquationOfTimeMin: eqTime,
	}
}
