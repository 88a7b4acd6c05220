package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/solar"
)

var (
	mecca  = GeoCoordinate{Latitude: 21.4225, Longitude: 39.8262}
	london = GeoCoordinate{Latitude: 51.5074, Longitude: -0.1278}
	cairo  = GeoCoordinate{Latitude: 30.0444, Longitude: 31.2357}
)

func within(t *testing.T, name string, got, want time.Time, tol time.Duration) {
	t.Helper()
	d := got.Sub(want)
	if d < 0 {
		d = -d
	}
	if d > tol {
		t.Errorf("%s: expected %s (±%s), got %s", name, want.Format(time.RFC3339), tol, got.Format(time.RFC3339))
	}
}

func utc(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

// TestJulianDay_MatchesMeeus checks the Julian day against the meeus package.
func TestJulianDay_MatchesMeeus(t *testing.T) {
	times := []time.Time{
		utc(2000, time.January, 1, 12, 0, 0),
		utc(2024, time.February, 29, 6, 30, 0),
		utc(2024, time.June, 21, 0, 0, 0),
		utc(1987, time.April, 10, 19, 21, 0),
	}
	for _, tm := range times {
		got := JulianDay(tm)
		want := julian.TimeToJD(tm)
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("JulianDay(%s): expected %.6f, got %.6f", tm, want, got)
		}
	}
	if got := JulianDay(utc(2000, time.January, 1, 12, 0, 0)); got != 2451545.0 {
		t.Errorf("J2000 epoch: expected 2451545.0, got %.6f", got)
	}
}

// TestSunPosition_DeclinationMatchesMeeus compares declination with the
// apparent declination from meeus' solar package.
func TestSunPosition_DeclinationMatchesMeeus(t *testing.T) {
	for _, tm := range []time.Time{
		utc(2024, time.March, 20, 3, 0, 0),
		utc(2024, time.June, 21, 0, 0, 0),
		utc(2024, time.September, 22, 12, 0, 0),
		utc(2024, time.December, 21, 9, 0, 0),
	} {
		jd := JulianDay(tm)
		_, dec := solar.ApparentEquatorial(jd)
		got := SunPosition(jd).DeclinationDeg
		if math.Abs(got-dec.Deg()) > 0.02 {
			t.Errorf("declination at %s: expected %.4f, got %.4f", tm, dec.Deg(), got)
		}
	}
}

// TestSunPosition_EquationOfTimeRange checks the equation of time stays
// within its known annual envelope.
func TestSunPosition_EquationOfTimeRange(t *testing.T) {
	start := utc(2024, time.January, 1, 0, 0, 0)
	minEq, maxEq := math.Inf(1), math.Inf(-1)
	for d := 0; d < 366; d++ {
		eq := SunPosition(JulianDay(start.AddDate(0, 0, d))).EquationOfTimeMin
		minEq = math.Min(minEq, eq)
		maxEq = math.Max(maxEq, eq)
	}
	if minEq < -14.7 || minEq > -14.0 {
		t.Errorf("minimum equation of time: expected about -14.2 min, got %.2f", minEq)
	}
	if maxEq < 16.0 || maxEq > 16.7 {
		t.Errorf("maximum equation of time: expected about 16.4 min, got %.2f", maxEq)
	}
}

// TestSunTimes_MatchesGoSunrise compares visible sunrise/sunset with the
// go-sunrise package.
func TestSunTimes_MatchesGoSunrise(t *testing.T) {
	cases := []struct {
		name  string
		coord GeoCoordinate
		date  time.Time
	}{
		{"london winter", london, utc(2024, time.January, 15, 0, 0, 0)},
		{"cairo equinox", cairo, utc(2024, time.March, 20, 0, 0, 0)},
		{"mecca solstice", mecca, utc(2024, time.June, 21, 0, 0, 0)},
	}
	for _, tc := range cases {
		rise, set := sunrise.SunriseSunset(tc.coord.Latitude, tc.coord.Longitude,
			tc.date.Year(), tc.date.Month(), tc.date.Day())
		st := SunTimesFor(tc.date, tc.coord, HorizonDepression)
		if !st.BeforeNoonOK || !st.AfterNoonOK {
			t.Fatalf("%s: expected sunrise and sunset, got %+v", tc.name, st)
		}
		within(t, tc.name+" sunrise", st.BeforeNoon, rise, 3*time.Minute)
		within(t, tc.name+" sunset", st.AfterNoon, set, 3*time.Minute)
		within(t, tc.name+" noon", SolarNoonFor(tc.date, tc.coord), rise.Add(set.Sub(rise)/2), 3*time.Minute)
	}
}

// TestAstronomicalClock_Mecca checks one full day against reference values.
func TestAstronomicalClock_Mecca(t *testing.T) {
	clock := NewAstronomicalClock(utc(2024, time.June, 21, 15, 0, 0), mecca)

	within(t, "noon", clock.SolarNoon(), utc(2024, time.June, 21, 9, 22, 36), 30*time.Second)

	fajr := clock.SunTimes(18.5)
	if !fajr.BeforeNoonOK {
		t.Fatalf("expected 18.5° morning twilight to be reached")
	}
	within(t, "fajr", fajr.BeforeNoon, utc(2024, time.June, 21, 1, 11, 21), 30*time.Second)

	asr, ok := clock.AsrTime(AsrStandard)
	if !ok {
		t.Fatalf("expected standard asr")
	}
	within(t, "asr", asr, utc(2024, time.June, 21, 12, 42, 27), 30*time.Second)

	hanafi, ok := AsrTimeFor(clock.Day(), mecca, AsrHanafi)
	if !ok || !hanafi.After(asr) {
		t.Errorf("hanafi asr: expected after %s, got %s (ok=%v)", asr, hanafi, ok)
	}
}

// TestAstronomicalClock_CalendarDayFromLocation uses the date's own zone.
func TestAstronomicalClock_CalendarDayFromLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	// 00:30 local on 11 March is still 10 March in UTC.
	local := time.Date(2024, time.March, 11, 0, 30, 0, 0, jakarta)
	clock := NewAstronomicalClock(local, GeoCoordinate{Latitude: -6.2088, Longitude: 106.8456})
	if want := utc(2024, time.March, 11, 0, 0, 0); !clock.Day().Equal(want) {
		t.Errorf("expected day %s, got %s", want, clock.Day())
	}
}

// TestSunTimes_PolarReturnsAbsence checks unreachable angles are reported,
// not fabricated.
func TestSunTimes_PolarReturnsAbsence(t *testing.T) {
	tromso := GeoCoordinate{Latitude: 70, Longitude: 20}

	summer := SunTimesFor(utc(2024, time.June, 21, 0, 0, 0), tromso, HorizonDepression)
	if summer.BeforeNoonOK || summer.AfterNoonOK {
		t.Errorf("midnight sun: expected no sunrise/sunset, got %+v", summer)
	}

	winter := SunTimesFor(utc(2024, time.December, 21, 0, 0, 0), tromso, HorizonDepression)
	if winter.BeforeNoonOK || winter.AfterNoonOK {
		t.Errorf("polar night: expected no sunrise/sunset, got %+v", winter)
	}

	// London in June never gets darker than about 15°.
	londonJune := SunTimesFor(utc(2024, time.June, 21, 0, 0, 0), london, 18)
	if londonJune.BeforeNoonOK {
		t.Errorf("london 18° in june: expected absence, got %s", londonJune.BeforeNoon)
	}
}

func TestDegenerateInputError_Unwrap(t *testing.T) {
	var err error = &DegenerateInputError{Prayer: Fajr, AngleDeg: 18, Date: utc(2024, time.June, 21, 0, 0, 0)}
	if !errors.Is(err, ErrDegenerateAstronomicalInput) {
		t.Errorf("expected errors.Is to match ErrDegenerateAstronomicalInput")
	}
	want := "fajr: sun does not reach 18.00° below the horizon on 2024-06-21"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
