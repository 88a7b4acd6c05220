package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidProfile is returned when a calculation profile breaks its invariants.
	ErrInvalidProfile = errors.New("invalid calculation profile")
	// ErrUnknownMethod is returned for a method name with no registered profile.
	ErrUnknownMethod = errors.New("unknown calculation method")
	// ErrDegenerateAstronomicalInput is returned when the sun never reaches a
	// required depression angle on the requested date (polar day or night).
	ErrDegenerateAstronomicalInput = errors.New("degenerate astronomical input")
)

// DegenerateInputError names the boundary that could not be resolved.
type DegenerateInputError struct {
	Prayer   Prayer
	AngleDeg float64
	Date     time.Time
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s: sun does not reach %.2f° below the horizon on %s",
		e.Prayer, e.AngleDeg, e.Date.Format("2006-01-02"))
}

func (e *DegenerateInputError) Unwrap() error { return ErrDegenerateAstronomicalInput }

// AsrFactor is the shadow-length multiplier that selects the Asr school.
type AsrFactor int

const (
	// AsrStandard is the Shafi, Maliki and Hanbali rule (shadow = 1x).
	AsrStandard AsrFactor = 1
	// AsrHanafi is the Hanafi rule (shadow = 2x).
	AsrHanafi AsrFactor = 2
)

// ParseAsrFactor maps "standard"/"shafi" and "hanafi" to a factor.
func ParseAsrFactor(s string) (AsrFactor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "shafi", "1":
		return AsrStandard, nil
	case "hanafi", "2":
		return AsrHanafi, nil
	default:
		return 0, fmt.Errorf("%w: asr must be standard or hanafi, got %q", ErrInvalidProfile, s)
	}
}

func (f AsrFactor) String() string {
	if f == AsrHanafi {
		return "hanafi"
	}
	return "standard"
}

// HighLatitudeRule picks a Fajr/Isha fallback when the twilight angle is
// never reached. The zero value disables any fallback.
type HighLatitudeRule string

const (
	HighLatitudeNone              HighLatitudeRule = ""
	HighLatitudeMiddleOfTheNight  HighLatitudeRule = "middle_of_the_night"
	HighLatitudeSeventhOfTheNight HighLatitudeRule = "seventh_of_the_night"
	HighLatitudeTwilightAngle     HighLatitudeRule = "twilight_angle"
)

// ParseHighLatitudeRule validates a rule name.
func ParseHighLatitudeRule(s string) (HighLatitudeRule, error) {
	r := HighLatitudeRule(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case HighLatitudeNone, HighLatitudeMiddleOfTheNight, HighLatitudeSeventhOfTheNight, HighLatitudeTwilightAngle:
		return r, nil
	case "none":
		return HighLatitudeNone, nil
	}
	return "", fmt.Errorf("%w: unknown high latitude rule %q", ErrInvalidProfile, s)
}

// Method names a calculation convention.
type Method string

const (
	MethodMuslimWorldLeague     Method = "MuslimWorldLeague"
	MethodEgyptian              Method = "Egyptian"
	MethodKarachi               Method = "Karachi"
	MethodUmmAlQura             Method = "UmmAlQura"
	MethodDubai                 Method = "Dubai"
	MethodMoonsightingCommittee Method = "MoonsightingCommittee"
	MethodNorthAmerica          Method = "NorthAmerica"
	MethodKuwait                Method = "Kuwait"
	MethodQatar                 Method = "Qatar"
	MethodSingapore             Method = "Singapore"
	MethodKemenagRI             Method = "KemenagRI"
	MethodTurkey                Method = "Turkey"
	MethodTehran                Method = "Tehran"
)

// CalculationProfile is the parameter set of one calculation convention.
type CalculationProfile struct {
	Method              Method           `json:"method" yaml:"name"`
	Description         string           `json:"description,omitempty" yaml:"description"`
	FajrAngle           float64          `json:"fajr_angle" yaml:"fajr_angle"`
	IshaAngle           float64          `json:"isha_angle,omitempty" yaml:"isha_angle"`
	IshaIntervalMinutes int              `json:"isha_interval_minutes,omitempty" yaml:"isha_interval_minutes"`
	MaghribAngle        float64          `json:"maghrib_angle,omitempty" yaml:"maghrib_angle"`
	AsrFactor           AsrFactor        `json:"asr_factor" yaml:"asr_factor"`
	Bias                TimeAdjustments  `json:"bias" yaml:"bias"`
	HighLatitudeRule    HighLatitudeRule `json:"high_latitude_rule,omitempty" yaml:"high_latitude_rule"`
}

// Validate checks the profile invariants.
func (p CalculationProfile) Validate() error {
	if p.Method == "" {
		return fmt.Errorf("%w: method name is required", ErrInvalidProfile)
	}
	if p.FajrAngle <= 0 || p.FajrAngle >= 90 {
		return fmt.Errorf("%w: %s: fajr angle must be in (0, 90), got %v", ErrInvalidProfile, p.Method, p.FajrAngle)
	}
	hasAngle := p.IshaAngle > 0
	hasInterval := p.IshaIntervalMinutes > 0
	if hasAngle == hasInterval {
		return fmt.Errorf("%w: %s: exactly one of isha angle and isha interval must be set", ErrInvalidProfile, p.Method)
	}
	if p.IshaAngle < 0 || p.IshaAngle >= 90 || p.IshaIntervalMinutes < 0 {
		return fmt.Errorf("%w: %s: isha parameters out of range", ErrInvalidProfile, p.Method)
	}
	if p.MaghribAngle < 0 || p.MaghribAngle >= 90 {
		return fmt.Errorf("%w: %s: maghrib angle must be in [0, 90), got %v", ErrInvalidProfile, p.Method, p.MaghribAngle)
	}
	if p.AsrFactor != AsrStandard && p.AsrFactor != AsrHanafi {
		return fmt.Errorf("%w: %s: asr factor must be 1 or 2, got %d", ErrInvalidProfile, p.Method, p.AsrFactor)
	}
	if _, err := ParseHighLatitudeRule(string(p.HighLatitudeRule)); err != nil {
		return err
	}
	return nil
}

// WithAsrFactor returns a copy of p using factor for Asr.
func (p CalculationProfile) WithAsrFactor(factor AsrFactor) CalculationProfile {
	p.AsrFactor = factor
	return p
}

// WithHighLatitudeRule returns a copy of p using rule.
func (p CalculationProfile) WithHighLatitudeRule(rule HighLatitudeRule) CalculationProfile {
	p.HighLatitudeRule = rule
	return p
}

// Fingerprint returns a stable string identifying every parameter of p.
func (p CalculationProfile) Fingerprint() string {
	b := p.Bias
	return fmt.Sprintf("%s|%g|%g|%d|%g|%d|%d,%d,%d,%d,%d,%d|%s",
		p.Method, p.FajrAngle, p.IshaAngle, p.IshaIntervalMinutes, p.MaghribAngle, p.AsrFactor,
		b.Fajr, b.Sunrise, b.Dhuhr, b.Asr, b.Maghrib, b.Isha, p.HighLatitudeRule)
}

// Resolve computes one boundary for the clock's day, including the
// profile's own bias but not user adjustments.
func (p CalculationProfile) Resolve(kind Prayer, clock AstronomicalClock) (time.Time, error) {
	t, err := p.resolveRaw(kind, clock)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(p.Bias.For(kind)), nil
}

func (p CalculationProfile) resolveRaw(kind Prayer, clock AstronomicalClock) (time.Time, error) {
	switch kind {
	case Fajr:
		st := clock.SunTimes(p.FajrAngle)
		if st.BeforeNoonOK {
			return st.BeforeNoon, nil
		}
		return p.highLatitudeFallback(Fajr, p.FajrAngle, clock)
	case Sunrise:
		st := clock.SunTimes(HorizonDepression)
		if !st.BeforeNoonOK {
			return time.Time{}, p.degenerate(Sunrise, HorizonDepression, clock)
		}
		return st.BeforeNoon, nil
	case Dhuhr:
		return clock.SolarNoon(), nil
	case Asr:
		t, ok := clock.AsrTime(p.AsrFactor)
		if !ok {
			return time.Time{}, p.degenerate(Asr, 0, clock)
		}
		return t, nil
	case Maghrib:
		return p.sunset(clock)
	case Isha:
		if p.IshaIntervalMinutes > 0 {
			m, err := p.sunset(clock)
			if err != nil {
				return time.Time{}, err
			}
			return m.Add(time.Duration(p.IshaIntervalMinutes) * time.Minute), nil
		}
		st := clock.SunTimes(p.IshaAngle)
		if st.AfterNoonOK {
			return st.AfterNoon, nil
		}
		return p.highLatitudeFallback(Isha, p.IshaAngle, clock)
	}
	return time.Time{}, fmt.Errorf("unknown prayer %q", kind)
}

func (p CalculationProfile) sunset(clock AstronomicalClock) (time.Time, error) {
	angle := math.Max(p.MaghribAngle, HorizonDepression)
	st := clock.SunTimes(angle)
	if !st.AfterNoonOK {
		return time.Time{}, p.degenerate(Maghrib, angle, clock)
	}
	return st.AfterNoon, nil
}

// highLatitudeFallback places Fajr before sunrise, or Isha after sunset, by
// a portion of the night when the profile opts into a rule.
func (p CalculationProfile) highLatitudeFallback(kind Prayer, angle float64, clock AstronomicalClock) (time.Time, error) {
	var portion float64
	switch p.HighLatitudeRule {
	case HighLatitudeMiddleOfTheNight:
		portion = 1.0 / 2.0
	case HighLatitudeSeventhOfTheNight:
		portion = 1.0 / 7.0
	case HighLatitudeTwilightAngle:
		portion = angle / 60.0
	default:
		return time.Time{}, p.degenerate(kind, angle, clock)
	}

	today := clock.SunTimes(HorizonDepression)
	tomorrow := clock.NextDay().SunTimes(HorizonDepression)
	if !today.BeforeNoonOK || !today.AfterNoonOK || !tomorrow.BeforeNoonOK {
		return time.Time{}, p.degenerate(kind, angle, clock)
	}
	night := tomorrow.BeforeNoon.Sub(today.AfterNoon)
	offset := time.Duration(portion * float64(night)).Round(time.Second)
	if kind == Fajr {
		return today.BeforeNoon.Add(-offset), nil
	}
	return today.AfterNoon.Add(offset), nil
}

func (p CalculationProfile) degenerate(kind Prayer, angle float64, clock AstronomicalClock) error {
	return &DegenerateInputError{Prayer: kind, AngleDeg: angle, Date: clock.Day()}
}

// standardProfiles holds the built-in conventions keyed by method.
//
//nolint:gochecknoglobals // Read-only table.
var standardProfiles = map[Method]CalculationProfile{
	MethodMuslimWorldLeague: {
		Method: MethodMuslimWorldLeague, Description: "Muslim World League",
		FajrAngle: 18, IshaAngle: 17, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Dhuhr: 1},
	},
	MethodEgyptian: {
		Method: MethodEgyptian, Description: "Egyptian General Authority of Survey",
		FajrAngle: 19.5, IshaAngle: 17.5, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Dhuhr: 1},
	},
	MethodKarachi: {
		Method: MethodKarachi, Description: "University of Islamic Sciences, Karachi",
		FajrAngle: 18, IshaAngle: 18, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Dhuhr: 1},
	},
	MethodUmmAlQura: {
		Method: MethodUmmAlQura, Description: "Umm al-Qura University, Makkah",
		FajrAngle: 18.5, IshaIntervalMinutes: 90, AsrFactor: AsrStandard,
	},
	MethodDubai: {
		Method: MethodDubai, Description: "UAE General Authority of Islamic Affairs",
		FajrAngle: 18.2, IshaAngle: 18.2, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Sunrise: -3, Dhuhr: 3, Asr: 3, Maghrib: 3},
	},
	MethodMoonsightingCommittee: {
		Method: MethodMoonsightingCommittee, Description: "Moonsighting Committee Worldwide",
		FajrAngle: 18, IshaAngle: 18, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Dhuhr: 5, Maghrib: 3},
	},
	MethodNorthAmerica: {
		Method: MethodNorthAmerica, Description: "Islamic Society of North America",
		FajrAngle: 15, IshaAngle: 15, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Dhuhr: 1},
	},
	MethodKuwait: {
		Method: MethodKuwait, Description: "Kuwait",
		FajrAngle: 18, IshaAngle: 17.5, AsrFactor: AsrStandard,
	},
	MethodQatar: {
		Method: MethodQatar, Description: "Qatar",
		FajrAngle: 18, IshaIntervalMinutes: 90, AsrFactor: AsrStandard,
	},
	MethodSingapore: {
		Method: MethodSingapore, Description: "Majlis Ugama Islam Singapura",
		FajrAngle: 20, IshaAngle: 18, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Dhuhr: 1},
	},
	MethodKemenagRI: {
		Method: MethodKemenagRI, Description: "Kementerian Agama Republik Indonesia",
		FajrAngle: 20, IshaAngle: 18, MaghribAngle: 0, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Fajr: 2, Sunrise: 2, Dhuhr: 2, Asr: 2, Maghrib: 2, Isha: 2},
	},
	MethodTurkey: {
		Method: MethodTurkey, Description: "Diyanet İşleri Başkanlığı",
		FajrAngle: 18, IshaAngle: 17, AsrFactor: AsrStandard,
		Bias: TimeAdjustments{Sunrise: -7, Dhuhr: 5, Asr: 4, Maghrib: 7},
	},
	MethodTehran: {
		Method: MethodTehran, Description: "Institute of Geophysics, University of Tehran",
		FajrAngle: 17.7, IshaAngle: 14, MaghribAngle: 4.5, AsrFactor: AsrStandard,
	},
}

// ProfileFor returns the built-in profile for m.
func ProfileFor(m Method) (CalculationProfile, error) {
	p, ok := standardProfiles[m]
	if !ok {
		return CalculationProfile{}, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	return p, nil
}

// ParseMethod resolves a method name case-insensitively.
func ParseMethod(name string) (Method, error) {
	n := strings.TrimSpace(name)
	for m := range standardProfiles {
		if strings.EqualFold(string(m), n) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// StandardProfiles returns every built-in profile sorted by method name.
func StandardProfiles() []CalculationProfile {
	out := make([]CalculationProfile, 0, len(standardProfiles))
	for _, p := range standardProfiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
