package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidIqamaDelay is returned for negative iqama delays.
var ErrInvalidIqamaDelay = errors.New("invalid iqama delay")

// IqamaDelays holds minutes between adhan and iqama for the five prayers.
type IqamaDelays struct {
	Fajr    int `json:"fajr" yaml:"fajr"`
	Dhuhr   int `json:"dhuhr" yaml:"dhuhr"`
	Asr     int `json:"asr" yaml:"asr"`
	Maghrib int `json:"maghrib" yaml:"maghrib"`
	Isha    int `json:"isha" yaml:"isha"`
}

// DefaultIqamaDelays are the delays a fresh installation starts with.
//
//nolint:gochecknoglobals // Read-only defaults.
var DefaultIqamaDelays = IqamaDelays{Fajr: 20, Dhuhr: 15, Asr: 15, Maghrib: 5, Isha: 15}

// Minutes returns the delay for p; sunrise has none.
func (d IqamaDelays) Minutes(p Prayer) int {
	switch p {
	case Fajr:
		return d.Fajr
	case Dhuhr:
		return d.Dhuhr
	case Asr:
		return d.Asr
	case Maghrib:
		return d.Maghrib
	case Isha:
		return d.Isha
	}
	return 0
}

// For returns the delay for p as a duration.
func (d IqamaDelays) For(p Prayer) time.Duration {
	return time.Duration(d.Minutes(p)) * time.Minute
}

// Set returns a copy of d with the delay for p replaced. Sunrise is ignored.
func (d IqamaDelays) Set(p Prayer, minutes int) IqamaDelays {
	switch p {
	case Fajr:
		d.Fajr = minutes
	case Dhuhr:
		d.Dhuhr = minutes
	case Asr:
		d.Asr = minutes
	case Maghrib:
		d.Maghrib = minutes
	case Isha:
		d.Isha = minutes
	}
	return d
}

// Validate rejects negative delays.
func (d IqamaDelays) Validate() error {
	for _, p := range Prayers {
		if d.Minutes(p) < 0 {
			return fmt.Errorf("%w: %s delay must not be negative, got %d", ErrInvalidIqamaDelay, p, d.Minutes(p))
		}
	}
	return nil
}

// IqamaTime returns the iqama instant of p in s.
func IqamaTime(s DailySchedule, d IqamaDelays, p Prayer) time.Time {
	return s.Time(p).Add(d.For(p))
}

// State classifies now relative to the day's schedule.
type State int

const (
	// StateBeforeFirstPrayer covers midnight up to Fajr.
	StateBeforeFirstPrayer State = iota
	// StateAdhanWindow runs from an adhan until its iqama.
	StateAdhanWindow
	// StatePrayerActive runs from iqama (or adhan, without delay) until the next boundary.
	StatePrayerActive
)

func (s State) String() string {
	switch s {
	case StateBeforeFirstPrayer:
		return "before_first_prayer"
	case StateAdhanWindow:
		return "adhan_window"
	case StatePrayerActive:
		return "prayer_active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateBeforeFirstPrayer, StateAdhanWindow, StatePrayerActive} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// ScheduleEvent is the next thing a display counts down to.
type ScheduleEvent struct {
	Prayer    Prayer        `json:"prayer"`
	Time      time.Time     `json:"time"`
	IsIqama   bool          `json:"is_iqama"`
	Remaining time.Duration `json:"remaining"`
}

// Evaluation is the result of classifying one instant.
type Evaluation struct {
	State      State         `json:"state"`
	Current    Prayer        `json:"current,omitempty"`
	HasCurrent bool          `json:"has_current"`
	Next       ScheduleEvent `json:"next"`
}

// Timeline is a day's schedule with optional neighbours. Previous lets the
// evaluation name the previous Isha before Fajr; Next gives the exact Fajr
// after Isha instead of a 24 hour extrapolation.
type Timeline struct {
	Previous *DailySchedule
	Current  DailySchedule
	Next     *DailySchedule
}

// Evaluate classifies now against a single day's schedule.
func Evaluate(s DailySchedule, d IqamaDelays, now time.Time) Evaluation {
	return Timeline{Current: s}.Evaluate(d, now)
}

// Covers reports whether now falls between the previous Isha (today's Fajr
// without a previous day) and the next Fajr.
func (tl Timeline) Covers(now time.Time) bool {
	start := tl.Current.Fajr
	if tl.Previous != nil {
		start = tl.Previous.Isha
	}
	return !now.Before(start) && now.Before(tl.nextFajr())
}

func (tl Timeline) nextFajr() time.Time {
	if tl.Next != nil {
		return tl.Next.Fajr
	}
	return tl.Current.Fajr.Add(24 * time.Hour)
}

// Evaluate classifies now. It holds no state: equal inputs give equal output.
// When now lies before the previous Isha or at or after the next Fajr, the
// neighbouring day is evaluated instead.
func (tl Timeline) Evaluate(d IqamaDelays, now time.Time) Evaluation {
	if tl.Previous != nil && now.Before(tl.Previous.Isha) {
		return Timeline{Current: *tl.Previous, Next: &tl.Current}.Evaluate(d, now)
	}
	if tl.Next != nil && !now.Before(tl.Next.Fajr) {
		return Timeline{Previous: &tl.Current, Current: *tl.Next}.Evaluate(d, now)
	}
	s := tl.Current
	var ev Evaluation

	for _, b := range s.Boundaries() {
		if b.Prayer.Congregational() && !now.Before(b.Time) {
			ev.Current, ev.HasCurrent = b.Prayer, true
		}
	}
	if !ev.HasCurrent && tl.Previous != nil {
		ev.Current, ev.HasCurrent = Isha, true
	}

	if now.Before(s.Fajr) {
		ev.State = StateBeforeFirstPrayer
	} else {
		ev.State = StatePrayerActive
	}

	windows := make([]Boundary, 0, len(Prayers))
	if tl.Previous != nil {
		windows = append(windows, Boundary{Prayer: Isha, Time: tl.Previous.Isha})
	}
	for _, b := range s.Boundaries() {
		if b.Prayer.Congregational() {
			windows = append(windows, b)
		}
	}
	for _, w := range windows {
		iqama := w.Time.Add(d.For(w.Prayer))
		if !now.Before(w.Time) && now.Before(iqama) {
			ev.State = StateAdhanWindow
			ev.Next = ScheduleEvent{
				Prayer:    w.Prayer,
				Time:      iqama,
				IsIqama:   true,
				Remaining: iqama.Sub(now),
			}
			return ev
		}
	}

	for _, b := range s.Boundaries() {
		if b.Time.After(now) {
			ev.Next = ScheduleEvent{Prayer: b.Prayer, Time: b.Time, Remaining: b.Time.Sub(now)}
			return ev
		}
	}

	// Without a next day the following Fajr is extrapolated a day at a time.
	nextFajr := tl.nextFajr()
	for !nextFajr.After(now) {
		nextFajr = nextFajr.Add(24 * time.Hour)
	}
	ev.Next = ScheduleEvent{Prayer: Fajr, Time: nextFajr, Remaining: nextFajr.Sub(now)}
	return ev
}

// FormatRemaining renders a duration as HH:MM:SS, truncating sub-seconds.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
