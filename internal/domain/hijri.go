package domain

import (
	"fmt"
	"time"
)

// HijriDate is a date in the tabular Islamic calendar.
type HijriDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// RamadanMonth is the ninth month of the Hijri year.
const RamadanMonth = 9

//nolint:gochecknoglobals // Read-only lookup table.
var hijriMonthNames = [...]string{
	"Muharram", "Safar", "Rabi' al-Awwal", "Rabi' al-Thani",
	"Jumada al-Awwal", "Jumada al-Thani", "Rajab", "Sha'ban",
	"Ramadan", "Shawwal", "Dhu al-Qi'dah", "Dhu al-Hijjah",
}

// ToHijri converts the calendar date of t (in t's location) using the
// arithmetical (Kuwaiti) algorithm. It can differ by a day from sighting
// based calendars.
func ToHijri(t time.Time) HijriDate {
	y, m, d := t.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	jd := int(days) + 2440588

	l := jd - 1948440 + 10632
	n := (l - 1) / 10631
	l = l - 10631*n + 354
	j := ((10985-l)/5316)*((50*l)/17719) + (l/5670)*((43*l)/15238)
	l = l - ((30-j)/15)*((17719*j)/50) - (j/16)*((15238*j)/43) + 29
	month := (24 * l) / 709
	day := l - (709*month)/24
	year := 30*n + j - 30

	return HijriDate{Year: year, Month: month, Day: day}
}

// MonthName returns the transliterated month name.
func (h HijriDate) MonthName() string {
	if h.Month < 1 || h.Month > len(hijriMonthNames) {
		return ""
	}
	return hijriMonthNames[h.Month-1]
}

// IsRamadan reports whether h falls in Ramadan.
func (h HijriDate) IsRamadan() bool {
	return h.Month == RamadanMonth
}

func (h HijriDate) String() string {
	return fmt.Sprintf("%d %s %d", h.Day, h.MonthName(), h.Year)
}
