package domain

import (
	"sort"
	"time"
)

// NotificationKind distinguishes adhan from iqama reminders.
type NotificationKind string

const (
	NotifyAdhan NotificationKind = "adhan"
	NotifyIqama NotificationKind = "iqama"
)

// Notification is an instant a reminder should fire at.
type Notification struct {
	Prayer Prayer           `json:"prayer"`
	Kind   NotificationKind `json:"kind"`
	At     time.Time        `json:"at"`
}

// DueNotifications lists the adhan and iqama instants in [from, to), in
// time order. Sunrise has no reminder and an iqama with no delay coincides
// with its adhan, so neither is listed.
func DueNotifications(s DailySchedule, d IqamaDelays, from, to time.Time) []Notification {
	var out []Notification
	within := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }

	for _, b := range s.Boundaries() {
		if !b.Prayer.Congregational() {
			continue
		}
		if within(b.Time) {
			out = append(out, Notification{Prayer: b.Prayer, Kind: NotifyAdhan, At: b.Time})
		}
		if d.Minutes(b.Prayer) > 0 {
			iq := b.Time.Add(d.For(b.Prayer))
			if within(iq) {
				out = append(out, Notification{Prayer: b.Prayer, Kind: NotifyIqama, At: iq})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
