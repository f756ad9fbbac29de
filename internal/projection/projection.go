// Package projection splits an appointment collection into the upcoming and
// history tabs. Everything here is a pure function of its inputs.
package projection

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// Tab selects which view of the collection to build.
type Tab string

const (
	TabUpcoming Tab = "upcoming"
	TabHistory  Tab = "history"
)

// ParseTab accepts "upcoming" or "history" in any case.
func ParseTab(raw string) (Tab, error) {
	switch Tab(strings.ToLower(strings.TrimSpace(raw))) {
	case TabUpcoming:
		return TabUpcoming, nil
	case TabHistory:
		return TabHistory, nil
	default:
		return "", fmt.Errorf("projection: unknown tab %q", raw)
	}
}

// IsUpcoming reports whether appt belongs on the upcoming tab on day today.
// The cutoff is by date only: an active appointment later today or earlier
// today is still upcoming until the day ends.
func IsUpcoming(appt booking.Appointment, today booking.Date) bool {
	return appt.Status.Active() && !appt.Date.Before(today)
}

// Project filters and orders appointments for tab as of now in loc. The
// input slice is never modified and ties keep their input order. A tab
// other than TabUpcoming or TabHistory yields an empty view.
func Project(appointments []booking.Appointment, tab Tab, now time.Time, loc *time.Location) []booking.Appointment {
	out := make([]booking.Appointment, 0, len(appointments))
	if tab != TabUpcoming && tab != TabHistory {
		return out
	}
	today := booking.DateOf(now, loc)
	for _, appt := range appointments {
		if IsUpcoming(appt, today) == (tab == TabUpcoming) {
			out = append(out, appt.Clone())
		}
	}
	if tab == TabUpcoming {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return less(out[j], out[i]) })
	}
	return out
}

// Partition builds both tabs in one call.
func Partition(appointments []booking.Appointment, now time.Time, loc *time.Location) (upcoming, history []booking.Appointment) {
	return Project(appointments, TabUpcoming, now, loc), Project(appointments, TabHistory, now, loc)
}

// less orders by (date, time). Unparseable times sort after valid ones.
func less(a, b booking.Appointment) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	return clockKey(a.Time) < clockKey(b.Time)
}

func clockKey(raw string) int {
	m, err := booking.ParseClock(raw)
	if err != nil {
		return 24 * 60
	}
	return m
}
