package availability

import (
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// DefaultInterval is the grid step and the nominal slot length.
const DefaultInterval = 30 * time.Minute

// Interval is a half-open span [Start, End) in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether the two half-open spans intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}

// BookedIntervals collects the spans occupied on date by the professional's
// non-cancelled appointments. Rows with unreadable times are skipped.
func BookedIntervals(appointments []booking.Appointment, professionalID string, date booking.Date) []Interval {
	out := make([]Interval, 0, len(appointments))
	for _, appt := range appointments {
		if appt.Status == booking.StatusCancelled {
			continue
		}
		if appt.Professional.ID != professionalID || appt.Date != date {
			continue
		}
		start, end, err := appt.Interval()
		if err != nil {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

// BuildSlots lays out the grid for one day. A slot exists for every
// interval-aligned start whose full interval fits before close; it is
// unavailable when it overlaps any booked span. Output is ascending and never
// omits a grid cell. Closed days yield an empty, non-nil slice.
func BuildSlots(date booking.Date, hours *DayHours, interval time.Duration, booked []Interval) []booking.TimeSlot {
	slots := []booking.TimeSlot{}
	if hours == nil {
		return slots
	}
	opens, closes, err := hours.Span()
	if err != nil {
		return slots
	}
	step := int(interval / time.Minute)
	if step <= 0 {
		step = int(DefaultInterval / time.Minute)
	}
	for start := opens; start+step <= closes; start += step {
		cell := Interval{Start: start, End: start + step}
		available := true
		for _, b := range booked {
			if cell.Overlaps(b) {
				available = false
				break
			}
		}
		slots = append(slots, booking.TimeSlot{
			Date:      date,
			Time:      booking.FormatClock(start),
			Available: available,
		})
	}
	return slots
}

// MarkElapsed flips slots starting before nowMinutes to unavailable.
func MarkElapsed(slots []booking.TimeSlot, nowMinutes int) {
	for i := range slots {
		start, err := booking.ParseClock(slots[i].Time)
		if err != nil || start < nowMinutes {
			slots[i].Available = false
		}
	}
}
