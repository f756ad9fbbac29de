// Package availability turns working hours and booked appointments into the
// ordered slot grid a patient picks from.
package availability

import (
	"fmt"
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// DayHours represents the opening hours for a single day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00"
	Close string `json:"close"` // "18:00"
}

// Span returns open and close as minutes since midnight.
func (h *DayHours) Span() (opens, closes int, err error) {
	opens, err = booking.ParseClock(h.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("availability: open: %w", err)
	}
	closes, err = booking.ParseClock(h.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("availability: close: %w", err)
	}
	return opens, closes, nil
}

// WorkingHours maps weekdays to hours. A nil day is closed.
type WorkingHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// DefaultWorkingHours is the clinic's standard week.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		Monday:    &DayHours{Open: "09:00", Close: "18:00"},
		Tuesday:   &DayHours{Open: "09:00", Close: "18:00"},
		Wednesday: &DayHours{Open: "09:00", Close: "18:00"},
		Thursday:  &DayHours{Open: "09:00", Close: "18:00"},
		Friday:    &DayHours{Open: "09:00", Close: "17:00"},
	}
}

// ForDay returns the hours for the given weekday, nil when closed.
func (w WorkingHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	case time.Sunday:
		return w.Sunday
	}
	return nil
}

// Schedule is the clinic default plus per-professional overrides.
type Schedule struct {
	Default        WorkingHours
	ByProfessional map[string]WorkingHours
}

// DefaultSchedule applies DefaultWorkingHours to everyone.
func DefaultSchedule() Schedule {
	return Schedule{Default: DefaultWorkingHours()}
}

// HoursFor returns the professional's hours on date, nil when not working.
func (s Schedule) HoursFor(professionalID string, date booking.Date) *DayHours {
	if hours, ok := s.ByProfessional[professionalID]; ok {
		return hours.ForDay(date.Weekday())
	}
	return s.Default.ForDay(date.Weekday())
}

// Fits reports whether [start, start+duration) lies inside the professional's
// hours on date.
func (s Schedule) Fits(professionalID string, date booking.Date, start, durationMinutes int) bool {
	hours := s.HoursFor(professionalID, date)
	if hours == nil {
		return false
	}
	opens, closes, err := hours.Span()
	if err != nil {
		return false
	}
	return start >= opens && start+durationMinutes <= closes
}
