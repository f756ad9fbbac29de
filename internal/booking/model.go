// Package booking holds the canonical shapes of the clinic scheduling domain:
// the catalog entries, slots, drafts and appointments every other package
// speaks in, plus the error taxonomy shared by client and server.
package booking

import (
	"fmt"
	"strings"
	"time"
)

// Treatment is a bookable service offered by the clinic.
type Treatment struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Category        string `json:"category,omitempty"`
	PriceCents      int64  `json:"price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
	VIPExclusive    bool   `json:"vip_exclusive,omitempty"`
}

// Duration returns the treatment length, defaulting to 30 minutes when unset.
func (t Treatment) Duration() time.Duration {
	if t.DurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Professional is a practitioner who performs treatments.
type Professional struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	// TreatmentIDs lists what the professional performs. Empty means everything.
	TreatmentIDs []string `json:"treatment_ids,omitempty"`
}

// Offers reports whether the professional performs the given treatment.
func (p Professional) Offers(treatmentID string) bool {
	if len(p.TreatmentIDs) == 0 {
		return true
	}
	for _, id := range p.TreatmentIDs {
		if id == treatmentID {
			return true
		}
	}
	return false
}

// Clone copies the treatment list.
func (p Professional) Clone() Professional {
	out := p
	if p.TreatmentIDs != nil {
		out.TreatmentIDs = append([]string(nil), p.TreatmentIDs...)
	}
	return out
}

// TimeSlot is one cell of a professional's daily grid.
type TimeSlot struct {
	Date      Date   `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Draft is the partially filled booking assembled by the wizard.
type Draft struct {
	TreatmentID    string `json:"treatment_id"`
	ProfessionalID string `json:"professional_id"`
	Date           Date   `json:"date"`
	Time           string `json:"time"`
	Notes          string `json:"notes,omitempty"`
}

// Missing lists the unset required fields in wizard order.
func (d Draft) Missing() []string {
	var missing []string
	if strings.TrimSpace(d.TreatmentID) == "" {
		missing = append(missing, "treatment")
	}
	if strings.TrimSpace(d.ProfessionalID) == "" {
		missing = append(missing, "professional")
	}
	if d.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(d.Time) == "" {
		missing = append(missing, "time")
	}
	return missing
}

// Complete reports whether treatment, professional, date and time are all set.
func (d Draft) Complete() bool {
	return len(d.Missing()) == 0
}

// Validate returns ErrIncompleteBooking naming the missing fields, or an
// ErrInvalidDate error when the time is not a valid HH:MM clock.
func (d Draft) Validate(op string) error {
	if missing := d.Missing(); len(missing) > 0 {
		return E(ErrIncompleteBooking, op, "missing "+strings.Join(missing, ", "))
	}
	if _, err := ParseClock(d.Time); err != nil {
		return Wrap(ErrInvalidDate, op, err)
	}
	return nil
}

// Key identifies the slot a draft targets. Two submissions with the same key
// are the same booking attempt.
func (d Draft) Key() string {
	return strings.Join([]string{d.TreatmentID, d.ProfessionalID, d.Date.String(), d.Time}, "|")
}

// Equal compares the booking fields and notes of two drafts.
func (d Draft) Equal(other Draft) bool {
	return d == other
}

// Appointment is a confirmed or pending booking owned by a patient.
type Appointment struct {
	ID              string       `json:"id"`
	PatientID       string       `json:"patient_id"`
	ClinicID        string       `json:"clinic_id,omitempty"`
	Treatment       Treatment    `json:"treatment"`
	Professional    Professional `json:"professional"`
	Date            Date         `json:"date"`
	Time            string       `json:"time"`
	DurationMinutes int          `json:"duration_minutes"`
	Status          Status       `json:"status"`
	Rating          *int         `json:"rating,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Matches reports whether the appointment books exactly what the draft asked for.
func (a Appointment) Matches(d Draft) bool {
	return a.Treatment.ID == d.TreatmentID &&
		a.Professional.ID == d.ProfessionalID &&
		a.Date == d.Date &&
		a.Time == d.Time
}

// Interval returns the occupied span in minutes since midnight.
func (a Appointment) Interval() (start, end int, err error) {
	start, err = ParseClock(a.Time)
	if err != nil {
		return 0, 0, fmt.Errorf("booking: appointment %s: %w", a.ID, err)
	}
	duration := a.DurationMinutes
	if duration <= 0 {
		duration = a.Treatment.DurationMinutes
	}
	if duration <= 0 {
		duration = 30
	}
	return start, start + duration, nil
}

// Clone returns a deep copy so callers cannot alias cached state.
func (a Appointment) Clone() Appointment {
	out := a
	if a.Rating != nil {
		r := *a.Rating
		out.Rating = &r
	}
	out.Professional = a.Professional.Clone()
	return out
}
