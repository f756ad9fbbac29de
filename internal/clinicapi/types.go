package clinicapi

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// Backends in the wild disagree on field names. The wire structs below
// accept every spelling seen so far and normalize() turns them into the
// canonical booking shapes exactly once, here.

type wireTreatment struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Title           string  `json:"title"`
	Category        string  `json:"category"`
	PriceCents      int64   `json:"price_cents"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Duration        int     `json:"duration"`
	VIPExclusive    bool    `json:"vip_exclusive"`
	VIP             bool    `json:"vip"`
}

func (w wireTreatment) normalize() booking.Treatment {
	t := booking.Treatment{
		ID:              w.ID,
		Name:            firstNonEmpty(w.Name, w.Title),
		Category:        w.Category,
		PriceCents:      w.PriceCents,
		DurationMinutes: w.DurationMinutes,
		VIPExclusive:    w.VIPExclusive || w.VIP,
	}
	if t.PriceCents == 0 && w.Price > 0 {
		t.PriceCents = int64(math.Round(w.Price * 100))
	}
	if t.DurationMinutes == 0 {
		t.DurationMinutes = w.Duration
	}
	return t
}

type wireProfessional struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FullName     string   `json:"full_name"`
	Specialty    string   `json:"specialty"`
	Title        string   `json:"title"`
	TreatmentIDs []string `json:"treatment_ids"`
}

func (w wireProfessional) normalize() booking.Professional {
	return booking.Professional{
		ID:           w.ID,
		Name:         firstNonEmpty(w.Name, w.FullName),
		Specialty:    firstNonEmpty(w.Specialty, w.Title),
		TreatmentIDs: w.TreatmentIDs,
	}
}

// looseRef decodes either a bare string ("Facial") or an object.
type looseRef[T any] struct {
	Name   string
	Object *T
}

func (r *looseRef[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.Name)
	}
	var obj T
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.Object = &obj
	return nil
}

type wireAppointment struct {
	ID              string                     `json:"id"`
	PatientID       string                     `json:"patient_id"`
	ClinicID        string                     `json:"clinic_id"`
	Treatment       looseRef[wireTreatment]    `json:"treatment"`
	Service         looseRef[wireTreatment]    `json:"service"`
	TreatmentID     string                     `json:"treatment_id"`
	Professional    looseRef[wireProfessional] `json:"professional"`
	Provider        looseRef[wireProfessional] `json:"provider"`
	ProfessionalID  string                     `json:"professional_id"`
	Date            string                     `json:"date"`
	ScheduledFor    string                     `json:"scheduled_for"`
	Time            string                     `json:"time"`
	DurationMinutes int                        `json:"duration_minutes"`
	Duration        int                        `json:"duration"`
	Status          string                     `json:"status"`
	Rating          *int                       `json:"rating"`
	Notes           string                     `json:"notes"`
	CancelReason    string                     `json:"cancel_reason"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func resolveTreatment(refs ...looseRef[wireTreatment]) booking.Treatment {
	for _, ref := range refs {
		if ref.Object != nil {
			return ref.Object.normalize()
		}
		if ref.Name != "" {
			return booking.Treatment{Name: ref.Name}
		}
	}
	return booking.Treatment{}
}

func resolveProfessional(refs ...looseRef[wireProfessional]) booking.Professional {
	for _, ref := range refs {
		if ref.Object != nil {
			return ref.Object.normalize()
		}
		if ref.Name != "" {
			return booking.Professional{Name: ref.Name}
		}
	}
	return booking.Professional{}
}

// normalize maps the loose record onto booking.Appointment. It fails only
// when the date or status cannot be read at all.
func (w wireAppointment) normalize() (booking.Appointment, error) {
	appt := booking.Appointment{
		ID:           w.ID,
		PatientID:    w.PatientID,
		ClinicID:     w.ClinicID,
		Treatment:    resolveTreatment(w.Treatment, w.Service),
		Professional: resolveProfessional(w.Professional, w.Provider),
		Rating:       w.Rating,
		Notes:        w.Notes,
		CancelReason: w.CancelReason,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if appt.Treatment.ID == "" {
		appt.Treatment.ID = w.TreatmentID
	}
	if appt.Professional.ID == "" {
		appt.Professional.ID = w.ProfessionalID
	}

	clock := strings.TrimSpace(w.Time)
	switch {
	case w.Date != "":
		d, err := booking.ParseDate(w.Date)
		if err != nil {
			return booking.Appointment{}, err
		}
		appt.Date = d
	case w.ScheduledFor != "":
		ts, err := time.Parse(time.RFC3339, w.ScheduledFor)
		if err != nil {
			return booking.Appointment{}, booking.Wrap(booking.ErrInvalidDate, "clinicapi: scheduled_for", err)
		}
		appt.Date = booking.DateOf(ts, nil)
		if clock == "" {
			clock = ts.Format("15:04")
		}
	}
	if normalized, err := booking.NormalizeClock(clock); err == nil {
		clock = normalized
	}
	appt.Time = clock

	status, err := booking.ParseStatus(w.Status)
	if err != nil {
		return booking.Appointment{}, err
	}
	appt.Status = status

	appt.DurationMinutes = w.DurationMinutes
	if appt.DurationMinutes == 0 {
		appt.DurationMinutes = w.Duration
	}
	if appt.DurationMinutes == 0 {
		appt.DurationMinutes = appt.Treatment.DurationMinutes
	}
	return appt, nil
}

type wireSlot struct {
	Time      string `json:"time"`
	Start     string `json:"start"`
	Available *bool  `json:"available"`
	Booked    bool   `json:"booked"`
}

// normalizeSlots converts and sorts a slot list. Slots without a readable
// time are dropped. Without an explicit flag a slot is available unless booked.
func normalizeSlots(date booking.Date, in []wireSlot) []booking.TimeSlot {
	out := make([]booking.TimeSlot, 0, len(in))
	for _, w := range in {
		clock, err := booking.NormalizeClock(firstNonEmpty(w.Time, w.Start))
		if err != nil {
			continue
		}
		available := !w.Booked
		if w.Available != nil {
			available = available && *w.Available
		}
		out = append(out, booking.TimeSlot{Date: date, Time: clock, Available: available})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

type wireDraft struct {
	TreatmentID    string `json:"treatment_id"`
	ProfessionalID string `json:"professional_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Notes          string `json:"notes,omitempty"`
}

func toWireDraft(d booking.Draft) wireDraft {
	return wireDraft{
		TreatmentID:    d.TreatmentID,
		ProfessionalID: d.ProfessionalID,
		Date:           d.Date.String(),
		Time:           d.Time,
		Notes:          d.Notes,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
