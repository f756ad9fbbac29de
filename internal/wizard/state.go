// Package wizard is the five-step booking flow as an explicit state machine.
//
// State is an immutable value with pure transitions; Session wraps it with
// the catalog, slot and submission ports and enforces that only one blocking
// step runs at a time.
package wizard

import (
	"fmt"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// Step is the wizard position. Steps 1 to 5 are editable, Submitted is terminal.
type Step int

const (
	StepSelectingTreatment Step = iota + 1
	StepSelectingProfessional
	StepSelectingDate
	StepSelectingTime
	StepReviewingSummary
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepSelectingTreatment:
		return "selecting_treatment"
	case StepSelectingProfessional:
		return "selecting_professional"
	case StepSelectingDate:
		return "selecting_date"
	case StepSelectingTime:
		return "selecting_time"
	case StepReviewingSummary:
		return "reviewing_summary"
	case StepSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// State is one immutable wizard snapshot. Transition methods return a new
// State and never modify the receiver.
type State struct {
	Step         Step
	Draft        booking.Draft
	Treatment    *booking.Treatment
	Professional *booking.Professional
	Slots        []booking.TimeSlot
	Appointment  *booking.Appointment
}

// Start is the empty wizard.
func Start() State {
	return State{Step: StepSelectingTreatment}
}

func (s State) expect(op string, step Step) error {
	if s.Step != step {
		return booking.E(booking.ErrInvalidStep, op, fmt.Sprintf("wizard is %s, want %s", s.Step, step))
	}
	return nil
}

// SelectTreatment records the treatment and moves to professional selection.
func (s State) SelectTreatment(t booking.Treatment) (State, error) {
	const op = "wizard: select treatment"
	if err := s.expect(op, StepSelectingTreatment); err != nil {
		return s, err
	}
	next := s.clearFrom(StepSelectingTreatment)
	next.Draft.TreatmentID = t.ID
	next.Treatment = &t
	next.Step = StepSelectingProfessional
	return next, nil
}

// SelectProfessional records the professional and moves to date selection.
// The professional must offer the chosen treatment.
func (s State) SelectProfessional(p booking.Professional) (State, error) {
	const op = "wizard: select professional"
	if err := s.expect(op, StepSelectingProfessional); err != nil {
		return s, err
	}
	if s.Draft.TreatmentID == "" {
		return s, booking.E(booking.ErrIncompleteBooking, op, "treatment not selected")
	}
	if !p.Offers(s.Draft.TreatmentID) {
		return s, booking.E(booking.ErrNotFound, op, fmt.Sprintf("%s does not offer %s", p.ID, s.Draft.TreatmentID))
	}
	next := s.clearFrom(StepSelectingProfessional)
	next.Draft.ProfessionalID = p.ID
	next.Professional = &p
	next.Step = StepSelectingDate
	return next, nil
}

// CheckDate validates a date pick before slots are resolved.
func (s State) CheckDate(d, today booking.Date) error {
	const op = "wizard: select date"
	if err := s.expect(op, StepSelectingDate); err != nil {
		return err
	}
	if s.Draft.ProfessionalID == "" {
		return booking.E(booking.ErrIncompleteBooking, op, "professional not selected")
	}
	if d.IsZero() || d.Before(today) {
		return booking.E(booking.ErrInvalidDate, op, fmt.Sprintf("%s is in the past", d))
	}
	return nil
}

// WithSlots applies a resolved slot list for d and moves to time selection.
func (s State) WithSlots(d, today booking.Date, slots []booking.TimeSlot) (State, error) {
	if err := s.CheckDate(d, today); err != nil {
		return s, err
	}
	next := s.clearFrom(StepSelectingDate)
	next.Draft.Date = d
	next.Slots = append([]booking.TimeSlot{}, slots...)
	next.Step = StepSelectingTime
	return next, nil
}

// SelectTime picks an available slot from the current list.
func (s State) SelectTime(clock string) (State, error) {
	const op = "wizard: select time"
	if err := s.expect(op, StepSelectingTime); err != nil {
		return s, err
	}
	normalized, err := booking.NormalizeClock(clock)
	if err != nil {
		return s, booking.Wrap(booking.ErrSlotUnavailable, op, err)
	}
	for _, slot := range s.Slots {
		if slot.Time != normalized {
			continue
		}
		if !slot.Available {
			break
		}
		next := s.clearFrom(StepSelectingTime)
		next.Draft.Time = normalized
		next.Step = StepReviewingSummary
		return next, nil
	}
	return s, booking.E(booking.ErrSlotUnavailable, op, fmt.Sprintf("%s is not an available slot", normalized))
}

// EditStep rewinds to step n, clearing that step's field and every later one.
func (s State) EditStep(n Step) (State, error) {
	const op = "wizard: edit step"
	if s.Step == StepSubmitted {
		return s, booking.E(booking.ErrInvalidStep, op, "booking already submitted")
	}
	if n < StepSelectingTreatment || n > StepSelectingTime || n > s.Step {
		return s, booking.E(booking.ErrInvalidStep, op, fmt.Sprintf("cannot edit %s from %s", n, s.Step))
	}
	next := s.clearFrom(n)
	next.Step = n
	return next, nil
}

// CanSubmit reports whether all four selections are present in review.
func (s State) CanSubmit() bool {
	return s.Step == StepReviewingSummary && s.Draft.Complete()
}

// Submitted records the created appointment.
func (s State) Submitted(appt booking.Appointment) State {
	next := s
	next.Appointment = &appt
	next.Step = StepSubmitted
	return next
}

// clearFrom drops the field owned by step n and everything after it.
func (s State) clearFrom(n Step) State {
	next := s
	next.Appointment = nil
	if n <= StepSelectingTreatment {
		next.Draft.TreatmentID = ""
		next.Treatment = nil
	}
	if n <= StepSelectingProfessional {
		next.Draft.ProfessionalID = ""
		next.Professional = nil
	}
	if n <= StepSelectingDate {
		next.Draft.Date = booking.Date{}
		next.Slots = nil
	}
	if n <= StepSelectingTime {
		next.Draft.Time = ""
		next.Draft.Notes = ""
	}
	return next
}

// clone deep-copies the slices and pointers so snapshots never alias.
func (s State) clone() State {
	out := s
	if s.Slots != nil {
		out.Slots = append([]booking.TimeSlot{}, s.Slots...)
	}
	if s.Treatment != nil {
		t := *s.Treatment
		out.Treatment = &t
	}
	if s.Professional != nil {
		p := s.Professional.Clone()
		out.Professional = &p
	}
	if s.Appointment != nil {
		a := s.Appointment.Clone()
		out.Appointment = &a
	}
	return out
}
