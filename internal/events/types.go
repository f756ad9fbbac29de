package events

import "time"

// Event types written to the outbox by the scheduling service.
const (
	TypeAppointmentCreated     = "appointment.created.v1"
	TypeAppointmentCancelled   = "appointment.cancelled.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
)

// AppointmentEventV1 is the payload of every appointment event.
type AppointmentEventV1 struct {
	AppointmentID         string    `json:"appointment_id"`
	PreviousAppointmentID string    `json:"previous_appointment_id,omitempty"`
	ClinicID              string    `json:"clinic_id"`
	PatientID             string    `json:"patient_id"`
	TreatmentID           string    `json:"treatment_id"`
	ProfessionalID        string    `json:"professional_id"`
	Date                  string    `json:"date"`
	Time                  string    `json:"time"`
	DurationMinutes       int       `json:"duration_minutes"`
	Status                string    `json:"status"`
	Reason                string    `json:"reason,omitempty"`
	OccurredAt            time.Time `json:"occurred_at"`
}
