package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medspa-booking/internal/availability"
	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/events"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

var schedulingTracer = otel.Tracer("medspa.internal.scheduling")

// Catalog resolves what is being booked.
type Catalog interface {
	Treatment(ctx context.Context, id string) (booking.Treatment, error)
	Professional(ctx context.Context, id string) (booking.Professional, error)
}

// Service is the authoritative booking backend: it owns the slot check and
// every status change, each in a single transaction with its outbox event.
type Service struct {
	store       *Store
	catalog     Catalog
	resolver    *availability.Resolver
	outbox      *events.OutboxStore
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
	clinicID    string
	autoConfirm bool
	now         func() time.Time
}

type Option func(*Service)

func WithClinicID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.clinicID = id
		}
	}
}

// WithAutoConfirm books straight to CONFIRMED instead of PENDING.
func WithAutoConfirm(v bool) Option { return func(s *Service) { s.autoConfirm = v } }

func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store *Store, catalog Catalog, resolver *availability.Resolver, outbox *events.OutboxStore, opts ...Option) *Service {
	if store == nil || catalog == nil || resolver == nil || outbox == nil {
		panic("scheduling: store, catalog, resolver and outbox are required")
	}
	s := &Service{
		store:    store,
		catalog:  catalog,
		resolver: resolver,
		outbox:   outbox,
		logger:   logging.Default(),
		clinicID: "default",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Availability returns the slot grid for a professional on date.
func (s *Service) Availability(ctx context.Context, professionalID string, date booking.Date) ([]booking.TimeSlot, error) {
	started := s.now()
	slots, err := s.resolver.GetSlots(ctx, professionalID, date)
	s.metrics.ObserveAvailability(err == nil, s.now().Sub(started).Seconds())
	return slots, err
}

// List returns the patient's appointments in any status.
func (s *Service) List(ctx context.Context, patientID string) ([]booking.Appointment, error) {
	appts, err := s.store.ListByPatient(ctx, s.clinicID, patientID)
	if err != nil {
		return nil, booking.Wrap(booking.ErrRemote, "scheduling: list", err)
	}
	if appts == nil {
		appts = []booking.Appointment{}
	}
	return appts, nil
}

type prepared struct {
	treatment    booking.Treatment
	professional booking.Professional
	start        int
	duration     int
}

// prepare checks everything about a draft that does not need a lock.
func (s *Service) prepare(ctx context.Context, op string, draft booking.Draft) (prepared, error) {
	if err := draft.Validate(op); err != nil {
		return prepared{}, err
	}
	treatment, err := s.catalog.Treatment(ctx, draft.TreatmentID)
	if err != nil {
		return prepared{}, fmt.Errorf("%s: %w", op, err)
	}
	professional, err := s.catalog.Professional(ctx, draft.ProfessionalID)
	if err != nil {
		return prepared{}, fmt.Errorf("%s: %w", op, err)
	}
	if !professional.Offers(treatment.ID) {
		return prepared{}, booking.E(booking.ErrNotFound, op,
			fmt.Sprintf("%s does not offer %s", professional.Name, treatment.Name))
	}
	start, err := booking.ParseClock(draft.Time)
	if err != nil {
		return prepared{}, booking.Wrap(booking.ErrInvalidDate, op, err)
	}

	loc := s.resolver.Location()
	now := s.now().In(loc)
	today := booking.DateOf(now, loc)
	if draft.Date.Before(today) {
		return prepared{}, booking.E(booking.ErrInvalidDate, op, fmt.Sprintf("%s is before %s", draft.Date, today))
	}
	if draft.Date == today && start < now.Hour()*60+now.Minute() {
		return prepared{}, booking.E(booking.ErrSlotUnavailable, op, draft.Time+" has already started")
	}

	duration := treatment.DurationMinutes
	if duration <= 0 {
		duration = int(availability.DefaultInterval / time.Minute)
	}
	if !s.resolver.Schedule().Fits(professional.ID, draft.Date, start, duration) {
		return prepared{}, booking.E(booking.ErrSlotUnavailable, op, draft.Time+" is outside working hours")
	}
	return prepared{treatment: treatment, professional: professional, start: start, duration: duration}, nil
}

func conflicts(day []booking.Appointment, professionalID string, date booking.Date, start, duration int, ignoreID string) bool {
	want := availability.Interval{Start: start, End: start + duration}
	var others []booking.Appointment
	for _, appt := range day {
		if appt.ID != ignoreID {
			others = append(others, appt)
		}
	}
	for _, iv := range availability.BookedIntervals(others, professionalID, date) {
		if iv.Overlaps(want) {
			return true
		}
	}
	return false
}

func (s *Service) newAppointment(patientID string, draft booking.Draft, p prepared) booking.Appointment {
	now := s.now().UTC()
	status := booking.StatusPending
	if s.autoConfirm {
		status = booking.StatusConfirmed
	}
	return booking.Appointment{
		ID:              uuid.New().String(),
		PatientID:       patientID,
		ClinicID:        s.clinicID,
		Treatment:       p.treatment,
		Professional:    p.professional,
		Date:            draft.Date,
		Time:            booking.FormatClock(p.start),
		DurationMinutes: p.duration,
		Status:          status,
		Notes:           draft.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Service) event(appt booking.Appointment, previousID, reason string) events.AppointmentEventV1 {
	return events.AppointmentEventV1{
		AppointmentID:         appt.ID,
		PreviousAppointmentID: previousID,
		ClinicID:              appt.ClinicID,
		PatientID:             appt.PatientID,
		TreatmentID:           appt.Treatment.ID,
		ProfessionalID:        appt.Professional.ID,
		Date:                  appt.Date.String(),
		Time:                  appt.Time,
		DurationMinutes:       appt.DurationMinutes,
		Status:                string(appt.Status),
		Reason:                reason,
		OccurredAt:            appt.UpdatedAt,
	}
}

func recordErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Create books draft for patientID. The slot is re-checked under a lock on
// the professional-day using the treatment's real duration.
func (s *Service) Create(ctx context.Context, patientID string, draft booking.Draft) (booking.Appointment, error) {
	const op = "scheduling: create"
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.patient_id", patientID),
		attribute.String("medspa.professional_id", draft.ProfessionalID),
		attribute.String("medspa.date", draft.Date.String()),
	)

	p, err := s.prepare(ctx, op, draft)
	if err != nil {
		return booking.Appointment{}, recordErr(span, err)
	}
	appt := s.newAppointment(patientID, draft, p)

	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		day, err := s.store.lockDay(ctx, tx, p.professional.ID, draft.Date)
		if err != nil {
			return err
		}
		if conflicts(day, p.professional.ID, draft.Date, p.start, p.duration, "") {
			return booking.E(booking.ErrSlotConflict, op, draft.Time+" was just booked")
		}
		if err := s.store.insert(ctx, tx, appt); err != nil {
			return err
		}
		_, err = s.outbox.InsertTx(ctx, tx, s.clinicID, events.TypeAppointmentCreated, s.event(appt, "", ""))
		return err
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotConflict) {
			s.metrics.ObserveConflict("create")
			s.logger.Info("slot conflict on create", "professional_id", draft.ProfessionalID, "date", draft.Date.String(), "time", draft.Time)
		}
		return booking.Appointment{}, recordErr(span, s.storeErr(op, err))
	}

	s.metrics.ObserveCreated(string(appt.Status))
	s.logger.Info("appointment created", "appointment_id", appt.ID, "patient_id", patientID, "status", appt.Status)
	return appt, nil
}

// Cancel moves the patient's appointment to CANCELLED.
func (s *Service) Cancel(ctx context.Context, patientID, id, reason string) (booking.Appointment, error) {
	const op = "scheduling: cancel"
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("medspa.appointment_id", id))

	var out booking.Appointment
	var from booking.Status
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		appt, err := s.owned(ctx, tx, op, patientID, id)
		if err != nil {
			return err
		}
		if err := booking.Transition(op, appt.Status, booking.StatusCancelled); err != nil {
			return err
		}
		prev := appt.Status
		appt.Status = booking.StatusCancelled
		appt.CancelReason = reason
		appt.UpdatedAt = s.now().UTC()
		if err := s.store.updateStatus(ctx, tx, appt.ID, appt.Status, reason, appt.UpdatedAt); err != nil {
			return err
		}
		if _, err := s.outbox.InsertTx(ctx, tx, appt.ClinicID, events.TypeAppointmentCancelled, s.event(appt, "", reason)); err != nil {
			return err
		}
		out = appt
		from = prev
		return nil
	})
	if err != nil {
		return booking.Appointment{}, recordErr(span, s.storeErr(op, err))
	}
	s.metrics.ObserveTransition(string(from), string(out.Status))
	s.logger.Info("appointment cancelled", "appointment_id", id, "patient_id", patientID)
	return out, nil
}

// Reschedule cancels id and books draft in one transaction, so either both
// happen or neither does. The old appointment does not block the new slot.
func (s *Service) Reschedule(ctx context.Context, patientID, id string, draft booking.Draft) (booking.Appointment, booking.Appointment, error) {
	const op = "scheduling: reschedule"
	ctx, span := schedulingTracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.appointment_id", id),
		attribute.String("medspa.date", draft.Date.String()),
	)

	p, err := s.prepare(ctx, op, draft)
	if err != nil {
		return booking.Appointment{}, booking.Appointment{}, recordErr(span, err)
	}
	created := s.newAppointment(patientID, draft, p)

	var cancelled booking.Appointment
	var from booking.Status
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		// Day locks come before any row lock, as in Create.
		peek, err := s.store.get(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if peek.PatientID != patientID {
			return booking.E(booking.ErrNotFound, op, "appointment "+id)
		}
		if err := s.store.lockDays(ctx, tx,
			dayKey(peek.Professional.ID, peek.Date),
			dayKey(p.professional.ID, draft.Date),
		); err != nil {
			return err
		}
		old, err := s.owned(ctx, tx, op, patientID, id)
		if err != nil {
			return err
		}
		if err := booking.Transition(op, old.Status, booking.StatusCancelled); err != nil {
			return err
		}
		day, err := s.store.activeDay(ctx, tx, p.professional.ID, draft.Date)
		if err != nil {
			return err
		}
		if conflicts(day, p.professional.ID, draft.Date, p.start, p.duration, old.ID) {
			return booking.E(booking.ErrSlotConflict, op, draft.Time+" is taken")
		}
		if !s.autoConfirm && old.Status == booking.StatusConfirmed {
			created.Status = booking.StatusConfirmed
		}
		from = old.Status
		old.Status = booking.StatusCancelled
		old.CancelReason = "rescheduled"
		old.UpdatedAt = created.UpdatedAt
		if err := s.store.updateStatus(ctx, tx, old.ID, old.Status, old.CancelReason, old.UpdatedAt); err != nil {
			return err
		}
		if err := s.store.insert(ctx, tx, created); err != nil {
			return err
		}
		if _, err := s.outbox.InsertTx(ctx, tx, s.clinicID, events.TypeAppointmentRescheduled, s.event(created, old.ID, "")); err != nil {
			return err
		}
		cancelled = old
		return nil
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotConflict) {
			s.metrics.ObserveConflict("reschedule")
		}
		return booking.Appointment{}, booking.Appointment{}, recordErr(span, s.storeErr(op, err))
	}
	s.metrics.ObserveTransition(string(from), string(booking.StatusCancelled))
	s.logger.Info("appointment rescheduled", "appointment_id", created.ID, "previous_id", id, "patient_id", patientID)
	return created, cancelled, nil
}

// owned loads id for update and hides appointments of other patients.
func (s *Service) owned(ctx context.Context, tx Querier, op, patientID, id string) (booking.Appointment, error) {
	appt, err := s.store.get(ctx, tx, id, true)
	if err != nil {
		return booking.Appointment{}, err
	}
	if appt.PatientID != patientID {
		return booking.Appointment{}, booking.E(booking.ErrNotFound, op, "appointment "+id)
	}
	return appt, nil
}

// storeErr keeps taxonomy errors and marks everything else as a retryable
// backend failure.
func (s *Service) storeErr(op string, err error) error {
	var be *booking.Error
	if errors.As(err, &be) {
		return err
	}
	s.logger.Error("scheduling store failure", "op", op, "error", err)
	return booking.Wrap(booking.ErrRemote, op, err)
}
