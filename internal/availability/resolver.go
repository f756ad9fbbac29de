package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

var availabilityTracer = otel.Tracer("medspa.internal.availability")

// ProfessionalFinder resolves a professional from the catalog.
type ProfessionalFinder interface {
	Professional(ctx context.Context, id string) (booking.Professional, error)
}

// AppointmentSource returns the appointments already booked for a
// professional on a day, in any status.
type AppointmentSource interface {
	AppointmentsFor(ctx context.Context, professionalID string, date booking.Date) ([]booking.Appointment, error)
}

// Resolver computes slot grids. It holds no mutable state.
type Resolver struct {
	professionals ProfessionalFinder
	appointments  AppointmentSource
	schedule      Schedule
	interval      time.Duration
	loc           *time.Location
	now           func() time.Time
	logger        *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithSchedule(s Schedule) Option { return func(r *Resolver) { r.schedule = s } }

func WithInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLocation sets the clinic zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a resolver over the catalog and appointment source.
func NewResolver(professionals ProfessionalFinder, appointments AppointmentSource, opts ...Option) *Resolver {
	if professionals == nil {
		panic("availability: professional finder required")
	}
	if appointments == nil {
		panic("availability: appointment source required")
	}
	r := &Resolver{
		professionals: professionals,
		appointments:  appointments,
		schedule:      DefaultSchedule(),
		interval:      DefaultInterval,
		loc:           time.UTC,
		now:           time.Now,
		logger:        logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule exposes the working hours the resolver lays grids over.
func (r *Resolver) Schedule() Schedule { return r.schedule }

// Location is the clinic zone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Today is the current clinic day.
func (r *Resolver) Today() booking.Date { return booking.Today(r.now(), r.loc) }

// GetSlots returns the ordered grid for professionalID on date.
//
// Past dates fail with ErrInvalidDate and unknown professionals with
// ErrNotFound. A failure loading booked appointments is
// ErrAvailabilityUnavailable and is retryable. On today's date, slots that
// already started are reported unavailable.
func (r *Resolver) GetSlots(ctx context.Context, professionalID string, date booking.Date) ([]booking.TimeSlot, error) {
	const op = "availability: get slots"
	ctx, span := availabilityTracer.Start(ctx, "availability.get_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.professional_id", professionalID),
		attribute.String("medspa.date", date.String()),
	)

	now := r.now().In(r.loc)
	today := booking.DateOf(now, r.loc)
	if date.IsZero() || date.Before(today) {
		return nil, booking.E(booking.ErrInvalidDate, op, fmt.Sprintf("%s is before %s", date, today))
	}

	if _, err := r.professionals.Professional(ctx, professionalID); err != nil {
		span.RecordError(err)
		if errors.Is(err, booking.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, booking.Wrap(booking.ErrAvailabilityUnavailable, op, err)
	}

	hours := r.schedule.HoursFor(professionalID, date)
	if hours == nil {
		return []booking.TimeSlot{}, nil
	}

	appts, err := r.appointments.AppointmentsFor(ctx, professionalID, date)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("availability: load booked appointments failed",
			"professional_id", professionalID,
			"date", date.String(),
			"error", err,
		)
		return nil, booking.Wrap(booking.ErrAvailabilityUnavailable, op, err)
	}

	slots := BuildSlots(date, hours, r.interval, BookedIntervals(appts, professionalID, date))
	if date == today {
		MarkElapsed(slots, now.Hour()*60+now.Minute())
	}
	return slots, nil
}
