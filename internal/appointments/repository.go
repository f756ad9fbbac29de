// Package appointments owns the signed-in patient's appointment collection on
// the client: every mutation goes through the remote store first and is then
// applied to a local cache that other components only ever read as a copy.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

var appointmentsTracer = otel.Tracer("medspa.internal.appointments")

// RemoteStore is the clinic backend as seen by the repository.
type RemoteStore interface {
	ListAppointments(ctx context.Context) ([]booking.Appointment, error)
	CreateAppointment(ctx context.Context, draft booking.Draft) (booking.Appointment, error)
	CancelAppointment(ctx context.Context, id, reason string) (booking.Appointment, error)
	// RescheduleAppointment atomically cancels id and books draft, returning
	// the new appointment. Backends without the route return
	// booking.ErrRescheduleUnsupported.
	RescheduleAppointment(ctx context.Context, id string, draft booking.Draft) (booking.Appointment, error)
	// SlotAvailable is the final re-check before a booking is sent.
	SlotAvailable(ctx context.Context, professionalID string, date booking.Date, clock string) (bool, error)
}

// Repository is the client-side appointment cache. Safe for concurrent use.
type Repository struct {
	remote RemoteStore
	logger *logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	order    []string
	byID     map[string]booking.Appointment
	inFlight map[string]struct{}
	// version counts local writes; written records the version of each
	// id's latest one so Refresh can tell what changed after its fetch.
	version uint64
	written map[string]uint64
}

// Option configures a Repository.
type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRepository(remote RemoteStore, opts ...Option) *Repository {
	if remote == nil {
		panic("appointments: remote store required")
	}
	r := &Repository{
		remote:   remote,
		logger:   logging.Default(),
		now:      time.Now,
		byID:     make(map[string]booking.Appointment),
		inFlight: make(map[string]struct{}),
		written:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func idKey(id string) string          { return "appointment:" + id }
func draftKey(d booking.Draft) string { return "draft:" + d.Key() }

func errBusy(op, what string) error {
	return booking.E(booking.ErrOperationInProgress, op, what+" already has a mutation in flight")
}

// detach keeps a sent mutation alive after the caller gives up so its
// result still reaches the cache.
func detach(ctx context.Context) context.Context { return context.WithoutCancel(ctx) }

// acquire claims every key or none of them.
func (r *Repository) acquire(op string, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if _, busy := r.inFlight[k]; busy {
			return errBusy(op, k)
		}
	}
	for _, k := range keys {
		r.inFlight[k] = struct{}{}
	}
	return nil
}

func (r *Repository) release(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.inFlight, k)
	}
}

// upsertLocked stores appt, appending new ids at the end. Caller holds r.mu.
func (r *Repository) upsertLocked(appt booking.Appointment) {
	if _, ok := r.byID[appt.ID]; !ok {
		r.order = append(r.order, appt.ID)
	}
	r.byID[appt.ID] = appt.Clone()
	r.touchLocked(appt.ID)
}

func (r *Repository) touchLocked(id string) {
	r.version++
	r.written[id] = r.version
}

// Create books a complete draft. The slot is re-checked against the remote
// store immediately before the booking is sent; a taken slot is
// ErrSlotConflict and the caller restarts from date selection.
func (r *Repository) Create(ctx context.Context, draft booking.Draft) (booking.Appointment, error) {
	const op = "appointments: create"
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(attribute.String("medspa.draft_key", draft.Key()))

	if err := draft.Validate(op); err != nil {
		return booking.Appointment{}, err
	}
	key := draftKey(draft)
	if err := r.acquire(op, key); err != nil {
		return booking.Appointment{}, err
	}
	defer r.release(key)

	available, err := r.remote.SlotAvailable(ctx, draft.ProfessionalID, draft.Date, draft.Time)
	if err != nil {
		span.RecordError(err)
		return booking.Appointment{}, fmt.Errorf("%s: re-check slot: %w", op, err)
	}
	if !available {
		return booking.Appointment{}, booking.E(booking.ErrSlotConflict, op,
			fmt.Sprintf("%s %s was taken", draft.Date, draft.Time))
	}

	appt, err := r.remote.CreateAppointment(detach(ctx), draft)
	if err != nil {
		span.RecordError(err)
		return booking.Appointment{}, err
	}

	r.mu.Lock()
	r.upsertLocked(appt)
	r.mu.Unlock()

	r.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"professional_id", appt.Professional.ID,
		"date", appt.Date.String(),
		"time", appt.Time,
		"status", string(appt.Status),
	)
	return appt.Clone(), nil
}

// Cancel moves a PENDING or CONFIRMED appointment to CANCELLED. Every other
// field of the cached record is left as it was.
func (r *Repository) Cancel(ctx context.Context, id, reason string) error {
	const op = "appointments: cancel"
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("medspa.appointment_id", id))

	key := idKey(id)
	if err := r.acquire(op, key); err != nil {
		return err
	}
	defer r.release(key)
	// Read the status only once the id is ours so a cancel that just
	// finished is seen.
	current, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := booking.Transition(op, current.Status, booking.StatusCancelled); err != nil {
		return err
	}

	remote, err := r.remote.CancelAppointment(detach(ctx), id, reason)
	if err != nil {
		span.RecordError(err)
		return err
	}

	r.mu.Lock()
	r.applyCancelLocked(id, reason, remote.UpdatedAt)
	r.mu.Unlock()

	r.logger.Info("appointment cancelled", "appointment_id", id)
	return nil
}

func (r *Repository) applyCancelLocked(id, reason string, updatedAt time.Time) {
	appt, ok := r.byID[id]
	if !ok {
		return
	}
	appt.Status = booking.StatusCancelled
	appt.CancelReason = reason
	if updatedAt.IsZero() {
		updatedAt = r.now().UTC()
	}
	appt.UpdatedAt = updatedAt
	r.byID[id] = appt
	r.touchLocked(id)
}

// Reschedule replaces appointment id with a booking for draft. Either both
// the cancellation and the new booking take effect or neither does.
func (r *Repository) Reschedule(ctx context.Context, id string, draft booking.Draft) (booking.Appointment, error) {
	const op = "appointments: reschedule"
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("medspa.appointment_id", id))

	if err := draft.Validate(op); err != nil {
		return booking.Appointment{}, err
	}
	keys := []string{idKey(id), draftKey(draft)}
	if err := r.acquire(op, keys...); err != nil {
		return booking.Appointment{}, err
	}
	defer r.release(keys...)
	current, err := r.Get(id)
	if err != nil {
		return booking.Appointment{}, err
	}
	if err := booking.Transition(op, current.Status, booking.StatusCancelled); err != nil {
		return booking.Appointment{}, err
	}

	remoteCtx := detach(ctx)
	created, err := r.remote.RescheduleAppointment(remoteCtx, id, draft)
	if errors.Is(err, booking.ErrRescheduleUnsupported) {
		r.logger.Info("appointments: remote reschedule unsupported, using create then cancel", "appointment_id", id)
		created, err = r.rescheduleByParts(remoteCtx, id, draft)
	}
	if err != nil {
		span.RecordError(err)
		return booking.Appointment{}, err
	}

	r.mu.Lock()
	r.applyCancelLocked(id, "rescheduled", created.CreatedAt)
	r.upsertLocked(created)
	r.mu.Unlock()

	r.logger.Info("appointment rescheduled", "appointment_id", id, "new_appointment_id", created.ID)
	return created.Clone(), nil
}

// rescheduleByParts books the new slot first and only then cancels the old
// one. If the cancel fails the new booking is cancelled again so the patient
// keeps exactly the appointment they had.
func (r *Repository) rescheduleByParts(ctx context.Context, id string, draft booking.Draft) (booking.Appointment, error) {
	const op = "appointments: reschedule"
	available, err := r.remote.SlotAvailable(ctx, draft.ProfessionalID, draft.Date, draft.Time)
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("%s: re-check slot: %w", op, err)
	}
	if !available {
		return booking.Appointment{}, booking.E(booking.ErrSlotConflict, op,
			fmt.Sprintf("%s %s was taken", draft.Date, draft.Time))
	}
	created, err := r.remote.CreateAppointment(ctx, draft)
	if err != nil {
		return booking.Appointment{}, err
	}
	if _, err := r.remote.CancelAppointment(ctx, id, "rescheduled"); err != nil {
		if _, undoErr := r.remote.CancelAppointment(ctx, created.ID, "reschedule rolled back"); undoErr != nil {
			// Both appointments are now live remotely; surface it rather than hide it.
			r.logger.Error("appointments: reschedule compensation failed",
				"appointment_id", id,
				"new_appointment_id", created.ID,
				"error", undoErr,
			)
			r.mu.Lock()
			r.upsertLocked(created)
			r.mu.Unlock()
			return booking.Appointment{}, fmt.Errorf("%s: cancel old: %w (rollback of %s failed: %v)", op, err, created.ID, undoErr)
		}
		return booking.Appointment{}, fmt.Errorf("%s: cancel old: %w", op, err)
	}
	return created, nil
}

// Get returns a copy of one cached appointment.
func (r *Repository) Get(id string) (booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.byID[id]
	if !ok {
		return booking.Appointment{}, booking.E(booking.ErrNotFound, "appointments: get", id)
	}
	return appt.Clone(), nil
}

// Snapshot returns a copy of the cache in insertion order.
func (r *Repository) Snapshot() []booking.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]booking.Appointment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// List returns the cached collection. It never touches the network.
func (r *Repository) List(context.Context) []booking.Appointment {
	return r.Snapshot()
}

// Refresh pulls the collection from the remote store. On failure the cache
// is left untouched and the error is returned; it is never read as "no
// appointments". Records written locally while the fetch was running are
// newer than the fetched list and are kept.
func (r *Repository) Refresh(ctx context.Context) ([]booking.Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.refresh")
	defer span.End()

	r.mu.Lock()
	since := r.version
	r.mu.Unlock()

	remote, err := r.remote.ListAppointments(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: refresh: %w", err)
	}

	r.mu.Lock()
	order := make([]string, 0, len(remote))
	byID := make(map[string]booking.Appointment, len(remote))
	for _, appt := range remote {
		if cached, ok := r.byID[appt.ID]; ok && r.keepCachedLocked(cached, appt, since) {
			appt = cached
		}
		if _, dup := byID[appt.ID]; !dup {
			order = append(order, appt.ID)
		}
		byID[appt.ID] = appt.Clone()
	}
	// Records with a mutation in flight, or written after the fetch began,
	// stay even though the remote list predates them.
	for _, id := range r.order {
		if _, ok := byID[id]; ok {
			continue
		}
		_, busy := r.inFlight[idKey(id)]
		if busy || r.written[id] > since {
			order = append(order, id)
			byID[id] = r.byID[id]
		}
	}
	for id := range r.written {
		if _, ok := byID[id]; !ok {
			delete(r.written, id)
		}
	}
	r.order = order
	r.byID = byID
	r.mu.Unlock()

	r.logger.Debug("appointments refreshed", "count", len(order))
	return r.Snapshot(), nil
}

func (r *Repository) keepCachedLocked(cached, remote booking.Appointment, since uint64) bool {
	if _, busy := r.inFlight[idKey(cached.ID)]; busy {
		return true
	}
	if r.written[cached.ID] > since {
		return true
	}
	return cached.UpdatedAt.After(remote.UpdatedAt)
}
