package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

// ErrAbandoned is returned to a blocking call whose session was abandoned
// while it ran. Its result was not applied.
var ErrAbandoned = errors.New("wizard: session abandoned")

// Catalog resolves the selections by id.
type Catalog interface {
	Treatment(ctx context.Context, id string) (booking.Treatment, error)
	Professional(ctx context.Context, id string) (booking.Professional, error)
}

// SlotSource is the availability resolver port.
type SlotSource interface {
	GetSlots(ctx context.Context, professionalID string, date booking.Date) ([]booking.TimeSlot, error)
}

// Submitter is the appointment repository port.
type Submitter interface {
	Create(ctx context.Context, draft booking.Draft) (booking.Appointment, error)
}

// Session drives one wizard run. It is safe for concurrent use; while a
// blocking step is in flight every other step is rejected with
// ErrStepInFlight and a second Submit with ErrOperationInProgress.
type Session struct {
	mu         sync.Mutex
	state      State
	inFlight   bool
	submitting bool
	generation uint64

	catalog   Catalog
	slots     SlotSource
	submitter Submitter
	now       func() time.Time
	loc       *time.Location
	logger    *logging.Logger
}

// Option configures a Session.
type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession starts an empty wizard.
func NewSession(catalog Catalog, slots SlotSource, submitter Submitter, opts ...Option) *Session {
	if catalog == nil || slots == nil || submitter == nil {
		panic("wizard: catalog, slot source and submitter are required")
	}
	s := &Session{
		state:     Start(),
		catalog:   catalog,
		slots:     slots,
		submitter: submitter,
		now:       time.Now,
		loc:       time.UTC,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) today() booking.Date {
	return booking.Today(s.now(), s.loc)
}

// begin claims the single in-flight slot after precheck accepts the current state.
func (s *Session) begin(op string, precheck func(State) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight || s.submitting {
		return 0, booking.E(booking.ErrStepInFlight, op, "previous step still resolving")
	}
	if err := precheck(s.state); err != nil {
		return 0, err
	}
	s.inFlight = true
	return s.generation, nil
}

// finish applies a blocking step's outcome unless the session moved on.
func (s *Session) finish(gen uint64, apply func(State) (State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrAbandoned
	}
	s.inFlight = false
	next, err := apply(s.state)
	if err != nil {
		return err
	}
	s.state = next
	s.logger.Debug("wizard: step advanced", "step", next.Step.String())
	return nil
}

// SelectTreatment resolves treatmentID through the catalog and advances.
func (s *Session) SelectTreatment(ctx context.Context, treatmentID string) error {
	gen, err := s.begin("wizard: select treatment", func(st State) error {
		return st.expect("wizard: select treatment", StepSelectingTreatment)
	})
	if err != nil {
		return err
	}
	t, lookupErr := s.catalog.Treatment(ctx, treatmentID)
	return s.finish(gen, func(st State) (State, error) {
		if lookupErr != nil {
			return st, lookupErr
		}
		return st.SelectTreatment(t)
	})
}

// SelectProfessional resolves professionalID through the catalog and advances.
func (s *Session) SelectProfessional(ctx context.Context, professionalID string) error {
	const op = "wizard: select professional"
	gen, err := s.begin(op, func(st State) error {
		if err := st.expect(op, StepSelectingProfessional); err != nil {
			return err
		}
		if st.Draft.TreatmentID == "" {
			return booking.E(booking.ErrIncompleteBooking, op, "treatment not selected")
		}
		return nil
	})
	if err != nil {
		return err
	}
	p, lookupErr := s.catalog.Professional(ctx, professionalID)
	return s.finish(gen, func(st State) (State, error) {
		if lookupErr != nil {
			return st, lookupErr
		}
		return st.SelectProfessional(p)
	})
}

// SelectDate resolves the slot grid for date. On failure the wizard stays on
// date selection with no slot list; a stale list is never kept.
func (s *Session) SelectDate(ctx context.Context, date booking.Date) error {
	today := s.today()
	var professionalID string
	gen, err := s.begin("wizard: select date", func(st State) error {
		professionalID = st.Draft.ProfessionalID
		return st.CheckDate(date, today)
	})
	if err != nil {
		return err
	}
	slots, resolveErr := s.slots.GetSlots(ctx, professionalID, date)
	return s.finish(gen, func(st State) (State, error) {
		if resolveErr != nil {
			s.logger.Warn("wizard: slot resolution failed",
				"professional_id", professionalID,
				"date", date.String(),
				"retryable", booking.Retryable(resolveErr),
				"error", resolveErr,
			)
			return st, resolveErr
		}
		return st.WithSlots(date, today, slots)
	})
}

// SelectTime picks an available slot from the resolved list.
func (s *Session) SelectTime(clock string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight || s.submitting {
		return booking.E(booking.ErrStepInFlight, "wizard: select time", "previous step still resolving")
	}
	next, err := s.state.SelectTime(clock)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// EditStep rewinds to step n with a cascading clear.
func (s *Session) EditStep(n Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight || s.submitting {
		return booking.E(booking.ErrStepInFlight, "wizard: edit step", "previous step still resolving")
	}
	next, err := s.state.EditStep(n)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// CanSubmit is true when all selections are set and nothing is in flight.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CanSubmit() && !s.inFlight && !s.submitting
}

// Submit hands the draft to the repository. A slot conflict sends the wizard
// back to date selection; any other failure leaves it in review and is
// returned as is.
func (s *Session) Submit(ctx context.Context, notes string) (booking.Appointment, error) {
	const op = "wizard: submit"
	s.mu.Lock()
	switch {
	case s.submitting:
		s.mu.Unlock()
		return booking.Appointment{}, booking.E(booking.ErrOperationInProgress, op, "submission already in flight")
	case s.inFlight:
		s.mu.Unlock()
		return booking.Appointment{}, booking.E(booking.ErrStepInFlight, op, "previous step still resolving")
	case s.state.Step != StepReviewingSummary:
		step := s.state.Step
		s.mu.Unlock()
		return booking.Appointment{}, booking.E(booking.ErrInvalidStep, op, "wizard is "+step.String())
	}
	if err := s.state.Draft.Validate(op); err != nil {
		s.mu.Unlock()
		return booking.Appointment{}, err
	}
	s.submitting = true
	gen := s.generation
	draft := s.state.Draft
	draft.Notes = notes
	s.mu.Unlock()

	appt, err := s.submitter.Create(ctx, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Info("wizard: submission finished after abandon", "draft_key", draft.Key(), "error", err)
		if err != nil {
			return booking.Appointment{}, err
		}
		return booking.Appointment{}, ErrAbandoned
	}
	s.submitting = false
	if err != nil {
		if errors.Is(err, booking.ErrSlotConflict) {
			s.state = s.state.clearFrom(StepSelectingDate)
			s.state.Step = StepSelectingDate
		}
		return booking.Appointment{}, err
	}
	s.state.Draft.Notes = notes
	s.state = s.state.Submitted(appt)
	s.logger.Info("wizard: booking submitted", "appointment_id", appt.ID, "status", string(appt.Status))
	return appt, nil
}

// Abandon discards the draft. An in-flight call keeps running but its
// result is not applied here.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.state = Start()
	s.inFlight = false
	s.submitting = false
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}
