package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

var july1 = booking.MustParseDate("2024-07-01")

// fakeRemote is an in-memory clinic backend.
type fakeRemote struct {
	mu            sync.Mutex
	seq           int
	appointments  []booking.Appointment
	taken         map[string]bool
	noReschedule  bool
	listErr       error
	createErr     error
	cancelErrFor  map[string]error
	createStarted chan struct{}
	createRelease chan struct{}
	listTaken     chan struct{}
	listRelease   chan struct{}
	creates       int
	cancels       []string
	clock         time.Time
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		taken:        map[string]bool{},
		cancelErrFor: map[string]error{},
		clock:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRemote) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeRemote) ListAppointments(context.Context) ([]booking.Appointment, error) {
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := append([]booking.Appointment{}, f.appointments...)
	f.mu.Unlock()
	// The list is already taken; writes from here on are not in it.
	if f.listTaken != nil {
		f.listTaken <- struct{}{}
	}
	if f.listRelease != nil {
		<-f.listRelease
	}
	return out, nil
}

func (f *fakeRemote) SlotAvailable(_ context.Context, professionalID string, date booking.Date, clock string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken[professionalID+date.String()+clock] {
		return false, nil
	}
	for _, a := range f.appointments {
		if a.Status.Active() && a.Professional.ID == professionalID && a.Date == date && a.Time == clock {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeRemote) CreateAppointment(_ context.Context, d booking.Draft) (booking.Appointment, error) {
	if f.createStarted != nil {
		f.createStarted <- struct{}{}
	}
	if f.createRelease != nil {
		<-f.createRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return booking.Appointment{}, f.createErr
	}
	f.seq++
	now := f.tick()
	appt := booking.Appointment{
		ID:              fmt.Sprintf("appt-%d", f.seq),
		PatientID:       "pat-1",
		Treatment:       booking.Treatment{ID: d.TreatmentID, Name: "Facial", DurationMinutes: 30},
		Professional:    booking.Professional{ID: d.ProfessionalID, Name: "Ana"},
		Date:            d.Date,
		Time:            d.Time,
		DurationMinutes: 30,
		Status:          booking.StatusPending,
		Notes:           d.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.appointments = append(f.appointments, appt)
	return appt, nil
}

func (f *fakeRemote) CancelAppointment(_ context.Context, id, reason string) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if err := f.cancelErrFor[id]; err != nil {
		return booking.Appointment{}, err
	}
	for i, a := range f.appointments {
		if a.ID != id {
			continue
		}
		if err := booking.Transition("cancel", a.Status, booking.StatusCancelled); err != nil {
			return booking.Appointment{}, err
		}
		a.Status = booking.StatusCancelled
		a.CancelReason = reason
		a.UpdatedAt = f.tick()
		f.appointments[i] = a
		return a, nil
	}
	return booking.Appointment{}, booking.E(booking.ErrNotFound, "cancel", id)
}

func (f *fakeRemote) RescheduleAppointment(ctx context.Context, id string, d booking.Draft) (booking.Appointment, error) {
	if f.noReschedule {
		return booking.Appointment{}, booking.E(booking.ErrRescheduleUnsupported, "reschedule", "404")
	}
	if _, err := f.CancelAppointment(ctx, id, "rescheduled"); err != nil {
		return booking.Appointment{}, err
	}
	return f.CreateAppointment(ctx, d)
}

func (f *fakeRemote) setStatus(id string, status booking.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			f.appointments[i].Status = status
			f.appointments[i].UpdatedAt = f.tick()
		}
	}
}

func (f *fakeRemote) live() []booking.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []booking.Appointment
	for _, a := range f.appointments {
		if a.Status.Active() {
			out = append(out, a)
		}
	}
	return out
}

func newRepo(remote RemoteStore) *Repository {
	return NewRepository(remote, WithLogger(logging.Discard()))
}

func draft(clock string) booking.Draft {
	return booking.Draft{TreatmentID: "facial", ProfessionalID: "ana", Date: july1, Time: clock}
}

func TestCreateMatchesDraftAndIsListed(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()

	for _, clock := range []string{"09:00", "09:30", "14:00"} {
		d := draft(clock)
		d.Notes = "sensitive skin"
		appt, err := repo.Create(ctx, d)
		require.NoError(t, err)
		assert.True(t, appt.Matches(d))
		assert.Equal(t, booking.StatusPending, appt.Status)

		found := false
		for _, listed := range repo.List(ctx) {
			if listed.ID == appt.ID {
				found = true
				assert.True(t, listed.Matches(d))
			}
		}
		assert.True(t, found, "created appointment must be listed")
	}
	assert.Len(t, repo.List(ctx), 3)
}

func TestCreateIncompleteDraft(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	_, err := repo.Create(context.Background(), booking.Draft{TreatmentID: "facial"})
	assert.ErrorIs(t, err, booking.ErrIncompleteBooking)
	assert.Zero(t, remote.creates)
}

func TestCreateFinalRecheckConflict(t *testing.T) {
	remote := newFakeRemote()
	remote.taken["ana"+july1.String()+"09:00"] = true
	repo := newRepo(remote)

	_, err := repo.Create(context.Background(), draft("09:00"))
	assert.ErrorIs(t, err, booking.ErrSlotConflict)
	assert.Zero(t, remote.creates)
	assert.Empty(t, repo.List(context.Background()))
}

func TestCreateRemoteConflictSurfaces(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = booking.E(booking.ErrSlotConflict, "clinicapi: create", "409")
	repo := newRepo(remote)

	_, err := repo.Create(context.Background(), draft("09:00"))
	assert.ErrorIs(t, err, booking.ErrSlotConflict)
	assert.Empty(t, repo.List(context.Background()))
}

func TestConcurrentCreateOfSameDraft(t *testing.T) {
	remote := newFakeRemote()
	remote.createStarted = make(chan struct{})
	remote.createRelease = make(chan struct{})
	repo := newRepo(remote)

	done := make(chan error, 1)
	go func() {
		_, err := repo.Create(context.Background(), draft("09:00"))
		done <- err
	}()
	<-remote.createStarted

	_, err := repo.Create(context.Background(), draft("09:00"))
	assert.ErrorIs(t, err, booking.ErrOperationInProgress)

	close(remote.createRelease)
	require.NoError(t, <-done)
	assert.Len(t, repo.List(context.Background()), 1)
	assert.Len(t, remote.live(), 1)
}

func TestCreateAppliedEvenIfCallerGivesUp(t *testing.T) {
	remote := newFakeRemote()
	remote.createStarted = make(chan struct{})
	remote.createRelease = make(chan struct{})
	repo := newRepo(remote)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := repo.Create(ctx, draft("10:00"))
		done <- err
	}()
	<-remote.createStarted
	cancel()
	close(remote.createRelease)
	require.NoError(t, <-done)
	assert.Len(t, repo.List(context.Background()), 1)
}

func TestCancelTwice(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	appt, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	require.NoError(t, repo.Cancel(ctx, appt.ID, "conflict at work"))
	first, err := repo.Get(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, first.Status)
	assert.Equal(t, "conflict at work", first.CancelReason)

	err = repo.Cancel(ctx, appt.ID, "again")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	second, err := repo.Get(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "second cancel must not touch the record")

	// Apart from status, reason and timestamp nothing changed from creation.
	first.Status = appt.Status
	first.CancelReason = appt.CancelReason
	first.UpdatedAt = appt.UpdatedAt
	assert.Equal(t, appt, first)
	assert.Len(t, remote.cancels, 1)
}

func TestCancelCompletedIsInvalid(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	appt, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)
	remote.setStatus(appt.ID, booking.StatusCompleted)
	_, err = repo.Refresh(ctx)
	require.NoError(t, err)

	err = repo.Cancel(ctx, appt.ID, "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	got, err := repo.Get(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, got.Status)
	assert.Empty(t, remote.cancels)
}

func TestCancelUnknown(t *testing.T) {
	repo := newRepo(newFakeRemote())
	assert.ErrorIs(t, repo.Cancel(context.Background(), "missing", ""), booking.ErrNotFound)
}

func TestCancelRejectsParallelMutation(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	appt, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	require.NoError(t, repo.acquire("test", idKey(appt.ID)))
	assert.ErrorIs(t, repo.Cancel(ctx, appt.ID, ""), booking.ErrOperationInProgress)
	_, err = repo.Reschedule(ctx, appt.ID, draft("11:00"))
	assert.ErrorIs(t, err, booking.ErrOperationInProgress)
	repo.release(idKey(appt.ID))

	require.NoError(t, repo.Cancel(ctx, appt.ID, ""))
}

func TestConcurrentCancelsReachRemoteOnce(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	appt, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	const callers = 16
	start := make(chan struct{})
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- repo.Cancel(ctx, appt.ID, "")
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, booking.ErrOperationInProgress) || errors.Is(err, booking.ErrInvalidTransition), err)
	}
	assert.Equal(t, 1, ok)
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Len(t, remote.cancels, 1)
}

func TestRescheduleAtomicRoute(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	old, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	created, err := repo.Reschedule(ctx, old.ID, draft("15:00"))
	require.NoError(t, err)
	assert.True(t, created.Matches(draft("15:00")))

	oldNow, err := repo.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, oldNow.Status)
	assert.Len(t, repo.List(ctx), 2)
	assert.Len(t, remote.live(), 1)
}

func TestRescheduleFallbackCreateFailsLeavesOld(t *testing.T) {
	remote := newFakeRemote()
	remote.noReschedule = true
	repo := newRepo(remote)
	ctx := context.Background()
	old, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	remote.createErr = booking.Wrap(booking.ErrRemote, "create", errors.New("503"))
	_, err = repo.Reschedule(ctx, old.ID, draft("15:00"))
	assert.ErrorIs(t, err, booking.ErrRemote)

	got, err := repo.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
	assert.Empty(t, remote.cancels, "nothing may be cancelled when the new booking fails")
	assert.Len(t, repo.List(ctx), 1)
}

func TestRescheduleFallbackCompensates(t *testing.T) {
	remote := newFakeRemote()
	remote.noReschedule = true
	repo := newRepo(remote)
	ctx := context.Background()
	old, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	remote.cancelErrFor[old.ID] = booking.Wrap(booking.ErrRemote, "cancel", errors.New("timeout"))
	_, err = repo.Reschedule(ctx, old.ID, draft("15:00"))
	assert.ErrorIs(t, err, booking.ErrRemote)

	live := remote.live()
	require.Len(t, live, 1, "the temporary booking must be rolled back")
	assert.Equal(t, old.ID, live[0].ID)
	got, err := repo.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
	assert.Len(t, repo.List(ctx), 1)
}

func TestRescheduleFallbackSucceeds(t *testing.T) {
	remote := newFakeRemote()
	remote.noReschedule = true
	repo := newRepo(remote)
	ctx := context.Background()
	old, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	created, err := repo.Reschedule(ctx, old.ID, draft("16:00"))
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, created.ID)
	got, _ := repo.Get(old.ID)
	assert.Equal(t, booking.StatusCancelled, got.Status)
	assert.Len(t, remote.live(), 1)
}

func TestRescheduleValidation(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	old, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	_, err = repo.Reschedule(ctx, old.ID, booking.Draft{})
	assert.ErrorIs(t, err, booking.ErrIncompleteBooking)
	_, err = repo.Reschedule(ctx, "missing", draft("10:00"))
	assert.ErrorIs(t, err, booking.ErrNotFound)

	require.NoError(t, repo.Cancel(ctx, old.ID, ""))
	_, err = repo.Reschedule(ctx, old.ID, draft("10:00"))
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	_, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	remote.listErr = booking.Wrap(booking.ErrRemote, "list", errors.New("offline"))
	got, err := repo.Refresh(ctx)
	assert.Nil(t, got)
	assert.True(t, booking.Retryable(err))
	assert.Len(t, repo.List(ctx), 1)
}

func TestRefreshReplacesAndReconciles(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	a, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)
	b, err := repo.Create(ctx, draft("10:00"))
	require.NoError(t, err)

	// Another device confirmed a.
	remote.setStatus(a.ID, booking.StatusConfirmed)
	// A stale remote copy of b must not undo a newer local cancel.
	stale := remote.appointments[1]
	require.NoError(t, repo.Cancel(ctx, b.ID, ""))
	remote.mu.Lock()
	remote.appointments[1] = stale
	remote.mu.Unlock()

	got, err := repo.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, booking.StatusConfirmed, got[0].Status)
	assert.Equal(t, booking.StatusCancelled, got[1].Status)
}

// startSlowRefresh runs Refresh against a remote list taken at call time
// and returned only once release is called.
func startSlowRefresh(t *testing.T, remote *fakeRemote, repo *Repository) (release func() []booking.Appointment) {
	t.Helper()
	remote.listTaken = make(chan struct{}, 1)
	remote.listRelease = make(chan struct{})
	type result struct {
		got []booking.Appointment
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := repo.Refresh(context.Background())
		done <- result{got, err}
	}()
	<-remote.listTaken
	return func() []booking.Appointment {
		close(remote.listRelease)
		res := <-done
		require.NoError(t, res.err)
		return res.got
	}
}

func TestRefreshKeepsAppointmentCreatedDuringFetch(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()

	release := startSlowRefresh(t, remote, repo)
	appt, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)
	got := release()

	require.Len(t, got, 1)
	assert.Equal(t, appt.ID, got[0].ID)
	cached, err := repo.Get(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, cached.Status)

	// The next refresh sees it remotely as well and keeps it.
	remote.listTaken, remote.listRelease = nil, nil
	got, err = repo.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRefreshKeepsCancelMadeDuringFetch(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	appt, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	release := startSlowRefresh(t, remote, repo)
	require.NoError(t, repo.Cancel(ctx, appt.ID, "sick"))
	got := release()

	require.Len(t, got, 1)
	assert.Equal(t, booking.StatusCancelled, got[0].Status)
}

func TestRefreshDropsRecordsGoneRemotely(t *testing.T) {
	remote := newFakeRemote()
	repo := newRepo(remote)
	ctx := context.Background()
	_, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)

	remote.mu.Lock()
	remote.appointments = nil
	remote.mu.Unlock()
	got, err := repo.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnapshotIsolation(t *testing.T) {
	repo := newRepo(newFakeRemote())
	ctx := context.Background()
	_, err := repo.Create(ctx, draft("09:00"))
	require.NoError(t, err)
	snap := repo.List(ctx)
	snap[0].Status = booking.StatusCompleted
	assert.Equal(t, booking.StatusPending, repo.List(ctx)[0].Status)
}
