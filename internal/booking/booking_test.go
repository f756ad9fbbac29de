package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-07-01")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.July, 1), d)
	assert.Equal(t, "2024-07-01", d.String())
	assert.Equal(t, time.Monday, d.Weekday())

	d, err = ParseDate("2024-07-01T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", d.String())

	for _, raw := range []string{"", "07/01/2024", "2024-13-01", "2024-02-30"} {
		_, err := ParseDate(raw)
		assert.ErrorIs(t, err, ErrInvalidDate, raw)
	}
}

func TestDateOrderingAndArithmetic(t *testing.T) {
	a := MustParseDate("2024-06-30")
	b := a.AddDays(1)
	assert.Equal(t, "2024-07-01", b.String())
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(MustParseDate("2024-06-30")))
	assert.Equal(t, "2025-01-01", MustParseDate("2024-12-31").AddDays(1).String())
}

func TestDateOfUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	instant := time.Date(2024, 7, 2, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-07-01", DateOf(instant, ny).String())
	assert.Equal(t, "2024-07-02", DateOf(instant, time.UTC).String())
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		Date Date `json:"date"`
	}
	out, err := json.Marshal(wrapper{Date: MustParseDate("2024-07-01")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-07-01"}`, string(out))

	var in wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-08-15"}`), &in))
	assert.Equal(t, "2024-08-15", in.Date.String())

	require.NoError(t, json.Unmarshal([]byte(`{"date":""}`), &in))
	assert.True(t, in.Date.IsZero())

	err = json.Unmarshal([]byte(`{"date":"tomorrow"}`), &in)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"09:00", 540, true},
		{"9:30", 570, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"09:60", 0, false},
		{"0900", 0, false},
		{"09:00:00", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.raw)
		if !tt.ok {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, "09:05", FormatClock(545))
	norm, err := NormalizeClock("9:30")
	require.NoError(t, err)
	assert.Equal(t, "09:30", norm)
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCancelled}: true,
	}
	all := []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	err := Transition("cancel", StatusCompleted, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, Transition("cancel", StatusConfirmed, StatusCancelled))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" canceled ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)
	s, err = ParseStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)
	_, err = ParseStatus("no-show")
	assert.Error(t, err)
}

func TestDraftValidation(t *testing.T) {
	d := Draft{TreatmentID: "t1", ProfessionalID: "p1"}
	assert.False(t, d.Complete())
	err := d.Validate("submit")
	assert.ErrorIs(t, err, ErrIncompleteBooking)
	assert.Contains(t, err.Error(), "date, time")

	d.Date = MustParseDate("2024-07-01")
	d.Time = "9am"
	assert.ErrorIs(t, d.Validate("submit"), ErrInvalidDate)

	d.Time = "09:00"
	assert.NoError(t, d.Validate("submit"))
	assert.Equal(t, "t1|p1|2024-07-01|09:00", d.Key())
}

func TestAppointmentMatchesAndInterval(t *testing.T) {
	appt := Appointment{
		ID:              "a1",
		Treatment:       Treatment{ID: "t1", DurationMinutes: 60},
		Professional:    Professional{ID: "p1"},
		Date:            MustParseDate("2024-07-01"),
		Time:            "09:00",
		DurationMinutes: 45,
	}
	draft := Draft{TreatmentID: "t1", ProfessionalID: "p1", Date: MustParseDate("2024-07-01"), Time: "09:00"}
	assert.True(t, appt.Matches(draft))
	draft.Time = "09:30"
	assert.False(t, appt.Matches(draft))

	start, end, err := appt.Interval()
	require.NoError(t, err)
	assert.Equal(t, 540, start)
	assert.Equal(t, 585, end)

	appt.DurationMinutes = 0
	_, end, err = appt.Interval()
	require.NoError(t, err)
	assert.Equal(t, 600, end)
}

func TestCloneDoesNotAlias(t *testing.T) {
	rating := 4
	appt := Appointment{Rating: &rating, Professional: Professional{TreatmentIDs: []string{"t1"}}}
	clone := appt.Clone()
	*clone.Rating = 1
	clone.Professional.TreatmentIDs[0] = "x"
	assert.Equal(t, 4, *appt.Rating)
	assert.Equal(t, "t1", appt.Professional.TreatmentIDs[0])
}

func TestErrorKindsSurviveWrapping(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("wizard: select date: %w", Wrap(ErrAvailabilityUnavailable, "get slots", cause))
	assert.ErrorIs(t, err, ErrAvailabilityUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Equal(t, "availability_unavailable", Code(err))

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "get slots", be.Op)

	assert.False(t, Retryable(E(ErrSlotConflict, "create", "taken")))
	assert.False(t, Retryable(E(ErrInvalidDate, "slots", "past")))
	assert.True(t, Retryable(Wrap(ErrRemote, "list", cause)))
}

func TestCodesRoundTrip(t *testing.T) {
	for _, kind := range []error{ErrInvalidDate, ErrNotFound, ErrSlotConflict, ErrIncompleteBooking, ErrInvalidTransition, ErrOperationInProgress, ErrAvailabilityUnavailable} {
		assert.Equal(t, kind, KindForCode(Code(kind)))
	}
	assert.Nil(t, KindForCode("teapot"))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}
