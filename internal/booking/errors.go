package booking

import (
	"errors"
	"strings"
)

// Error kinds. Every error crossing a package boundary in this module wraps
// exactly one of these so callers can branch with errors.Is.
var (
	ErrInvalidDate             = errors.New("invalid date")
	ErrNotFound                = errors.New("not found")
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrSlotConflict            = errors.New("slot conflict")
	ErrIncompleteBooking       = errors.New("incomplete booking")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrOperationInProgress     = errors.New("operation in progress")
	ErrAvailabilityUnavailable = errors.New("availability unavailable")

	// ErrInvalidStep is returned when a wizard operation is called in the wrong step.
	ErrInvalidStep = errors.New("invalid wizard step")
	// ErrStepInFlight is returned while a blocking wizard step has not resolved.
	ErrStepInFlight = errors.New("wizard step in flight")
	// ErrRemote marks transport failures talking to the clinic backend.
	ErrRemote = errors.New("remote store unavailable")
	// ErrRescheduleUnsupported is returned by backends without an atomic reschedule route.
	ErrRescheduleUnsupported = errors.New("reschedule not supported")
)

// Error attaches an operation and message to an error kind.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

// E builds an *Error without an underlying cause.
func E(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an *Error around cause.
func Wrap(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Retryable reports whether repeating the same call may succeed.
// Validation failures never are.
func Retryable(err error) bool {
	return errors.Is(err, ErrAvailabilityUnavailable) || errors.Is(err, ErrRemote)
}

var codes = []struct {
	kind error
	code string
}{
	{ErrInvalidDate, "invalid_date"},
	{ErrNotFound, "not_found"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrSlotConflict, "slot_conflict"},
	{ErrIncompleteBooking, "incomplete_booking"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrOperationInProgress, "operation_in_progress"},
	{ErrAvailabilityUnavailable, "availability_unavailable"},
	{ErrRescheduleUnsupported, "reschedule_unsupported"},
	{ErrRemote, "remote_unavailable"},
}

// Code returns the wire code for err's kind, or "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "internal"
}

// KindForCode maps a wire code back to its sentinel. Unknown codes return nil.
func KindForCode(code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, c := range codes {
		if c.code == code {
			return c.kind
		}
	}
	return nil
}
