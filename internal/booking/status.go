package booking

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ParseStatus normalizes loose status strings ("confirmed", " Canceled ").
func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "BOOKED", "REQUESTED":
		return StatusPending, nil
	case "CONFIRMED":
		return StatusConfirmed, nil
	case "COMPLETED", "DONE":
		return StatusCompleted, nil
	case "CANCELLED", "CANCELED":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("booking: unknown status %q", raw)
	}
}

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition when from -> to is not allowed.
func Transition(op string, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return E(ErrInvalidTransition, op, fmt.Sprintf("cannot move %s appointment to %s", from, to))
}
