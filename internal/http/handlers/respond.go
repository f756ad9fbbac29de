package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidDate), errors.Is(err, booking.ErrIncompleteBooking):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrSlotConflict), errors.Is(err, booking.ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrOperationInProgress):
		return http.StatusLocked
	case errors.Is(err, booking.ErrAvailabilityUnavailable), errors.Is(err, booking.ErrRemote):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": code, "message": text}. Internal
// failures are logged and their detail withheld.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "status", status)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "2")
	}
	writeJSON(w, status, errorResponse{Error: booking.Code(err), Message: msg})
}

func writeBadRequest(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: code, Message: msg})
}
