package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/catalog"
	"github.com/wolfman30/medspa-booking/internal/tenancy"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

// BookingService is the backend the handlers drive.
type BookingService interface {
	Availability(ctx context.Context, professionalID string, date booking.Date) ([]booking.TimeSlot, error)
	List(ctx context.Context, patientID string) ([]booking.Appointment, error)
	Create(ctx context.Context, patientID string, draft booking.Draft) (booking.Appointment, error)
	Cancel(ctx context.Context, patientID, id, reason string) (booking.Appointment, error)
	Reschedule(ctx context.Context, patientID, id string, draft booking.Draft) (booking.Appointment, booking.Appointment, error)
}

// BookingHandler serves the catalog, availability and appointment routes.
type BookingHandler struct {
	catalog catalog.Lister
	service BookingService
	logger  *logging.Logger
}

func NewBookingHandler(cat catalog.Lister, service BookingService, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{catalog: cat, service: service, logger: logger}
}

// Register mounts the booking routes on r. patientAuth guards the
// appointment routes and must put a patient id in the context.
func (h *BookingHandler) Register(r chi.Router, patientAuth func(http.Handler) http.Handler) {
	r.Get("/treatments", h.ListTreatments)
	r.Get("/professionals", h.ListProfessionals)
	r.Get("/professionals/{professionalID}/availability", h.GetAvailability)
	r.Route("/appointments", func(r chi.Router) {
		if patientAuth != nil {
			r.Use(patientAuth)
		}
		r.Get("/", h.ListAppointments)
		r.Post("/", h.CreateAppointment)
		r.Patch("/{appointmentID}/cancel", h.CancelAppointment)
		r.Patch("/{appointmentID}/reschedule", h.RescheduleAppointment)
	})
}

func (h *BookingHandler) ListTreatments(w http.ResponseWriter, r *http.Request) {
	treatments, err := h.catalog.Treatments(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"treatments": treatments})
}

// ListProfessionals optionally filters by ?treatment_id=.
func (h *BookingHandler) ListProfessionals(w http.ResponseWriter, r *http.Request) {
	professionals, err := h.catalog.Professionals(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if treatmentID := strings.TrimSpace(r.URL.Query().Get("treatment_id")); treatmentID != "" {
		professionals = catalog.ProfessionalsFor(professionals, treatmentID)
	}
	if professionals == nil {
		professionals = []booking.Professional{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"professionals": professionals})
}

func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date, err := booking.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	slots, err := h.service.Availability(r.Context(), professionalID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"professional_id": professionalID,
		"date":            date,
		"slots":           slots,
	})
}

func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFrom(w, r)
	if !ok {
		return
	}
	appts, err := h.service.List(r.Context(), patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

type draftRequest struct {
	TreatmentID    string `json:"treatment_id"`
	ProfessionalID string `json:"professional_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Notes          string `json:"notes"`
}

func (d draftRequest) toDraft() (booking.Draft, error) {
	draft := booking.Draft{
		TreatmentID:    strings.TrimSpace(d.TreatmentID),
		ProfessionalID: strings.TrimSpace(d.ProfessionalID),
		Time:           strings.TrimSpace(d.Time),
		Notes:          strings.TrimSpace(d.Notes),
	}
	if strings.TrimSpace(d.Date) != "" {
		date, err := booking.ParseDate(d.Date)
		if err != nil {
			return booking.Draft{}, err
		}
		draft.Date = date
	}
	if draft.Time != "" {
		clock, err := booking.NormalizeClock(draft.Time)
		if err != nil {
			return booking.Draft{}, booking.Wrap(booking.ErrInvalidDate, "handlers: draft", err)
		}
		draft.Time = clock
	}
	return draft, nil
}

func (h *BookingHandler) decodeDraft(w http.ResponseWriter, r *http.Request) (booking.Draft, bool) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid_json", "request body must be JSON")
		return booking.Draft{}, false
	}
	draft, err := req.toDraft()
	if err != nil {
		writeError(w, h.logger, err)
		return booking.Draft{}, false
	}
	return draft, true
}

func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFrom(w, r)
	if !ok {
		return
	}
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Create(r.Context(), patientID, draft)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *BookingHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid_json", "request body must be JSON")
		return
	}
	appt, err := h.service.Cancel(r.Context(), patientID, chi.URLParam(r, "appointmentID"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *BookingHandler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := patientFrom(w, r)
	if !ok {
		return
	}
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	created, cancelled, err := h.service.Reschedule(r.Context(), patientID, chi.URLParam(r, "appointmentID"), draft)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": created, "cancelled": cancelled})
}

func patientFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	patientID, ok := tenancy.PatientIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "missing patient identity"})
		return "", false
	}
	return patientID, true
}
