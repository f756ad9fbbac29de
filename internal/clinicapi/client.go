// Package clinicapi is the HTTP client for the clinic booking backend. It
// implements the catalog, slot source and remote appointment store ports and
// is the only place loosely shaped backend payloads are normalized.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/catalog"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 300
)

// Client talks to /api/v1 of a clinic backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
}

// NewClient builds a client. token is sent as a bearer credential when set.
func NewClient(baseURL, token string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		logger:     logger,
	}
}

// Treatments lists the catalog's treatments.
func (c *Client) Treatments(ctx context.Context) ([]booking.Treatment, error) {
	var wrapped struct {
		Treatments []wireTreatment `json:"treatments"`
		Data       []wireTreatment `json:"data"`
	}
	if err := c.doJSON(ctx, "clinicapi: list treatments", http.MethodGet, "/api/v1/treatments", nil, &wrapped); err != nil {
		return nil, err
	}
	raw := wrapped.Treatments
	if len(raw) == 0 {
		raw = wrapped.Data
	}
	out := make([]booking.Treatment, 0, len(raw))
	for _, w := range raw {
		out = append(out, w.normalize())
	}
	return out, nil
}

// Professionals lists the catalog's professionals.
func (c *Client) Professionals(ctx context.Context) ([]booking.Professional, error) {
	var wrapped struct {
		Professionals []wireProfessional `json:"professionals"`
		Data          []wireProfessional `json:"data"`
	}
	if err := c.doJSON(ctx, "clinicapi: list professionals", http.MethodGet, "/api/v1/professionals", nil, &wrapped); err != nil {
		return nil, err
	}
	raw := wrapped.Professionals
	if len(raw) == 0 {
		raw = wrapped.Data
	}
	out := make([]booking.Professional, 0, len(raw))
	for _, w := range raw {
		out = append(out, w.normalize())
	}
	return out, nil
}

func (c *Client) Treatment(ctx context.Context, id string) (booking.Treatment, error) {
	return catalog.FindTreatment(ctx, c, id)
}

func (c *Client) Professional(ctx context.Context, id string) (booking.Professional, error) {
	return catalog.FindProfessional(ctx, c, id)
}

// GetSlots fetches the slot grid for a professional and day. Transport
// failures come back as the retryable ErrAvailabilityUnavailable.
func (c *Client) GetSlots(ctx context.Context, professionalID string, date booking.Date) ([]booking.TimeSlot, error) {
	const op = "clinicapi: get slots"
	q := url.Values{}
	q.Set("date", date.String())
	path := fmt.Sprintf("/api/v1/professionals/%s/availability?%s", url.PathEscape(professionalID), q.Encode())

	var wrapped struct {
		Slots []wireSlot `json:"slots"`
		Data  []wireSlot `json:"data"`
	}
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &wrapped); err != nil {
		if errors.Is(err, booking.ErrRemote) {
			return nil, booking.Wrap(booking.ErrAvailabilityUnavailable, op, err)
		}
		return nil, err
	}
	raw := wrapped.Slots
	if len(raw) == 0 {
		raw = wrapped.Data
	}
	return normalizeSlots(date, raw), nil
}

// SlotAvailable re-reads the grid and reports whether clock is still open.
func (c *Client) SlotAvailable(ctx context.Context, professionalID string, date booking.Date, clock string) (bool, error) {
	slots, err := c.GetSlots(ctx, professionalID, date)
	if err != nil {
		return false, err
	}
	want, err := booking.NormalizeClock(clock)
	if err != nil {
		return false, booking.Wrap(booking.ErrInvalidDate, "clinicapi: slot available", err)
	}
	for _, s := range slots {
		if s.Time == want {
			return s.Available, nil
		}
	}
	return false, nil
}

// ListAppointments returns the signed-in patient's appointments.
func (c *Client) ListAppointments(ctx context.Context) ([]booking.Appointment, error) {
	const op = "clinicapi: list appointments"
	var wrapped struct {
		Appointments []wireAppointment `json:"appointments"`
		Data         []wireAppointment `json:"data"`
	}
	if err := c.doJSON(ctx, op, http.MethodGet, "/api/v1/appointments", nil, &wrapped); err != nil {
		return nil, err
	}
	raw := wrapped.Appointments
	if len(raw) == 0 {
		raw = wrapped.Data
	}
	out := make([]booking.Appointment, 0, len(raw))
	for _, w := range raw {
		appt, err := w.normalize()
		if err != nil {
			c.logger.Warn("clinicapi: skipping unreadable appointment", "appointment_id", w.ID, "error", err)
			continue
		}
		out = append(out, appt)
	}
	return out, nil
}

// CreateAppointment books draft. A taken slot is ErrSlotConflict.
func (c *Client) CreateAppointment(ctx context.Context, draft booking.Draft) (booking.Appointment, error) {
	const op = "clinicapi: create appointment"
	var w wireAppointment
	if err := c.doJSON(ctx, op, http.MethodPost, "/api/v1/appointments", toWireDraft(draft), &w); err != nil {
		return booking.Appointment{}, err
	}
	return w.normalize()
}

// CancelAppointment cancels id with an optional reason.
func (c *Client) CancelAppointment(ctx context.Context, id, reason string) (booking.Appointment, error) {
	const op = "clinicapi: cancel appointment"
	path := fmt.Sprintf("/api/v1/appointments/%s/cancel", url.PathEscape(id))
	body := map[string]string{}
	if strings.TrimSpace(reason) != "" {
		body["reason"] = reason
	}
	var w wireAppointment
	if err := c.doJSON(ctx, op, http.MethodPatch, path, body, &w); err != nil {
		return booking.Appointment{}, err
	}
	if w.ID == "" {
		return booking.Appointment{ID: id, Status: booking.StatusCancelled, CancelReason: reason}, nil
	}
	return w.normalize()
}

// RescheduleAppointment moves id to draft in one backend transaction.
func (c *Client) RescheduleAppointment(ctx context.Context, id string, draft booking.Draft) (booking.Appointment, error) {
	const op = "clinicapi: reschedule appointment"
	path := fmt.Sprintf("/api/v1/appointments/%s/reschedule", url.PathEscape(id))
	var wrapped struct {
		Appointment *wireAppointment `json:"appointment"`
		Cancelled   *wireAppointment `json:"cancelled"`
	}
	if err := c.doJSON(ctx, op, http.MethodPatch, path, toWireDraft(draft), &wrapped); err != nil {
		return booking.Appointment{}, err
	}
	if wrapped.Appointment == nil {
		return booking.Appointment{}, booking.E(booking.ErrRemote, op, "response missing appointment")
	}
	return wrapped.Appointment.normalize()
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return booking.Wrap(booking.ErrRemote, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return booking.Wrap(booking.ErrRemote, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		c.logger.Warn("clinic API non-2xx response", "status", resp.StatusCode, "method", method, "path", path, "body", msg)
		return statusError(op, resp.StatusCode, respBody, msg)
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return booking.Wrap(booking.ErrRemote, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError maps a non-2xx response onto the error taxonomy. A coded JSON
// body wins; otherwise the status decides.
func statusError(op string, status int, body []byte, msg string) error {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		if kind := booking.KindForCode(eb.Error); kind != nil {
			return booking.E(kind, op, firstNonEmpty(eb.Message, eb.Error))
		}
	}
	detail := fmt.Sprintf("status %d: %s", status, msg)
	switch status {
	case http.StatusBadRequest:
		return booking.E(booking.ErrIncompleteBooking, op, detail)
	case http.StatusConflict:
		return booking.E(booking.ErrSlotConflict, op, detail)
	case http.StatusUnprocessableEntity:
		return booking.E(booking.ErrInvalidTransition, op, detail)
	case http.StatusLocked:
		return booking.E(booking.ErrOperationInProgress, op, detail)
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		if strings.HasSuffix(op, "reschedule appointment") {
			return booking.E(booking.ErrRescheduleUnsupported, op, detail)
		}
		if status == http.StatusNotFound {
			return booking.E(booking.ErrNotFound, op, detail)
		}
	}
	return booking.E(booking.ErrRemote, op, detail)
}
