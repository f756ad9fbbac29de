package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// Querier is satisfied by pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists appointments in Postgres. Treatment and professional
// fields are snapshotted at booking time so history survives catalog edits.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	if db == nil {
		panic("scheduling: db required")
	}
	return &Store{db: db}
}

const appointmentColumns = `
	id::text, clinic_id, patient_id,
	treatment_id, treatment_name, treatment_category, treatment_price_cents,
	professional_id, professional_name, professional_specialty,
	to_char(appt_date, 'YYYY-MM-DD'), start_minute, duration_minutes, status,
	COALESCE(rating, 0), COALESCE(notes, ''), COALESCE(cancel_reason, ''),
	created_at, updated_at`

func scanAppointment(row pgx.Row) (booking.Appointment, error) {
	var (
		appt   booking.Appointment
		date   string
		start  int
		status string
		rating int
	)
	err := row.Scan(
		&appt.ID, &appt.ClinicID, &appt.PatientID,
		&appt.Treatment.ID, &appt.Treatment.Name, &appt.Treatment.Category, &appt.Treatment.PriceCents,
		&appt.Professional.ID, &appt.Professional.Name, &appt.Professional.Specialty,
		&date, &start, &appt.DurationMinutes, &status,
		&rating, &appt.Notes, &appt.CancelReason,
		&appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return booking.Appointment{}, err
	}
	if appt.Date, err = booking.ParseDate(date); err != nil {
		return booking.Appointment{}, fmt.Errorf("scheduling: appointment %s: %w", appt.ID, err)
	}
	appt.Time = booking.FormatClock(start)
	appt.Treatment.DurationMinutes = appt.DurationMinutes
	appt.Status = booking.Status(status)
	if rating > 0 {
		appt.Rating = &rating
	}
	return appt, nil
}

func collect(rows pgx.Rows) ([]booking.Appointment, error) {
	defer rows.Close()
	var out []booking.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// ListByPatient returns every appointment the patient owns, in any status.
func (s *Store) ListByPatient(ctx context.Context, clinicID, patientID string) ([]booking.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND patient_id = $2
		ORDER BY appt_date, start_minute`
	rows, err := s.db.Query(ctx, query, clinicID, patientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	return collect(rows)
}

// AppointmentsFor returns the professional's appointments on date.
func (s *Store) AppointmentsFor(ctx context.Context, professionalID string, date booking.Date) ([]booking.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE professional_id = $1 AND appt_date = $2
		ORDER BY start_minute`
	rows, err := s.db.Query(ctx, query, professionalID, date.String())
	if err != nil {
		return nil, fmt.Errorf("scheduling: list day: %w", err)
	}
	return collect(rows)
}

// Get loads one appointment.
func (s *Store) Get(ctx context.Context, id string) (booking.Appointment, error) {
	return s.get(ctx, s.db, id, false)
}

func (s *Store) get(ctx context.Context, q Querier, id string, forUpdate bool) (booking.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id::text = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	appt, err := scanAppointment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Appointment{}, booking.E(booking.ErrNotFound, "scheduling: get", "appointment "+id)
	}
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return appt, nil
}

// dayKey names the advisory lock of one professional-day.
func dayKey(professionalID string, date booking.Date) string {
	return professionalID + "|" + date.String()
}

// lockDays takes the advisory locks for keys in sorted order. Every writer
// goes through here before locking rows, so two transactions touching the
// same days always queue in the same order.
func (s *Store) lockDays(ctx context.Context, tx Querier, keys ...string) error {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	for _, key := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("scheduling: lock day: %w", err)
		}
	}
	return nil
}

// activeDay loads the professional-day's active appointments FOR UPDATE.
// The day's advisory lock must already be held.
func (s *Store) activeDay(ctx context.Context, tx Querier, professionalID string, date booking.Date) ([]booking.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE professional_id = $1 AND appt_date = $2 AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY start_minute
		FOR UPDATE`
	rows, err := tx.Query(ctx, query, professionalID, date.String())
	if err != nil {
		return nil, fmt.Errorf("scheduling: load day: %w", err)
	}
	return collect(rows)
}

// lockDay serializes writers for one professional-day until the
// transaction ends, then returns the active appointments already booked.
func (s *Store) lockDay(ctx context.Context, tx Querier, professionalID string, date booking.Date) ([]booking.Appointment, error) {
	if err := s.lockDays(ctx, tx, dayKey(professionalID, date)); err != nil {
		return nil, err
	}
	return s.activeDay(ctx, tx, professionalID, date)
}

func (s *Store) insert(ctx context.Context, tx Querier, appt booking.Appointment) error {
	start, err := booking.ParseClock(appt.Time)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO appointments (
			id, clinic_id, patient_id,
			treatment_id, treatment_name, treatment_category, treatment_price_cents,
			professional_id, professional_name, professional_specialty,
			appt_date, start_minute, duration_minutes, status, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.Exec(ctx, query,
		appt.ID, appt.ClinicID, appt.PatientID,
		appt.Treatment.ID, appt.Treatment.Name, appt.Treatment.Category, appt.Treatment.PriceCents,
		appt.Professional.ID, appt.Professional.Name, appt.Professional.Specialty,
		appt.Date.String(), start, appt.DurationMinutes, string(appt.Status), appt.Notes,
		appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

func (s *Store) updateStatus(ctx context.Context, tx Querier, id string, status booking.Status, reason string, at time.Time) error {
	query := `
		UPDATE appointments
		SET status = $2, cancel_reason = NULLIF($3, ''), updated_at = $4
		WHERE id::text = $1
	`
	ct, err := tx.Exec(ctx, query, id, string(status), reason, at)
	if err != nil {
		return fmt.Errorf("scheduling: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return booking.E(booking.ErrNotFound, "scheduling: update status", "appointment "+id)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit tx: %w", err)
	}
	return nil
}
