package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// SQLStore reads the catalog tables through database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("catalog: sql db required")
	}
	return &SQLStore{db: db}
}

func (s *SQLStore) Treatments(ctx context.Context) ([]booking.Treatment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, duration_minutes, vip_exclusive
		FROM treatments
		WHERE active
		ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list treatments: %w", err)
	}
	defer rows.Close()

	out := []booking.Treatment{}
	for rows.Next() {
		var t booking.Treatment
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, &t.PriceCents, &t.DurationMinutes, &t.VIPExclusive); err != nil {
			return nil, fmt.Errorf("catalog: scan treatment: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list treatments: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Professionals(ctx context.Context) ([]booking.Professional, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, specialty, treatment_ids
		FROM professionals
		WHERE active
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list professionals: %w", err)
	}
	defer rows.Close()

	out := []booking.Professional{}
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list professionals: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Treatment(ctx context.Context, id string) (booking.Treatment, error) {
	var t booking.Treatment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, duration_minutes, vip_exclusive
		FROM treatments
		WHERE id = $1 AND active`, id).
		Scan(&t.ID, &t.Name, &t.Category, &t.PriceCents, &t.DurationMinutes, &t.VIPExclusive)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Treatment{}, booking.E(booking.ErrNotFound, "catalog: treatment", id)
	}
	if err != nil {
		return booking.Treatment{}, fmt.Errorf("catalog: get treatment: %w", err)
	}
	return t, nil
}

func (s *SQLStore) Professional(ctx context.Context, id string) (booking.Professional, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, specialty, treatment_ids
		FROM professionals
		WHERE id = $1 AND active`, id)
	p, err := scanProfessional(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Professional{}, booking.E(booking.ErrNotFound, "catalog: professional", id)
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfessional(row scanner) (booking.Professional, error) {
	var p booking.Professional
	var treatmentIDs []string
	if err := row.Scan(&p.ID, &p.Name, &p.Specialty, pq.Array(&treatmentIDs)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return booking.Professional{}, err
		}
		return booking.Professional{}, fmt.Errorf("catalog: scan professional: %w", err)
	}
	if len(treatmentIDs) > 0 {
		p.TreatmentIDs = treatmentIDs
	}
	return p, nil
}
