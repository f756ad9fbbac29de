// Package catalog serves the clinic's read-only treatment and professional lists.
package catalog

import (
	"context"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// Provider is the read-only catalog port.
type Provider interface {
	Treatments(ctx context.Context) ([]booking.Treatment, error)
	Professionals(ctx context.Context) ([]booking.Professional, error)
	Treatment(ctx context.Context, id string) (booking.Treatment, error)
	Professional(ctx context.Context, id string) (booking.Professional, error)
}

// Lister is the subset of Provider that loads whole lists. Lookups by id can
// be derived from it with FindTreatment / FindProfessional.
type Lister interface {
	Treatments(ctx context.Context) ([]booking.Treatment, error)
	Professionals(ctx context.Context) ([]booking.Professional, error)
}

// FindTreatment loads the treatment list and picks id out of it.
func FindTreatment(ctx context.Context, l Lister, id string) (booking.Treatment, error) {
	list, err := l.Treatments(ctx)
	if err != nil {
		return booking.Treatment{}, err
	}
	for _, t := range list {
		if t.ID == id {
			return t, nil
		}
	}
	return booking.Treatment{}, booking.E(booking.ErrNotFound, "catalog: treatment", id)
}

// FindProfessional loads the professional list and picks id out of it.
func FindProfessional(ctx context.Context, l Lister, id string) (booking.Professional, error) {
	list, err := l.Professionals(ctx)
	if err != nil {
		return booking.Professional{}, err
	}
	for _, p := range list {
		if p.ID == id {
			return p, nil
		}
	}
	return booking.Professional{}, booking.E(booking.ErrNotFound, "catalog: professional", id)
}

// ProfessionalsFor filters professionals down to those offering treatmentID.
func ProfessionalsFor(list []booking.Professional, treatmentID string) []booking.Professional {
	out := make([]booking.Professional, 0, len(list))
	for _, p := range list {
		if treatmentID == "" || p.Offers(treatmentID) {
			out = append(out, p)
		}
	}
	return out
}

// Static is an in-memory catalog.
type Static struct {
	treatments    []booking.Treatment
	professionals []booking.Professional
}

// NewStatic copies the given lists.
func NewStatic(treatments []booking.Treatment, professionals []booking.Professional) *Static {
	return &Static{
		treatments:    append([]booking.Treatment{}, treatments...),
		professionals: append([]booking.Professional{}, professionals...),
	}
}

func (s *Static) Treatments(context.Context) ([]booking.Treatment, error) {
	return append([]booking.Treatment{}, s.treatments...), nil
}

func (s *Static) Professionals(context.Context) ([]booking.Professional, error) {
	return append([]booking.Professional{}, s.professionals...), nil
}

func (s *Static) Treatment(ctx context.Context, id string) (booking.Treatment, error) {
	return FindTreatment(ctx, s, id)
}

func (s *Static) Professional(ctx context.Context, id string) (booking.Professional, error) {
	return FindProfessional(ctx, s, id)
}
