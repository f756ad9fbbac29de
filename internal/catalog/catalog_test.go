package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

var (
	facial = booking.Treatment{ID: "facial", Name: "Facial", Category: "skin", PriceCents: 5000, DurationMinutes: 30}
	botox  = booking.Treatment{ID: "botox", Name: "Botox", Category: "injectables", PriceCents: 30000, DurationMinutes: 45, VIPExclusive: true}
	ana    = booking.Professional{ID: "ana", Name: "Ana", Specialty: "esthetician", TreatmentIDs: []string{"facial"}}
	bea    = booking.Professional{ID: "bea", Name: "Bea", Specialty: "nurse injector"}
)

func TestStaticLookups(t *testing.T) {
	s := NewStatic([]booking.Treatment{facial, botox}, []booking.Professional{ana, bea})
	ctx := context.Background()

	got, err := s.Treatment(ctx, "botox")
	require.NoError(t, err)
	assert.Equal(t, botox, got)

	_, err = s.Professional(ctx, "zed")
	assert.ErrorIs(t, err, booking.ErrNotFound)

	list, err := s.Treatments(ctx)
	require.NoError(t, err)
	list[0].Name = "mutated"
	again, _ := s.Treatments(ctx)
	assert.Equal(t, "Facial", again[0].Name)
}

func TestProfessionalsFor(t *testing.T) {
	list := []booking.Professional{ana, bea}
	assert.Equal(t, []booking.Professional{ana, bea}, ProfessionalsFor(list, "facial"))
	assert.Equal(t, []booking.Professional{bea}, ProfessionalsFor(list, "botox"))
	assert.Len(t, ProfessionalsFor(list, ""), 2)
}

func TestSQLStoreTreatments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "category", "price_cents", "duration_minutes", "vip_exclusive"}).
		AddRow("facial", "Facial", "skin", int64(5000), 30, false).
		AddRow("botox", "Botox", "injectables", int64(30000), 45, true)
	mock.ExpectQuery("SELECT id, name, category, price_cents, duration_minutes, vip_exclusive\\s+FROM treatments").
		WillReturnRows(rows)

	got, err := NewSQLStore(db).Treatments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []booking.Treatment{facial, botox}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreProfessionalArrays(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "specialty", "treatment_ids"}).
		AddRow("ana", "Ana", "esthetician", "{facial}").
		AddRow("bea", "Bea", "nurse injector", "{}")
	mock.ExpectQuery("FROM professionals").WillReturnRows(rows)

	got, err := NewSQLStore(db).Professionals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []booking.Professional{ana, bea}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM treatments").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "price_cents", "duration_minutes", "vip_exclusive"}))
	mock.ExpectQuery("FROM professionals").WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "specialty", "treatment_ids"}))

	store := NewSQLStore(db)
	_, err = store.Treatment(context.Background(), "nope")
	assert.ErrorIs(t, err, booking.ErrNotFound)
	_, err = store.Professional(context.Background(), "nobody")
	assert.ErrorIs(t, err, booking.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM treatments").WillReturnError(errors.New("db down"))
	_, err = NewSQLStore(db).Treatments(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "catalog: list treatments")
}

type countingLister struct {
	treatments    []booking.Treatment
	professionals []booking.Professional
	calls         int
	err           error
}

func (c *countingLister) Treatments(context.Context) ([]booking.Treatment, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.treatments, nil
}

func (c *countingLister) Professionals(context.Context) ([]booking.Professional, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.professionals, nil
}

func TestCachedProviderReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingLister{treatments: []booking.Treatment{facial}, professionals: []booking.Professional{ana}}
	cached := NewCachedProvider(inner, client, time.Minute, logging.Discard())
	ctx := context.Background()

	first, err := cached.Treatments(ctx)
	require.NoError(t, err)
	second, err := cached.Treatments(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, mr.Exists(treatmentsKey))
	assert.Equal(t, time.Minute, mr.TTL(treatmentsKey))

	p, err := cached.Professional(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, ana, p)

	require.NoError(t, cached.Invalidate(ctx))
	assert.False(t, mr.Exists(treatmentsKey))
	_, err = cached.Treatments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedProviderServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	data, err := json.Marshal([]booking.Treatment{botox})
	require.NoError(t, err)
	require.NoError(t, mr.Set(treatmentsKey, string(data)))

	inner := &countingLister{treatments: []booking.Treatment{facial}}
	got, err := NewCachedProvider(inner, client, time.Minute, logging.Discard()).Treatments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []booking.Treatment{botox}, got)
	assert.Zero(t, inner.calls)
}

func TestCachedProviderDegradesWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	inner := &countingLister{treatments: []booking.Treatment{facial}}
	got, err := NewCachedProvider(inner, client, time.Minute, logging.Discard()).Treatments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []booking.Treatment{facial}, got)
}

func TestCachedProviderPropagatesInnerError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &countingLister{err: errors.New("db down")}
	got, err := NewCachedProvider(inner, client, time.Minute, logging.Discard()).Treatments(context.Background())
	assert.Nil(t, got)
	assert.Error(t, err)
	assert.False(t, mr.Exists(treatmentsKey))
}
