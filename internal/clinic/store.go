package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileNotFound is returned when the clinic has no profile row.
var ErrProfileNotFound = errors.New("clinic: profile not found")

// ErrInstanceNotFound is returned when no clinic owns a channel instance.
var ErrInstanceNotFound = errors.New("clinic: channel instance not found")

// Profile holds the per-clinic details that personalize the assistant.
type Profile struct {
	ClinicID      string
	Name          string
	Specialty     string
	BusinessHours string
	BookingNotes  string
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads clinic profiles from the relational database.
type Store struct {
	pool rowQuerier
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q rowQuerier) *Store {
	if q == nil {
		panic("clinic: querier required")
	}
	return &Store{pool: q}
}

// Get fetches the clinic profile.
func (s *Store) Get(ctx context.Context, clinicID string) (*Profile, error) {
	query := `
		SELECT id, name, COALESCE(specialty, ''), COALESCE(business_hours, ''), COALESCE(booking_notes, '')
		FROM clinics
		WHERE id = $1
	`
	var p Profile
	if err := s.pool.QueryRow(ctx, query, clinicID).Scan(
		&p.ClinicID,
		&p.Name,
		&p.Specialty,
		&p.BusinessHours,
		&p.BookingNotes,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("clinic: select failed: %w", err)
	}
	return &p, nil
}

// ResolveInstance maps a gateway channel instance to the clinic that owns
// it. Every webhook delivery carries an instance name, never a clinic id.
func (s *Store) ResolveInstance(ctx context.Context, instance string) (string, error) {
	query := `SELECT id FROM clinics WHERE whatsapp_instance = $1`
	var clinicID string
	if err := s.pool.QueryRow(ctx, query, instance).Scan(&clinicID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInstanceNotFound
		}
		return "", fmt.Errorf("clinic: resolve instance failed: %w", err)
	}
	return clinicID, nil
}
