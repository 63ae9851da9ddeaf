package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores patients in the relational database.
type Repository struct {
	pool rowQuerier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q rowQuerier) *Repository {
	if q == nil {
		panic("patients: querier required")
	}
	return &Repository{pool: q}
}

// FindByPhone resolves a contact address to a patient within the clinic.
// Pure lookup: returns (nil, nil) when no patient exists; callers must not
// treat an unresolved contact as an error.
func (r *Repository) FindByPhone(ctx context.Context, clinicID, phone string) (*Patient, error) {
	return findByPhone(ctx, r.pool, clinicID, phone)
}

// FindByPhoneTx is FindByPhone running inside an open transaction.
func FindByPhoneTx(ctx context.Context, tx pgx.Tx, clinicID, phone string) (*Patient, error) {
	return findByPhone(ctx, tx, clinicID, phone)
}

func findByPhone(ctx context.Context, q rowQuerier, clinicID, phone string) (*Patient, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	query := `
		SELECT id, clinic_id, name, phone, COALESCE(email, ''), is_lead, created_at
		FROM patients
		WHERE clinic_id = $1 AND phone = $2
	`
	var p Patient
	if err := q.QueryRow(ctx, query, clinicID, normalized).Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.IsLead,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("patients: select by phone failed: %w", err)
	}
	return &p, nil
}

// GetByID fetches a patient scoped to the clinic.
func (r *Repository) GetByID(ctx context.Context, clinicID string, id int64) (*Patient, error) {
	query := `
		SELECT id, clinic_id, name, phone, COALESCE(email, ''), is_lead, created_at
		FROM patients
		WHERE id = $1 AND clinic_id = $2
	`
	var p Patient
	if err := r.pool.QueryRow(ctx, query, id, clinicID).Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.IsLead,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return &p, nil
}

// CreateTx inserts a patient inside an open transaction and returns the new
// id. The row always carries the clinic id of the session that created it.
func CreateTx(ctx context.Context, tx pgx.Tx, req *CreatePatientRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	query := `
		INSERT INTO patients (clinic_id, name, phone, email, is_lead)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id
	`
	var id int64
	if err := tx.QueryRow(ctx, query,
		req.ClinicID,
		req.Name,
		NormalizePhone(req.Phone),
		req.Email,
		req.IsLead,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("patients: insert failed: %w", err)
	}
	return id, nil
}
