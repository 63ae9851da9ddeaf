package patients

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func patientRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "clinic_id", "name", "phone", "email", "is_lead", "created_at"})
}

func TestFindByPhoneNormalizesBeforeLookup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)

	mock.ExpectQuery("SELECT (.+) FROM patients").
		WithArgs("clinic-1", "5511999990000").
		WillReturnRows(patientRows().AddRow(int64(3), "clinic-1", "Ana", "5511999990000", "", false, time.Now()))

	p, err := repo.FindByPhone(context.Background(), "clinic-1", "5511999990000@s.whatsapp.net")
	if err != nil {
		t.Fatalf("FindByPhone returned error: %v", err)
	}
	if p == nil || p.ID != 3 || p.Name != "Ana" {
		t.Fatalf("unexpected patient: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByPhoneMissReturnsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)

	mock.ExpectQuery("SELECT (.+) FROM patients").
		WithArgs("clinic-1", "551188").
		WillReturnError(pgx.ErrNoRows)

	p, err := repo.FindByPhone(context.Background(), "clinic-1", "551188")
	if err != nil {
		t.Fatalf("miss must not be an error, got %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil patient on miss, got %+v", p)
	}
}

func TestFindByPhoneEmptyContactSkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)
	p, err := repo.FindByPhone(context.Background(), "clinic-1", "not a number")
	if err != nil || p != nil {
		t.Fatalf("expected nil,nil for unnormalizable contact, got %+v %v", p, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected: %v", err)
	}
}

func TestGetByIDEnforcesClinicScope(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newRepositoryWithQuerier(mock)

	mock.ExpectQuery("SELECT (.+) FROM patients").
		WithArgs(int64(3), "other-clinic").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "other-clinic", 3); err != ErrPatientNotFound {
		t.Fatalf("expected ErrPatientNotFound across tenants, got %v", err)
	}
}
