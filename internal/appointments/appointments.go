package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Appointment is a booked slot for a patient, scoped to a clinic.
type Appointment struct {
	ID        int64     `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	PatientID int64     `json:"patient_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Procedure string    `json:"procedure"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAppointmentRequest carries the fields needed to insert an appointment.
type CreateAppointmentRequest struct {
	ClinicID  string
	PatientID int64
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Procedure string
	Notes     string
}

// Validate enforces the minimal required argument shape.
func (r *CreateAppointmentRequest) Validate() error {
	if strings.TrimSpace(r.ClinicID) == "" {
		return errors.New("appointments: clinic id is required")
	}
	if r.PatientID <= 0 {
		return errors.New("appointments: patient id is required")
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date)); err != nil {
		return fmt.Errorf("appointments: invalid date %q (expected YYYY-MM-DD)", r.Date)
	}
	if _, err := time.Parse("15:04", strings.TrimSpace(r.Time)); err != nil {
		return fmt.Errorf("appointments: invalid time %q (expected HH:MM)", r.Time)
	}
	if strings.TrimSpace(r.Procedure) == "" {
		return errors.New("appointments: procedure is required")
	}
	return nil
}

// CreateTx inserts an appointment inside an open transaction and returns the
// new id.
func CreateTx(ctx context.Context, tx pgx.Tx, req *CreateAppointmentRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	query := `
		INSERT INTO appointments (clinic_id, patient_id, scheduled_date, scheduled_time, procedure, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id
	`
	var id int64
	if err := tx.QueryRow(ctx, query,
		req.ClinicID,
		req.PatientID,
		strings.TrimSpace(req.Date),
		strings.TrimSpace(req.Time),
		strings.TrimSpace(req.Procedure),
		req.Notes,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("appointments: insert failed: %w", err)
	}
	return id, nil
}
