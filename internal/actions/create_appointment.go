package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/klinikos/clinic-ai-platform/internal/appointments"
	"github.com/klinikos/clinic-ai-platform/internal/patients"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CreateAppointmentHandler books an appointment, creating the patient record
// first when the contact has none. Both writes happen in one clinic-scoped
// transaction: a failure rolls back entirely.
type CreateAppointmentHandler struct {
	db txBeginner
}

// NewCreateAppointmentHandler builds the handler over a pgx pool.
func NewCreateAppointmentHandler(pool *pgxpool.Pool) *CreateAppointmentHandler {
	if pool == nil {
		panic("actions: pgx pool required")
	}
	return &CreateAppointmentHandler{db: pool}
}

func newCreateAppointmentHandlerWithDB(db txBeginner) *CreateAppointmentHandler {
	if db == nil {
		panic("actions: db required")
	}
	return &CreateAppointmentHandler{db: db}
}

func (h *CreateAppointmentHandler) Name() string { return FuncCreateAppointment }

// Execute validates the model-issued arguments and applies the booking.
// Required arguments: date (YYYY-MM-DD), time (HH:MM), procedure. The contact
// phone is injected by the orchestrator; patient_name and email are optional.
func (h *CreateAppointmentHandler) Execute(ctx context.Context, clinicID string, args map[string]any) (map[string]any, error) {
	date := stringArg(args, "date")
	timeOfDay := stringArg(args, "time")
	procedure := stringArg(args, "procedure")
	phone := patients.NormalizePhone(stringArg(args, "phone"))

	if date == "" || timeOfDay == "" || procedure == "" {
		return nil, errors.New("actions: create_appointment requires date, time and procedure")
	}
	if phone == "" {
		return nil, errors.New("actions: create_appointment requires a contact phone")
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("actions: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	patient, err := patients.FindByPhoneTx(ctx, tx, clinicID, phone)
	if err != nil {
		return nil, err
	}

	var patientID int64
	if patient != nil {
		patientID = patient.ID
	} else {
		name := stringArg(args, "patient_name")
		if name == "" {
			name = "Contact " + phone
		}
		patientID, err = patients.CreateTx(ctx, tx, &patients.CreatePatientRequest{
			ClinicID: clinicID,
			Name:     name,
			Phone:    phone,
			Email:    stringArg(args, "email"),
			IsLead:   true,
		})
		if err != nil {
			return nil, err
		}
	}

	appointmentID, err := appointments.CreateTx(ctx, tx, &appointments.CreateAppointmentRequest{
		ClinicID:  clinicID,
		PatientID: patientID,
		Date:      date,
		Time:      timeOfDay,
		Procedure: procedure,
		Notes:     stringArg(args, "notes"),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("actions: commit transaction: %w", err)
	}

	return map[string]any{
		"patient_id":     patientID,
		"appointment_id": appointmentID,
		"date":           date,
		"time":           timeOfDay,
		"procedure":      procedure,
	}, nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
