package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/klinikos/clinic-ai-platform/internal/patients"
)

// CreatePatientHandler registers a patient record for the contact without
// booking anything. Idempotent for an already-resolved contact: it returns
// the existing patient id instead of inserting a duplicate.
type CreatePatientHandler struct {
	db txBeginner
}

// NewCreatePatientHandler builds the handler over a pgx pool.
func NewCreatePatientHandler(pool *pgxpool.Pool) *CreatePatientHandler {
	if pool == nil {
		panic("actions: pgx pool required")
	}
	return &CreatePatientHandler{db: pool}
}

func newCreatePatientHandlerWithDB(db txBeginner) *CreatePatientHandler {
	if db == nil {
		panic("actions: db required")
	}
	return &CreatePatientHandler{db: db}
}

func (h *CreatePatientHandler) Name() string { return FuncCreatePatient }

// Execute creates the patient. Required arguments: name. The contact phone
// is injected by the orchestrator; email is optional.
func (h *CreatePatientHandler) Execute(ctx context.Context, clinicID string, args map[string]any) (map[string]any, error) {
	name := stringArg(args, "name")
	if name == "" {
		name = stringArg(args, "patient_name")
	}
	phone := patients.NormalizePhone(stringArg(args, "phone"))

	if name == "" {
		return nil, errors.New("actions: create_patient requires a name")
	}
	if phone == "" {
		return nil, errors.New("actions: create_patient requires a contact phone")
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("actions: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := patients.FindByPhoneTx(ctx, tx, clinicID, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return map[string]any{"patient_id": existing.ID, "already_existed": true}, tx.Commit(ctx)
	}

	patientID, err := patients.CreateTx(ctx, tx, &patients.CreatePatientRequest{
		ClinicID: clinicID,
		Name:     name,
		Phone:    phone,
		Email:    stringArg(args, "email"),
		IsLead:   true,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("actions: commit transaction: %w", err)
	}
	return map[string]any{"patient_id": patientID}, nil
}
