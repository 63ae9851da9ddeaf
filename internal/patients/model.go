package patients

import (
	"errors"
	"strings"
	"time"
)

// ErrPatientNotFound is returned for lookups by id that match no row.
var ErrPatientNotFound = errors.New("patients: patient not found")

// Patient is a clinic-scoped patient record. IsLead marks contacts whose
// record was auto-created by the booking assistant rather than by staff.
type Patient struct {
	ID        int64     `json:"id"`
	ClinicID  string    `json:"clinic_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	IsLead    bool      `json:"is_lead"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatePatientRequest carries the fields needed to insert a patient.
type CreatePatientRequest struct {
	ClinicID string
	Name     string
	Phone    string
	Email    string
	IsLead   bool
}

// Validate enforces the minimal required shape.
func (r *CreatePatientRequest) Validate() error {
	if strings.TrimSpace(r.ClinicID) == "" {
		return errors.New("patients: clinic id is required")
	}
	if NormalizePhone(r.Phone) == "" {
		return errors.New("patients: phone is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("patients: name is required")
	}
	return nil
}
