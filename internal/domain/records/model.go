package records

import (
	"time"

	"github.com/google/uuid"
)

// MedicalRecord is a clinical note a doctor writes about a patient,
// optionally tied to the appointment it came out of.
type MedicalRecord struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Diagnosis     string     `json:"diagnosis"`
	Treatment     string     `json:"treatment"`
	Notes         *string    `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AccessLog is one append-only row recording that a doctor read a patient's
// chart. Rows are never updated or deleted.
type AccessLog struct {
	ID         uuid.UUID `json:"id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Purpose    string    `json:"purpose"`
	AccessedAt time.Time `json:"accessed_at"`
}
