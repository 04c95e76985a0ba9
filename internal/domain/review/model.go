package review

import (
	"time"

	"github.com/google/uuid"
)

// Review rates either a doctor or a hospital, never both at once.
type Review struct {
	ID         uuid.UUID  `json:"id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	DoctorID   *uuid.UUID `json:"doctor_id,omitempty"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
	Rating     int        `json:"rating"`
	Comment    string     `json:"comment"`
	CreatedAt  time.Time  `json:"created_at"`
}
