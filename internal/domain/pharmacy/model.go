package pharmacy

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusUnclaimed = "unclaimed"
	StatusClaimed   = "claimed"
	StatusVerified  = "verified"
	StatusDispensed = "dispensed"
)

// Prescription moves strictly forward: unclaimed, claimed, verified,
// dispensed. Once a pharmacy claims it, pharmacy_id never changes.
type Prescription struct {
	ID                uuid.UUID  `json:"id"`
	DoctorID          uuid.UUID  `json:"doctor_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	PharmacyID        *uuid.UUID `json:"pharmacy_id,omitempty"`
	MedicationDetails string     `json:"medication_details"`
	Status            string     `json:"status"`
	IssuedAt          time.Time  `json:"issued_at"`
}
