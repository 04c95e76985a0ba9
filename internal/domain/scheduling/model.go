package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusCompleted = "completed"
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusAccepted:  true,
	StatusDeclined:  true,
	StatusCompleted: true,
}

// Appointment is a visit request from a patient to a doctor at a hospital.
// It starts pending; the doctor accepts or declines, and an admin can move
// it anywhere, including completed.
type Appointment struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Date       time.Time `json:"date"`
	Time       string    `json:"time"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
