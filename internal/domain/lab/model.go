package lab

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
)

// TestRequest is a lab order assigned to a single technician.
// CompletedAt is set exactly when status is Completed.
type TestRequest struct {
	ID           uuid.UUID  `json:"id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	TechnicianID uuid.UUID  `json:"technician_id"`
	TestName     string     `json:"test_name"`
	Status       string     `json:"status"`
	Results      *string    `json:"results,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
