package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	PatientIDsSeen(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error)
	ExistsBetween(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	ExistsSpecific(ctx context.Context, appointmentID, doctorID, patientID uuid.UUID) (bool, error)
}
