package lab

import (
	"context"

	"github.com/google/uuid"
)

type TestRequestRepository interface {
	Create(ctx context.Context, t *TestRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestRequest, error)
	Update(ctx context.Context, t *TestRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByTechnician(ctx context.Context, technicianID uuid.UUID, status string, limit, offset int) ([]*TestRequest, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TestRequest, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*TestRequest, int, error)
}
