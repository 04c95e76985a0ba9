package review

import (
	"context"

	"github.com/google/uuid"
)

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Review, int, error)
	AverageForDoctor(ctx context.Context, doctorID uuid.UUID) (float64, int, error)
	AverageForHospital(ctx context.Context, hospitalID uuid.UUID) (float64, int, error)
}
