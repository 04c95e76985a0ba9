package invite

import (
	"context"

	"github.com/google/uuid"
)

type PendingUserRepository interface {
	Create(ctx context.Context, p *PendingUser) error
	GetByID(ctx context.Context, id uuid.UUID) (*PendingUser, error)
	GetByToken(ctx context.Context, token string) (*PendingUser, error)
	GetByEmail(ctx context.Context, email string) (*PendingUser, error)
	Update(ctx context.Context, p *PendingUser) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, role string, limit, offset int) ([]*PendingUser, int, error)
	DeleteByHospital(ctx context.Context, hospitalID uuid.UUID) error
	CountPending(ctx context.Context) (int, error)
}
