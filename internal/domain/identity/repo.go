package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	CountByRole(ctx context.Context) (map[string]int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Count(ctx context.Context) (int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error)
	Count(ctx context.Context) (int, error)
}

type PharmacyRepository interface {
	Create(ctx context.Context, p *Pharmacy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Pharmacy, error)
	Update(ctx context.Context, p *Pharmacy) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Pharmacy, error)
}

type TechnicianRepository interface {
	Create(ctx context.Context, t *Technician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Technician, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Technician, error)
	Update(ctx context.Context, t *Technician) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Technician, error)
}
