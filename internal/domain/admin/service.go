package admin

import (
	"context"
	"fmt"

	"github.com/medbeta/medbeta/internal/domain/hospital"
	"github.com/medbeta/medbeta/internal/domain/identity"
)

// PendingCounter reports how many invitations are still open.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Service aggregates the platform-wide numbers behind the admin console.
type Service struct {
	users     identity.UserRepository
	patients  identity.PatientRepository
	doctors   identity.DoctorRepository
	hospitals hospital.HospitalRepository
	invites   PendingCounter
}

func NewService(users identity.UserRepository, patients identity.PatientRepository,
	doctors identity.DoctorRepository, hospitals hospital.HospitalRepository,
	invites PendingCounter) *Service {
	return &Service{
		users:     users,
		patients:  patients,
		doctors:   doctors,
		hospitals: hospitals,
		invites:   invites,
	}
}

// Overview is the admin dashboard snapshot.
type Overview struct {
	TotalUsers     int            `json:"total_users"`
	UsersByRole    map[string]int `json:"users_by_role"`
	Patients       int            `json:"patients"`
	Doctors        int            `json:"doctors"`
	Hospitals      int            `json:"hospitals"`
	PendingInvites int            `json:"pending_invites"`
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	total := 0
	for _, n := range byRole {
		total += n
	}

	patients, err := s.patients.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	doctors, err := s.doctors.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count doctors: %w", err)
	}
	hospitals, err := s.hospitals.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count hospitals: %w", err)
	}
	pending, err := s.invites.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("count invites: %w", err)
	}

	return &Overview{
		TotalUsers:     total,
		UsersByRole:    byRole,
		Patients:       patients,
		Doctors:        doctors,
		Hospitals:      hospitals,
		PendingInvites: pending,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*identity.User, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*hospital.Hospital, int, error) {
	return s.hospitals.List(ctx, limit, offset)
}
