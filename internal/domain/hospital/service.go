package hospital

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/domain/identity"
	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/db"
)

// InviteCleaner removes the pending invitations that reference a hospital
// when it is torn down.
type InviteCleaner interface {
	DeletePendingByHospital(ctx context.Context, hospitalID uuid.UUID) error
}

type Service struct {
	hospitals   HospitalRepository
	users       identity.UserRepository
	doctors     identity.DoctorRepository
	technicians identity.TechnicianRepository
	pharmacies  identity.PharmacyRepository
	invites     InviteCleaner
	pool        *pgxpool.Pool
}

func NewService(hospitals HospitalRepository, users identity.UserRepository,
	doctors identity.DoctorRepository, technicians identity.TechnicianRepository,
	pharmacies identity.PharmacyRepository, invites InviteCleaner, pool *pgxpool.Pool) *Service {
	return &Service{
		hospitals:   hospitals,
		users:       users,
		doctors:     doctors,
		technicians: technicians,
		pharmacies:  pharmacies,
		invites:     invites,
		pool:        pool,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("hospital not found")
		}
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return h, nil
}

// Mine returns the hospital owned by the calling hospital_admin.
func (s *Service) Mine(ctx context.Context, caller auth.Identity) (*Hospital, error) {
	h, err := s.hospitals.GetByUserID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("no hospital on file for this account")
		}
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return h, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.hospitals.List(ctx, limit, offset)
}

func (s *Service) HospitalExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.hospitals.Exists(ctx, id)
}

type UpdateInput struct {
	Name          *string `json:"name"`
	Location      *string `json:"location"`
	LicenseNumber *string `json:"license_number"`
}

// Update edits the hospital record. Open to the owning hospital_admin
// and admins.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in UpdateInput) (*Hospital, error) {
	h, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(caller, h); err != nil {
		return nil, err
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, apperror.Validation("name cannot be empty")
		}
		h.Name = *in.Name
	}
	if in.Location != nil {
		h.Location = in.Location
	}
	if in.LicenseNumber != nil {
		h.LicenseNumber = in.LicenseNumber
	}

	if err := s.hospitals.Update(ctx, h); err != nil {
		return nil, fmt.Errorf("update hospital: %w", err)
	}
	return h, nil
}

// SignAgreement records the service agreement. It is idempotent.
func (s *Service) SignAgreement(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Hospital, error) {
	h, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(caller, h); err != nil {
		return nil, err
	}
	if h.AgreementSigned {
		return h, nil
	}
	h.AgreementSigned = true
	if err := s.hospitals.Update(ctx, h); err != nil {
		return nil, fmt.Errorf("sign agreement: %w", err)
	}
	return h, nil
}

// Delete tears down a hospital: its doctors' accounts, its pending
// invitations, the hospital row and the owning admin account, all in
// one transaction.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	h, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		docs, err := s.doctors.ListByHospital(ctx, id)
		if err != nil {
			return fmt.Errorf("list doctors: %w", err)
		}
		for _, d := range docs {
			if err := s.users.Delete(ctx, d.UserID); err != nil {
				return fmt.Errorf("delete doctor account: %w", err)
			}
		}
		if err := s.invites.DeletePendingByHospital(ctx, id); err != nil {
			return fmt.Errorf("delete pending invites: %w", err)
		}
		if err := s.hospitals.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete hospital: %w", err)
		}
		if err := s.users.Delete(ctx, h.UserID); err != nil {
			return fmt.Errorf("delete hospital account: %w", err)
		}
		return nil
	})
}

// Doctors lists the doctors attached to a hospital. Open to the owning
// hospital_admin and admins.
func (s *Service) Doctors(ctx context.Context, caller auth.Identity, id uuid.UUID) ([]*identity.Doctor, error) {
	if err := s.requireOwnerByID(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.doctors.ListByHospital(ctx, id)
}

func (s *Service) Technicians(ctx context.Context, caller auth.Identity, id uuid.UUID) ([]*identity.Technician, error) {
	if err := s.requireOwnerByID(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.technicians.ListByHospital(ctx, id)
}

func (s *Service) Pharmacies(ctx context.Context, caller auth.Identity, id uuid.UUID) ([]*identity.Pharmacy, error) {
	if err := s.requireOwnerByID(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.pharmacies.ListByHospital(ctx, id)
}

// Staff is the combined roster of a hospital.
type Staff struct {
	Doctors     []*identity.Doctor     `json:"doctors"`
	Technicians []*identity.Technician `json:"technicians"`
	Pharmacists []*identity.Pharmacy   `json:"pharmacists"`
}

func (s *Service) Staff(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Staff, error) {
	if err := s.requireOwnerByID(ctx, caller, id); err != nil {
		return nil, err
	}
	docs, err := s.doctors.ListByHospital(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	techs, err := s.technicians.ListByHospital(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	pharms, err := s.pharmacies.ListByHospital(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list pharmacies: %w", err)
	}
	return &Staff{Doctors: docs, Technicians: techs, Pharmacists: pharms}, nil
}

// RequireOwnership reports whether the caller may act for the hospital.
// Admins always may; a hospital_admin only for their own hospital.
func (s *Service) RequireOwnership(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	return s.requireOwnerByID(ctx, caller, id)
}

func (s *Service) requireOwnerByID(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	h, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.requireOwner(caller, h)
}

func (s *Service) requireOwner(caller auth.Identity, h *Hospital) error {
	if auth.IsAdmin(caller.Role) {
		return nil
	}
	if caller.Role == auth.RoleHospitalAdmin && h.UserID == caller.UserID {
		return nil
	}
	return apperror.Forbidden("not your hospital")
}
