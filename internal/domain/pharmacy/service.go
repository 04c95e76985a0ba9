package pharmacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/db"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

// Directory resolves a user id to its role-profile id.
type Directory interface {
	ProfileID(ctx context.Context, userID uuid.UUID, role string) (uuid.UUID, error)
}

// Registry answers patient lookups so prescriptions cannot reference
// people who are not on file.
type Registry interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientContact(ctx context.Context, id uuid.UUID) (email, name string, err error)
	PharmacyName(ctx context.Context, id uuid.UUID) (string, error)
}

type Service struct {
	repo      PrescriptionRepository
	directory Directory
	registry  Registry
	pool      *pgxpool.Pool
	mailer    *notification.Service
}

func NewService(repo PrescriptionRepository, directory Directory, registry Registry,
	pool *pgxpool.Pool, mailer *notification.Service) *Service {
	return &Service{repo: repo, directory: directory, registry: registry, pool: pool, mailer: mailer}
}

type CreateInput struct {
	PatientID         uuid.UUID `json:"patient_id"`
	MedicationDetails string    `json:"medication_details"`
}

// Create issues a prescription from the calling doctor. It starts unclaimed.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*Prescription, error) {
	if in.PatientID == uuid.Nil || in.MedicationDetails == "" {
		return nil, apperror.Validation("patient_id and medication_details are required")
	}

	doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
	if err != nil {
		return nil, err
	}

	if ok, err := s.registry.PatientExists(ctx, in.PatientID); err != nil {
		return nil, fmt.Errorf("check patient: %w", err)
	} else if !ok {
		return nil, apperror.Validation("patient %s does not exist", in.PatientID)
	}

	p := &Prescription{
		DoctorID:          doctorID,
		PatientID:         in.PatientID,
		MedicationDetails: in.MedicationDetails,
		Status:            StatusUnclaimed,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}
	return p, nil
}

// Claim assigns the calling pharmacy to an unclaimed prescription. The
// conditional update makes the claim exclusive: a second claim, however
// close, loses with a conflict.
func (s *Service) Claim(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Prescription, error) {
	pharmacyID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePharmacy)
	if err != nil {
		return nil, err
	}

	var out *Prescription
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if _, err := s.getRx(ctx, id); err != nil {
			return err
		}
		won, err := s.repo.Claim(ctx, id, pharmacyID)
		if err != nil {
			return fmt.Errorf("claim prescription: %w", err)
		}
		if !won {
			return apperror.Conflict("prescription is already claimed")
		}
		out, err = s.getRx(ctx, id)
		return err
	})
	return out, err
}

// Verify moves a claimed prescription to verified. Only the claiming
// pharmacy may do it.
func (s *Service) Verify(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Prescription, error) {
	return s.advance(ctx, caller, id, StatusClaimed, StatusVerified)
}

// Dispense moves a verified prescription to dispensed and notifies the
// patient. Skipping verification is a conflict.
func (s *Service) Dispense(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Prescription, error) {
	p, err := s.advance(ctx, caller, id, StatusVerified, StatusDispensed)
	if err != nil {
		return nil, err
	}
	s.notifyDispensed(ctx, p)
	return p, nil
}

func (s *Service) advance(ctx context.Context, caller auth.Identity, id uuid.UUID, from, to string) (*Prescription, error) {
	pharmacyID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePharmacy)
	if err != nil {
		return nil, err
	}

	var out *Prescription
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		p, err := s.getRx(ctx, id)
		if err != nil {
			return err
		}
		if p.PharmacyID == nil || *p.PharmacyID != pharmacyID {
			return apperror.Forbidden("prescription is not claimed by your pharmacy")
		}
		if p.Status != from {
			return apperror.Conflict("prescription is %s, expected %s", p.Status, from)
		}
		if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		p.Status = to
		out = p
		return nil
	})
	return out, err
}

func (s *Service) notifyDispensed(ctx context.Context, p *Prescription) {
	email, name, err := s.registry.PatientContact(ctx, p.PatientID)
	if err != nil || email == "" {
		return
	}
	pharmacyName := ""
	if p.PharmacyID != nil {
		pharmacyName, _ = s.registry.PharmacyName(ctx, *p.PharmacyID)
	}
	s.mailer.SendTemplateSoft(ctx, "prescription-filled", map[string]string{
		"patient_name": name,
		"pharmacy":     pharmacyName,
	}, email)
}

func (s *Service) getRx(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("prescription not found")
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}

func (s *Service) ListUnclaimed(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListUnclaimed(ctx, limit, offset)
}

// Mine lists the prescriptions the calling pharmacy has claimed.
func (s *Service) Mine(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Prescription, int, error) {
	pharmacyID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePharmacy)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPharmacy(ctx, pharmacyID, limit, offset)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListForPatient is open to the patient themselves, any doctor who
// prescribed for them, and admins.
func (s *Service) ListForPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	switch {
	case auth.IsAdmin(caller.Role):
	case caller.Role == auth.RolePatient:
		profileID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
		if err != nil {
			return nil, 0, err
		}
		if profileID != patientID {
			return nil, 0, apperror.Forbidden("not your prescriptions")
		}
	case caller.Role == auth.RoleDoctor:
		doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
		if err != nil {
			return nil, 0, err
		}
		items, total, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
		if err != nil {
			return nil, 0, err
		}
		prescribed := false
		for _, p := range items {
			if p.DoctorID == doctorID {
				prescribed = true
				break
			}
		}
		if total > 0 && !prescribed {
			return nil, 0, apperror.Forbidden("you have not prescribed for this patient")
		}
		return items, total, nil
	default:
		return nil, 0, apperror.Forbidden("role %s may not read these prescriptions", caller.Role)
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListForDoctor is open to the doctor themselves and admins.
func (s *Service) ListForDoctor(ctx context.Context, caller auth.Identity, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	if !auth.IsAdmin(caller.Role) {
		profileID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
		if err != nil {
			return nil, 0, err
		}
		if profileID != doctorID {
			return nil, 0, apperror.Forbidden("not your prescriptions")
		}
	}
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// Delete is open to the prescribing doctor and admins.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	p, err := s.getRx(ctx, id)
	if err != nil {
		return err
	}
	if !auth.IsAdmin(caller.Role) {
		doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
		if err != nil {
			return err
		}
		if p.DoctorID != doctorID {
			return apperror.Forbidden("only the prescribing doctor may delete this prescription")
		}
	}
	return s.repo.Delete(ctx, id)
}
