package lab

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Registry answers lookups on the people a test request references.
type Registry interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	TechnicianExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientContact(ctx context.Context, id uuid.UUID) (email, name string, err error)
}

type Service struct {
	repo      TestRequestRepository
	directory Directory
	registry  Registry
	pool      *pgxpool.Pool
	mailer    *notification.Service
}

func NewService(repo TestRequestRepository, directory Directory, registry Registry,
	pool *pgxpool.Pool, mailer *notification.Service) *Service {
	return &Service{repo: repo, directory: directory, registry: registry, pool: pool, mailer: mailer}
}

type CreateInput struct {
	PatientID    uuid.UUID `json:"patient_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
	TestName     string    `json:"test_name"`
}

// Create files a test request from the calling doctor, assigned to one
// technician. It starts pending.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*TestRequest, error) {
	if in.PatientID == uuid.Nil || in.TechnicianID == uuid.Nil || in.TestName == "" {
		return nil, apperror.Validation("patient_id, technician_id and test_name are required")
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
	if ok, err := s.registry.TechnicianExists(ctx, in.TechnicianID); err != nil {
		return nil, fmt.Errorf("check technician: %w", err)
	} else if !ok {
		return nil, apperror.Validation("technician %s does not exist", in.TechnicianID)
	}

	t := &TestRequest{
		DoctorID:     doctorID,
		PatientID:    in.PatientID,
		TechnicianID: in.TechnicianID,
		TestName:     in.TestName,
		Status:       StatusPending,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create test request: %w", err)
	}
	return t, nil
}

// Pending lists the calling technician's open requests, newest first.
func (s *Service) Pending(ctx context.Context, caller auth.Identity, limit, offset int) ([]*TestRequest, int, error) {
	technicianID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleLabTech)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByTechnician(ctx, technicianID, StatusPending, limit, offset)
}

// History lists the calling technician's completed requests, newest first.
func (s *Service) History(ctx context.Context, caller auth.Identity, limit, offset int) ([]*TestRequest, int, error) {
	technicianID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleLabTech)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByTechnician(ctx, technicianID, StatusCompleted, limit, offset)
}

type UpdateInput struct {
	Status  string  `json:"status"`
	Results *string `json:"results"`
}

// Update lets the assigned technician record results. Marking a request
// completed stamps completed_at; reverting to pending clears both the
// stamp and the results.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in UpdateInput) (*TestRequest, error) {
	if in.Status != StatusPending && in.Status != StatusCompleted {
		return nil, apperror.Validation("status must be %s or %s", StatusPending, StatusCompleted)
	}

	technicianID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleLabTech)
	if err != nil {
		return nil, err
	}

	var out *TestRequest
	var completed bool
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		t, err := s.getTest(ctx, id)
		if err != nil {
			return err
		}
		if t.TechnicianID != technicianID {
			return apperror.Forbidden("test request is assigned to another technician")
		}

		completed = in.Status == StatusCompleted && t.Status != StatusCompleted
		t.Status = in.Status
		if in.Status == StatusCompleted {
			if in.Results != nil {
				t.Results = in.Results
			}
			now := time.Now().UTC()
			t.CompletedAt = &now
		} else {
			t.Results = nil
			t.CompletedAt = nil
		}

		if err := s.repo.Update(ctx, t); err != nil {
			return fmt.Errorf("update test request: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if completed {
		s.notifyCompleted(ctx, out)
	}
	return out, nil
}

func (s *Service) notifyCompleted(ctx context.Context, t *TestRequest) {
	email, name, err := s.registry.PatientContact(ctx, t.PatientID)
	if err != nil || email == "" {
		return
	}
	s.mailer.SendTemplateSoft(ctx, "lab-result-ready", map[string]string{
		"patient_name": name,
		"test_name":    t.TestName,
	}, email)
}

// ListForPatient is open to the patient themselves and admins.
func (s *Service) ListForPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*TestRequest, int, error) {
	if !auth.IsAdmin(caller.Role) {
		profileID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
		if err != nil {
			return nil, 0, err
		}
		if profileID != patientID {
			return nil, 0, apperror.Forbidden("not your test requests")
		}
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Mine lists the requests the calling doctor has filed.
func (s *Service) Mine(ctx context.Context, caller auth.Identity, limit, offset int) ([]*TestRequest, int, error) {
	doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// Delete is open to the requesting doctor and admins.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	t, err := s.getTest(ctx, id)
	if err != nil {
		return err
	}
	if !auth.IsAdmin(caller.Role) {
		doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
		if err != nil {
			return err
		}
		if t.DoctorID != doctorID {
			return apperror.Forbidden("only the requesting doctor may delete this test request")
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) getTest(ctx context.Context, id uuid.UUID) (*TestRequest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("test request not found")
		}
		return nil, fmt.Errorf("get test request: %w", err)
	}
	return t, nil
}
