package scheduling

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
)

const dateLayout = "2006-01-02"

// Directory resolves a user id to its role-profile id. The identity domain
// provides the implementation.
type Directory interface {
	ProfileID(ctx context.Context, userID uuid.UUID, role string) (uuid.UUID, error)
}

// Registry answers existence checks against the identity and hospital
// registries so bookings cannot point at ghosts.
type Registry interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
	HospitalExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo      AppointmentRepository
	directory Directory
	registry  Registry
	pool      *pgxpool.Pool
}

func NewService(repo AppointmentRepository, directory Directory, registry Registry, pool *pgxpool.Pool) *Service {
	return &Service{repo: repo, directory: directory, registry: registry, pool: pool}
}

type CreateInput struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
}

// Create books an appointment for the calling patient. It starts pending.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*Appointment, error) {
	if in.DoctorID == uuid.Nil || in.HospitalID == uuid.Nil || in.Date == "" || in.Time == "" {
		return nil, apperror.Validation("doctor_id, hospital_id, date and time are required")
	}
	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		return nil, apperror.Validation("date must be in YYYY-MM-DD format")
	}

	patientID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
	if err != nil {
		return nil, err
	}

	if ok, err := s.registry.DoctorExists(ctx, in.DoctorID); err != nil {
		return nil, fmt.Errorf("check doctor: %w", err)
	} else if !ok {
		return nil, apperror.Validation("doctor %s does not exist", in.DoctorID)
	}
	if ok, err := s.registry.HospitalExists(ctx, in.HospitalID); err != nil {
		return nil, fmt.Errorf("check hospital: %w", err)
	} else if !ok {
		return nil, apperror.Validation("hospital %s does not exist", in.HospitalID)
	}

	a := &Appointment{
		PatientID:  patientID,
		DoctorID:   in.DoctorID,
		HospitalID: in.HospitalID,
		Date:       date,
		Time:       in.Time,
		Status:     StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

// Get enforces the ownership gate: the booking patient, the appointment's
// doctor, or an admin. Absent appointments are 404; present but foreign
// ones are 403.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("appointment not found")
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := s.authorize(ctx, caller, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) authorize(ctx context.Context, caller auth.Identity, a *Appointment) error {
	if auth.IsAdmin(caller.Role) {
		return nil
	}
	profileID, err := s.directory.ProfileID(ctx, caller.UserID, caller.Role)
	if err != nil {
		return err
	}
	switch caller.Role {
	case auth.RolePatient:
		if a.PatientID == profileID {
			return nil
		}
	case auth.RoleDoctor:
		if a.DoctorID == profileID {
			return nil
		}
	}
	return apperror.Forbidden("not your appointment")
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Mine lists the caller's own appointments, patient or doctor view.
func (s *Service) Mine(ctx context.Context, caller auth.Identity, limit, offset int) ([]*Appointment, int, error) {
	profileID, err := s.directory.ProfileID(ctx, caller.UserID, caller.Role)
	if err != nil {
		return nil, 0, err
	}
	switch caller.Role {
	case auth.RolePatient:
		return s.repo.ListByPatient(ctx, profileID, limit, offset)
	case auth.RoleDoctor:
		return s.repo.ListByDoctor(ctx, profileID, limit, offset)
	default:
		return nil, 0, apperror.Forbidden("role %s has no appointment list", caller.Role)
	}
}

type UpdateInput struct {
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Status *string `json:"status"`
}

// Update applies role-dependent rules inside one transaction: the booking
// patient may move date and time while the appointment is not completed, the
// appointment's doctor may only accept or decline, and an admin may set
// anything.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	var out *Appointment
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperror.NotFound("appointment not found")
			}
			return fmt.Errorf("get appointment: %w", err)
		}
		if err := s.authorize(ctx, caller, a); err != nil {
			return err
		}

		switch {
		case auth.IsAdmin(caller.Role):
			if err := applyReschedule(a, in); err != nil {
				return err
			}
			if in.Status != nil {
				if !validStatuses[*in.Status] {
					return apperror.Validation("invalid status %q", *in.Status)
				}
				a.Status = *in.Status
			}
		case caller.Role == auth.RoleDoctor:
			if in.Date != nil || in.Time != nil {
				return apperror.Forbidden("doctors may only accept or decline")
			}
			if in.Status == nil || (*in.Status != StatusAccepted && *in.Status != StatusDeclined) {
				return apperror.Validation("status must be accepted or declined")
			}
			a.Status = *in.Status
		case caller.Role == auth.RolePatient:
			if in.Status != nil {
				return apperror.Forbidden("patients may not change the status")
			}
			if a.Status == StatusCompleted {
				return apperror.Conflict("completed appointments cannot be rescheduled")
			}
			if err := applyReschedule(a, in); err != nil {
				return err
			}
		default:
			return apperror.Forbidden("role %s may not update appointments", caller.Role)
		}

		if err := s.repo.Update(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		out = a
		return nil
	})
	return out, err
}

func applyReschedule(a *Appointment, in UpdateInput) error {
	if in.Date != nil {
		date, err := time.Parse(dateLayout, *in.Date)
		if err != nil {
			return apperror.Validation("date must be in YYYY-MM-DD format")
		}
		a.Date = date
	}
	if in.Time != nil {
		a.Time = *in.Time
	}
	return nil
}

// Delete removes an appointment at any status. Only the booking patient or
// an admin may do it.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("appointment not found")
		}
		return fmt.Errorf("get appointment: %w", err)
	}

	if !auth.IsAdmin(caller.Role) {
		if caller.Role != auth.RolePatient {
			return apperror.Forbidden("only the booking patient may delete an appointment")
		}
		patientID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
		if err != nil {
			return err
		}
		if a.PatientID != patientID {
			return apperror.Forbidden("not your appointment")
		}
	}

	return s.repo.Delete(ctx, id)
}

// PatientIDsSeen returns the distinct patients a doctor has appointments
// with. The identity domain uses it for the doctor's patient roster.
func (s *Service) PatientIDsSeen(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.PatientIDsSeen(ctx, doctorID)
}

// HasQualifyingAppointment reports whether the doctor has an appointment
// with the patient. When appointmentID is set, that specific appointment
// must link the pair.
func (s *Service) HasQualifyingAppointment(ctx context.Context, doctorID, patientID uuid.UUID, appointmentID *uuid.UUID) (bool, error) {
	if appointmentID != nil {
		return s.repo.ExistsSpecific(ctx, *appointmentID, doctorID, patientID)
	}
	return s.repo.ExistsBetween(ctx, doctorID, patientID)
}
