package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
)

// Directory resolves a user id to its role-profile id.
type Directory interface {
	ProfileID(ctx context.Context, userID uuid.UUID, role string) (uuid.UUID, error)
}

// AppointmentChecker reports whether a doctor has a qualifying appointment
// with a patient. The scheduling domain provides the implementation.
type AppointmentChecker interface {
	HasQualifyingAppointment(ctx context.Context, doctorID, patientID uuid.UUID, appointmentID *uuid.UUID) (bool, error)
}

type Service struct {
	records    RecordRepository
	accessLogs AccessLogRepository
	directory  Directory
	appts      AppointmentChecker
	logger     zerolog.Logger
}

func NewService(records RecordRepository, accessLogs AccessLogRepository,
	directory Directory, appts AppointmentChecker, logger zerolog.Logger) *Service {
	return &Service{
		records:    records,
		accessLogs: accessLogs,
		directory:  directory,
		appts:      appts,
		logger:     logger,
	}
}

// ListForPatient returns a patient's chart. The owning patient and admins
// read freely; a doctor needs at least one appointment with the patient,
// and every such doctor read appends one access-log row. The append is
// best-effort: a failed write is logged, never surfaced.
func (s *Service) ListForPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	switch {
	case auth.IsAdmin(caller.Role):
	case caller.Role == auth.RolePatient:
		profileID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
		if err != nil {
			return nil, 0, err
		}
		if profileID != patientID {
			return nil, 0, apperror.Forbidden("not your records")
		}
	case caller.Role == auth.RoleDoctor:
		doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
		if err != nil {
			return nil, 0, err
		}
		ok, err := s.appts.HasQualifyingAppointment(ctx, doctorID, patientID, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("check appointment: %w", err)
		}
		if !ok {
			return nil, 0, apperror.Forbidden("no appointment with this patient")
		}
		s.logAccess(ctx, doctorID, patientID, "viewed medical records")
	default:
		return nil, 0, apperror.Forbidden("role %s may not read medical records", caller.Role)
	}

	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) logAccess(ctx context.Context, doctorID, patientID uuid.UUID, purpose string) {
	err := s.accessLogs.Append(ctx, &AccessLog{
		DoctorID:  doctorID,
		PatientID: patientID,
		Purpose:   purpose,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("doctor_id", doctorID.String()).
			Str("patient_id", patientID.String()).
			Msg("access log append failed")
	}
}

type CreateInput struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	Diagnosis     string     `json:"diagnosis"`
	Treatment     string     `json:"treatment"`
	Notes         *string    `json:"notes"`
}

// Create writes a record for a patient the doctor has actually seen. When
// appointment_id is given, that specific appointment must link the pair.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*MedicalRecord, error) {
	if in.PatientID == uuid.Nil || in.Diagnosis == "" || in.Treatment == "" {
		return nil, apperror.Validation("patient_id, diagnosis and treatment are required")
	}

	doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
	if err != nil {
		return nil, err
	}

	ok, err := s.appts.HasQualifyingAppointment(ctx, doctorID, in.PatientID, in.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("check appointment: %w", err)
	}
	if !ok {
		return nil, apperror.Forbidden("no qualifying appointment with this patient")
	}

	rec := &MedicalRecord{
		PatientID:     in.PatientID,
		DoctorID:      doctorID,
		AppointmentID: in.AppointmentID,
		Diagnosis:     in.Diagnosis,
		Treatment:     in.Treatment,
		Notes:         in.Notes,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

type UpdateInput struct {
	Diagnosis *string `json:"diagnosis"`
	Treatment *string `json:"treatment"`
	Notes     *string `json:"notes"`
}

// Update is open to the creating doctor and admins.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, in UpdateInput) (*MedicalRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("record not found")
		}
		return nil, fmt.Errorf("get record: %w", err)
	}

	if !auth.IsAdmin(caller.Role) {
		doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
		if err != nil {
			return nil, err
		}
		if rec.DoctorID != doctorID {
			return nil, apperror.Forbidden("only the creating doctor may edit this record")
		}
	}

	if in.Diagnosis != nil {
		rec.Diagnosis = *in.Diagnosis
	}
	if in.Treatment != nil {
		rec.Treatment = *in.Treatment
	}
	if in.Notes != nil {
		rec.Notes = in.Notes
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return rec, nil
}

// Delete is admin only; the handler enforces the role gate.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.records.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("record not found")
		}
		return fmt.Errorf("get record: %w", err)
	}
	return s.records.Delete(ctx, id)
}

// ListAccessLogs returns the full audit trail, newest first. Admin only.
func (s *Service) ListAccessLogs(ctx context.Context, limit, offset int) ([]*AccessLog, int, error) {
	return s.accessLogs.List(ctx, limit, offset)
}

// ListAccessLogsForPatient is open to the owning patient and admins.
func (s *Service) ListAccessLogsForPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*AccessLog, int, error) {
	if !auth.IsAdmin(caller.Role) {
		profileID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
		if err != nil {
			return nil, 0, err
		}
		if profileID != patientID {
			return nil, 0, apperror.Forbidden("not your access logs")
		}
	}
	return s.accessLogs.ListByPatient(ctx, patientID, limit, offset)
}

// ListAccessLogsForDoctor returns the calling doctor's own audit trail.
func (s *Service) ListAccessLogsForDoctor(ctx context.Context, caller auth.Identity, limit, offset int) ([]*AccessLog, int, error) {
	doctorID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RoleDoctor)
	if err != nil {
		return nil, 0, err
	}
	return s.accessLogs.ListByDoctor(ctx, doctorID, limit, offset)
}
