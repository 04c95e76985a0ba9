package review

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
)

// Directory resolves a user id to its role-profile id.
type Directory interface {
	ProfileID(ctx context.Context, userID uuid.UUID, role string) (uuid.UUID, error)
}

// Registry answers existence checks on review subjects.
type Registry interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
	HospitalExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo      ReviewRepository
	directory Directory
	registry  Registry
}

func NewService(repo ReviewRepository, directory Directory, registry Registry) *Service {
	return &Service{repo: repo, directory: directory, registry: registry}
}

type CreateInput struct {
	DoctorID   *uuid.UUID `json:"doctor_id"`
	HospitalID *uuid.UUID `json:"hospital_id"`
	Rating     int        `json:"rating"`
	Comment    string     `json:"comment"`
}

// Create files a review from the calling patient against exactly one
// doctor or one hospital.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperror.Validation("rating must be between 1 and 5")
	}
	if in.Comment == "" {
		return nil, apperror.Validation("comment is required")
	}
	if (in.DoctorID == nil) == (in.HospitalID == nil) {
		return nil, apperror.Validation("exactly one of doctor_id or hospital_id is required")
	}

	patientID, err := s.directory.ProfileID(ctx, caller.UserID, auth.RolePatient)
	if err != nil {
		return nil, err
	}

	if in.DoctorID != nil {
		if ok, err := s.registry.DoctorExists(ctx, *in.DoctorID); err != nil {
			return nil, fmt.Errorf("check doctor: %w", err)
		} else if !ok {
			return nil, apperror.Validation("doctor %s does not exist", *in.DoctorID)
		}
	}
	if in.HospitalID != nil {
		if ok, err := s.registry.HospitalExists(ctx, *in.HospitalID); err != nil {
			return nil, fmt.Errorf("check hospital: %w", err)
		} else if !ok {
			return nil, apperror.Validation("hospital %s does not exist", *in.HospitalID)
		}
	}

	rv := &Review{
		PatientID:  patientID,
		DoctorID:   in.DoctorID,
		HospitalID: in.HospitalID,
		Rating:     in.Rating,
		Comment:    in.Comment,
	}
	if err := s.repo.Create(ctx, rv); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return rv, nil
}

// Summary carries a page of reviews with the running average.
type Summary struct {
	Reviews []*Review `json:"reviews"`
	Average float64   `json:"average"`
	Count   int       `json:"count"`
}

func (s *Service) ForDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) (*Summary, error) {
	items, _, err := s.repo.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	avg, count, err := s.repo.AverageForDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return &Summary{Reviews: items, Average: avg, Count: count}, nil
}

func (s *Service) ForHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) (*Summary, error) {
	items, _, err := s.repo.ListByHospital(ctx, hospitalID, limit, offset)
	if err != nil {
		return nil, err
	}
	avg, count, err := s.repo.AverageForHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return &Summary{Reviews: items, Average: avg, Count: count}, nil
}
