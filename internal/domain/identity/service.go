package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/db"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

const resetTokenTTL = time.Hour

// Service owns user credentials and the per-role profile registry.
type Service struct {
	users       UserRepository
	patients    PatientRepository
	doctors     DoctorRepository
	pharmacies  PharmacyRepository
	technicians TechnicianRepository
	pool        *pgxpool.Pool
	jwtCfg      auth.JWTConfig
	mailer      *notification.Service
	frontendURL string
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository,
	pharmacies PharmacyRepository, technicians TechnicianRepository,
	pool *pgxpool.Pool, jwtCfg auth.JWTConfig, mailer *notification.Service, frontendURL string) *Service {
	return &Service{
		users:       users,
		patients:    patients,
		doctors:     doctors,
		pharmacies:  pharmacies,
		technicians: technicians,
		pool:        pool,
		jwtCfg:      jwtCfg,
		mailer:      mailer,
		frontendURL: frontendURL,
	}
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a patient account. The user row and its patient profile
// are written in one transaction so a half-created identity can never leak.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, "", apperror.Validation("name, email and password are required")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", apperror.Validation("%s", err.Error())
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, "", apperror.Conflict("email %s is already registered", in.Email)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("lookup email: %w", err)
	}

	user := &User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         auth.RolePatient,
		IsActive:     true,
		Status:       "active",
	}

	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return s.patients.Create(ctx, &Patient{UserID: user.ID})
	})
	if err != nil {
		return nil, "", err
	}

	token, err := auth.IssueToken(s.jwtCfg, user.ID, user.Role, db.TenantFromContext(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and returns a signed token. Deactivated users
// authenticate successfully but are refused.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperror.Unauthorized("invalid email or password")
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", apperror.Unauthorized("invalid email or password")
	}
	if !user.IsActive {
		return nil, "", apperror.Forbidden("account is deactivated")
	}

	if user.Role == auth.RoleLabTech {
		s.touchTechnicianLogin(ctx, user.ID)
	}

	token, err := auth.IssueToken(s.jwtCfg, user.ID, user.Role, db.TenantFromContext(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *Service) touchTechnicianLogin(ctx context.Context, userID uuid.UUID) {
	tech, err := s.technicians.GetByUserID(ctx, userID)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	tech.LastLogin = &now
	_ = s.technicians.Update(ctx, tech)
}

// ChangePassword verifies the old password before setting the new one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("user not found")
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, oldPassword) {
		return apperror.Validation("old password is incorrect")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperror.Validation("%s", err.Error())
	}
	user.PasswordHash = hash
	return s.users.Update(ctx, user)
}

// RequestPasswordReset issues a single-use reset token and emails a link.
// Email delivery is best-effort; a down relay does not fail the request.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("no account with email %s", email)
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := auth.NewResetToken()
	if err != nil {
		return err
	}
	expires := time.Now().UTC().Add(resetTokenTTL)
	user.ResetToken = &token
	user.ResetTokenExpiresAt = &expires
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	s.mailer.SendTemplateSoft(ctx, "password-reset", map[string]string{
		"reset_link": fmt.Sprintf("%s/reset-password/%s", s.frontendURL, token),
	}, user.Email)
	return nil
}

// CompletePasswordReset consumes a reset token and sets the new password.
func (s *Service) CompletePasswordReset(ctx context.Context, email, token, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("no account with email %s", email)
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if user.ResetToken == nil || *user.ResetToken != token {
		return apperror.Unauthorized("invalid reset token")
	}
	if user.ResetTokenExpiresAt == nil || time.Now().UTC().After(*user.ResetTokenExpiresAt) {
		return apperror.Conflict("reset token has expired")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperror.Validation("%s", err.Error())
	}
	user.PasswordHash = hash
	user.ResetToken = nil
	user.ResetTokenExpiresAt = nil
	return s.users.Update(ctx, user)
}

// ProfileID resolves the caller's role-profile id: the patients row for a
// patient, the doctors row for a doctor, and so on. Services compare this id
// against resource owner columns for ownership gates.
func (s *Service) ProfileID(ctx context.Context, userID uuid.UUID, role string) (uuid.UUID, error) {
	var id uuid.UUID
	var err error
	switch role {
	case auth.RolePatient:
		var p *Patient
		if p, err = s.patients.GetByUserID(ctx, userID); err == nil {
			id = p.ID
		}
	case auth.RoleDoctor:
		var d *Doctor
		if d, err = s.doctors.GetByUserID(ctx, userID); err == nil {
			id = d.ID
		}
	case auth.RolePharmacy:
		var p *Pharmacy
		if p, err = s.pharmacies.GetByUserID(ctx, userID); err == nil {
			id = p.ID
		}
	case auth.RoleLabTech:
		var t *Technician
		if t, err = s.technicians.GetByUserID(ctx, userID); err == nil {
			id = t.ID
		}
	default:
		return uuid.Nil, apperror.Forbidden("role %s has no profile", role)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperror.NotFound("no %s profile for user", role)
		}
		return uuid.Nil, fmt.Errorf("resolve %s profile: %w", role, err)
	}
	return id, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) PatientProfile(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("patient profile not found")
		}
		return nil, err
	}
	return p, nil
}

type PatientProfileUpdate struct {
	DateOfBirth    *time.Time `json:"date_of_birth"`
	Gender         *string    `json:"gender"`
	Phone          *string    `json:"phone"`
	Address        *string    `json:"address"`
	NextOfKinName  *string    `json:"next_of_kin_name"`
	NextOfKinPhone *string    `json:"next_of_kin_phone"`
}

func (s *Service) UpdatePatientProfile(ctx context.Context, userID uuid.UUID, in PatientProfileUpdate) (*Patient, error) {
	p, err := s.PatientProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = in.DateOfBirth
	}
	if in.Gender != nil {
		p.Gender = in.Gender
	}
	if in.Phone != nil {
		p.Phone = in.Phone
	}
	if in.Address != nil {
		p.Address = in.Address
	}
	if in.NextOfKinName != nil {
		p.NextOfKinName = in.NextOfKinName
	}
	if in.NextOfKinPhone != nil {
		p.NextOfKinPhone = in.NextOfKinPhone
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient profile: %w", err)
	}
	return p, nil
}

func (s *Service) DoctorProfile(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("doctor profile not found")
		}
		return nil, err
	}
	return d, nil
}

type DoctorProfileUpdate struct {
	Specialization *string `json:"specialization"`
	LicenseNumber  *string `json:"license_number"`
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, userID uuid.UUID, in DoctorProfileUpdate) (*Doctor, error) {
	d, err := s.DoctorProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Specialization != nil {
		d.Specialization = in.Specialization
	}
	if in.LicenseNumber != nil {
		d.LicenseNumber = in.LicenseNumber
	}
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update doctor profile: %w", err)
	}
	return d, nil
}

func (s *Service) PharmacyProfile(ctx context.Context, userID uuid.UUID) (*Pharmacy, error) {
	p, err := s.pharmacies.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("pharmacy profile not found")
		}
		return nil, err
	}
	return p, nil
}
