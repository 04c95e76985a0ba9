package invite

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/domain/hospital"
	"github.com/medbeta/medbeta/internal/domain/identity"
	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/db"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

var invitableRoles = map[string]bool{
	auth.RoleDoctor:        true,
	auth.RolePharmacy:      true,
	auth.RoleLabTech:       true,
	auth.RoleHospitalAdmin: true,
}

type Service struct {
	invites     PendingUserRepository
	users       identity.UserRepository
	doctors     identity.DoctorRepository
	pharmacies  identity.PharmacyRepository
	technicians identity.TechnicianRepository
	hospitals   hospital.HospitalRepository
	pool        *pgxpool.Pool
	jwtCfg      auth.JWTConfig
	mailer      *notification.Service
	frontendURL string
	inviteTTL   time.Duration
}

func NewService(invites PendingUserRepository, users identity.UserRepository,
	doctors identity.DoctorRepository, pharmacies identity.PharmacyRepository,
	technicians identity.TechnicianRepository, hospitals hospital.HospitalRepository,
	pool *pgxpool.Pool, jwtCfg auth.JWTConfig, mailer *notification.Service,
	frontendURL string, inviteTTL time.Duration) *Service {
	return &Service{
		invites:     invites,
		users:       users,
		doctors:     doctors,
		pharmacies:  pharmacies,
		technicians: technicians,
		hospitals:   hospitals,
		pool:        pool,
		jwtCfg:      jwtCfg,
		mailer:      mailer,
		frontendURL: frontendURL,
		inviteTTL:   inviteTTL,
	}
}

type CreateInput struct {
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	HospitalID *uuid.UUID `json:"hospital_id"`
}

// InviteResult reports what happened to one invitation. EmailSent is
// false when delivery failed; the invite still stands and the token is
// surfaced so it can be handed over out of band.
type InviteResult struct {
	Invite    *PendingUser `json:"invite"`
	EmailSent bool         `json:"email_sent"`
	Token     string       `json:"token,omitempty"`
}

// Create records an invitation and mails the setup link. A failed email
// never rolls the invitation back.
func (s *Service) Create(ctx context.Context, in CreateInput) (*InviteResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Name == "" || in.Role == "" {
		return nil, apperror.Validation("email, name and role are required")
	}
	if !invitableRoles[in.Role] {
		return nil, apperror.Validation("role %s cannot be invited", in.Role)
	}
	if in.Role != auth.RoleHospitalAdmin && in.HospitalID == nil {
		return nil, apperror.Validation("hospital_id is required for staff invitations")
	}

	if err := s.requireFreeEmail(ctx, in.Email); err != nil {
		return nil, err
	}

	p := &PendingUser{
		Email:       in.Email,
		Name:        in.Name,
		Role:        in.Role,
		HospitalID:  in.HospitalID,
		InviteToken: auth.NewInviteToken(),
		ExpiresAt:   time.Now().UTC().Add(s.inviteTTL),
	}
	if err := s.invites.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}

	sent := s.sendInvite(ctx, p)
	res := &InviteResult{Invite: p, EmailSent: sent}
	if !sent {
		res.Token = p.InviteToken
	}
	return res, nil
}

// SkippedRow explains why a bulk upload row was not invited.
type SkippedRow struct {
	Line   int    `json:"line"`
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason"`
}

type BulkResult struct {
	Invited []*InviteResult `json:"invited"`
	Skipped []*SkippedRow   `json:"skipped"`
}

// BulkUpload ingests a CSV of name,email,role rows and invites each
// valid one to the given hospital. Bad rows are skipped and reported,
// never fatal, so one typo cannot sink a whole roster.
func (s *Service) BulkUpload(ctx context.Context, hospitalID uuid.UUID, r io.Reader) (*BulkResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	out := &BulkResult{Invited: []*InviteResult{}, Skipped: []*SkippedRow{}}
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			out.Skipped = append(out.Skipped, &SkippedRow{Line: line, Reason: "malformed row"})
			continue
		}
		if line == 1 && isHeaderRow(record) {
			continue
		}
		if len(record) < 3 {
			out.Skipped = append(out.Skipped, &SkippedRow{Line: line, Reason: "expected name,email,role"})
			continue
		}

		name := strings.TrimSpace(record[0])
		email := strings.ToLower(strings.TrimSpace(record[1]))
		role := strings.TrimSpace(record[2])

		res, err := s.Create(ctx, CreateInput{
			Email:      email,
			Name:       name,
			Role:       role,
			HospitalID: &hospitalID,
		})
		if err != nil {
			out.Skipped = append(out.Skipped, &SkippedRow{Line: line, Email: email, Reason: reasonFor(err)})
			continue
		}
		out.Invited = append(out.Invited, res)
	}
	return out, nil
}

func isHeaderRow(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "name")
}

func reasonFor(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// Preview returns the invitation behind a setup token so the client can
// prefill the activation form. Used and expired tokens are conflicts.
func (s *Service) Preview(ctx context.Context, token string) (*PendingUser, error) {
	return s.validToken(ctx, token)
}

type ActivateInput struct {
	Password string `json:"password"`

	// Doctor fields.
	LicenseNumber  *string `json:"license_number"`
	Specialization *string `json:"specialization"`

	// Pharmacy and hospital fields.
	Name     *string `json:"name"`
	Location *string `json:"location"`
}

// Activate turns a pending invitation into a live account. The user
// row, the role profile and the acceptance mark are committed together,
// and the token can never activate twice.
func (s *Service) Activate(ctx context.Context, token string, in ActivateInput) (*identity.User, string, error) {
	if in.Password == "" {
		return nil, "", apperror.Validation("password is required")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", apperror.Validation("%s", err.Error())
	}

	var user *identity.User
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		p, err := s.validToken(ctx, token)
		if err != nil {
			return err
		}
		// Only the users table counts here: the invitation being
		// activated is itself still pending.
		if err := s.requireUnregisteredEmail(ctx, p.Email); err != nil {
			return err
		}

		user = &identity.User{
			Name:         p.Name,
			Email:        p.Email,
			PasswordHash: hash,
			Role:         p.Role,
			IsActive:     true,
			Status:       "active",
		}
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := s.createProfile(ctx, user, p, in); err != nil {
			return err
		}

		p.IsAccepted = true
		if err := s.invites.Update(ctx, p); err != nil {
			return fmt.Errorf("mark invite accepted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	jwt, err := auth.IssueToken(s.jwtCfg, user.ID, user.Role, db.TenantFromContext(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, jwt, nil
}

func (s *Service) createProfile(ctx context.Context, user *identity.User, p *PendingUser, in ActivateInput) error {
	switch p.Role {
	case auth.RoleDoctor:
		return s.doctors.Create(ctx, &identity.Doctor{
			UserID:         user.ID,
			HospitalID:     p.HospitalID,
			LicenseNumber:  in.LicenseNumber,
			Specialization: in.Specialization,
			IsActive:       true,
		})
	case auth.RolePharmacy:
		name := p.Name
		if in.Name != nil && *in.Name != "" {
			name = *in.Name
		}
		return s.pharmacies.Create(ctx, &identity.Pharmacy{
			UserID:        user.ID,
			HospitalID:    p.HospitalID,
			Name:          name,
			Location:      in.Location,
			LicenseNumber: in.LicenseNumber,
		})
	case auth.RoleLabTech:
		return s.technicians.Create(ctx, &identity.Technician{
			UserID:     user.ID,
			HospitalID: p.HospitalID,
			IsActive:   true,
		})
	case auth.RoleHospitalAdmin:
		if in.Name == nil || *in.Name == "" || in.LicenseNumber == nil || in.Location == nil {
			return apperror.Validation("name, location and license_number are required to register a hospital")
		}
		return s.hospitals.Create(ctx, &hospital.Hospital{
			UserID:        user.ID,
			Name:          *in.Name,
			Location:      in.Location,
			LicenseNumber: in.LicenseNumber,
		})
	default:
		return apperror.Validation("role %s cannot be activated", p.Role)
	}
}

// ListPending lists open invitations, optionally narrowed to one role.
func (s *Service) ListPending(ctx context.Context, role string, limit, offset int) ([]*PendingUser, int, error) {
	if role != "" && !invitableRoles[role] {
		return nil, 0, apperror.Validation("unknown role %s", role)
	}
	return s.invites.List(ctx, role, limit, offset)
}

// Resend rotates the token, pushes the expiry out and mails the link
// again. Used when an invitation went stale or its email bounced.
func (s *Service) Resend(ctx context.Context, id uuid.UUID) (*InviteResult, error) {
	p, err := s.getInvite(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsAccepted {
		return nil, apperror.Conflict("invitation was already accepted")
	}

	p.InviteToken = auth.NewInviteToken()
	p.ExpiresAt = time.Now().UTC().Add(s.inviteTTL)
	if err := s.invites.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("refresh invite: %w", err)
	}

	sent := s.sendInvite(ctx, p)
	res := &InviteResult{Invite: p, EmailSent: sent}
	if !sent {
		res.Token = p.InviteToken
	}
	return res, nil
}

// Revoke withdraws an open invitation.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	p, err := s.getInvite(ctx, id)
	if err != nil {
		return err
	}
	if p.IsAccepted {
		return apperror.Conflict("invitation was already accepted")
	}
	return s.invites.Delete(ctx, p.ID)
}

// DeletePendingByHospital clears the open invitations of a hospital.
// Called when the hospital itself is deleted.
func (s *Service) DeletePendingByHospital(ctx context.Context, hospitalID uuid.UUID) error {
	return s.invites.DeleteByHospital(ctx, hospitalID)
}

func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.invites.CountPending(ctx)
}

func (s *Service) validToken(ctx context.Context, token string) (*PendingUser, error) {
	if token == "" {
		return nil, apperror.Validation("token is required")
	}
	p, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("invitation not found")
		}
		return nil, fmt.Errorf("lookup invite: %w", err)
	}
	if p.IsAccepted {
		return nil, apperror.Conflict("invitation was already accepted")
	}
	if time.Now().UTC().After(p.ExpiresAt) {
		return nil, apperror.Conflict("invitation has expired")
	}
	return p, nil
}

func (s *Service) getInvite(ctx context.Context, id uuid.UUID) (*PendingUser, error) {
	p, err := s.invites.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("invitation not found")
		}
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return p, nil
}

func (s *Service) requireUnregisteredEmail(ctx context.Context, email string) error {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return apperror.Conflict("email %s is already registered", email)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lookup email: %w", err)
	}
	return nil
}

func (s *Service) requireFreeEmail(ctx context.Context, email string) error {
	if err := s.requireUnregisteredEmail(ctx, email); err != nil {
		return err
	}
	if p, err := s.invites.GetByEmail(ctx, email); err == nil && !p.IsAccepted {
		return apperror.Conflict("email %s already has a pending invitation", email)
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lookup invite: %w", err)
	}
	return nil
}

func (s *Service) sendInvite(ctx context.Context, p *PendingUser) bool {
	return s.mailer.SendTemplateSoft(ctx, "staff-invite", map[string]string{
		"name":       p.Name,
		"role":       p.Role,
		"setup_link": fmt.Sprintf("%s/setup-password/%s", s.frontendURL, p.InviteToken),
		"expires_at": p.ExpiresAt.Format(time.RFC1123),
	}, p.Email)
}
