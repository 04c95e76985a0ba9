package invite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medbeta/medbeta/internal/domain/hospital"
	"github.com/medbeta/medbeta/internal/domain/identity"
	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

type mockInviteRepo struct {
	invites map[uuid.UUID]*PendingUser
}

func newMockInviteRepo() *mockInviteRepo {
	return &mockInviteRepo{invites: make(map[uuid.UUID]*PendingUser)}
}

func (m *mockInviteRepo) Create(_ context.Context, p *PendingUser) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	cp := *p
	m.invites[p.ID] = &cp
	return nil
}

func (m *mockInviteRepo) GetByID(_ context.Context, id uuid.UUID) (*PendingUser, error) {
	p, ok := m.invites[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockInviteRepo) GetByToken(_ context.Context, token string) (*PendingUser, error) {
	for _, p := range m.invites {
		if p.InviteToken == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockInviteRepo) GetByEmail(_ context.Context, email string) (*PendingUser, error) {
	for _, p := range m.invites {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockInviteRepo) Update(_ context.Context, p *PendingUser) error {
	cp := *p
	m.invites[p.ID] = &cp
	return nil
}

func (m *mockInviteRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.invites, id)
	return nil
}

func (m *mockInviteRepo) List(_ context.Context, role string, limit, offset int) ([]*PendingUser, int, error) {
	var out []*PendingUser
	for _, p := range m.invites {
		if p.IsAccepted {
			continue
		}
		if role != "" && p.Role != role {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockInviteRepo) DeleteByHospital(_ context.Context, hospitalID uuid.UUID) error {
	for id, p := range m.invites {
		if p.HospitalID != nil && *p.HospitalID == hospitalID && !p.IsAccepted {
			delete(m.invites, id)
		}
	}
	return nil
}

func (m *mockInviteRepo) CountPending(_ context.Context) (int, error) {
	n := 0
	for _, p := range m.invites {
		if !p.IsAccepted {
			n++
		}
	}
	return n, nil
}

type mockUserRepo struct {
	users map[uuid.UUID]*identity.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*identity.User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *identity.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockUserRepo) Update(_ context.Context, u *identity.User) error {
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*identity.User, int, error) {
	var out []*identity.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) CountByRole(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, u := range m.users {
		out[u.Role]++
	}
	return out, nil
}

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*identity.Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*identity.Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *identity.Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockDoctorRepo) Update(_ context.Context, d *identity.Doctor) error {
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]*identity.Doctor, error) {
	var out []*identity.Doctor
	for _, d := range m.doctors {
		if d.HospitalID != nil && *d.HospitalID == hospitalID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDoctorRepo) Count(_ context.Context) (int, error) {
	return len(m.doctors), nil
}

type mockPharmacyRepo struct {
	pharmacies map[uuid.UUID]*identity.Pharmacy
}

func newMockPharmacyRepo() *mockPharmacyRepo {
	return &mockPharmacyRepo{pharmacies: make(map[uuid.UUID]*identity.Pharmacy)}
}

func (m *mockPharmacyRepo) Create(_ context.Context, p *identity.Pharmacy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	m.pharmacies[p.ID] = &cp
	return nil
}

func (m *mockPharmacyRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Pharmacy, error) {
	p, ok := m.pharmacies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockPharmacyRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.Pharmacy, error) {
	for _, p := range m.pharmacies {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPharmacyRepo) Update(_ context.Context, p *identity.Pharmacy) error {
	m.pharmacies[p.ID] = p
	return nil
}

func (m *mockPharmacyRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]*identity.Pharmacy, error) {
	var out []*identity.Pharmacy
	for _, p := range m.pharmacies {
		if p.HospitalID != nil && *p.HospitalID == hospitalID {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockTechnicianRepo struct {
	technicians map[uuid.UUID]*identity.Technician
}

func newMockTechnicianRepo() *mockTechnicianRepo {
	return &mockTechnicianRepo{technicians: make(map[uuid.UUID]*identity.Technician)}
}

func (m *mockTechnicianRepo) Create(_ context.Context, t *identity.Technician) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	m.technicians[t.ID] = &cp
	return nil
}

func (m *mockTechnicianRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Technician, error) {
	tc, ok := m.technicians[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return tc, nil
}

func (m *mockTechnicianRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.Technician, error) {
	for _, tc := range m.technicians {
		if tc.UserID == userID {
			return tc, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTechnicianRepo) Update(_ context.Context, t *identity.Technician) error {
	m.technicians[t.ID] = t
	return nil
}

func (m *mockTechnicianRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]*identity.Technician, error) {
	var out []*identity.Technician
	for _, tc := range m.technicians {
		if tc.HospitalID != nil && *tc.HospitalID == hospitalID {
			out = append(out, tc)
		}
	}
	return out, nil
}

type mockHospitalRepo struct {
	hospitals map[uuid.UUID]*hospital.Hospital
}

func newMockHospitalRepo() *mockHospitalRepo {
	return &mockHospitalRepo{hospitals: make(map[uuid.UUID]*hospital.Hospital)}
}

func (m *mockHospitalRepo) Create(_ context.Context, h *hospital.Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = time.Now()
	cp := *h
	m.hospitals[h.ID] = &cp
	return nil
}

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*hospital.Hospital, error) {
	h, ok := m.hospitals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *h
	return &cp, nil
}

func (m *mockHospitalRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*hospital.Hospital, error) {
	for _, h := range m.hospitals {
		if h.UserID == userID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockHospitalRepo) Update(_ context.Context, h *hospital.Hospital) error {
	cp := *h
	m.hospitals[h.ID] = &cp
	return nil
}

func (m *mockHospitalRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.hospitals, id)
	return nil
}

func (m *mockHospitalRepo) List(_ context.Context, limit, offset int) ([]*hospital.Hospital, int, error) {
	var out []*hospital.Hospital
	for _, h := range m.hospitals {
		out = append(out, h)
	}
	return out, len(out), nil
}

func (m *mockHospitalRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.hospitals[id]
	return ok, nil
}

func (m *mockHospitalRepo) Count(_ context.Context) (int, error) {
	return len(m.hospitals), nil
}

type fixture struct {
	svc         *Service
	invites     *mockInviteRepo
	users       *mockUserRepo
	doctors     *mockDoctorRepo
	pharmacies  *mockPharmacyRepo
	technicians *mockTechnicianRepo
	hospitals   *mockHospitalRepo
	sender      *notification.MockEmailSender
	hospitalID  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		invites:     newMockInviteRepo(),
		users:       newMockUserRepo(),
		doctors:     newMockDoctorRepo(),
		pharmacies:  newMockPharmacyRepo(),
		technicians: newMockTechnicianRepo(),
		hospitals:   newMockHospitalRepo(),
		sender:      &notification.MockEmailSender{},
		hospitalID:  uuid.New(),
	}
	f.hospitals.hospitals[f.hospitalID] = &hospital.Hospital{ID: f.hospitalID, UserID: uuid.New(), Name: "General"}

	jwtCfg := auth.JWTConfig{Secret: []byte("test-secret"), Issuer: "test", TokenTTL: time.Hour}
	mailer := notification.NewService(f.sender, notification.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(f.invites, f.users, f.doctors, f.pharmacies, f.technicians,
		f.hospitals, nil, jwtCfg, mailer, "https://app.example.com", 7*24*time.Hour)
	return f
}

func (f *fixture) inviteDoctor(t *testing.T, email string) *InviteResult {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateInput{
		Email:      email,
		Name:       "Dr. Who",
		Role:       auth.RoleDoctor,
		HospitalID: &f.hospitalID,
	})
	if err != nil {
		t.Fatalf("Create invite: %v", err)
	}
	return res
}

func TestInviteAndActivateDoctor(t *testing.T) {
	f := newFixture()
	res := f.inviteDoctor(t, "doc@example.com")

	if len(f.sender.Calls()) != 1 {
		t.Fatalf("emails = %d, want 1", len(f.sender.Calls()))
	}
	if !res.EmailSent {
		t.Error("EmailSent = false after successful delivery")
	}

	license := "MD-1234"
	user, token, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{
		Password:      "longenough",
		LicenseNumber: &license,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if token == "" {
		t.Error("no token issued on activation")
	}
	if user.Role != auth.RoleDoctor {
		t.Errorf("role = %q, want doctor", user.Role)
	}

	d, err := f.doctors.GetByUserID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("doctor profile missing: %v", err)
	}
	if d.HospitalID == nil || *d.HospitalID != f.hospitalID {
		t.Error("doctor not attached to the inviting hospital")
	}
}

func TestActivateTwiceConflicts(t *testing.T) {
	f := newFixture()
	res := f.inviteDoctor(t, "doc@example.com")

	if _, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{Password: "longenough"}); err != nil {
		t.Fatalf("first activation: %v", err)
	}
	_, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{Password: "longenough"})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestActivateConflictsWithRegisteredEmail(t *testing.T) {
	f := newFixture()
	res := f.inviteDoctor(t, "doc@example.com")

	taken := &identity.User{Email: "doc@example.com", Role: auth.RolePatient}
	if err := f.users.Create(context.Background(), taken); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	_, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{Password: "longenough"})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestExpiredInviteConflicts(t *testing.T) {
	f := newFixture()
	res := f.inviteDoctor(t, "doc@example.com")

	stored := f.invites.invites[res.Invite.ID]
	stored.ExpiresAt = time.Now().Add(-time.Hour)

	_, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{Password: "longenough"})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestInviteDuplicateEmailConflicts(t *testing.T) {
	f := newFixture()
	f.inviteDoctor(t, "doc@example.com")

	_, err := f.svc.Create(context.Background(), CreateInput{
		Email:      "doc@example.com",
		Name:       "Other Doc",
		Role:       auth.RoleDoctor,
		HospitalID: &f.hospitalID,
	})
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestFailedEmailSurfacesToken(t *testing.T) {
	f := newFixture()
	f.sender.ShouldFail = true

	res := f.inviteDoctor(t, "doc@example.com")
	if res.EmailSent {
		t.Error("EmailSent = true after failed delivery")
	}
	if res.Token == "" {
		t.Error("token not surfaced when email failed")
	}
}

func inviteHospitalAdmin(t *testing.T, f *fixture) *InviteResult {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateInput{
		Email: "admin@clinic.example.com",
		Name:  "Clinic Admin",
		Role:  auth.RoleHospitalAdmin,
	})
	if err != nil {
		t.Fatalf("Create invite: %v", err)
	}
	return res
}

func TestActivateHospitalAdminRequiresDetails(t *testing.T) {
	f := newFixture()
	res := inviteHospitalAdmin(t, f)

	_, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{Password: "longenough"})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestActivateHospitalAdminCreatesHospital(t *testing.T) {
	f := newFixture()
	res := inviteHospitalAdmin(t, f)

	name, loc, lic := "Clinic", "Springfield", "H-99"
	user, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{
		Password:      "longenough",
		Name:          &name,
		Location:      &loc,
		LicenseNumber: &lic,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, err := f.hospitals.GetByUserID(context.Background(), user.ID); err != nil {
		t.Errorf("hospital record missing: %v", err)
	}
}

func TestBulkUploadSkipsBadRows(t *testing.T) {
	f := newFixture()
	f.inviteDoctor(t, "taken@example.com")

	csv := strings.Join([]string{
		"name,email,role",
		"Ada Doe,ada@example.com,doctor",
		"No Email,,doctor",
		"Dup Licate,taken@example.com,doctor",
		"Bob Ray,bob@example.com,lab_tech",
		"Weird Role,weird@example.com,astronaut",
	}, "\n")

	res, err := f.svc.BulkUpload(context.Background(), f.hospitalID, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("BulkUpload: %v", err)
	}
	if len(res.Invited) != 2 {
		t.Errorf("invited = %d, want 2", len(res.Invited))
	}
	if len(res.Skipped) != 3 {
		t.Errorf("skipped = %d, want 3", len(res.Skipped))
	}
	for _, s := range res.Skipped {
		if s.Reason == "" {
			t.Error("skipped row missing a reason")
		}
	}
}

func TestResendRotatesToken(t *testing.T) {
	f := newFixture()
	res := f.inviteDoctor(t, "doc@example.com")
	oldToken := res.Invite.InviteToken

	renewed, err := f.svc.Resend(context.Background(), res.Invite.ID)
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if renewed.Invite.InviteToken == oldToken {
		t.Error("token not rotated")
	}

	// The old token no longer activates.
	_, _, err = f.svc.Activate(context.Background(), oldToken, ActivateInput{Password: "longenough"})
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRevokeOpenInvite(t *testing.T) {
	f := newFixture()
	res := f.inviteDoctor(t, "doc@example.com")

	if err := f.svc.Revoke(context.Background(), res.Invite.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, _, err := f.svc.Activate(context.Background(), res.Invite.InviteToken, ActivateInput{Password: "longenough"})
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
