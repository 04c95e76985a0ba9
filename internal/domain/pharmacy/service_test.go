package pharmacy

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

type mockRxRepo struct {
	rx map[uuid.UUID]*Prescription
}

func newMockRxRepo() *mockRxRepo {
	return &mockRxRepo{rx: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRxRepo) Create(_ context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.IssuedAt = time.Now()
	cp := *p
	m.rx[p.ID] = &cp
	return nil
}

func (m *mockRxRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.rx[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRxRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.rx, id)
	return nil
}

func (m *mockRxRepo) Claim(_ context.Context, id, pharmacyID uuid.UUID) (bool, error) {
	p, ok := m.rx[id]
	if !ok || p.PharmacyID != nil {
		return false, nil
	}
	pid := pharmacyID
	p.PharmacyID = &pid
	p.Status = StatusClaimed
	return true, nil
}

func (m *mockRxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	if p, ok := m.rx[id]; ok {
		p.Status = status
	}
	return nil
}

func (m *mockRxRepo) list(match func(*Prescription) bool) []*Prescription {
	var out []*Prescription
	for _, p := range m.rx {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out
}

func (m *mockRxRepo) List(_ context.Context, limit, offset int) ([]*Prescription, int, error) {
	out := m.list(func(*Prescription) bool { return true })
	return out, len(out), nil
}

func (m *mockRxRepo) ListUnclaimed(_ context.Context, limit, offset int) ([]*Prescription, int, error) {
	out := m.list(func(p *Prescription) bool { return p.PharmacyID == nil })
	return out, len(out), nil
}

func (m *mockRxRepo) ListByPharmacy(_ context.Context, id uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	out := m.list(func(p *Prescription) bool { return p.PharmacyID != nil && *p.PharmacyID == id })
	return out, len(out), nil
}

func (m *mockRxRepo) ListByPatient(_ context.Context, id uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	out := m.list(func(p *Prescription) bool { return p.PatientID == id })
	return out, len(out), nil
}

func (m *mockRxRepo) ListByDoctor(_ context.Context, id uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	out := m.list(func(p *Prescription) bool { return p.DoctorID == id })
	return out, len(out), nil
}

type mockDirectory struct {
	profiles map[uuid.UUID]uuid.UUID
}

func (m *mockDirectory) ProfileID(_ context.Context, userID uuid.UUID, _ string) (uuid.UUID, error) {
	id, ok := m.profiles[userID]
	if !ok {
		return uuid.Nil, apperror.NotFound("no profile")
	}
	return id, nil
}

type mockRegistry struct {
	patients map[uuid.UUID]bool
}

func (m *mockRegistry) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.patients[id], nil
}

func (m *mockRegistry) PatientContact(_ context.Context, id uuid.UUID) (string, string, error) {
	return "patient@example.com", "Pat Example", nil
}

func (m *mockRegistry) PharmacyName(_ context.Context, id uuid.UUID) (string, error) {
	return "Corner Pharmacy", nil
}

type fixture struct {
	svc        *Service
	repo       *mockRxRepo
	sender     *notification.MockEmailSender
	doctorUID  uuid.UUID
	doctorID   uuid.UUID
	pharmUID   uuid.UUID
	pharmID    uuid.UUID
	pharm2UID  uuid.UUID
	pharm2ID   uuid.UUID
	patientUID uuid.UUID
	patientID  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:       newMockRxRepo(),
		sender:     &notification.MockEmailSender{},
		doctorUID:  uuid.New(),
		doctorID:   uuid.New(),
		pharmUID:   uuid.New(),
		pharmID:    uuid.New(),
		pharm2UID:  uuid.New(),
		pharm2ID:   uuid.New(),
		patientUID: uuid.New(),
		patientID:  uuid.New(),
	}
	dir := &mockDirectory{profiles: map[uuid.UUID]uuid.UUID{
		f.doctorUID:  f.doctorID,
		f.pharmUID:   f.pharmID,
		f.pharm2UID:  f.pharm2ID,
		f.patientUID: f.patientID,
	}}
	reg := &mockRegistry{patients: map[uuid.UUID]bool{f.patientID: true}}
	mailer := notification.NewService(f.sender, notification.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(f.repo, dir, reg, nil, mailer)
	return f
}

func (f *fixture) doctor() auth.Identity {
	return auth.Identity{UserID: f.doctorUID, Role: auth.RoleDoctor}
}

func (f *fixture) pharmacy() auth.Identity {
	return auth.Identity{UserID: f.pharmUID, Role: auth.RolePharmacy}
}

func (f *fixture) pharmacy2() auth.Identity {
	return auth.Identity{UserID: f.pharm2UID, Role: auth.RolePharmacy}
}

func (f *fixture) issue(t *testing.T) *Prescription {
	t.Helper()
	p, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID:         f.patientID,
		MedicationDetails: "amoxicillin 500mg, 3x daily",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func TestCreateStartsUnclaimed(t *testing.T) {
	f := newFixture()
	p := f.issue(t)
	if p.Status != StatusUnclaimed {
		t.Errorf("status = %q, want %q", p.Status, StatusUnclaimed)
	}
	if p.PharmacyID != nil {
		t.Error("new prescription already has a pharmacy")
	}
}

func TestCreateRejectsUnknownPatient(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID:         uuid.New(),
		MedicationDetails: "ibuprofen",
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestClaimAssignsPharmacy(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	got, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got.Status != StatusClaimed {
		t.Errorf("status = %q, want %q", got.Status, StatusClaimed)
	}
	if got.PharmacyID == nil || *got.PharmacyID != f.pharmID {
		t.Errorf("pharmacy = %v, want %s", got.PharmacyID, f.pharmID)
	}
}

func TestSecondClaimConflicts(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	if _, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := f.svc.Claim(context.Background(), f.pharmacy2(), p.ID)
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}

	stored, _ := f.repo.GetByID(context.Background(), p.ID)
	if *stored.PharmacyID != f.pharmID {
		t.Error("losing claim overwrote the winner")
	}
}

func TestVerifyRequiresClaimedStatus(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	if _, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.svc.Verify(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Verifying twice skips backwards, which is refused.
	_, err := f.svc.Verify(context.Background(), f.pharmacy(), p.ID)
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestDispenseRequiresVerification(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	if _, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err := f.svc.Dispense(context.Background(), f.pharmacy(), p.ID)
	if !apperror.IsCode(err, apperror.CodeConflict) {
		t.Errorf("dispense before verify: err = %v, want conflict", err)
	}
}

func TestDispenseNotifiesPatient(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	if _, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.svc.Verify(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := f.svc.Dispense(context.Background(), f.pharmacy(), p.ID)
	if err != nil {
		t.Fatalf("dispense: %v", err)
	}
	if got.Status != StatusDispensed {
		t.Errorf("status = %q, want %q", got.Status, StatusDispensed)
	}
	if len(f.sender.Calls()) != 1 {
		t.Errorf("emails sent = %d, want 1", len(f.sender.Calls()))
	}
}

func TestDispenseSurvivesEmailFailure(t *testing.T) {
	f := newFixture()
	f.sender.ShouldFail = true
	p := f.issue(t)

	if _, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.svc.Verify(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := f.svc.Dispense(context.Background(), f.pharmacy(), p.ID)
	if err != nil {
		t.Fatalf("dispense: %v", err)
	}
	if got.Status != StatusDispensed {
		t.Errorf("status = %q, want %q", got.Status, StatusDispensed)
	}
}

func TestForeignPharmacyCannotAdvance(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	if _, err := f.svc.Claim(context.Background(), f.pharmacy(), p.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err := f.svc.Verify(context.Background(), f.pharmacy2(), p.ID)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestListForPatientSelfOnly(t *testing.T) {
	f := newFixture()
	f.issue(t)

	caller := auth.Identity{UserID: f.patientUID, Role: auth.RolePatient}
	items, total, err := f.svc.ListForPatient(context.Background(), caller, f.patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("got %d items (total %d), want 1", len(items), total)
	}

	_, _, err = f.svc.ListForPatient(context.Background(), caller, uuid.New(), 20, 0)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestDeleteByPrescribingDoctorOnly(t *testing.T) {
	f := newFixture()
	p := f.issue(t)

	otherUID := uuid.New()
	f.svc.directory.(*mockDirectory).profiles[otherUID] = uuid.New()
	other := auth.Identity{UserID: otherUID, Role: auth.RoleDoctor}

	err := f.svc.Delete(context.Background(), other, p.ID)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}

	if err := f.svc.Delete(context.Background(), f.doctor(), p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
