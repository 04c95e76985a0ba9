package lab

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

type mockTestRepo struct {
	tests map[uuid.UUID]*TestRequest
}

func newMockTestRepo() *mockTestRepo {
	return &mockTestRepo{tests: make(map[uuid.UUID]*TestRequest)}
}

func (m *mockTestRepo) Create(_ context.Context, t *TestRequest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.RequestedAt = time.Now()
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m *mockTestRepo) GetByID(_ context.Context, id uuid.UUID) (*TestRequest, error) {
	t, ok := m.tests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTestRepo) Update(_ context.Context, t *TestRequest) error {
	if _, ok := m.tests[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m *mockTestRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.tests, id)
	return nil
}

func (m *mockTestRepo) ListByTechnician(_ context.Context, techID uuid.UUID, status string, limit, offset int) ([]*TestRequest, int, error) {
	var out []*TestRequest
	for _, t := range m.tests {
		if t.TechnicianID == techID && (status == "" || t.Status == status) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockTestRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*TestRequest, int, error) {
	var out []*TestRequest
	for _, t := range m.tests {
		if t.PatientID == patientID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockTestRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*TestRequest, int, error) {
	var out []*TestRequest
	for _, t := range m.tests {
		if t.DoctorID == doctorID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type mockDirectory struct {
	profiles map[uuid.UUID]uuid.UUID
}

func (m *mockDirectory) ProfileID(_ context.Context, userID uuid.UUID, _ string) (uuid.UUID, error) {
	id, ok := m.profiles[userID]
	if !ok {
		return uuid.Nil, apperror.NotFound("profile not found")
	}
	return id, nil
}

type mockRegistry struct {
	patients    map[uuid.UUID]bool
	technicians map[uuid.UUID]bool
}

func (m *mockRegistry) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.patients[id], nil
}

func (m *mockRegistry) TechnicianExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.technicians[id], nil
}

func (m *mockRegistry) PatientContact(_ context.Context, _ uuid.UUID) (string, string, error) {
	return "pat@example.com", "Pat", nil
}

type fixture struct {
	svc    *Service
	repo   *mockTestRepo
	dir    *mockDirectory
	sender *notification.MockEmailSender

	doctorUID uuid.UUID
	doctorID  uuid.UUID
	techUID   uuid.UUID
	techID    uuid.UUID
	tech2UID  uuid.UUID
	tech2ID   uuid.UUID
	patUID    uuid.UUID
	patID     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMockTestRepo(),
		sender:    &notification.MockEmailSender{},
		doctorUID: uuid.New(), doctorID: uuid.New(),
		techUID: uuid.New(), techID: uuid.New(),
		tech2UID: uuid.New(), tech2ID: uuid.New(),
		patUID: uuid.New(), patID: uuid.New(),
	}
	f.dir = &mockDirectory{profiles: map[uuid.UUID]uuid.UUID{
		f.doctorUID: f.doctorID,
		f.techUID:   f.techID,
		f.tech2UID:  f.tech2ID,
		f.patUID:    f.patID,
	}}
	reg := &mockRegistry{
		patients:    map[uuid.UUID]bool{f.patID: true},
		technicians: map[uuid.UUID]bool{f.techID: true, f.tech2ID: true},
	}
	mailer := notification.NewService(f.sender, notification.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(f.repo, f.dir, reg, nil, mailer)
	return f
}

func (f *fixture) doctor() auth.Identity {
	return auth.Identity{UserID: f.doctorUID, Role: auth.RoleDoctor}
}

func (f *fixture) tech() auth.Identity {
	return auth.Identity{UserID: f.techUID, Role: auth.RoleLabTech}
}

func (f *fixture) tech2() auth.Identity {
	return auth.Identity{UserID: f.tech2UID, Role: auth.RoleLabTech}
}

func (f *fixture) patient() auth.Identity {
	return auth.Identity{UserID: f.patUID, Role: auth.RolePatient}
}

func (f *fixture) request(t *testing.T) *TestRequest {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID:    f.patID,
		TechnicianID: f.techID,
		TestName:     "CBC",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tr
}

func TestCreateStartsPending(t *testing.T) {
	f := newFixture()
	tr := f.request(t)
	if tr.Status != "Pending" {
		t.Errorf("status = %q, want Pending", tr.Status)
	}
	if tr.DoctorID != f.doctorID {
		t.Errorf("doctor = %s, want %s", tr.DoctorID, f.doctorID)
	}
}

func TestCreateRejectsUnknownTechnician(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID:    f.patID,
		TechnicianID: uuid.New(),
		TestName:     "CBC",
	})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestCompleteStampsAndNotifies(t *testing.T) {
	f := newFixture()
	tr := f.request(t)

	results := "WBC 6.1"
	got, err := f.svc.Update(context.Background(), f.tech(), tr.ID, UpdateInput{
		Status:  "Completed",
		Results: &results,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
	if got.Results == nil || *got.Results != results {
		t.Error("results not stored")
	}
	if len(f.sender.Calls()) != 1 {
		t.Errorf("emails = %d, want 1", len(f.sender.Calls()))
	}
}

func TestRepeatCompletionSendsNoSecondEmail(t *testing.T) {
	f := newFixture()
	tr := f.request(t)

	if _, err := f.svc.Update(context.Background(), f.tech(), tr.ID, UpdateInput{Status: StatusCompleted}); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	if _, err := f.svc.Update(context.Background(), f.tech(), tr.ID, UpdateInput{Status: StatusCompleted}); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if len(f.sender.Calls()) != 1 {
		t.Errorf("emails = %d, want 1", len(f.sender.Calls()))
	}
}

func TestRevertToPendingClearsResults(t *testing.T) {
	f := newFixture()
	tr := f.request(t)

	results := "WBC 6.1"
	if _, err := f.svc.Update(context.Background(), f.tech(), tr.ID, UpdateInput{Status: StatusCompleted, Results: &results}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := f.svc.Update(context.Background(), f.tech(), tr.ID, UpdateInput{Status: StatusPending})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got.Results != nil || got.CompletedAt != nil {
		t.Error("revert did not clear results and completed_at")
	}
}

func TestForeignTechnicianCannotUpdate(t *testing.T) {
	f := newFixture()
	tr := f.request(t)

	_, err := f.svc.Update(context.Background(), f.tech2(), tr.ID, UpdateInput{Status: StatusCompleted})
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
	if len(f.sender.Calls()) != 0 {
		t.Error("email sent on a rejected update")
	}
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	tr := f.request(t)

	_, err := f.svc.Update(context.Background(), f.tech(), tr.ID, UpdateInput{Status: "archived"})
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestPendingAndHistorySplitByStatus(t *testing.T) {
	f := newFixture()
	open := f.request(t)
	done := f.request(t)
	if _, err := f.svc.Update(context.Background(), f.tech(), done.ID, UpdateInput{Status: StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pending, _, err := f.svc.Pending(context.Background(), f.tech(), 20, 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != open.ID {
		t.Errorf("pending = %v, want just %s", pending, open.ID)
	}

	history, _, err := f.svc.History(context.Background(), f.tech(), 20, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != done.ID {
		t.Errorf("history = %v, want just %s", history, done.ID)
	}
}

func TestListForPatientSelfOnly(t *testing.T) {
	f := newFixture()
	f.request(t)

	got, _, err := f.svc.ListForPatient(context.Background(), f.patient(), f.patID, 20, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("requests = %d, want 1", len(got))
	}

	_, _, err = f.svc.ListForPatient(context.Background(), f.patient(), uuid.New(), 20, 0)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestDeleteByRequestingDoctorOnly(t *testing.T) {
	f := newFixture()
	tr := f.request(t)

	otherUID := uuid.New()
	f.dir.profiles[otherUID] = uuid.New()
	other := auth.Identity{UserID: otherUID, Role: auth.RoleDoctor}

	if err := f.svc.Delete(context.Background(), other, tr.ID); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if err := f.svc.Delete(context.Background(), f.doctor(), tr.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, total, err := f.svc.ListForPatient(context.Background(), f.patient(), f.patID, 20, 0); err != nil || total != 0 {
		t.Errorf("after delete: total = %d, err = %v", total, err)
	}
}
