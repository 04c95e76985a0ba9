package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
)

type mockRecordRepo struct {
	records map[uuid.UUID]*MedicalRecord
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[uuid.UUID]*MedicalRecord)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) Update(_ context.Context, r *MedicalRecord) error {
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	var out []*MedicalRecord
	for _, r := range m.records {
		if r.PatientID == patientID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type mockAccessLogRepo struct {
	logs       []*AccessLog
	appendFail bool
}

func (m *mockAccessLogRepo) Append(_ context.Context, l *AccessLog) error {
	if m.appendFail {
		return errors.New("append failed")
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.AccessedAt = time.Now()
	cp := *l
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *mockAccessLogRepo) List(_ context.Context, limit, offset int) ([]*AccessLog, int, error) {
	return m.logs, len(m.logs), nil
}

func (m *mockAccessLogRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessLog, int, error) {
	var out []*AccessLog
	for _, l := range m.logs {
		if l.PatientID == patientID {
			out = append(out, l)
		}
	}
	return out, len(out), nil
}

func (m *mockAccessLogRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*AccessLog, int, error) {
	var out []*AccessLog
	for _, l := range m.logs {
		if l.DoctorID == doctorID {
			out = append(out, l)
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
		return uuid.Nil, apperror.NotFound("no profile")
	}
	return id, nil
}

// mockAppts qualifies a fixed doctor/patient pair.
type mockAppts struct {
	doctorID  uuid.UUID
	patientID uuid.UUID
	apptID    uuid.UUID
}

func (m *mockAppts) HasQualifyingAppointment(_ context.Context, doctorID, patientID uuid.UUID, appointmentID *uuid.UUID) (bool, error) {
	if doctorID != m.doctorID || patientID != m.patientID {
		return false, nil
	}
	if appointmentID != nil && *appointmentID != m.apptID {
		return false, nil
	}
	return true, nil
}

type fixture struct {
	svc        *Service
	records    *mockRecordRepo
	accessLogs *mockAccessLogRepo
	appts      *mockAppts
	doctorUID  uuid.UUID
	doctorID   uuid.UUID
	patientUID uuid.UUID
	patientID  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		records:    newMockRecordRepo(),
		accessLogs: &mockAccessLogRepo{},
		doctorUID:  uuid.New(),
		doctorID:   uuid.New(),
		patientUID: uuid.New(),
		patientID:  uuid.New(),
	}
	f.appts = &mockAppts{doctorID: f.doctorID, patientID: f.patientID, apptID: uuid.New()}
	dir := &mockDirectory{profiles: map[uuid.UUID]uuid.UUID{
		f.doctorUID:  f.doctorID,
		f.patientUID: f.patientID,
	}}
	f.svc = NewService(f.records, f.accessLogs, dir, f.appts, zerolog.Nop())
	return f
}

func (f *fixture) doctor() auth.Identity {
	return auth.Identity{UserID: f.doctorUID, Role: auth.RoleDoctor}
}

func (f *fixture) patient() auth.Identity {
	return auth.Identity{UserID: f.patientUID, Role: auth.RolePatient}
}

func admin() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Role: auth.RoleSuperAdmin}
}

func (f *fixture) write(t *testing.T) *MedicalRecord {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID: f.patientID,
		Diagnosis: "seasonal allergy",
		Treatment: "antihistamine",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rec
}

func TestDoctorReadAppendsAccessLog(t *testing.T) {
	f := newFixture()
	f.write(t)

	_, _, err := f.svc.ListForPatient(context.Background(), f.doctor(), f.patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if len(f.accessLogs.logs) != 1 {
		t.Fatalf("access logs = %d, want 1", len(f.accessLogs.logs))
	}
	entry := f.accessLogs.logs[0]
	if entry.DoctorID != f.doctorID || entry.PatientID != f.patientID {
		t.Errorf("log pair = %s/%s, want %s/%s", entry.DoctorID, entry.PatientID, f.doctorID, f.patientID)
	}
}

func TestDoctorWithoutAppointmentForbidden(t *testing.T) {
	f := newFixture()
	f.write(t)

	strangerUID := uuid.New()
	f.svc.directory.(*mockDirectory).profiles[strangerUID] = uuid.New()
	stranger := auth.Identity{UserID: strangerUID, Role: auth.RoleDoctor}

	_, _, err := f.svc.ListForPatient(context.Background(), stranger, f.patientID, 20, 0)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
	if len(f.accessLogs.logs) != 0 {
		t.Error("refused read still appended an access log")
	}
}

func TestPatientReadsOwnRecordsWithoutLog(t *testing.T) {
	f := newFixture()
	f.write(t)

	items, total, err := f.svc.ListForPatient(context.Background(), f.patient(), f.patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("got %d items (total %d), want 1", len(items), total)
	}
	if len(f.accessLogs.logs) != 0 {
		t.Error("patient self-read appended an access log")
	}
}

func TestPatientCannotReadForeignRecords(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.ListForPatient(context.Background(), f.patient(), uuid.New(), 20, 0)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestFailedAccessLogDoesNotBlockRead(t *testing.T) {
	f := newFixture()
	f.write(t)
	f.accessLogs.appendFail = true

	_, total, err := f.svc.ListForPatient(context.Background(), f.doctor(), f.patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestCreateRequiresQualifyingAppointment(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID: uuid.New(),
		Diagnosis: "x",
		Treatment: "y",
	})
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestCreateWithSpecificAppointment(t *testing.T) {
	f := newFixture()

	wrong := uuid.New()
	_, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID:     f.patientID,
		AppointmentID: &wrong,
		Diagnosis:     "x",
		Treatment:     "y",
	})
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("wrong appointment: err = %v, want forbidden", err)
	}

	rec, err := f.svc.Create(context.Background(), f.doctor(), CreateInput{
		PatientID:     f.patientID,
		AppointmentID: &f.appts.apptID,
		Diagnosis:     "x",
		Treatment:     "y",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.AppointmentID == nil || *rec.AppointmentID != f.appts.apptID {
		t.Error("appointment link not stored")
	}
}

func TestUpdateByCreatingDoctorOnly(t *testing.T) {
	f := newFixture()
	rec := f.write(t)

	otherUID := uuid.New()
	f.svc.directory.(*mockDirectory).profiles[otherUID] = uuid.New()
	other := auth.Identity{UserID: otherUID, Role: auth.RoleDoctor}

	diag := "updated"
	_, err := f.svc.Update(context.Background(), other, rec.ID, UpdateInput{Diagnosis: &diag})
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}

	got, err := f.svc.Update(context.Background(), f.doctor(), rec.ID, UpdateInput{Diagnosis: &diag})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Diagnosis != "updated" {
		t.Errorf("diagnosis = %q, want updated", got.Diagnosis)
	}
}

func TestAccessLogVisibility(t *testing.T) {
	f := newFixture()
	f.write(t)

	if _, _, err := f.svc.ListForPatient(context.Background(), f.doctor(), f.patientID, 20, 0); err != nil {
		t.Fatalf("doctor read: %v", err)
	}

	// Owning patient sees the trail.
	logs, _, err := f.svc.ListAccessLogsForPatient(context.Background(), f.patient(), f.patientID, 20, 0)
	if err != nil || len(logs) != 1 {
		t.Errorf("patient trail = %d entries, err %v, want 1 entry", len(logs), err)
	}

	// A different patient does not.
	_, _, err = f.svc.ListAccessLogsForPatient(context.Background(), f.patient(), uuid.New(), 20, 0)
	if !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}

	// The doctor sees their own trail.
	logs, _, err = f.svc.ListAccessLogsForDoctor(context.Background(), f.doctor(), 20, 0)
	if err != nil || len(logs) != 1 {
		t.Errorf("doctor trail = %d entries, err %v, want 1 entry", len(logs), err)
	}

	// Admin sees everything.
	logs, _, err = f.svc.ListAccessLogs(context.Background(), 20, 0)
	if err != nil || len(logs) != 1 {
		t.Errorf("admin trail = %d entries, err %v, want 1 entry", len(logs), err)
	}
}

func TestAdminReadsWithoutAccessLog(t *testing.T) {
	f := newFixture()
	f.write(t)

	_, total, err := f.svc.ListForPatient(context.Background(), admin(), f.patientID, 20, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(f.accessLogs.logs) != 0 {
		t.Error("admin read appended an access log")
	}
}
