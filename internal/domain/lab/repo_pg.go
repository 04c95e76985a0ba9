package lab

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/db"
)

type testRequestRepoPG struct{ pool *pgxpool.Pool }

func NewTestRequestRepoPG(pool *pgxpool.Pool) TestRequestRepository {
	return &testRequestRepoPG{pool: pool}
}

func (r *testRequestRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const labCols = `id, doctor_id, patient_id, technician_id, test_name, status, results, requested_at, completed_at`

func (r *testRequestRepoPG) scanTest(row pgx.Row) (*TestRequest, error) {
	var t TestRequest
	err := row.Scan(&t.ID, &t.DoctorID, &t.PatientID, &t.TechnicianID, &t.TestName,
		&t.Status, &t.Results, &t.RequestedAt, &t.CompletedAt)
	return &t, err
}

func (r *testRequestRepoPG) Create(ctx context.Context, t *TestRequest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_test_requests (id, doctor_id, patient_id, technician_id, test_name, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.DoctorID, t.PatientID, t.TechnicianID, t.TestName, t.Status)
	return err
}

func (r *testRequestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestRequest, error) {
	return r.scanTest(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM lab_test_requests WHERE id = $1`, id))
}

func (r *testRequestRepoPG) Update(ctx context.Context, t *TestRequest) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_test_requests
		SET status = $2, results = $3, completed_at = $4
		WHERE id = $1`,
		t.ID, t.Status, t.Results, t.CompletedAt)
	return err
}

func (r *testRequestRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_test_requests WHERE id = $1`, id)
	return err
}

func (r *testRequestRepoPG) ListByTechnician(ctx context.Context, technicianID uuid.UUID, status string, limit, offset int) ([]*TestRequest, int, error) {
	where := `WHERE technician_id = $1`
	args := []any{technicianID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}
	return r.listWhere(ctx, where, args, limit, offset)
}

func (r *testRequestRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*TestRequest, int, error) {
	return r.listWhere(ctx, `WHERE patient_id = $1`, []any{patientID}, limit, offset)
}

func (r *testRequestRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*TestRequest, int, error) {
	return r.listWhere(ctx, `WHERE doctor_id = $1`, []any{doctorID}, limit, offset)
}

func (r *testRequestRepoPG) listWhere(ctx context.Context, where string, args []any, limit, offset int) ([]*TestRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_test_requests `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM lab_test_requests %s ORDER BY requested_at DESC LIMIT $%d OFFSET $%d`,
		labCols, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TestRequest
	for rows.Next() {
		t, err := r.scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
