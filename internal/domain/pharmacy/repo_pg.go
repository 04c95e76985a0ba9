package pharmacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/db"
)

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const rxCols = `id, doctor_id, patient_id, pharmacy_id, medication_details, status, issued_at`

func (r *prescriptionRepoPG) scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.PharmacyID, &p.MedicationDetails,
		&p.Status, &p.IssuedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (id, doctor_id, patient_id, medication_details, status)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.DoctorID, p.PatientID, p.MedicationDetails, p.Status)
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanRx(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	return err
}

// Claim wins only when pharmacy_id is still NULL, so exactly one of two
// concurrent claims succeeds.
func (r *prescriptionRepoPG) Claim(ctx context.Context, id, pharmacyID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET pharmacy_id = $2, status = $3
		WHERE id = $1 AND pharmacy_id IS NULL`,
		id, pharmacyID, StatusClaimed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *prescriptionRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE prescriptions SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (r *prescriptionRepoPG) List(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return r.listWhere(ctx, ``, nil, limit, offset)
}

func (r *prescriptionRepoPG) ListUnclaimed(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	return r.listWhere(ctx, `WHERE pharmacy_id IS NULL`, nil, limit, offset)
}

func (r *prescriptionRepoPG) ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.listWhere(ctx, `WHERE pharmacy_id = $1`, []any{pharmacyID}, limit, offset)
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.listWhere(ctx, `WHERE patient_id = $1`, []any{patientID}, limit, offset)
}

func (r *prescriptionRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.listWhere(ctx, `WHERE doctor_id = $1`, []any{doctorID}, limit, offset)
}

func (r *prescriptionRepoPG) listWhere(ctx context.Context, where string, args []any, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM prescriptions %s ORDER BY issued_at DESC LIMIT $%d OFFSET $%d`,
		rxCols, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanRx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
