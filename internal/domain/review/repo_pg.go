package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/db"
)

type reviewRepoPG struct{ pool *pgxpool.Pool }

func NewReviewRepoPG(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepoPG{pool: pool}
}

func (r *reviewRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const reviewCols = `id, patient_id, doctor_id, hospital_id, rating, comment, created_at`

func (r *reviewRepoPG) scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.PatientID, &rv.DoctorID, &rv.HospitalID, &rv.Rating,
		&rv.Comment, &rv.CreatedAt)
	return &rv, err
}

func (r *reviewRepoPG) Create(ctx context.Context, rv *Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reviews (id, patient_id, doctor_id, hospital_id, rating, comment)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rv.ID, rv.PatientID, rv.DoctorID, rv.HospitalID, rv.Rating, rv.Comment)
	return err
}

func (r *reviewRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	return r.listWhere(ctx, `WHERE doctor_id = $1`, doctorID, limit, offset)
}

func (r *reviewRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	return r.listWhere(ctx, `WHERE hospital_id = $1`, hospitalID, limit, offset)
}

func (r *reviewRepoPG) listWhere(ctx context.Context, where string, id uuid.UUID, limit, offset int) ([]*Review, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reviews `+where, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reviewCols+` FROM reviews `+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Review
	for rows.Next() {
		rv, err := r.scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rv)
	}
	return items, total, rows.Err()
}

func (r *reviewRepoPG) AverageForDoctor(ctx context.Context, doctorID uuid.UUID) (float64, int, error) {
	return r.average(ctx, `WHERE doctor_id = $1`, doctorID)
}

func (r *reviewRepoPG) AverageForHospital(ctx context.Context, hospitalID uuid.UUID) (float64, int, error) {
	return r.average(ctx, `WHERE hospital_id = $1`, hospitalID)
}

func (r *reviewRepoPG) average(ctx context.Context, where string, id uuid.UUID) (float64, int, error) {
	var avg float64
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews `+where, id).Scan(&avg, &count)
	return avg, count, err
}
