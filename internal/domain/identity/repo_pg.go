package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const userCols = `id, name, email, password_hash, role, is_active, status,
	reset_token, reset_token_expires_at, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.Status,
		&u.ResetToken, &u.ResetTokenExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, is_active, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsActive, u.Status)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET name=$2, email=$3, password_hash=$4, is_active=$5, status=$6,
			reset_token=$7, reset_token_expires_at=$8, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.IsActive, u.Status,
		u.ResetToken, u.ResetTokenExpiresAt)
	return err
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, nil
}

func (r *userRepoPG) CountByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const patientCols = `id, user_id, date_of_birth, gender, phone, address,
	next_of_kin_name, next_of_kin_phone`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.DateOfBirth, &p.Gender, &p.Phone, &p.Address,
		&p.NextOfKinName, &p.NextOfKinPhone)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, user_id, date_of_birth, gender, phone, address,
			next_of_kin_name, next_of_kin_phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.UserID, p.DateOfBirth, p.Gender, p.Phone, p.Address,
		p.NextOfKinName, p.NextOfKinPhone)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id = $1`, userID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET date_of_birth=$2, gender=$3, phone=$4, address=$5,
			next_of_kin_name=$6, next_of_kin_phone=$7
		WHERE id = $1`,
		p.ID, p.DateOfBirth, p.Gender, p.Phone, p.Address,
		p.NextOfKinName, p.NextOfKinPhone)
	return err
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const doctorCols = `id, user_id, hospital_id, license_number, specialization, is_verified, is_active`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.HospitalID, &d.LicenseNumber, &d.Specialization,
		&d.IsVerified, &d.IsActive)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, user_id, hospital_id, license_number, specialization, is_verified, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.UserID, d.HospitalID, d.LicenseNumber, d.Specialization, d.IsVerified, d.IsActive)
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE user_id = $1`, userID))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET hospital_id=$2, license_number=$3, specialization=$4,
			is_verified=$5, is_active=$6
		WHERE id = $1`,
		d.ID, d.HospitalID, d.LicenseNumber, d.Specialization, d.IsVerified, d.IsActive)
	return err
}

func (r *doctorRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors WHERE hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&n)
	return n, err
}

// =========== Pharmacy Repository ===========

type pharmacyRepoPG struct{ pool *pgxpool.Pool }

func NewPharmacyRepoPG(pool *pgxpool.Pool) PharmacyRepository { return &pharmacyRepoPG{pool: pool} }

func (r *pharmacyRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const pharmacyCols = `id, user_id, hospital_id, name, location, license_number, is_verified`

func (r *pharmacyRepoPG) scanPharmacy(row pgx.Row) (*Pharmacy, error) {
	var p Pharmacy
	err := row.Scan(&p.ID, &p.UserID, &p.HospitalID, &p.Name, &p.Location, &p.LicenseNumber, &p.IsVerified)
	return &p, err
}

func (r *pharmacyRepoPG) Create(ctx context.Context, p *Pharmacy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pharmacies (id, user_id, hospital_id, name, location, license_number, is_verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.UserID, p.HospitalID, p.Name, p.Location, p.LicenseNumber, p.IsVerified)
	return err
}

func (r *pharmacyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	return r.scanPharmacy(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacies WHERE id = $1`, id))
}

func (r *pharmacyRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Pharmacy, error) {
	return r.scanPharmacy(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacies WHERE user_id = $1`, userID))
}

func (r *pharmacyRepoPG) Update(ctx context.Context, p *Pharmacy) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacies SET hospital_id=$2, name=$3, location=$4, license_number=$5, is_verified=$6
		WHERE id = $1`,
		p.ID, p.HospitalID, p.Name, p.Location, p.LicenseNumber, p.IsVerified)
	return err
}

func (r *pharmacyRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Pharmacy, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+pharmacyCols+` FROM pharmacies WHERE hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Pharmacy
	for rows.Next() {
		p, err := r.scanPharmacy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Technician Repository ===========

type technicianRepoPG struct{ pool *pgxpool.Pool }

func NewTechnicianRepoPG(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepoPG{pool: pool}
}

func (r *technicianRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const technicianCols = `id, user_id, hospital_id, notes, is_active, last_login`

func (r *technicianRepoPG) scanTechnician(row pgx.Row) (*Technician, error) {
	var t Technician
	err := row.Scan(&t.ID, &t.UserID, &t.HospitalID, &t.Notes, &t.IsActive, &t.LastLogin)
	return &t, err
}

func (r *technicianRepoPG) Create(ctx context.Context, t *Technician) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO technicians (id, user_id, hospital_id, notes, is_active)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.UserID, t.HospitalID, t.Notes, t.IsActive)
	return err
}

func (r *technicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Technician, error) {
	return r.scanTechnician(r.conn(ctx).QueryRow(ctx, `SELECT `+technicianCols+` FROM technicians WHERE id = $1`, id))
}

func (r *technicianRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Technician, error) {
	return r.scanTechnician(r.conn(ctx).QueryRow(ctx, `SELECT `+technicianCols+` FROM technicians WHERE user_id = $1`, userID))
}

func (r *technicianRepoPG) Update(ctx context.Context, t *Technician) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE technicians SET hospital_id=$2, notes=$3, is_active=$4, last_login=$5
		WHERE id = $1`,
		t.ID, t.HospitalID, t.Notes, t.IsActive, t.LastLogin)
	return err
}

func (r *technicianRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Technician, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+technicianCols+` FROM technicians WHERE hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Technician
	for rows.Next() {
		t, err := r.scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
