package invite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbeta/medbeta/internal/platform/db"
)

type pendingUserRepoPG struct{ pool *pgxpool.Pool }

func NewPendingUserRepoPG(pool *pgxpool.Pool) PendingUserRepository {
	return &pendingUserRepoPG{pool: pool}
}

func (r *pendingUserRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const pendingCols = `id, email, name, role, hospital_id, invite_token, is_accepted, created_at, expires_at`

func (r *pendingUserRepoPG) scanPending(row pgx.Row) (*PendingUser, error) {
	var p PendingUser
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.HospitalID, &p.InviteToken,
		&p.IsAccepted, &p.CreatedAt, &p.ExpiresAt)
	return &p, err
}

func (r *pendingUserRepoPG) Create(ctx context.Context, p *PendingUser) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pending_users (id, email, name, role, hospital_id, invite_token, is_accepted, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Email, p.Name, p.Role, p.HospitalID, p.InviteToken, p.IsAccepted, p.ExpiresAt)
	return err
}

func (r *pendingUserRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PendingUser, error) {
	return r.scanPending(r.conn(ctx).QueryRow(ctx, `SELECT `+pendingCols+` FROM pending_users WHERE id = $1`, id))
}

func (r *pendingUserRepoPG) GetByToken(ctx context.Context, token string) (*PendingUser, error) {
	return r.scanPending(r.conn(ctx).QueryRow(ctx, `SELECT `+pendingCols+` FROM pending_users WHERE invite_token = $1`, token))
}

func (r *pendingUserRepoPG) GetByEmail(ctx context.Context, email string) (*PendingUser, error) {
	return r.scanPending(r.conn(ctx).QueryRow(ctx, `SELECT `+pendingCols+` FROM pending_users WHERE email = $1`, email))
}

func (r *pendingUserRepoPG) Update(ctx context.Context, p *PendingUser) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE pending_users
		SET invite_token = $2, is_accepted = $3, expires_at = $4
		WHERE id = $1`,
		p.ID, p.InviteToken, p.IsAccepted, p.ExpiresAt)
	return err
}

func (r *pendingUserRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM pending_users WHERE id = $1`, id)
	return err
}

func (r *pendingUserRepoPG) List(ctx context.Context, role string, limit, offset int) ([]*PendingUser, int, error) {
	where := `WHERE is_accepted = FALSE`
	args := []any{}
	if role != "" {
		where += ` AND role = $1`
		args = append(args, role)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pending_users `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM pending_users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		pendingCols, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*PendingUser
	for rows.Next() {
		p, err := r.scanPending(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *pendingUserRepoPG) DeleteByHospital(ctx context.Context, hospitalID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM pending_users WHERE hospital_id = $1 AND is_accepted = FALSE`, hospitalID)
	return err
}

func (r *pendingUserRepoPG) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pending_users WHERE is_accepted = FALSE`).Scan(&n)
	return n, err
}
