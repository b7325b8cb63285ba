package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/marketgate/internal/model"
)

const sessionColumns = `id, user_id, email, name, role, access_token, expires_at, created_at`

// PostgresSessionRepo はsessionsテーブルに対するSessionRepositoryの実装。
type PostgresSessionRepo struct {
	db *sql.DB
}

func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)

func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.Email, s.Name, s.Role.String(), s.AccessToken, s.ExpiresAt, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションのみ返す。見つからなければ (nil, nil)。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND expires_at > now()`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select session %s: %w", id, err)
	}
	return s, nil
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var (
		s    model.Session
		role string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Email, &s.Name, &role, &s.AccessToken, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := model.ParseRole(role)
	if err != nil {
		return nil, err
	}
	s.Role = parsed
	return &s, nil
}

func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.exec(ctx, "delete session", `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteByUserID はBAN・アカウント削除時に全端末のセッションを失効させる。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.exec(ctx, "delete user sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return r.exec(ctx, "delete expired sessions", `DELETE FROM sessions WHERE expires_at <= now()`)
}

// exec は更新系クエリを実行し、影響行数を返す。
func (r *PostgresSessionRepo) exec(ctx context.Context, op, q string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}
