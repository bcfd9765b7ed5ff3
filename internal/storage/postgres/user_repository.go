package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tixgo/platform/internal/domain"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	const stmt = `
INSERT INTO users (username, password_hash, role, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

	err := q(ctx, r.pool).QueryRow(ctx, stmt, u.Username, u.PasswordHash, u.Role, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrUserAlreadyExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// EnsureUser provisions a profile row with an explicit id, doing nothing if
// one already exists. Used when replaying the auth feed against a database
// that has not seen the account yet.
func (r *UserRepository) EnsureUser(ctx context.Context, u domain.User) error {
	const stmt = `
INSERT INTO users (id, username, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

	_, err := q(ctx, r.pool).Exec(ctx, stmt, u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	const query = `SELECT id, username, password_hash, role, created_at FROM users WHERE id = $1`
	return r.scanUser(q(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1`
	return r.scanUser(q(ctx, r.pool).QueryRow(ctx, query, username))
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, username, password_hash, role, created_at FROM users ORDER BY id`

	rows, err := q(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, u domain.User) error {
	const stmt = `UPDATE users SET username = $2, role = $3 WHERE id = $1`

	tag, err := q(ctx, r.pool).Exec(ctx, stmt, u.ID, u.Username, u.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, id int64) error {
	const stmt = `DELETE FROM users WHERE id = $1`

	tag, err := q(ctx, r.pool).Exec(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
