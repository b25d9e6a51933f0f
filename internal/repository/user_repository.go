package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const userColumns = `id, name, email, password_hash, suspended, suspend_reason, suspended_at, created_at, updated_at`

// UserRepository manages end-user records.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// SetSuspended toggles the suspension flag; reason is kept only while
	// suspended.
	SetSuspended(ctx context.Context, id string, suspend bool, reason *string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository builds repository.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, user.Name, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *userRepository) SetSuspended(ctx context.Context, id string, suspend bool, reason *string) (*domain.User, error) {
	const query = `
        UPDATE users SET
            suspended=$1,
            suspend_reason=CASE WHEN $1 THEN $2 ELSE NULL END,
            suspended_at=CASE WHEN $1 THEN NOW() ELSE NULL END,
            updated_at=NOW()
        WHERE id=$3
        RETURNING ` + userColumns
	return r.fetchRow(ctx, query, suspend, reason, id)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	return r.fetchRow(ctx, query, arg)
}

func (r *userRepository) fetchRow(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Suspended,
		&user.SuspendReason,
		&user.SuspendedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
