package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository backed by PostgreSQL.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// Create inserts a user together with their starter subscription so a
// fresh account always has a balance row to debit against.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User, initialCoins float64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO users (id, email, password_hash, is_admin)
VALUES ($1, $2, $3, $4);
`, user.ID, user.Email, user.PasswordHash, user.IsAdmin); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO subscriptions (user_id, plan, coins_remaining)
VALUES ($1, 'free', $2);
`, user.ID, initialCoins); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByEmail fetches a user by email.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, `
SELECT id, email, password_hash, is_admin, created_at
FROM users
WHERE email = $1;
`, email)
}

// GetByID fetches a user by identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, `
SELECT id, email, password_hash, is_admin, created_at
FROM users
WHERE id = $1;
`, id)
}

func (r *UserRepositoryPG) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Balance returns the user's remaining coins.
func (r *UserRepositoryPG) Balance(ctx context.Context, userID string) (float64, error) {
	row := r.pool.QueryRow(ctx, `
SELECT coins_remaining
FROM subscriptions
WHERE user_id = $1;
`, userID)
	var balance float64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}
