package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ahmedmhosni/roastify/internal/domain"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, name, password_hash, role, created_at, updated_at`

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository wires a repository over any sqlx database. Queries are
// written with ? placeholders and rebound for the driver.
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), domain.NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (r *userRepository) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	if user.Email == "" {
		return domain.User{}, fmt.Errorf("email is required")
	}

	query := r.db.Rebind(`INSERT INTO users (email, name, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE
		SET name = excluded.name,
		    password_hash = excluded.password_hash,
		    role = excluded.role,
		    updated_at = excluded.updated_at`)

	if _, err := r.db.ExecContext(ctx, query,
		domain.NormalizeEmail(user.Email),
		user.Name,
		user.PasswordHash,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return domain.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetByEmail(ctx, user.Email)
}
