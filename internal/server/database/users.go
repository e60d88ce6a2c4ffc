package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepo provides the user operations this service needs: lookups for
// export and streamer-mode checks, and the final step of the account cascade.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a new user record.
func (r *UserRepo) Create(ctx context.Context, u *User) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, username, email, streamer_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Username, u.Email, u.StreamerMode, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u := &User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, email, streamer_mode, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.StreamerMode, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetStreamerMode flips the display preference that masks file names in
// user-visible messages.
func (r *UserRepo) SetStreamerMode(ctx context.Context, id uuid.UUID, on bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE users SET streamer_mode = $1, updated_at = NOW() WHERE id = $2", on, id)
	if err != nil {
		return fmt.Errorf("failed to set streamer mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user record.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
