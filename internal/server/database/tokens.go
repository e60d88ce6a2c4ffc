package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TokenRepo provides CRUD operations for issued API tokens.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new TokenRepo.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Create inserts a new token record.
func (r *TokenRepo) Create(ctx context.Context, t *Token) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO tokens (id, owner_id, label, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Owner, t.Label, t.SecretHash, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by its ID.
func (r *TokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*Token, error) {
	t := &Token{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, owner_id, label, secret_hash, created_at
		FROM tokens WHERE id = $1
	`, id).Scan(&t.ID, &t.Owner, &t.Label, &t.SecretHash, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// ListByOwner returns all tokens issued to a user, newest first.
func (r *TokenRepo) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Token, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, owner_id, label, secret_hash, created_at
		FROM tokens WHERE owner_id = $1 ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		t := &Token{}
		if err := rows.Scan(&t.ID, &t.Owner, &t.Label, &t.SecretHash, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Delete removes a token, scoped to its owner.
func (r *TokenRepo) Delete(ctx context.Context, owner, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx,
		"DELETE FROM tokens WHERE id = $1 AND owner_id = $2", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwner removes all tokens issued to a user.
func (r *TokenRepo) DeleteByOwner(ctx context.Context, owner uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM tokens WHERE owner_id = $1", owner)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
