package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const linkColumns = `id, owner_id, code, url, clicks, click_limit,
	expires_at, tags, delete_key, created_at, updated_at`

// LinkRepo provides CRUD operations for shortened links.
type LinkRepo struct {
	db *DB
}

// NewLinkRepo creates a new LinkRepo.
func NewLinkRepo(db *DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// Create inserts a new link record. Returns ErrDuplicate when the code or
// delete key collides with an existing record.
func (r *LinkRepo) Create(ctx context.Context, l *Link) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO links (
			id, owner_id, code, url, clicks, click_limit,
			expires_at, tags, delete_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		l.ID,
		l.Owner,
		l.Code,
		l.URL,
		l.Clicks,
		l.ClickLimit,
		l.ExpiresAt,
		normalizeTags(l.Tags),
		l.DeleteKey,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, ErrDuplicate) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (r *LinkRepo) scanOne(row pgx.Row) (*Link, error) {
	l := &Link{}
	err := row.Scan(
		&l.ID,
		&l.Owner,
		&l.Code,
		&l.URL,
		&l.Clicks,
		&l.ClickLimit,
		&l.ExpiresAt,
		&l.Tags,
		&l.DeleteKey,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}
	return l, nil
}

// GetByCode retrieves a link by its short code.
func (r *LinkRepo) GetByCode(ctx context.Context, code string) (*Link, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		"SELECT "+linkColumns+" FROM links WHERE code = $1", code))
}

// GetOwned retrieves a link by code, scoped to its owner.
func (r *LinkRepo) GetOwned(ctx context.Context, owner uuid.UUID, code string) (*Link, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		"SELECT "+linkColumns+" FROM links WHERE code = $1 AND owner_id = $2", code, owner))
}

// GetByDeleteKey retrieves a link by its delete key.
func (r *LinkRepo) GetByDeleteKey(ctx context.Context, key string) (*Link, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		"SELECT "+linkColumns+" FROM links WHERE delete_key = $1", key))
}

// ListByOwner returns all links owned by a user, newest first.
func (r *LinkRepo) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Link, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+linkColumns+" FROM links WHERE owner_id = $1 ORDER BY created_at DESC",
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*Link
	for rows.Next() {
		l, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Resolve atomically increments the click counter and returns the target URL.
// The update only matches while the link is under its click limit and not
// expired, so a limit-3 link rejects the 4th resolution without ever counting
// past 3, regardless of how many processes race on it.
func (r *LinkRepo) Resolve(ctx context.Context, code string) (string, error) {
	var url string
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE links SET clicks = clicks + 1, updated_at = NOW()
		WHERE code = $1
		  AND (click_limit IS NULL OR clicks < click_limit)
		  AND (expires_at IS NULL OR expires_at > NOW())
		RETURNING url
	`, code).Scan(&url)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve link: %w", err)
	}
	return url, nil
}

// Update mutates the mutable fields of a link: url, tags, click limit, and
// expiry. Code, delete key, and owner never change.
func (r *LinkRepo) Update(ctx context.Context, l *Link) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE links SET url = $1, tags = $2, click_limit = $3, expires_at = $4, updated_at = NOW()
		WHERE code = $5 AND owner_id = $6
	`, l.URL, normalizeTags(l.Tags), l.ClickLimit, l.ExpiresAt, l.Code, l.Owner)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a link record by code.
func (r *LinkRepo) Delete(ctx context.Context, code string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM links WHERE code = $1", code)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOwner removes all links owned by a user and reports how many went.
func (r *LinkRepo) DeleteByOwner(ctx context.Context, owner uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM links WHERE owner_id = $1", owner)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes all links whose expiry has passed. Used by the sweeper.
func (r *LinkRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		"DELETE FROM links WHERE expires_at IS NOT NULL AND expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", err)
	}
	return tag.RowsAffected(), nil
}
