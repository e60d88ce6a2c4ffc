package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const uploadColumns = `id, owner_id, stored_name, extension, display_name,
	delete_key, tags, size, type, uploaded_at, updated_at`

// UploadRepo provides CRUD operations for upload records.
type UploadRepo struct {
	db *DB
}

// NewUploadRepo creates a new UploadRepo.
func NewUploadRepo(db *DB) *UploadRepo {
	return &UploadRepo{db: db}
}

// Create inserts a new upload record. Returns ErrDuplicate when the stored
// name or delete key collides with an existing record.
func (r *UploadRepo) Create(ctx context.Context, u *Upload) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO uploads (
			id, owner_id, stored_name, extension, display_name,
			delete_key, tags, size, type, uploaded_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		u.ID,
		u.Owner,
		u.StoredName,
		u.Extension,
		u.DisplayName,
		u.DeleteKey,
		normalizeTags(u.Tags),
		u.Size,
		u.Type,
		u.UploadedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if mapped := mapError(err); errors.Is(mapped, ErrDuplicate) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

func (r *UploadRepo) scanOne(row pgx.Row) (*Upload, error) {
	u := &Upload{}
	err := row.Scan(
		&u.ID,
		&u.Owner,
		&u.StoredName,
		&u.Extension,
		&u.DisplayName,
		&u.DeleteKey,
		&u.Tags,
		&u.Size,
		&u.Type,
		&u.UploadedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}
	return u, nil
}

// GetByName retrieves an upload by its stored name.
func (r *UploadRepo) GetByName(ctx context.Context, storedName string) (*Upload, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		"SELECT "+uploadColumns+" FROM uploads WHERE stored_name = $1", storedName))
}

// GetOwned retrieves an upload by stored name, scoped to its owner.
func (r *UploadRepo) GetOwned(ctx context.Context, owner uuid.UUID, storedName string) (*Upload, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		"SELECT "+uploadColumns+" FROM uploads WHERE stored_name = $1 AND owner_id = $2",
		storedName, owner))
}

// GetByDeleteKey retrieves an upload by its delete key. Used by the
// unauthenticated one-click deletion flow.
func (r *UploadRepo) GetByDeleteKey(ctx context.Context, key string) (*Upload, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx,
		"SELECT "+uploadColumns+" FROM uploads WHERE delete_key = $1", key))
}

// ListByOwner returns all uploads owned by a user, newest first.
func (r *UploadRepo) ListByOwner(ctx context.Context, owner uuid.UUID) ([]*Upload, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+uploadColumns+" FROM uploads WHERE owner_id = $1 ORDER BY uploaded_at DESC",
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// ListPage returns a page of uploads for listing tables. When search is
// non-empty it matches stored name, display name, or tags.
func (r *UploadRepo) ListPage(ctx context.Context, owner uuid.UUID, search string, asc bool, limit, offset int) ([]*Upload, error) {
	order := "DESC"
	if asc {
		order = "ASC"
	}
	query := "SELECT " + uploadColumns + ` FROM uploads
		WHERE owner_id = $1
		  AND ($2 = '' OR stored_name ILIKE '%' || $2 || '%'
		       OR display_name ILIKE '%' || $2 || '%'
		       OR $2 = ANY(tags))
		ORDER BY uploaded_at ` + order + `
		LIMIT $3 OFFSET $4`

	rows, err := r.db.Pool.Query(ctx, query, owner, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// UpdateMeta writes the only mutable fields of an upload: tags and display
// name. Both values are written as given; merging a partial edit onto the
// current record is the service's job. Identity fields never change after
// creation.
func (r *UploadRepo) UpdateMeta(ctx context.Context, owner uuid.UUID, storedName string, displayName *string, tags []string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE uploads SET display_name = $1, tags = $2, updated_at = NOW()
		WHERE stored_name = $3 AND owner_id = $4
	`, displayName, normalizeTags(tags), storedName, owner)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an upload record by stored name.
func (r *UploadRepo) Delete(ctx context.Context, storedName string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM uploads WHERE stored_name = $1", storedName)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SizesByOwner returns the stored human-readable sizes of all uploads owned
// by a user, for space accounting.
func (r *UploadRepo) SizesByOwner(ctx context.Context, owner uuid.UUID) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT size FROM uploads WHERE owner_id = $1", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload sizes: %w", err)
	}
	defer rows.Close()

	var sizes []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan upload size: %w", err)
		}
		sizes = append(sizes, s)
	}
	return sizes, rows.Err()
}
