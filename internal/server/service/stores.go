package service

import (
	"context"

	"github.com/google/uuid"

	"stash/internal/server/database"
)

// The services depend on store interfaces rather than the concrete pgx
// repositories, so tests can run against in-memory implementations.

type UploadStore interface {
	Create(ctx context.Context, u *database.Upload) error
	GetByName(ctx context.Context, storedName string) (*database.Upload, error)
	GetOwned(ctx context.Context, owner uuid.UUID, storedName string) (*database.Upload, error)
	GetByDeleteKey(ctx context.Context, key string) (*database.Upload, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]*database.Upload, error)
	ListPage(ctx context.Context, owner uuid.UUID, search string, asc bool, limit, offset int) ([]*database.Upload, error)
	UpdateMeta(ctx context.Context, owner uuid.UUID, storedName string, displayName *string, tags []string) error
	Delete(ctx context.Context, storedName string) error
	SizesByOwner(ctx context.Context, owner uuid.UUID) ([]string, error)
}

type LinkStore interface {
	Create(ctx context.Context, l *database.Link) error
	GetByCode(ctx context.Context, code string) (*database.Link, error)
	GetOwned(ctx context.Context, owner uuid.UUID, code string) (*database.Link, error)
	GetByDeleteKey(ctx context.Context, key string) (*database.Link, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]*database.Link, error)
	Resolve(ctx context.Context, code string) (string, error)
	Update(ctx context.Context, l *database.Link) error
	Delete(ctx context.Context, code string) error
	DeleteByOwner(ctx context.Context, owner uuid.UUID) (int64, error)
}

type TokenStore interface {
	Create(ctx context.Context, t *database.Token) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.Token, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]*database.Token, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	DeleteByOwner(ctx context.Context, owner uuid.UUID) (int64, error)
}

type UserStore interface {
	Create(ctx context.Context, u *database.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.User, error)
	SetStreamerMode(ctx context.Context, id uuid.UUID, on bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExpiredLinkStore is the slice of LinkRepo the sweeper needs.
type ExpiredLinkStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

var (
	_ UploadStore      = (*database.UploadRepo)(nil)
	_ LinkStore        = (*database.LinkRepo)(nil)
	_ TokenStore       = (*database.TokenRepo)(nil)
	_ UserStore        = (*database.UserRepo)(nil)
	_ ExpiredLinkStore = (*database.LinkRepo)(nil)
)
