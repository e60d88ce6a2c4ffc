package database

import (
	"time"

	"github.com/google/uuid"
)

// Upload is the metadata record for one uploaded file. The binary payload
// lives in the artifact store under <root>/u/<StoredName><Extension>.
type Upload struct {
	ID          uuid.UUID
	Owner       uuid.UUID
	StoredName  string // generated, globally unique, immutable
	Extension   string // original extension, preserved verbatim
	DisplayName *string
	DeleteKey   string // generated independently of StoredName
	Tags        []string
	Size        string // human-readable, parsed back for accounting
	Type        string // image | text | file
	UploadedAt  time.Time
	UpdatedAt   time.Time
}

// Link is the metadata record for one shortened link.
type Link struct {
	ID         uuid.UUID
	Owner      uuid.UUID
	Code       string // generated, unique, used in the short URL
	URL        string
	Clicks     int
	ClickLimit *int // nil when unlimited
	ExpiresAt  *time.Time
	Tags       []string
	DeleteKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Token is an issued API token for third-party uploader tools. Only the
// bcrypt hash of the secret is stored.
type Token struct {
	ID         uuid.UUID
	Owner      uuid.UUID
	Label      string
	SecretHash string
	CreatedAt  time.Time
}

// User is the owner identity uploads, links, and tokens hang off. The
// authentication flow itself lives outside this service.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	StreamerMode bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
