package service

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/storage"
)

// AccountService covers the aggregate operations that span a whole account:
// space accounting, data export, and the deletion cascade.
type AccountService struct {
	users     UserStore
	uploads   UploadStore
	links     LinkStore
	tokens    TokenStore
	uploadSvc *UploadService
	store     storage.Store
	cfg       *config.Config
}

// NewAccountService creates a new account service.
func NewAccountService(users UserStore, uploads UploadStore, links LinkStore, tokens TokenStore, uploadSvc *UploadService, store storage.Store, cfg *config.Config) *AccountService {
	return &AccountService{
		users:     users,
		uploads:   uploads,
		links:     links,
		tokens:    tokens,
		uploadSvc: uploadSvc,
		store:     store,
		cfg:       cfg,
	}
}

// EnsureAccount creates the local account row for an externally
// authenticated owner, or refreshes nothing when it already exists. The
// identity provider calls this once per login.
func (s *AccountService) EnsureAccount(ctx context.Context, owner uuid.UUID, username, email string) (*database.User, error) {
	user, err := s.users.GetByID(ctx, owner)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	now := time.Now().UTC()
	user = &database.User{
		ID:        owner,
		Username:  username,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	slog.Info("account provisioned", "owner", owner, "username", username)
	return user, nil
}

// SetStreamerMode flips the owner's display preference that masks file names
// in user-visible messages.
func (s *AccountService) SetStreamerMode(ctx context.Context, owner uuid.UUID, on bool) error {
	err := s.users.SetStreamerMode(ctx, owner, on)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SpaceUsage is the storage footprint of one account.
type SpaceUsage struct {
	Bytes uint64 `json:"bytes"`
	Human string `json:"human"`
}

// SpaceUsed sums the byte size of every upload the user owns. Sizes are
// stored human-readable and parsed back to bytes before summation.
func (s *AccountService) SpaceUsed(ctx context.Context, owner uuid.UUID) (*SpaceUsage, error) {
	sizes, err := s.uploads.SizesByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload sizes: %w", err)
	}

	var total uint64
	for _, size := range sizes {
		n, err := humanize.ParseBytes(size)
		if err != nil {
			slog.Warn("unparseable upload size skipped", "size", size, "error", err)
			continue
		}
		total += n
	}

	return &SpaceUsage{
		Bytes: total,
		Human: humanize.IBytes(total),
	}, nil
}

// ExportReport summarizes an export bundle. Missing lists artifacts that
// were recorded but absent from storage; they are skipped, not fatal.
type ExportReport struct {
	Uploads int      `json:"uploads"`
	Links   int      `json:"links"`
	Missing []string `json:"missing,omitempty"`
}

type accountJSON struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	StreamerMode bool      `json:"streamerMode"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type linkJSON struct {
	Code       string     `json:"code"`
	URL        string     `json:"url"`
	Clicks     int        `json:"clicks"`
	ClickLimit *int       `json:"limit,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	DeleteKey  string     `json:"deleteKey"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type uploadJSON struct {
	FileName    string    `json:"fileName"`
	Extension   string    `json:"fileExtension"`
	DisplayName *string   `json:"name,omitempty"`
	Type        string    `json:"type"`
	Size        string    `json:"size"`
	Tags        []string  `json:"tags,omitempty"`
	DeleteKey   string    `json:"deleteKey"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Export writes a zip archive of everything the user owns: account.json,
// links.json, uploads.json, and the raw artifact bytes under uploads/.
// Records are enumerated first, then artifacts stream one by one; an
// artifact missing from storage is skipped with a warning and the rest of
// the bundle continues.
func (s *AccountService) Export(ctx context.Context, owner uuid.UUID, w io.Writer) (*ExportReport, error) {
	user, err := s.users.GetByID(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	uploads, err := s.uploads.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	links, err := s.links.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	zw := zip.NewWriter(w)
	report := &ExportReport{Uploads: len(uploads), Links: len(links)}

	account := []accountJSON{{
		Username:     user.Username,
		Email:        user.Email,
		StreamerMode: user.StreamerMode,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}}

	linkDocs := make([]linkJSON, 0, len(links))
	for _, l := range links {
		linkDocs = append(linkDocs, linkJSON{
			Code:       l.Code,
			URL:        l.URL,
			Clicks:     l.Clicks,
			ClickLimit: l.ClickLimit,
			ExpiresAt:  l.ExpiresAt,
			Tags:       l.Tags,
			DeleteKey:  l.DeleteKey,
			CreatedAt:  l.CreatedAt,
			UpdatedAt:  l.UpdatedAt,
		})
	}

	uploadDocs := make([]uploadJSON, 0, len(uploads))
	for _, u := range uploads {
		uploadDocs = append(uploadDocs, uploadJSON{
			FileName:    u.StoredName,
			Extension:   u.Extension,
			DisplayName: u.DisplayName,
			Type:        u.Type,
			Size:        u.Size,
			Tags:        u.Tags,
			DeleteKey:   u.DeleteKey,
			UploadedAt:  u.UploadedAt,
		})
	}

	if err := writeJSONEntry(zw, "account.json", account); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, "links.json", linkDocs); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, "uploads.json", uploadDocs); err != nil {
		return nil, err
	}

	for _, u := range uploads {
		rc, err := s.store.Open(u.StoredName, u.Extension)
		if err != nil {
			slog.Warn("export: artifact missing, skipped",
				"stored_name", u.StoredName, "error", err)
			report.Missing = append(report.Missing, u.StoredName+u.Extension)
			continue
		}

		entry, err := zw.Create("uploads/" + u.StoredName + u.Extension)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to create archive entry: %w", err)
		}
		if _, err := io.Copy(entry, rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to stream artifact %s: %w", u.StoredName, err)
		}
		rc.Close()
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	slog.Info("export complete",
		"uploads", report.Uploads,
		"links", report.Links,
		"missing", len(report.Missing),
	)
	return report, nil
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// CascadeReport summarizes an account deletion.
type CascadeReport struct {
	Tokens         int64         `json:"tokens"`
	Links          int64         `json:"links"`
	Uploads        int           `json:"uploads"`
	UploadFailures []BulkFailure `json:"uploadFailures,omitempty"`
}

// DeleteAccount removes everything the user owns, in order: tokens, links,
// uploads with their artifacts, and finally the user record. Each step is
// idempotent, so re-running the cascade after a crash is safe.
func (s *AccountService) DeleteAccount(ctx context.Context, owner uuid.UUID) (*CascadeReport, error) {
	bg := context.WithoutCancel(ctx)
	report := &CascadeReport{}

	n, err := s.tokens.DeleteByOwner(bg, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to delete tokens: %w", err)
	}
	report.Tokens = n

	n, err = s.links.DeleteByOwner(bg, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to delete links: %w", err)
	}
	report.Links = n

	uploadReport, err := s.uploadSvc.DeleteAll(bg, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to delete uploads: %w", err)
	}
	report.Uploads = uploadReport.Deleted
	report.UploadFailures = uploadReport.Failures

	// An already-absent user means a previous cascade got this far.
	if err := s.users.Delete(bg, owner); err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("account deleted",
		"owner", owner,
		"tokens", report.Tokens,
		"links", report.Links,
		"uploads", report.Uploads,
	)
	return report, nil
}
