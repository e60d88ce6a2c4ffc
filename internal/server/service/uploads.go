package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/ident"
	"stash/internal/server/storage"
)

// UploadService owns the lifecycle of uploaded files: minting identifiers,
// keeping the metadata record and the on-disk artifact consistent, and
// tearing both down together.
type UploadService struct {
	uploads UploadStore
	users   UserStore
	store   storage.Store
	cfg     *config.Config
}

// NewUploadService creates a new upload service.
func NewUploadService(uploads UploadStore, users UserStore, store storage.Store, cfg *config.Config) *UploadService {
	return &UploadService{
		uploads: uploads,
		users:   users,
		store:   store,
		cfg:     cfg,
	}
}

// CreateUploadInput carries one incoming file.
type CreateUploadInput struct {
	Filename    string
	DisplayName *string
	MIMEType    string
	Size        int64
	Data        io.Reader
	Tags        []string
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	Name      string   `json:"name"`
	Extension string   `json:"ext"`
	Size      string   `json:"size"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags,omitempty"`
	URL       string   `json:"url"`
	DeleteURL string   `json:"delete"`
	DeleteKey string   `json:"deleteKey"`
}

// DeleteResult reports a single deletion. Warning is set when the metadata
// record went away but the artifact could not be removed.
type DeleteResult struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// BulkFailure is one failed item inside a bulk operation.
type BulkFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// BulkReport summarizes a bulk deletion. Deleted counts metadata records
// removed; Failures lists per-item artifact problems that did not stop the
// rest of the batch.
type BulkReport struct {
	Total    int           `json:"total"`
	Deleted  int           `json:"deleted"`
	Failures []BulkFailure `json:"failures,omitempty"`
}

// Create stores a new upload: generates the stored name and delete key
// independently, classifies the type from the MIME table, persists the
// record, and places the artifact. A uniqueness collision at persistence
// time regenerates both identifiers and retries within a fixed budget. If
// artifact placement fails the record is rolled back so the two never
// diverge on the create path.
func (s *UploadService) Create(ctx context.Context, owner uuid.UUID, in CreateUploadInput) (*UploadResult, error) {
	if in.Size > s.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	extension := filepath.Ext(in.Filename)
	now := time.Now().UTC()

	var upload *database.Upload
	created := false
	for attempt := 0; attempt < s.cfg.GenerateRetries; attempt++ {
		storedName, err := ident.Generate(s.cfg.NameLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate stored name: %w", err)
		}
		deleteKey, err := ident.Generate(s.cfg.DeleteKeyLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate delete key: %w", err)
		}

		upload = &database.Upload{
			ID:          uuid.New(),
			Owner:       owner,
			StoredName:  storedName,
			Extension:   extension,
			DisplayName: in.DisplayName,
			DeleteKey:   deleteKey,
			Tags:        in.Tags,
			Size:        humanize.IBytes(uint64(in.Size)),
			Type:        s.cfg.Classify(in.MIMEType),
			UploadedAt:  now,
			UpdatedAt:   now,
		}

		err = s.uploads.Create(ctx, upload)
		if errors.Is(err, database.ErrDuplicate) {
			slog.Warn("identifier collision, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create upload record: %w", err)
		}
		created = true
		break
	}
	if !created {
		return nil, ErrGenerationExhausted
	}

	// Placement runs to completion even if the request is aborted; a
	// half-written artifact is worse than a late one.
	written, err := s.store.Place(in.Data, upload.StoredName, upload.Extension)
	if err != nil {
		if delErr := s.uploads.Delete(context.WithoutCancel(ctx), upload.StoredName); delErr != nil {
			slog.Error("failed to roll back record after placement failure",
				"stored_name", upload.StoredName, "error", delErr)
		}
		return nil, fmt.Errorf("failed to place artifact: %w", err)
	}

	slog.Info("upload stored",
		"stored_name", upload.StoredName,
		"type", upload.Type,
		"size", upload.Size,
		"bytes_written", written,
	)

	return &UploadResult{
		Name:      upload.StoredName,
		Extension: upload.Extension,
		Size:      upload.Size,
		Type:      upload.Type,
		Tags:      upload.Tags,
		URL:       fmt.Sprintf("%s/u/%s%s", s.cfg.BaseURL, upload.StoredName, upload.Extension),
		DeleteURL: fmt.Sprintf("%s/api/delete?key=%s", s.cfg.BaseURL, upload.DeleteKey),
		DeleteKey: upload.DeleteKey,
	}, nil
}

// Fetch resolves a public file reference (<storedName><extension>) and opens
// the artifact for streaming. The caller owns the returned reader.
func (s *UploadService) Fetch(ctx context.Context, fileRef string) (*database.Upload, io.ReadCloser, error) {
	extension := filepath.Ext(fileRef)
	storedName := strings.TrimSuffix(fileRef, extension)

	upload, err := s.uploads.GetByName(ctx, storedName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	rc, err := s.store.Open(upload.StoredName, upload.Extension)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact %s: %w", upload.StoredName, err)
	}
	return upload, rc, nil
}

// Get returns a single upload scoped to its owner.
func (s *UploadService) Get(ctx context.Context, owner uuid.UUID, storedName string) (*database.Upload, error) {
	upload, err := s.uploads.GetOwned(ctx, owner, storedName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return upload, nil
}

// ListOptions controls upload listing.
type ListOptions struct {
	Search string
	Asc    bool
	Limit  int
	Offset int
}

// List returns a page of the owner's uploads.
func (s *UploadService) List(ctx context.Context, owner uuid.UUID, opts ListOptions) ([]*database.Upload, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 50
	}
	return s.uploads.ListPage(ctx, owner, opts.Search, opts.Asc, opts.Limit, opts.Offset)
}

// Edit mutates the only mutable upload fields: display name and tags. Nil
// fields stay unchanged; the merged values are written back whole because the
// store writes both columns as given.
func (s *UploadService) Edit(ctx context.Context, owner uuid.UUID, storedName string, displayName *string, tags []string) error {
	upload, err := s.uploads.GetOwned(ctx, owner, storedName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if displayName != nil {
		upload.DisplayName = displayName
	}
	if tags != nil {
		upload.Tags = tags
	}

	err = s.uploads.UpdateMeta(ctx, owner, storedName, upload.DisplayName, upload.Tags)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Delete removes an upload by file reference (<storedName><extension>),
// scoped to the owner. The metadata record is authoritative: if it is gone
// and only the artifact removal fails, the operation still succeeds with a
// warning attached.
func (s *UploadService) Delete(ctx context.Context, owner uuid.UUID, fileRef string) (*DeleteResult, error) {
	extension := filepath.Ext(fileRef)
	storedName := strings.TrimSuffix(fileRef, extension)

	upload, err := s.uploads.GetOwned(ctx, owner, storedName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return s.deleteUpload(ctx, upload)
}

// DeleteByKey removes an upload through its delete key. The key grants
// deletion without owner authentication, so only an exact match resolves.
func (s *UploadService) DeleteByKey(ctx context.Context, key string) (*DeleteResult, error) {
	upload, err := s.uploads.GetByDeleteKey(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return s.deleteUpload(ctx, upload)
}

func (s *UploadService) deleteUpload(ctx context.Context, upload *database.Upload) (*DeleteResult, error) {
	// Removal runs to completion even on client disconnect.
	bg := context.WithoutCancel(ctx)

	if err := s.uploads.Delete(bg, upload.StoredName); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete upload record: %w", err)
	}

	result := &DeleteResult{
		Message: fmt.Sprintf("%s has been deleted", s.displayRef(bg, upload)),
	}

	if err := s.store.Remove(upload.StoredName, upload.Extension); err != nil {
		slog.Error("failed to remove artifact",
			"stored_name", upload.StoredName, "error", err)
		result.Warning = "file removal failed; the upload record was deleted"
	}

	slog.Info("upload deleted", "stored_name", upload.StoredName)
	return result, nil
}

// DeleteAll removes every upload the owner has. Items are deleted
// independently: one broken artifact never aborts the rest, and the report
// carries the per-item failures. Artifact I/O fans out through a bounded
// worker group and the call returns only after every worker finishes.
func (s *UploadService) DeleteAll(ctx context.Context, owner uuid.UUID) (*BulkReport, error) {
	uploads, err := s.uploads.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	report := &BulkReport{Total: len(uploads)}
	var mu sync.Mutex

	bg := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.BulkWorkers)

	for _, upload := range uploads {
		upload := upload
		g.Go(func() error {
			if err := s.uploads.Delete(bg, upload.StoredName); err != nil && !errors.Is(err, database.ErrNotFound) {
				mu.Lock()
				report.Failures = append(report.Failures, BulkFailure{
					Name:   upload.StoredName,
					Reason: "record deletion failed",
				})
				mu.Unlock()
				slog.Error("bulk delete: record deletion failed",
					"stored_name", upload.StoredName, "error", err)
				return nil
			}

			mu.Lock()
			report.Deleted++
			mu.Unlock()

			exists, err := s.store.Exists(upload.StoredName, upload.Extension)
			if err == nil && !exists {
				mu.Lock()
				report.Failures = append(report.Failures, BulkFailure{
					Name:   upload.StoredName,
					Reason: "artifact already missing",
				})
				mu.Unlock()
				slog.Warn("bulk delete: artifact already missing",
					"stored_name", upload.StoredName)
				return nil
			}

			if err := s.store.Remove(upload.StoredName, upload.Extension); err != nil {
				mu.Lock()
				report.Failures = append(report.Failures, BulkFailure{
					Name:   upload.StoredName,
					Reason: "artifact removal failed",
				})
				mu.Unlock()
				slog.Error("bulk delete: artifact removal failed",
					"stored_name", upload.StoredName, "error", err)
			}
			return nil
		})
	}

	g.Wait()

	slog.Info("bulk delete complete",
		"total", report.Total,
		"deleted", report.Deleted,
		"failures", len(report.Failures),
	)
	return report, nil
}

// displayRef renders a file reference for user-visible messages, masking it
// when the owner has streamer mode on.
func (s *UploadService) displayRef(ctx context.Context, upload *database.Upload) string {
	ref := upload.StoredName + upload.Extension
	user, err := s.users.GetByID(ctx, upload.Owner)
	if err != nil {
		return ref
	}
	if user.StreamerMode {
		return maskName(ref)
	}
	return ref
}

// maskName keeps the first three characters and stars the rest.
func maskName(name string) string {
	if len(name) <= 3 {
		return name
	}
	return name[:3] + strings.Repeat("*", len(name)-3)
}
