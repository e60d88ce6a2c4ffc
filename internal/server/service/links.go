package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/ident"
)

// LinkService owns the lifecycle of shortened links.
type LinkService struct {
	links LinkStore
	cfg   *config.Config
}

// NewLinkService creates a new link service.
func NewLinkService(links LinkStore, cfg *config.Config) *LinkService {
	return &LinkService{links: links, cfg: cfg}
}

// CreateLinkInput carries one incoming link.
type CreateLinkInput struct {
	URL        string     `json:"url"`
	Tags       []string   `json:"tags,omitempty"`
	ClickLimit *int       `json:"limit,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// LinkResult is returned after a successful link creation.
type LinkResult struct {
	Code       string     `json:"code"`
	ShortURL   string     `json:"shortUrl"`
	URL        string     `json:"url"`
	Tags       []string   `json:"tags,omitempty"`
	ClickLimit *int       `json:"limit,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	DeleteKey  string     `json:"deleteKey"`
}

// Create shortens a URL: validates the target, generates the code and delete
// key independently, and persists the record. Code collisions regenerate
// within the same retry budget uploads use.
func (s *LinkService) Create(ctx context.Context, owner uuid.UUID, in CreateLinkInput) (*LinkResult, error) {
	if err := validateTarget(in.URL); err != nil {
		return nil, err
	}
	if in.ClickLimit != nil && *in.ClickLimit <= 0 {
		return nil, fmt.Errorf("%w: click limit must be positive", ErrInvalidURL)
	}

	now := time.Now().UTC()

	for attempt := 0; attempt < s.cfg.GenerateRetries; attempt++ {
		code, err := ident.Generate(s.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}
		deleteKey, err := ident.Generate(s.cfg.DeleteKeyLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate delete key: %w", err)
		}

		link := &database.Link{
			ID:         uuid.New(),
			Owner:      owner,
			Code:       code,
			URL:        in.URL,
			ClickLimit: in.ClickLimit,
			ExpiresAt:  in.ExpiresAt,
			Tags:       in.Tags,
			DeleteKey:  deleteKey,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		err = s.links.Create(ctx, link)
		if errors.Is(err, database.ErrDuplicate) {
			slog.Warn("link code collision, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create link record: %w", err)
		}

		slog.Info("link created", "code", code)
		return &LinkResult{
			Code:       code,
			ShortURL:   fmt.Sprintf("%s/l/%s", s.cfg.BaseURL, code),
			URL:        link.URL,
			Tags:       link.Tags,
			ClickLimit: link.ClickLimit,
			ExpiresAt:  link.ExpiresAt,
			DeleteKey:  deleteKey,
		}, nil
	}

	return nil, ErrGenerationExhausted
}

// Resolve returns the target URL for a code and counts the click. The click
// counter moves exactly once per successful resolution; once the limit is
// reached or the link has expired, resolution fails without incrementing.
func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	target, err := s.links.Resolve(ctx, code)
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return "", err
	}

	// No matching row: distinguish an unknown code from a spent or
	// expired link.
	link, lookupErr := s.links.GetByCode(ctx, code)
	if lookupErr != nil {
		if errors.Is(lookupErr, database.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", lookupErr
	}
	if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
		return "", ErrLinkExpired
	}
	return "", ErrLinkExhausted
}

// UpdateLinkInput carries a partial link edit; nil fields stay unchanged.
// Code, delete key, and owner are immutable.
type UpdateLinkInput struct {
	URL        *string    `json:"url,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	ClickLimit *int       `json:"limit,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Edit mutates the mutable link fields, scoped to the owner.
func (s *LinkService) Edit(ctx context.Context, owner uuid.UUID, code string, in UpdateLinkInput) error {
	link, err := s.links.GetOwned(ctx, owner, code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if in.URL != nil {
		if err := validateTarget(*in.URL); err != nil {
			return err
		}
		link.URL = *in.URL
	}
	if in.Tags != nil {
		link.Tags = in.Tags
	}
	if in.ClickLimit != nil {
		link.ClickLimit = in.ClickLimit
	}
	if in.ExpiresAt != nil {
		link.ExpiresAt = in.ExpiresAt
	}

	if err := s.links.Update(ctx, link); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Delete removes a link, scoped to the owner.
func (s *LinkService) Delete(ctx context.Context, owner uuid.UUID, code string) error {
	if _, err := s.links.GetOwned(ctx, owner, code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.links.Delete(ctx, code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	slog.Info("link deleted", "code", code)
	return nil
}

// DeleteByKey removes a link through its delete key, bypassing the owner
// check on exact match.
func (s *LinkService) DeleteByKey(ctx context.Context, key string) error {
	link, err := s.links.GetByDeleteKey(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.links.Delete(ctx, link.Code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	slog.Info("link deleted via delete key", "code", link.Code)
	return nil
}

// DeleteAll removes every link the owner has and reports how many went.
func (s *LinkService) DeleteAll(ctx context.Context, owner uuid.UUID) (int64, error) {
	return s.links.DeleteByOwner(ctx, owner)
}

// List returns all links owned by a user.
func (s *LinkService) List(ctx context.Context, owner uuid.UUID) ([]*database.Link, error) {
	return s.links.ListByOwner(ctx, owner)
}

// validateTarget accepts absolute http/https URLs only.
func validateTarget(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: only http and https are allowed", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
