package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/ident"
)

// TokenService issues and verifies API tokens for third-party uploader
// tools. A token is "<id>.<secret>"; only the bcrypt hash of the secret is
// stored, so the plaintext is shown exactly once at issue time.
type TokenService struct {
	tokens TokenStore
	cfg    *config.Config
}

// NewTokenService creates a new token service.
func NewTokenService(tokens TokenStore, cfg *config.Config) *TokenService {
	return &TokenService{tokens: tokens, cfg: cfg}
}

// IssuedToken is returned once at issue time with the plaintext token.
type IssuedToken struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// Issue mints a new API token for the owner.
func (s *TokenService) Issue(ctx context.Context, owner uuid.UUID, label string) (*IssuedToken, error) {
	secret, err := ident.Generate(s.cfg.TokenSecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token secret: %w", err)
	}

	token := &database.Token{
		ID:         uuid.New(),
		Owner:      owner,
		Label:      label,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to create token record: %w", err)
	}

	slog.Info("token issued", "id", token.ID, "label", label)
	return &IssuedToken{
		ID:        token.ID,
		Label:     token.Label,
		Token:     token.ID.String() + "." + secret,
		CreatedAt: token.CreatedAt,
	}, nil
}

// Verify checks a presented bearer token and returns the owner it belongs
// to. Revoked tokens fail because the record is gone.
func (s *TokenService) Verify(ctx context.Context, bearer string) (uuid.UUID, error) {
	idPart, secret, ok := strings.Cut(bearer, ".")
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	token, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return uuid.Nil, ErrInvalidToken
		}
		return uuid.Nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return token.Owner, nil
}

// Revoke deletes a token, scoped to its owner.
func (s *TokenService) Revoke(ctx context.Context, owner, id uuid.UUID) error {
	err := s.tokens.Delete(ctx, owner, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		slog.Info("token revoked", "id", id)
	}
	return err
}

// List returns all tokens issued to a user. Secret hashes never leave the
// service.
func (s *TokenService) List(ctx context.Context, owner uuid.UUID) ([]*IssuedToken, error) {
	tokens, err := s.tokens.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]*IssuedToken, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, &IssuedToken{
			ID:        t.ID,
			Label:     t.Label,
			CreatedAt: t.CreatedAt,
		})
	}
	return out, nil
}

// UploaderConfig is a generated configuration document for an uploader tool.
type UploaderConfig struct {
	Filename    string
	ContentType string
	Body        []byte
}

type sharexConfig struct {
	Version         string            `json:"Version"`
	Name            string            `json:"Name"`
	DestinationType string            `json:"DestinationType"`
	RequestMethod   string            `json:"RequestMethod"`
	RequestURL      string            `json:"RequestURL"`
	Headers         map[string]string `json:"Headers"`
	Body            string            `json:"Body"`
	FileFormName    string            `json:"FileFormName"`
	URL             string            `json:"URL"`
	DeletionURL     string            `json:"DeletionURL"`
}

type cliConfig struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
	Creds struct {
		APIKey string `yaml:"apikey"`
	} `yaml:"creds"`
}

// RenderUploaderConfig produces a ready-to-import config document for a
// supported uploader tool, bound to the given token. The token must verify;
// config documents are never rendered around made-up or revoked credentials.
func (s *TokenService) RenderUploaderConfig(ctx context.Context, uploader, token, destination string) (*UploaderConfig, error) {
	if _, err := s.Verify(ctx, token); err != nil {
		return nil, err
	}

	switch uploader {
	case "sharex":
		if destination == "" {
			destination = "ImageUploader, FileUploader, TextUploader"
		}
		doc := sharexConfig{
			Version:         "12.4.1",
			Name:            s.cfg.SiteTitle + " Custom Uploader",
			DestinationType: destination,
			RequestMethod:   "POST",
			RequestURL:      s.cfg.BaseURL + "/api/upload",
			Headers:         map[string]string{"Authorization": "Bearer " + token},
			Body:            "MultipartFormData",
			FileFormName:    "file",
			URL:             "$json:file.url$",
			DeletionURL:     "$json:file.delete$",
		}
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to render sharex config: %w", err)
		}
		return &UploaderConfig{
			Filename:    s.cfg.SiteTitle + " ShareX Config.sxcu",
			ContentType: "application/json",
			Body:        body,
		}, nil

	case "share-cli":
		var doc cliConfig
		doc.Server.URL = s.cfg.BaseURL
		doc.Creds.APIKey = token
		body, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to render share-cli config: %w", err)
		}
		return &UploaderConfig{
			Filename:    s.cfg.SiteTitle + " CLI Config.yml",
			ContentType: "application/x-yaml",
			Body:        body,
		}, nil

	default:
		return nil, ErrUnknownUploader
	}
}
