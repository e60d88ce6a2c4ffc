// Package client implements the command-line uploader: config loading,
// argument validation, and the multipart upload call against a Stash server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// Config is the client-side YAML configuration, the same document the server
// renders for the share-cli uploader.
type Config struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
	Creds struct {
		APIKey string `yaml:"apikey"`
	} `yaml:"creds"`
}

// LoadConfig reads the client config. An explicit path wins; otherwise the
// default location under the user config directory is used.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("cannot locate config directory: %w", err)
		}
		path = filepath.Join(dir, "stash", "config.yml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("config %s: server.url is required", path)
	}
	if cfg.Creds.APIKey == "" {
		return nil, fmt.Errorf("config %s: creds.apikey is required", path)
	}
	return &cfg, nil
}

// ParseArgs validates that every argument is a readable regular file.
func ParseArgs(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []string
	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory, pass files"}
		}
		out = append(out, p)
	}
	return out, nil
}

// UploadResponse is the subset of the server's upload reply the CLI shows.
type UploadResponse struct {
	File struct {
		Name      string `json:"name"`
		URL       string `json:"url"`
		DeleteURL string `json:"delete"`
		Size      string `json:"size"`
	} `json:"file"`
}

// Client talks to a Stash server.
type Client struct {
	cfg  *Config
	http *http.Client
}

// New creates a client from a loaded config.
func New(cfg *Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload posts one file as multipart form data and returns the server reply.
func (c *Client) Upload(ctx context.Context, path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("cannot build request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("cannot build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Server.URL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.Creds.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var errBody struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			return nil, fmt.Errorf("server rejected upload (%d): %s", resp.StatusCode, errBody.Error)
		}
		return nil, fmt.Errorf("server rejected upload: %s", resp.Status)
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cannot decode server reply: %w", err)
	}
	return &out, nil
}
