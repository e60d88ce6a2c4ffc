// Package storage owns the binary payloads of uploads. No other package
// touches the backing filesystem or bucket directly.
package storage

import (
	"fmt"
	"io"

	"stash/internal/server/config"
)

// Store is the interface for artifact storage backends. Artifacts live at
// the canonical location u/<storedName><extension> under the storage root.
type Store interface {
	// Place writes the payload to the canonical location and returns the
	// number of bytes written.
	Place(src io.Reader, storedName, extension string) (int64, error)

	// Open returns a reader over a stored artifact.
	Open(storedName, extension string) (io.ReadCloser, error)

	// Remove deletes an artifact. Removing an absent artifact is not an
	// error, so metadata deletion can always proceed.
	Remove(storedName, extension string) error

	// Exists reports whether the artifact is present.
	Exists(storedName, extension string) (bool, error)

	// Ensure prepares the backend (creates the storage root for the local
	// backend; a no-op for object stores).
	Ensure() error
}

// New selects a storage backend from configuration.
func New(cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "local", "":
		return NewFileSystemStore(cfg.StoragePath), nil
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// artifactKey is the path of an artifact relative to the storage root.
func artifactKey(storedName, extension string) string {
	return "u/" + storedName + extension
}
