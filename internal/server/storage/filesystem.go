package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore keeps artifacts on the local filesystem.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// Ensure creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) Ensure() error {
	dir := filepath.Join(fs.basePath, "u")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return nil
}

// Place writes the payload to u/<storedName><extension> under the root.
func (fs *FileSystemStore) Place(src io.Reader, storedName, extension string) (int64, error) {
	filePath := fs.filePath(storedName, extension)

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, src)
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Open returns a reader over a stored artifact.
func (fs *FileSystemStore) Open(storedName, extension string) (io.ReadCloser, error) {
	filePath := fs.filePath(storedName, extension)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found for %s%s", storedName, extension)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Remove deletes the artifact. An absent artifact is not an error.
func (fs *FileSystemStore) Remove(storedName, extension string) error {
	filePath := fs.filePath(storedName, extension)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// Exists reports whether the artifact is present on disk.
func (fs *FileSystemStore) Exists(storedName, extension string) (bool, error) {
	_, err := os.Stat(fs.filePath(storedName, extension))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

func (fs *FileSystemStore) filePath(storedName, extension string) string {
	return filepath.Join(fs.basePath, filepath.FromSlash(artifactKey(storedName, extension)))
}
