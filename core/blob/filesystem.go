package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

// Filesystem archives payloads below a base folder, one file per URN
type Filesystem struct {
	baseFolder string
}

// NewFilesystem creates a filesystem archive rooted at the given folder
func NewFilesystem(baseFolder string) (*Filesystem, error) {
	if baseFolder == "" {
		return nil, fmt.Errorf("blob filesystem: base folder must not be empty")
	}
	if err := os.MkdirAll(baseFolder, 0o755); err != nil {
		return nil, fmt.Errorf("blob filesystem: %w", err)
	}
	return &Filesystem{baseFolder: baseFolder}, nil
}

func (f *Filesystem) path(u urn.URN) string {
	return filepath.Join(f.baseFolder, filepath.FromSlash(Key(u)))
}

// Put writes the payload, creating the key's folder hierarchy on demand
func (f *Filesystem) Put(ctx context.Context, u urn.URN, data []byte) error {
	path := f.path(u)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("blob put %s: %w", u, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("blob put %s: %w", u, err)
	}
	return nil
}

// Get returns the archived payload, or nil if there is none
func (f *Filesystem) Get(ctx context.Context, u urn.URN) ([]byte, error) {
	data, err := os.ReadFile(f.path(u))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blob get %s: %w", u, err)
	}
	return data, nil
}

// Delete removes the archived payload
func (f *Filesystem) Delete(ctx context.Context, u urn.URN) error {
	err := os.Remove(f.path(u))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob delete %s: %w", u, err)
	}
	return nil
}
