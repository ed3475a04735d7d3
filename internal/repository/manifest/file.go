package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Repository defines persistence operations for the manifest.
type Repository interface {
	Load(ctx context.Context) (*Manifest, error)
	Save(ctx context.Context, m *Manifest) error
}

// FileRepository persists the manifest as YAML on disk.
type FileRepository struct {
	// path is the filesystem location of the manifest.
	path string
	// mu serializes access to the manifest file.
	mu sync.Mutex
}

// DefaultFileMode is used for manifests, which are meant to be shipped.
const DefaultFileMode os.FileMode = 0o644

// ErrNotFound is returned when the manifest file does not exist yet.
var ErrNotFound = errors.New("manifest not found")

// NewFileRepository creates a repository that reads and writes YAML at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the manifest location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads and validates the manifest.
func (r *FileRepository) Load(_ context.Context) (*Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err = yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if err = m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", r.path, err)
	}

	return &m, nil
}

// Save validates and writes the manifest.
func (r *FileRepository) Save(_ context.Context, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err = os.WriteFile(r.path, data, DefaultFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// LoadOrDefault returns the manifest from repo, or Default when it is absent.
func LoadOrDefault(ctx context.Context, repo Repository) (*Manifest, bool, error) {
	m, err := repo.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Default(), false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return m, true, nil
}
