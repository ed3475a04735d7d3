package manifest

import (
	"errors"
	"fmt"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/oshokin/offline-pip/internal/domain/archive"
	"github.com/oshokin/offline-pip/internal/version"
)

// Entry is one archive of the manifest.
type Entry struct {
	// File is the archive path relative to the archive folder.
	File string `yaml:"file"`
	// Checksum is the base64-encoded SHA-512 of the file, optional.
	Checksum string `yaml:"checksum,omitempty"`
}

// Manifest lists the archives to install. Packages are installed in slice order.
type Manifest struct {
	// Version is the offline-pip version that wrote the manifest.
	Version string `yaml:"version"`
	// Installer is the bundled pip wheel filename.
	Installer string `yaml:"installer"`
	// InstallerChecksum is the base64-encoded SHA-512 of the installer wheel.
	InstallerChecksum string `yaml:"installer_checksum,omitempty"`
	// Packages is the ordered archive list.
	Packages []Entry `yaml:"packages"`
}

var (
	errNoPackages     = errors.New("manifest lists no packages")
	errDuplicateFile  = errors.New("archive listed more than once")
	errNonLocalPath   = errors.New("archive path must stay inside the archive folder")
	errEmptyFilename  = errors.New("archive file name is empty")
	errManifestNotSet = errors.New("manifest is not set")
)

// Default builds a manifest from the pinned archive list without checksums.
func Default() *Manifest {
	files := archive.DefaultFilenames()

	m := &Manifest{
		Version:   version.Short(),
		Installer: archive.DefaultInstaller,
		Packages:  make([]Entry, 0, len(files)),
	}

	for _, f := range files {
		m.Packages = append(m.Packages, Entry{File: f})
	}

	return m
}

// Validate checks that the manifest can be installed as is.
func (m *Manifest) Validate() error {
	if m == nil {
		return errManifestNotSet
	}

	if len(m.Packages) == 0 {
		return errNoPackages
	}

	seen := make(map[string]struct{}, len(m.Packages))

	for _, e := range m.Packages {
		if e.File == "" {
			return errEmptyFilename
		}

		if !filepath.IsLocal(filepath.FromSlash(e.File)) {
			return fmt.Errorf("%s: %w", e.File, errNonLocalPath)
		}

		if _, err := archive.Parse(e.File); err != nil {
			return err
		}

		key := filepath.Clean(filepath.FromSlash(e.File))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s: %w", e.File, errDuplicateFile)
		}

		seen[key] = struct{}{}
	}

	return nil
}

// Archives parses every entry in manifest order.
func (m *Manifest) Archives() ([]*archive.Archive, error) {
	result := make([]*archive.Archive, 0, len(m.Packages))

	for _, e := range m.Packages {
		a, err := archive.Parse(e.File)
		if err != nil {
			return nil, err
		}

		result = append(result, a)
	}

	return result, nil
}

// Lookup returns the entry for file, if present.
func (m *Manifest) Lookup(file string) (Entry, bool) {
	for _, e := range m.Packages {
		if e.File == file {
			return e, true
		}
	}

	return Entry{}, false
}

// ResolvePath joins file to folder, refusing to follow it outside folder
// through ".." or symlinks.
func ResolvePath(folder, file string) (string, error) {
	p, err := securejoin.SecureJoin(folder, filepath.FromSlash(file))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", file, err)
	}

	return p, nil
}
