package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind tells wheels apart from source distributions.
type Kind string

const (
	// KindWheel is a prebuilt .whl archive.
	KindWheel Kind = "wheel"
	// KindSource is a source distribution that pip builds on install.
	KindSource Kind = "sdist"
)

// Archive is a package file parsed from its name.
type Archive struct {
	// Filename is the base name of the archive file.
	Filename string
	// Name is the distribution name as written in the filename.
	Name string
	// RawVersion is the version segment of the filename.
	RawVersion string
	// Version is RawVersion parsed as semver, nil when it does not parse.
	Version *semver.Version
	// Kind is the archive format.
	Kind Kind
}

const (
	wheelExtension = ".whl"

	// minWheelParts is name, version, python tag, abi tag and platform tag.
	minWheelParts = 5
)

var (
	// sourceExtensions lists accepted sdist suffixes, longest first.
	//nolint:gochecknoglobals // Read-only lookup table.
	sourceExtensions = []string{".tar.gz", ".tar.bz2", ".tgz", ".zip"}

	//nolint:gochecknoglobals // Compiled once.
	nameSeparators = regexp.MustCompile(`[-_.]+`)

	// ErrUnsupportedArchive is returned for files that are neither wheels nor sdists.
	ErrUnsupportedArchive = errors.New("unsupported archive")
	// ErrMalformedFilename is returned when name or version cannot be extracted.
	ErrMalformedFilename = errors.New("malformed archive filename")
)

// Parse extracts the package name, version and kind from an archive filename.
// Directories in filename are ignored.
func Parse(filename string) (*Archive, error) {
	base := filepath.Base(filepath.ToSlash(filename))
	lower := strings.ToLower(base)

	if strings.HasSuffix(lower, wheelExtension) {
		return parseWheel(base)
	}

	for _, ext := range sourceExtensions {
		if strings.HasSuffix(lower, ext) {
			return parseSource(base, base[:len(base)-len(ext)])
		}
	}

	return nil, fmt.Errorf("%s: %w", base, ErrUnsupportedArchive)
}

// parseWheel handles name-version(-build)?-python-abi-platform.whl.
func parseWheel(base string) (*Archive, error) {
	stem := base[:len(base)-len(wheelExtension)]

	parts := strings.Split(stem, "-")
	if len(parts) < minWheelParts || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%s: %w", base, ErrMalformedFilename)
	}

	return newArchive(base, parts[0], parts[1], KindWheel), nil
}

// parseSource handles name-version.ext where the name may itself contain dashes.
func parseSource(base, stem string) (*Archive, error) {
	idx := strings.LastIndex(stem, "-")
	if idx <= 0 || idx == len(stem)-1 {
		return nil, fmt.Errorf("%s: %w", base, ErrMalformedFilename)
	}

	return newArchive(base, stem[:idx], stem[idx+1:], KindSource), nil
}

func newArchive(filename, name, rawVersion string, kind Kind) *Archive {
	a := &Archive{
		Filename:   filename,
		Name:       name,
		RawVersion: rawVersion,
		Kind:       kind,
	}

	// PEP 440 versions such as 1.0rc1 are not semver; keep the raw string only.
	if v, err := semver.NewVersion(rawVersion); err == nil {
		a.Version = v
	}

	return a
}

// NormalizedName returns the canonical package name.
func (a *Archive) NormalizedName() string {
	return NormalizeName(a.Name)
}

// String renders name==version.
func (a *Archive) String() string {
	return a.Name + "==" + a.RawVersion
}

// NormalizeName lowercases name and collapses runs of "-", "_" and "." into "-",
// so python_dateutil and python-dateutil compare equal.
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(name), "-")
}
