package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/offline-pip/internal/logger"
)

// Config holds the installer settings. Every field is optional: the zero
// value, after Validate, installs the pinned packages into local_packages.
type Config struct {
	// TargetFolder is where packages are installed, relative to the work dir.
	TargetFolder string `yaml:"target_folder"`
	// ArchiveFolder holds the cached wheels and tarballs, relative to the work dir.
	ArchiveFolder string `yaml:"archive_folder"`
	// ManifestFile names the ordered package manifest inside ArchiveFolder.
	ManifestFile string `yaml:"manifest_file"`
	// Python is the interpreter used to run pip. Empty means look it up on PATH.
	Python string `yaml:"python"`
	// PipPath overrides the pip entry point. Empty means PipEntryPoint inside
	// the manifest's installer wheel in ArchiveFolder.
	PipPath string `yaml:"pip_path,omitempty"`
	// Timeout bounds a single installer invocation.
	Timeout time.Duration `yaml:"timeout"`
	// Strict stops the run at the first failed package.
	Strict bool `yaml:"strict"`
	// UpdateFolder is the URL archives are fetched from by the fetch command.
	UpdateFolder string `yaml:"update_folder,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "offline-pip-settings.yaml"

	// DefaultManifestFilename is the default filename of the package manifest.
	DefaultManifestFilename = "offline-pip-manifest.yaml"

	// DefaultTargetFolder is the folder packages are installed into.
	DefaultTargetFolder = "local_packages"

	// DefaultArchiveFolder means archives sit next to the tool.
	DefaultArchiveFolder = "."

	// PipEntryPoint is the pip package inside the installer wheel; Python runs it from the zip.
	PipEntryPoint = "pip"

	// DefaultTimeout bounds one pip invocation; building sdists can be slow.
	DefaultTimeout = 10 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// ErrNotFound is returned by Load when the settings file does not exist.
	ErrNotFound = errors.New("settings file not found")

	errConfigIsNotSet    = errors.New("configuration is not set")
	errNegativeTimeout   = errors.New("timeout must not be negative")
	errUnknownLogLevel   = errors.New("unknown log level")
	errUnsupportedScheme = errors.New("update folder must be an http or https URL")
)

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // The zero config always validates.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file is absent.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks field formats.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.TargetFolder == "" {
		cfg.TargetFolder = DefaultTargetFolder
	}

	if cfg.ArchiveFolder == "" {
		cfg.ArchiveFolder = DefaultArchiveFolder
	}

	if cfg.ManifestFile == "" {
		cfg.ManifestFile = DefaultManifestFilename
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("%s: %w", cfg.Timeout, errNegativeTimeout)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%q: %w", cfg.LogLevel, errUnknownLogLevel)
	}

	if cfg.UpdateFolder == "" {
		return nil
	}

	u, err := url.ParseRequestURI(cfg.UpdateFolder)
	if err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: %w", cfg.UpdateFolder, errUnsupportedScheme)
	}

	return nil
}

// Resolve returns path as is when absolute, otherwise joined with base.
func Resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(base, path)
}
