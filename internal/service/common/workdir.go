//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/offline-pip/internal/config"
)

// ResolveWorkDir returns dir as an absolute path, or the current directory when dir is empty.
func ResolveWorkDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}

		return wd, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}

	return abs, nil
}

// LoadConfig reads the settings file relative to workDir, falling back to defaults.
func LoadConfig(workDir, configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}

	return config.LoadOrDefault(config.Resolve(workDir, configPath))
}
