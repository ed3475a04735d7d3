package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/logger"
	"github.com/oshokin/offline-pip/internal/version"
)

// execute runs a fresh command tree with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand()

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

// TestRoot_LogLevelFlagOverridesSettings applies --log-level over log_level, and log_level otherwise.
func TestRoot_LogLevelFlagOverridesSettings(t *testing.T) {
	previous := logger.Level()
	t.Cleanup(func() {
		logger.SetLevel(previous)
	})

	dir := t.TempDir()
	require.NoError(t, config.Save(filepath.Join(dir, config.DefaultConfigFilename), &config.Config{LogLevel: "error"}))

	_, err := execute(t, "-C", dir, "--log-level", "debug", "--dry-run")
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, logger.Level())

	_, err = execute(t, "-C", dir, "--dry-run")
	require.NoError(t, err)
	require.Equal(t, zapcore.ErrorLevel, logger.Level())

	_, err = execute(t, "-C", dir, "--log-level", "loud", "--dry-run")
	require.Error(t, err)
}

// TestRoot_WorkdirFlag resolves the target folder against -C.
func TestRoot_WorkdirFlag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	out, err := execute(t, "-C", dir, "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "Target: "+filepath.Join(dir, config.DefaultTargetFolder))

	_, err = os.Stat(filepath.Join(dir, config.DefaultTargetFolder))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRoot_DryRunOnly renders a single planned row for a filtered dry run.
func TestRoot_DryRunOnly(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "-C", t.TempDir(), "--dry-run", "--only", "numpy")
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "PLANNED"))
	require.Contains(t, out, "numpy-1.13.1-cp27-none-win32.whl")
	require.Contains(t, out, "1 planned (dry run)")
}

// TestRoot_ReturnsError surfaces failures so Execute exits non-zero.
func TestRoot_ReturnsError(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "-C", t.TempDir(), "--only", "scipy")
	require.Error(t, err)
	require.Contains(t, out, "no package matches the selection")
}

// TestVersion_IgnoresBrokenSettings prints the version even when the settings file is invalid.
func TestVersion_IgnoresBrokenSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultConfigFilename), []byte("timeout: [1, 2"), 0o600))

	out, err := execute(t, "-C", dir, "version", "--short")
	require.NoError(t, err)
	require.Equal(t, version.Short()+"\n", out)

	_, err = execute(t, "-C", dir, "--dry-run")
	require.Error(t, err)
}

// TestList_Only prints the header and the selected package.
func TestList_Only(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "-C", t.TempDir(), "list", "--only", "six")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "six-1.10.0-py2.py3-none-any.whl")
}
