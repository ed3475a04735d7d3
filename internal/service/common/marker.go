//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/offline-pip/internal/logger"
)

const (
	// MarkerFilename marks that an offline-pip run is in progress in a work dir.
	MarkerFilename = ".offline-pip.marker"

	// baseExecutable is the binary name; ExecutableName appends .exe on Windows.
	baseExecutable = "offline-pip"

	markerFileMode os.FileMode = 0o600

	// MarkerGrace is added to the per-request timeout to get a marker lifetime.
	MarkerGrace = time.Minute
)

// ErrAlreadyRunning is returned when a fresh marker belongs to another run.
var ErrAlreadyRunning = errors.New("another offline-pip run is in progress")

// Marker guards a work dir against parallel runs. A marker older than its
// lifetime is treated as left behind by a hung or killed run.
type Marker struct {
	path     string
	lifetime time.Duration
	// terminate is swapped in tests.
	terminate func(name string) error
}

// NewMarker creates a marker at dir/MarkerFilename.
func NewMarker(dir string, lifetime time.Duration) *Marker {
	return &Marker{
		path:      filepath.Join(dir, MarkerFilename),
		lifetime:  lifetime,
		terminate: terminateProcessesByName,
	}
}

// Path returns the marker location.
func (m *Marker) Path() string {
	return m.path
}

// Acquire creates the marker, recovering from a stale one first.
func (m *Marker) Acquire(ctx context.Context, actor *Actor) error {
	logger.Debug(ctx, "Checking for the presence of a run marker")

	fileInfo, err := os.Stat(m.path)

	switch {
	case err == nil:
		if time.Since(fileInfo.ModTime()) <= m.lifetime {
			if owner := m.owner(); owner != nil {
				return fmt.Errorf("%s, started by %s: %w", m.path, owner, ErrAlreadyRunning)
			}

			return fmt.Errorf("%s: %w", m.path, ErrAlreadyRunning)
		}

		logger.WarnKV(ctx, "The run marker is too old, attempting cleanup", "path", m.path)

		if err = m.terminate(ExecutableName()); err != nil {
			return fmt.Errorf("terminate stale run: %w", err)
		}

		if err = os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale marker: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		logger.Debug(ctx, "Run marker not found, continuing")
	default:
		return fmt.Errorf("stat marker: %w", err)
	}

	return m.create(actor)
}

// create writes the marker exclusively so two racing runs cannot both win.
func (m *Marker) create(actor *Actor) error {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, markerFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", m.path, ErrAlreadyRunning)
		}

		return fmt.Errorf("create marker: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	if actor == nil {
		return nil
	}

	if err = yaml.NewEncoder(f).Encode(actor); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	return nil
}

// owner reads the actor recorded in the marker, nil when there is none.
func (m *Marker) owner() *Actor {
	contents, err := os.ReadFile(m.path)
	if err != nil || len(contents) == 0 {
		return nil
	}

	var actor Actor
	if err = yaml.Unmarshal(contents, &actor); err != nil || actor.Username == "" {
		return nil
	}

	return &actor
}

// Touch refreshes the marker so long runs do not look stale.
func (m *Marker) Touch() error {
	now := time.Now()

	return os.Chtimes(m.path, now, now)
}

// Release removes the marker.
func (m *Marker) Release(ctx context.Context) {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove the run marker", "path", m.path, "error", err)
	}
}

// ExecutableName returns the platform file name of the offline-pip binary.
func ExecutableName() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return baseExecutable + ".exe"
	}

	return baseExecutable
}

// terminateProcessesByName kills every other process with the given executable name.
func terminateProcessesByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
