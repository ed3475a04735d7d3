//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestMarker_AcquireRelease writes the actor into the marker and removes it on release.
func TestMarker_AcquireRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMarker(t.TempDir(), time.Minute)
	actor := &Actor{Hostname: "host", Username: "o.shokin", PID: 42}

	require.NoError(t, m.Acquire(ctx, actor))

	contents, err := os.ReadFile(m.Path())
	require.NoError(t, err)

	var stored Actor
	require.NoError(t, yaml.Unmarshal(contents, &stored))
	require.Equal(t, *actor, stored)

	require.NoError(t, m.Touch())

	m.Release(ctx)

	_, err = os.Stat(m.Path())
	require.ErrorIs(t, err, os.ErrNotExist)

	// Releasing twice is harmless.
	m.Release(ctx)
}

// TestMarker_FreshMarkerBlocks rejects a second run while the first is active.
func TestMarker_FreshMarkerBlocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	first := NewMarker(dir, time.Minute)
	require.NoError(t, first.Acquire(ctx, &Actor{Hostname: "build-01", Username: "o.shokin"}))

	second := NewMarker(dir, time.Minute)
	err := second.Acquire(ctx, nil)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "started by o.shokin@build-01")
}

// TestMarker_StaleMarkerRecovered terminates the stale owner and takes over.
func TestMarker_StaleMarkerRecovered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMarker(t.TempDir(), time.Minute)

	require.NoError(t, os.WriteFile(m.Path(), nil, markerFileMode))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(m.Path(), old, old))

	var terminated []string

	m.terminate = func(name string) error {
		terminated = append(terminated, name)
		return nil
	}

	require.NoError(t, m.Acquire(ctx, nil))
	require.Equal(t, []string{ExecutableName()}, terminated)

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
}
