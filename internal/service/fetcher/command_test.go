package fetcher

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/domain/archive"
	"github.com/oshokin/offline-pip/internal/repository/manifest"
	"github.com/oshokin/offline-pip/internal/service/common"
)

func checksumOf(body []byte) string {
	sum := sha512.Sum512(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// serveUpdateFolder publishes a manifest and the given files under /wheels/.
func serveUpdateFolder(t *testing.T, m *manifest.Manifest, files map[string][]byte) *httptest.Server {
	t.Helper()

	manifestBytes, err := yaml.Marshal(m)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/wheels/"+config.DefaultManifestFilename, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(manifestBytes)
	})

	for name, body := range files {
		mux.HandleFunc("/wheels/"+name, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(body)
		})
	}

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func saveSettings(t *testing.T, dir, updateFolder string) {
	t.Helper()

	require.NoError(t, config.Save(filepath.Join(dir, config.DefaultConfigFilename), &config.Config{
		ArchiveFolder: "wheels",
		UpdateFolder:  updateFolder,
	}))
}

// TestRun_DownloadsOnlyOutdated fetches missing archives and keeps matching ones.
func TestRun_DownloadsOnlyOutdated(t *testing.T) {
	t.Parallel()

	six := []byte("six wheel")
	jdcal := []byte("jdcal sources")
	pip := []byte("pip wheel")

	m := &manifest.Manifest{
		Version:           "1.0.0",
		Installer:         archive.DefaultInstaller,
		InstallerChecksum: checksumOf(pip),
		Packages: []manifest.Entry{
			{File: "six-1.10.0-py2.py3-none-any.whl", Checksum: checksumOf(six)},
			{File: "jdcal-1.3.tar.gz", Checksum: checksumOf(jdcal)},
		},
	}

	ts := serveUpdateFolder(t, m, map[string][]byte{
		"six-1.10.0-py2.py3-none-any.whl": six,
		"jdcal-1.3.tar.gz":                jdcal,
		archive.DefaultInstaller:          pip,
	})

	dir := t.TempDir()
	wheels := filepath.Join(dir, "wheels")
	saveSettings(t, dir, ts.URL+"/wheels/")

	require.NoError(t, os.MkdirAll(wheels, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wheels, "six-1.10.0-py2.py3-none-any.whl"), six, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(wheels, "jdcal-1.3.tar.gz"), []byte("stale"), 0o600))

	result, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.NoError(t, err)
	require.Equal(t, []string{"jdcal-1.3.tar.gz"}, result.Downloaded)
	require.Equal(t, []string{"six-1.10.0-py2.py3-none-any.whl"}, result.UpToDate)

	got, err := os.ReadFile(filepath.Join(wheels, "jdcal-1.3.tar.gz"))
	require.NoError(t, err)
	require.Equal(t, jdcal, got)

	got, err = os.ReadFile(filepath.Join(wheels, archive.DefaultInstaller))
	require.NoError(t, err)
	require.Equal(t, pip, got)

	saved, err := manifest.NewFileRepository(filepath.Join(wheels, config.DefaultManifestFilename)).
		Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, m, saved)

	_, err = os.Stat(filepath.Join(dir, common.MarkerFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_RejectsCorruptDownload leaves no archive behind when the checksum fails.
func TestRun_RejectsCorruptDownload(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		Installer:         archive.DefaultInstaller,
		InstallerChecksum: checksumOf([]byte("pip wheel")),
		Packages: []manifest.Entry{
			{File: "pytz-2017.2-py2.py3-none-any.whl", Checksum: checksumOf([]byte("pytz"))},
		},
	}

	ts := serveUpdateFolder(t, m, map[string][]byte{
		"pytz-2017.2-py2.py3-none-any.whl": []byte("corrupted in transit"),
	})

	dir := t.TempDir()
	saveSettings(t, dir, ts.URL+"/wheels")

	_, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, "wheels", "pytz-2017.2-py2.py3-none-any.whl"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_RequiresChecksums refuses manifests that cannot be verified.
func TestRun_RequiresChecksums(t *testing.T) {
	t.Parallel()

	ts := serveUpdateFolder(t, manifest.Default(), nil)

	dir := t.TempDir()
	saveSettings(t, dir, ts.URL+"/wheels")

	_, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.ErrorIs(t, err, errNoChecksum)
}

// TestRun_MissingManifest reports the HTTP status.
func TestRun_MissingManifest(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	saveSettings(t, dir, ts.URL+"/wheels")

	_, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.ErrorIs(t, err, errBadHTTPStatus)
}

// TestRun_RequiresUpdateFolder fails fast without network settings.
func TestRun_RequiresUpdateFolder(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), &Options{WorkDir: t.TempDir()})
	require.ErrorIs(t, err, errNoUpdateFolder)
}

// TestRun_RejectsTamperedInstaller keeps a pip wheel that fails its checksum off the disk.
func TestRun_RejectsTamperedInstaller(t *testing.T) {
	t.Parallel()

	six := []byte("six wheel")

	m := &manifest.Manifest{
		Installer:         archive.DefaultInstaller,
		InstallerChecksum: checksumOf([]byte("pip wheel")),
		Packages: []manifest.Entry{
			{File: "six-1.10.0-py2.py3-none-any.whl", Checksum: checksumOf(six)},
		},
	}

	ts := serveUpdateFolder(t, m, map[string][]byte{
		"six-1.10.0-py2.py3-none-any.whl": six,
		archive.DefaultInstaller:          []byte("pip wheel with a payload"),
	})

	dir := t.TempDir()
	wheels := filepath.Join(dir, "wheels")
	saveSettings(t, dir, ts.URL+"/wheels")

	_, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(wheels, archive.DefaultInstaller))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(wheels, config.DefaultManifestFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_RequiresInstallerChecksum refuses a manifest whose pip wheel cannot be verified.
func TestRun_RequiresInstallerChecksum(t *testing.T) {
	t.Parallel()

	six := []byte("six wheel")

	ts := serveUpdateFolder(t, &manifest.Manifest{
		Installer: archive.DefaultInstaller,
		Packages: []manifest.Entry{
			{File: "six-1.10.0-py2.py3-none-any.whl", Checksum: checksumOf(six)},
		},
	}, map[string][]byte{
		"six-1.10.0-py2.py3-none-any.whl": six,
		archive.DefaultInstaller:          []byte("pip wheel"),
	})

	dir := t.TempDir()
	saveSettings(t, dir, ts.URL+"/wheels")

	_, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.ErrorIs(t, err, errNoChecksum)

	_, err = os.Stat(filepath.Join(dir, "wheels", "six-1.10.0-py2.py3-none-any.whl"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_SameBaseNameInSubfolders downloads each entry to its own place.
func TestRun_SameBaseNameInSubfolders(t *testing.T) {
	t.Parallel()

	py2 := []byte("six for py2")
	py3 := []byte("six for py3")
	pip := []byte("pip wheel")

	m := &manifest.Manifest{
		Installer:         archive.DefaultInstaller,
		InstallerChecksum: checksumOf(pip),
		Packages: []manifest.Entry{
			{File: "py2/six-1.10.0-py2.py3-none-any.whl", Checksum: checksumOf(py2)},
			{File: "py3/six-1.10.0-py2.py3-none-any.whl", Checksum: checksumOf(py3)},
		},
	}

	ts := serveUpdateFolder(t, m, map[string][]byte{
		"py2/six-1.10.0-py2.py3-none-any.whl": py2,
		"py3/six-1.10.0-py2.py3-none-any.whl": py3,
		archive.DefaultInstaller:              pip,
	})

	dir := t.TempDir()
	wheels := filepath.Join(dir, "wheels")
	saveSettings(t, dir, ts.URL+"/wheels")

	result, err := Run(context.Background(), &Options{WorkDir: dir, HTTPClient: ts.Client()})
	require.NoError(t, err)
	require.Len(t, result.Downloaded, 2)

	got, err := os.ReadFile(filepath.Join(wheels, "py2", "six-1.10.0-py2.py3-none-any.whl"))
	require.NoError(t, err)
	require.Equal(t, py2, got)

	got, err = os.ReadFile(filepath.Join(wheels, "py3", "six-1.10.0-py2.py3-none-any.whl"))
	require.NoError(t, err)
	require.Equal(t, py3, got)
}

// TestRun_MarkerWithinGraceBlocks treats a marker just past the timeout as a live run.
func TestRun_MarkerWithinGraceBlocks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saveSettings(t, dir, "http://127.0.0.1:1/wheels")

	marker := filepath.Join(dir, common.MarkerFilename)
	require.NoError(t, os.WriteFile(marker, nil, 0o600))

	age := time.Now().Add(-config.DefaultTimeout - common.MarkerGrace/2)
	require.NoError(t, os.Chtimes(marker, age, age))

	_, err := Run(context.Background(), &Options{WorkDir: dir})
	require.ErrorIs(t, err, common.ErrAlreadyRunning)
}
