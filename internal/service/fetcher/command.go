package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/logger"
	"github.com/oshokin/offline-pip/internal/repository/manifest"
	"github.com/oshokin/offline-pip/internal/service/common"
)

var (
	errNoUpdateFolder = errors.New("update_folder is not set in the settings")
	errNoChecksum     = errors.New("remote manifest has no checksum for archive")
	errBadHTTPStatus  = errors.New("unexpected http status")
)

// archiveFileMode is applied to fetched archives.
const archiveFileMode os.FileMode = 0o644

// Options are inputs accepted by the fetcher entry point.
type Options struct {
	// ConfigPath is the optional settings file; it must define update_folder.
	ConfigPath string
	// WorkDir replaces the current directory as the base of relative paths.
	WorkDir string
	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// Result lists what the fetch changed.
type Result struct {
	// Downloaded are archives written to the archive folder.
	Downloaded []string
	// UpToDate are archives whose local checksum already matched.
	UpToDate []string
}

// fetcher holds the state of one fetch run.
// It is unexported; callers use Run.
type fetcher struct {
	cfg                *config.Config
	archiveDir         string
	client             *http.Client
	marker             *common.Marker
	description        *manifest.Manifest
	temporaryDirectory string
	downloadedFiles    map[string]string // Manifest file -> local temp path.
}

// Run seeds the archive folder from the update folder.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "offline-pip-fetcher")

	if opts == nil {
		opts = new(Options)
	}

	workDir, err := common.ResolveWorkDir(opts.WorkDir)
	if err != nil {
		return nil, err
	}

	cfg, err := common.LoadConfig(workDir, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if cfg.UpdateFolder == "" {
		return nil, errNoUpdateFolder
	}

	f := &fetcher{
		cfg:             cfg,
		archiveDir:      config.Resolve(workDir, cfg.ArchiveFolder),
		client:          opts.HTTPClient,
		marker:          common.NewMarker(workDir, cfg.Timeout+common.MarkerGrace),
		downloadedFiles: make(map[string]string),
	}

	if f.client == nil {
		f.client = http.DefaultClient
	}

	if err = f.marker.Acquire(ctx, nil); err != nil {
		return nil, err
	}

	defer f.marker.Release(ctx)
	defer f.cleanup(ctx)

	result, err := f.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Fetch failed", "error", err)
		return nil, err
	}

	logger.InfoKV(ctx, "Fetch completed",
		"downloaded", len(result.Downloaded), "up_to_date", len(result.UpToDate))

	return result, nil
}

// Run downloads the manifest, then every archive that differs locally.
func (f *fetcher) Run(ctx context.Context) (*Result, error) {
	logger.InfoKV(ctx, "Downloading the package manifest", "update_folder", f.cfg.UpdateFolder)

	if err := f.fillDescription(ctx); err != nil {
		return nil, fmt.Errorf("download package manifest: %w", err)
	}

	if err := os.MkdirAll(f.archiveDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create archive folder: %w", err)
	}

	result := new(Result)

	outdated, err := f.collectOutdated(ctx, result)
	if err != nil {
		return nil, err
	}

	if err = f.downloadFiles(ctx, outdated); err != nil {
		return nil, fmt.Errorf("download archives: %w", err)
	}

	if err = f.applyFiles(ctx, outdated); err != nil {
		return nil, fmt.Errorf("apply archives: %w", err)
	}

	result.Downloaded = outdated

	if err = f.fetchInstaller(ctx); err != nil {
		return nil, fmt.Errorf("download installer: %w", err)
	}

	repo := manifest.NewFileRepository(filepath.Join(f.archiveDir, f.cfg.ManifestFile))
	if err = repo.Save(ctx, f.description); err != nil {
		return nil, err
	}

	return result, nil
}

// fillDescription downloads and validates the remote manifest.
func (f *fetcher) fillDescription(ctx context.Context) error {
	data, err := f.getFile(ctx, f.cfg.ManifestFile)
	if err != nil {
		return err
	}

	var desc manifest.Manifest
	if err = yaml.Unmarshal(data, &desc); err != nil {
		return err
	}

	if err = desc.Validate(); err != nil {
		return err
	}

	if desc.Installer != "" && desc.InstallerChecksum == "" {
		return fmt.Errorf("%s: %w", desc.Installer, errNoChecksum)
	}

	f.description = &desc

	return nil
}

// collectOutdated returns manifest files whose local copy is missing or differs.
func (f *fetcher) collectOutdated(ctx context.Context, result *Result) ([]string, error) {
	var outdated []string

	for _, entry := range f.description.Packages {
		if entry.Checksum == "" {
			return nil, fmt.Errorf("%s: %w", entry.File, errNoChecksum)
		}

		localPath, err := manifest.ResolvePath(f.archiveDir, entry.File)
		if err != nil {
			return nil, err
		}

		err = manifest.VerifyFile(localPath, entry.Checksum)

		switch {
		case err == nil:
			result.UpToDate = append(result.UpToDate, entry.File)
		case errors.Is(err, os.ErrNotExist), errors.Is(err, manifest.ErrChecksumMismatch):
			logger.DebugKV(ctx, "Archive needs download", "file", entry.File, "reason", err)
			outdated = append(outdated, entry.File)
		default:
			return nil, err
		}
	}

	return outdated, nil
}

// downloadFiles stores the outdated archives in a temporary directory.
func (f *fetcher) downloadFiles(ctx context.Context, files []string) error {
	if len(files) == 0 {
		logger.Info(ctx, "All archives are up to date")
		return nil
	}

	temporaryDirectory, err := os.MkdirTemp("", "offline-pip-fetch-")
	if err != nil {
		return err
	}

	f.temporaryDirectory = temporaryDirectory

	for idx, file := range files {
		f.touchMarker(ctx)

		var data []byte

		data, err = f.getFile(ctx, file)
		if err != nil {
			return err
		}

		// Entries in different subfolders may share a base name.
		outputFileName := filepath.Join(temporaryDirectory,
			fmt.Sprintf("%03d-%s", idx, filepath.Base(filepath.FromSlash(file))))
		if err = os.WriteFile(outputFileName, data, archiveFileMode); err != nil {
			return err
		}

		f.downloadedFiles[file] = outputFileName
		logger.InfoKV(ctx, "Downloaded archive", "file", file)
	}

	return nil
}

// applyFiles moves downloaded archives into place, verifying checksums on the way.
func (f *fetcher) applyFiles(ctx context.Context, files []string) error {
	for _, file := range files {
		entry, _ := f.description.Lookup(file)

		checksum, err := manifest.DecodeChecksum(entry.Checksum)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(f.downloadedFiles[file])
		if err != nil {
			return err
		}

		targetPath, err := manifest.ResolvePath(f.archiveDir, file)
		if err != nil {
			return err
		}

		logger.DebugKV(ctx, "Applying archive", "file", file)

		if err = applyFile(targetPath, data, checksum); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	return nil
}

// fetchInstaller downloads the bundled pip wheel when the local one is missing or differs.
func (f *fetcher) fetchInstaller(ctx context.Context) error {
	if f.description.Installer == "" {
		return nil
	}

	targetPath, err := manifest.ResolvePath(f.archiveDir, f.description.Installer)
	if err != nil {
		return err
	}

	err = manifest.VerifyFile(targetPath, f.description.InstallerChecksum)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, manifest.ErrChecksumMismatch):
		logger.DebugKV(ctx, "Installer needs download", "file", f.description.Installer, "reason", err)
	default:
		return err
	}

	checksum, err := manifest.DecodeChecksum(f.description.InstallerChecksum)
	if err != nil {
		return err
	}

	f.touchMarker(ctx)

	data, err := f.getFile(ctx, f.description.Installer)
	if err != nil {
		return err
	}

	if err = applyFile(targetPath, data, checksum); err != nil {
		return fmt.Errorf("%s: %w", f.description.Installer, err)
	}

	logger.InfoKV(ctx, "Downloaded installer", "file", f.description.Installer)

	return nil
}

// touchMarker keeps the run marker fresh during long downloads.
func (f *fetcher) touchMarker(ctx context.Context) {
	if err := f.marker.Touch(); err != nil {
		logger.WarnKV(ctx, "Unable to refresh the run marker", "error", err)
	}
}

// applyFile replaces targetPath atomically after checking data against checksum.
func applyFile(targetPath string, data, checksum []byte) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), os.ModePerm); err != nil {
		return err
	}

	// go-update renames the current file away first, so it must exist.
	placeholder := false

	if _, err := os.Stat(targetPath); errors.Is(err, os.ErrNotExist) {
		file, createErr := os.Create(targetPath)
		if createErr != nil {
			return createErr
		}

		_ = file.Close()
		placeholder = true
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: archiveFileMode,
		Checksum:   checksum,
		Hash:       manifest.ChecksumFunction,
	}

	err := goupdate.Apply(bytes.NewReader(data), options)
	if err != nil && placeholder {
		_ = os.Remove(targetPath)
	}

	return err
}

// getFile fetches a file from the update folder.
func (f *fetcher) getFile(ctx context.Context, fileName string) ([]byte, error) {
	serverURL, err := url.Parse(f.cfg.UpdateFolder)
	if err != nil {
		return nil, err
	}

	// path.Join normalizes duplicate slashes when composing the URL path.
	serverURL.Path = path.Join(serverURL.Path, filepath.ToSlash(fileName))
	finalURL := serverURL.String()

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return io.ReadAll(response.Body)
}

// cleanup removes temporary artifacts.
func (f *fetcher) cleanup(ctx context.Context) {
	if f.temporaryDirectory != "" {
		_ = os.RemoveAll(f.temporaryDirectory)
	}

	logger.Debug(ctx, "The fetcher has been stopped")
}
