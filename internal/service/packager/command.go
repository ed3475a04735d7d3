package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/domain/archive"
	"github.com/oshokin/offline-pip/internal/logger"
	"github.com/oshokin/offline-pip/internal/repository/manifest"
	"github.com/oshokin/offline-pip/internal/service/common"
	"github.com/oshokin/offline-pip/internal/version"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is the optional settings file.
	ConfigPath string
	// WorkDir replaces the current directory as the base of relative paths.
	WorkDir string
	// Scan appends archives found in the archive folder that the manifest does not list yet.
	Scan bool
}

// packager computes checksums for the archive folder and writes the manifest.
// It is unexported; callers use Run.
type packager struct {
	cfg        *config.Config
	archiveDir string
	repo       *manifest.FileRepository
	desc       *manifest.Manifest
}

var errUnlistedArchive = errors.New("archive folder entry is not a package archive")

// Run builds and saves the manifest, returning what was written.
func Run(ctx context.Context, opts *Options) (*manifest.Manifest, error) {
	ctx = logger.WithName(ctx, "offline-pip-packager")

	if opts == nil {
		opts = new(Options)
	}

	pkg, err := newPackager(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("initialize packager: %w", err)
	}

	if err = pkg.Run(ctx, opts.Scan); err != nil {
		return nil, fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return pkg.desc, nil
}

// newPackager loads settings and the existing manifest, if any.
func newPackager(ctx context.Context, opts *Options) (*packager, error) {
	workDir, err := common.ResolveWorkDir(opts.WorkDir)
	if err != nil {
		return nil, err
	}

	cfg, err := common.LoadConfig(workDir, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	archiveDir := config.Resolve(workDir, cfg.ArchiveFolder)
	repo := manifest.NewFileRepository(filepath.Join(archiveDir, cfg.ManifestFile))

	desc, found, err := manifest.LoadOrDefault(ctx, repo)
	if err != nil {
		return nil, err
	}

	if found {
		logger.InfoKV(ctx, "Refreshing existing manifest", "path", repo.Path())
	}

	return &packager{
		cfg:        cfg,
		archiveDir: archiveDir,
		repo:       repo,
		desc:       desc,
	}, nil
}

// Run fills checksums and writes the manifest to disk.
func (p *packager) Run(ctx context.Context, scan bool) error {
	logger.Info(ctx, "Preparing package manifest")

	if scan {
		if err := p.appendUnlisted(ctx); err != nil {
			return err
		}
	}

	if err := p.fillChecksums(); err != nil {
		return err
	}

	p.desc.Version = version.Short()
	if p.desc.Installer == "" {
		p.desc.Installer = archive.DefaultInstaller
	}

	if err := p.checksumInstaller(ctx); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Saving package manifest", "path", p.repo.Path())

	if err := p.repo.Save(ctx, p.desc); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

// fillChecksums recomputes the checksum of every listed archive.
func (p *packager) fillChecksums() error {
	for i, entry := range p.desc.Packages {
		path, err := manifest.ResolvePath(p.archiveDir, entry.File)
		if err != nil {
			return err
		}

		if _, err = os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", entry.File, os.ErrNotExist)
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", entry.File, err)
		}

		checksum, err := manifest.EncodedFileChecksum(path)
		if err != nil {
			return err
		}

		p.desc.Packages[i].Checksum = checksum
	}

	return nil
}

// appendUnlisted adds archives lying in the archive folder in name order.
func (p *packager) appendUnlisted(ctx context.Context) error {
	entries, err := os.ReadDir(p.archiveDir)
	if err != nil {
		return fmt.Errorf("read archive folder: %w", err)
	}

	listed := make(map[string]struct{}, len(p.desc.Packages))
	for _, e := range p.desc.Packages {
		listed[filepath.Clean(filepath.FromSlash(e.File))] = struct{}{}
	}

	var found []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == p.desc.Installer || name == archive.DefaultInstaller {
			continue
		}

		if _, ok := listed[name]; ok {
			continue
		}

		if _, parseErr := archive.Parse(name); parseErr != nil {
			logger.DebugKV(ctx, "Ignoring file", "file", name, "reason", errUnlistedArchive)
			continue
		}

		found = append(found, name)
	}

	sort.Strings(found)

	for _, name := range found {
		logger.InfoKV(ctx, "Adding archive to the manifest", "file", name)
		p.desc.Packages = append(p.desc.Packages, manifest.Entry{File: name})
	}

	return nil
}

// checksumInstaller records the pip wheel checksum, warning when the wheel
// is not next to the archives.
func (p *packager) checksumInstaller(ctx context.Context) error {
	path, err := manifest.ResolvePath(p.archiveDir, p.desc.Installer)
	if err != nil {
		return err
	}

	if _, err = os.Stat(path); err != nil {
		logger.WarnKV(ctx, "The bundled installer was not found, installs will fail without it",
			"installer", p.desc.Installer)

		p.desc.InstallerChecksum = ""

		return nil
	}

	checksum, err := manifest.EncodedFileChecksum(path)
	if err != nil {
		return err
	}

	p.desc.InstallerChecksum = checksum

	return nil
}

// printNextSteps logs human-readable guidance for shipping the archive folder.
func (p *packager) printNextSteps(ctx context.Context) {
	files := make([]string, 0, len(p.desc.Packages)+2)
	for _, e := range p.desc.Packages {
		files = append(files, e.File)
	}

	files = append(files, p.desc.Installer, p.cfg.ManifestFile)

	var builder strings.Builder

	builder.WriteString("Copy the following files to the archive folder ")
	builder.WriteString(p.cfg.ArchiveFolder)
	builder.WriteString(" on the target computer:\n")
	builder.WriteString(strings.Join(files, ",\n"))

	if p.cfg.UpdateFolder != "" {
		builder.WriteString("\n\nOr upload them to ")
		builder.WriteString(p.cfg.UpdateFolder)
		builder.WriteString(" and run: offline-pip fetch")
	}

	builder.WriteString("\n\nThen run: offline-pip")

	logger.Info(ctx, builder.String())
}
