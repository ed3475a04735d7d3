package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/domain/archive"
	"github.com/oshokin/offline-pip/internal/logger"
	"github.com/oshokin/offline-pip/internal/repository/manifest"
	"github.com/oshokin/offline-pip/internal/service/common"
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// ConfigPath is the optional settings file; absent means defaults.
	ConfigPath string
	// WorkDir replaces the current directory as the base of every relative path.
	WorkDir string
	// Only restricts the run to packages matching these glob patterns.
	Only []string
	// Strict stops at the first failure; it is OR'ed with the setting.
	Strict bool
	// DryRun logs the plan without touching the disk or running pip.
	DryRun bool
	// Stdout and Stderr receive pip output.
	Stdout io.Writer
	Stderr io.Writer
	// Runner overrides the pip runner.
	Runner Runner
}

// step is one planned installer invocation.
type step struct {
	archive *archive.Archive
	entry   manifest.Entry
	path    string
}

// installer holds the state of one run.
// It is unexported; callers use Run.
type installer struct {
	cfg        *config.Config
	workDir    string
	archiveDir string
	targetDir  string
	steps      []step
	runner     Runner
	strict     bool
	dryRun     bool
	marker     *common.Marker
	// pipPath is the pip entry point handed to the interpreter.
	pipPath string
	// installerWheel is set when pip runs out of the manifest's wheel.
	installerWheel    string
	installerChecksum string
}

var (
	errNothingSelected    = errors.New("no package matches the selection")
	errTargetNotDirectory = errors.New("target path exists and is not a directory")
)

// Run installs every selected archive in manifest order and returns the run report.
// The report is returned even when some archives failed.
func Run(ctx context.Context, opts *Options) (*Report, error) {
	ctx = logger.WithName(ctx, "offline-pip")
	ctx = logger.WithKV(ctx, "run_id", uuid.NewString())

	inst, err := newInstaller(ctx, opts)
	if err != nil {
		return nil, err
	}

	if !inst.dryRun {
		actor, actorErr := common.DetectActor()
		if actorErr != nil {
			logger.WarnKV(ctx, "Unable to detect the current user", "error", actorErr)
		} else {
			ctx = logger.WithFields(ctx, "user", actor.Username, "host", actor.Hostname)
		}

		if err = inst.marker.Acquire(ctx, actor); err != nil {
			return nil, err
		}

		defer inst.marker.Release(ctx)
	}

	report, err := inst.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Installation finished with errors", "error", err)
		return report, err
	}

	logger.InfoKV(ctx, "Installation completed",
		"installed", report.Count(StatusInstalled), "target", report.TargetDir)

	return report, nil
}

// newInstaller loads settings and the manifest and builds the plan.
func newInstaller(ctx context.Context, opts *Options) (*installer, error) {
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

	inst := &installer{
		cfg:        cfg,
		workDir:    workDir,
		archiveDir: config.Resolve(workDir, cfg.ArchiveFolder),
		targetDir:  config.Resolve(workDir, cfg.TargetFolder),
		strict:     cfg.Strict || opts.Strict,
		dryRun:     opts.DryRun,
		marker:     common.NewMarker(workDir, cfg.Timeout+common.MarkerGrace),
	}

	if err = inst.plan(ctx, opts.Only); err != nil {
		return nil, err
	}

	switch {
	case opts.DryRun:
		inst.runner = dryRunner{}
	case opts.Runner != nil:
		inst.runner = opts.Runner
	default:
		inst.runner, err = NewPipRunner(cfg, workDir, inst.pipPath,
			writerOrDiscard(opts.Stdout), writerOrDiscard(opts.Stderr))
		if err != nil {
			return nil, err
		}
	}

	return inst, nil
}

// plan loads the manifest, locates pip and keeps the archives passing the filter.
func (i *installer) plan(ctx context.Context, only []string) error {
	repo := manifest.NewFileRepository(filepath.Join(i.archiveDir, i.cfg.ManifestFile))

	m, found, err := manifest.LoadOrDefault(ctx, repo)
	if err != nil {
		return err
	}

	if found {
		logger.InfoKV(ctx, "Using package manifest", "path", repo.Path())
	} else {
		logger.Info(ctx, "No package manifest found, using the built-in package list")
	}

	if err = i.locatePip(m); err != nil {
		return err
	}

	filter, err := archive.NewFilter(only...)
	if err != nil {
		return err
	}

	archives, err := m.Archives()
	if err != nil {
		return err
	}

	for idx, a := range archives {
		entry := m.Packages[idx]

		if !filter.Match(a) {
			logger.DebugKV(ctx, "Package filtered out", "package", a.Name)
			continue
		}

		path, resolveErr := manifest.ResolvePath(i.archiveDir, entry.File)
		if resolveErr != nil {
			return resolveErr
		}

		i.steps = append(i.steps, step{archive: a, entry: entry, path: path})
	}

	if len(i.steps) == 0 {
		return errNothingSelected
	}

	return nil
}

// locatePip resolves the pip entry point, inside the manifest's installer
// wheel unless pip_path overrides it.
func (i *installer) locatePip(m *manifest.Manifest) error {
	pipPath, err := ResolvePipPath(i.cfg, i.workDir, i.archiveDir, m.Installer)
	if err != nil {
		return err
	}

	i.pipPath = pipPath

	if i.cfg.PipPath == "" {
		i.installerWheel = filepath.Dir(pipPath)
		i.installerChecksum = m.InstallerChecksum
	}

	return nil
}

// verifyInstaller checks the installer wheel against the manifest checksum.
func (i *installer) verifyInstaller(ctx context.Context) error {
	if i.dryRun || i.installerWheel == "" || i.installerChecksum == "" {
		return nil
	}

	if err := manifest.VerifyFile(i.installerWheel, i.installerChecksum); err != nil {
		return fmt.Errorf("verify installer: %w", err)
	}

	logger.DebugKV(ctx, "Installer verified", "path", i.installerWheel)

	return nil
}

// Run prepares the target directory and installs every planned archive in order.
func (i *installer) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		TargetDir: i.targetDir,
		PipPath:   i.pipPath,
		DryRun:    i.dryRun,
		Results:   make([]Result, 0, len(i.steps)),
	}

	if err := i.verifyInstaller(ctx); err != nil {
		return report, err
	}

	created, err := i.prepareTarget(ctx)
	if err != nil {
		return report, err
	}

	report.TargetCreated = created

	var errs *multierror.Error

	for idx, s := range i.steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = multierror.Append(errs, ctxErr)
			report.Results = append(report.Results, skipped(i.steps[idx:])...)

			break
		}

		res := i.install(ctx, s)
		report.Results = append(report.Results, res)

		if res.Err == nil {
			continue
		}

		errs = multierror.Append(errs, res.Err)

		if i.strict {
			report.Results = append(report.Results, skipped(i.steps[idx+1:])...)
			break
		}
	}

	return report, errs.ErrorOrNil()
}

// install verifies and installs one archive.
func (i *installer) install(ctx context.Context, s step) Result {
	ctx = logger.WithKV(ctx, "package", s.archive.String())

	res := Result{
		Archive: s.entry.File,
		Path:    s.path,
	}

	if !i.dryRun {
		if err := i.marker.Touch(); err != nil {
			logger.WarnKV(ctx, "Unable to refresh the run marker", "error", err)
		}
	}

	if s.entry.Checksum != "" {
		if err := manifest.VerifyFile(s.path, s.entry.Checksum); err != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("verify %s: %w", s.entry.File, err)

			logger.ErrorKV(ctx, "Archive verification failed", "error", err)

			return res
		}
	}

	logger.Info(ctx, "Installing package")

	started := time.Now()
	err := i.runner.Install(ctx, i.targetDir, s.path)
	res.Duration = time.Since(started)

	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Err = err

		logger.ErrorKV(ctx, "Package installation failed", "error", err)
	case i.dryRun:
		res.Status = StatusPlanned
	default:
		res.Status = StatusInstalled

		logger.InfoKV(ctx, "Package installed", "duration", res.Duration)
	}

	return res
}

// prepareTarget creates the target directory if and only if it is absent.
func (i *installer) prepareTarget(ctx context.Context) (bool, error) {
	info, err := os.Stat(i.targetDir)

	switch {
	case err == nil:
		if !info.IsDir() {
			return false, fmt.Errorf("%s: %w", i.targetDir, errTargetNotDirectory)
		}

		logger.InfoKV(ctx, "Target directory exists", "path", i.targetDir)

		return false, nil
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat target directory: %w", err)
	case i.dryRun:
		logger.InfoKV(ctx, "Dry run, target directory would be created", "path", i.targetDir)
		return false, nil
	}

	if err = os.MkdirAll(i.targetDir, os.ModePerm); err != nil {
		return false, fmt.Errorf("create target directory: %w", err)
	}

	logger.InfoKV(ctx, "Created target directory", "path", i.targetDir)

	return true, nil
}

func skipped(steps []step) []Result {
	result := make([]Result, 0, len(steps))
	for _, s := range steps {
		result = append(result, Result{Archive: s.entry.File, Path: s.path, Status: StatusSkipped})
	}

	return result
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}

	return w
}

// Planned is one archive a run would install.
type Planned struct {
	Archive *archive.Archive
	Path    string
	// Checksum is the manifest checksum, empty when the archive is not verified.
	Checksum string
}

// Plan returns what Run would install with opts, in order, without touching the disk.
func Plan(ctx context.Context, opts *Options) ([]Planned, error) {
	planOpts := Options{DryRun: true}
	if opts != nil {
		planOpts = *opts
		planOpts.DryRun = true
	}

	inst, err := newInstaller(ctx, &planOpts)
	if err != nil {
		return nil, err
	}

	result := make([]Planned, 0, len(inst.steps))
	for _, s := range inst.steps {
		result = append(result, Planned{Archive: s.archive, Path: s.path, Checksum: s.entry.Checksum})
	}

	return result, nil
}
