package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kluctl/go-embed-python/python"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/domain/archive"
	"github.com/oshokin/offline-pip/internal/logger"
	"github.com/oshokin/offline-pip/internal/repository/manifest"
)

// Runner installs a single archive into a target directory.
type Runner interface {
	Install(ctx context.Context, targetDir, archivePath string) error
}

var (
	errInstallTimeout = errors.New("installer timed out")
	errPythonNotFound = errors.New("python interpreter not found")
)

// InstallArgs returns the pip arguments for one archive. Only the last
// argument depends on the archive.
func InstallArgs(targetDir, archivePath string) []string {
	return []string{
		"install",
		"--no-deps",
		"--target=" + targetDir,
		"--upgrade",
		"--force-reinstall",
		archivePath,
	}
}

// PipRunner runs pip from the bundled wheel with a Python interpreter.
type PipRunner struct {
	python  string
	pipPath string
	workDir string
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
}

// NewPipRunner runs pipPath with the interpreter from cfg.
// Without an explicit interpreter the one on PATH is used.
func NewPipRunner(cfg *config.Config, workDir, pipPath string, stdout, stderr io.Writer) (*PipRunner, error) {
	interpreter := cfg.Python
	if interpreter == "" {
		exePath, err := python.NewPython().GetExePath()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errPythonNotFound, err)
		}

		interpreter = exePath
	}

	return &PipRunner{
		python:  interpreter,
		pipPath: pipPath,
		workDir: workDir,
		timeout: cfg.Timeout,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

// PipPath returns the pip entry point passed to the interpreter.
func (p *PipRunner) PipPath() string {
	return p.pipPath
}

// ResolvePipPath returns pip_path from cfg relative to workDir when set,
// otherwise the pip entry point inside installerWheel in archiveDir.
func ResolvePipPath(cfg *config.Config, workDir, archiveDir, installerWheel string) (string, error) {
	if cfg.PipPath != "" {
		return config.Resolve(workDir, cfg.PipPath), nil
	}

	if installerWheel == "" {
		installerWheel = archive.DefaultInstaller
	}

	wheel, err := manifest.ResolvePath(archiveDir, installerWheel)
	if err != nil {
		return "", err
	}

	return filepath.Join(wheel, config.PipEntryPoint), nil
}

// Install runs `python <pip> install ... <archive>` and waits for it.
func (p *PipRunner) Install(ctx context.Context, targetDir, archivePath string) error {
	cmdCtx, cancel := p.commandContext(ctx)
	defer cancel()

	args := append([]string{p.pipPath}, InstallArgs(targetDir, archivePath)...)

	//nolint:gosec // The interpreter and pip path come from the operator's settings.
	cmd := exec.CommandContext(cmdCtx, p.python, args...)
	cmd.Dir = p.workDir
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	logger.DebugKV(ctx, "Running installer", "command", p.CommandLine(targetDir, archivePath))

	if err := cmd.Run(); err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s after %s: %w", archivePath, p.timeout, errInstallTimeout)
		}

		return fmt.Errorf("pip install %s: %w", archivePath, err)
	}

	return nil
}

// CommandLine renders the full invocation for logs.
func (p *PipRunner) CommandLine(targetDir, archivePath string) string {
	parts := append([]string{p.python, p.pipPath}, InstallArgs(targetDir, archivePath)...)

	return strings.Join(parts, " ")
}

func (p *PipRunner) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, p.timeout)
}

// dryRunner logs what would be run.
type dryRunner struct{}

func (dryRunner) Install(ctx context.Context, targetDir, archivePath string) error {
	logger.InfoKV(ctx, "Dry run, skipping installer",
		"args", strings.Join(InstallArgs(targetDir, archivePath), " "))

	return nil
}
