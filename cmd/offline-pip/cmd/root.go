package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/offline-pip/internal/config"
	"github.com/oshokin/offline-pip/internal/logger"
	"github.com/oshokin/offline-pip/internal/service/common"
	"github.com/oshokin/offline-pip/internal/service/installer"
	"github.com/oshokin/offline-pip/internal/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	// configPath to the configuration YAML file.
	configPath string
	// workDir replaces the current directory as the base of relative paths.
	workDir string
	// logLevel overrides log_level from the settings.
	logLevel string
}

// installFlags drive the root command.
type installFlags struct {
	only   []string
	strict bool
	dryRun bool
}

// Execute runs the offline-pip CLI and exits with non-zero status on error.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree; the root command installs the bundled packages.
func newRootCommand() *cobra.Command {
	var (
		global  globalFlags
		install installFlags
	)

	rootCmd := &cobra.Command{
		Use:   "offline-pip",
		Short: "Install bundled Python packages into a local folder without network access",
		Long: "offline-pip creates the target folder when it is absent and installs every\n" +
			"archive from the package manifest into it, one at a time and in order.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyLogLevel(cmd, &global)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext(cmd.Context())
			defer stop()

			options := &installer.Options{
				ConfigPath: global.configPath,
				WorkDir:    global.workDir,
				Only:       install.only,
				Strict:     install.strict,
				DryRun:     install.dryRun,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}

			report, err := installer.Run(ctx, options)
			if report != nil {
				report.Render(cmd.OutOrStdout())
			}

			return err
		},
	}

	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&global.configPath, "config", "c", config.DefaultConfigFilename,
		"path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&global.workDir, "workdir", "C", "", "run as if started in this directory")
	rootCmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.Flags().StringSliceVar(&install.only, "only", nil, "install only packages matching these glob patterns")
	rootCmd.Flags().BoolVar(&install.strict, "strict", false, "stop at the first failed package")
	rootCmd.Flags().BoolVar(&install.dryRun, "dry-run", false,
		"print the plan without creating folders or running pip")

	rootCmd.AddCommand(newManifestCommand(&global), newFetchCommand(&global), newListCommand(&global))
	version.AttachCobraVersionCommand(rootCmd)

	return rootCmd
}

// notifyContext cancels on SIGTERM and SIGINT so the running pip is stopped.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
}

// applyLogLevel prefers --log-level, then log_level from the settings.
// Unreadable settings only warn here; the command that needs them reports the error.
func applyLogLevel(cmd *cobra.Command, global *globalFlags) error {
	if cmd.Flags().Changed("log-level") {
		return logger.SetLevelFromString(global.logLevel)
	}

	cfg, err := loadSettings(global)
	if err != nil {
		logger.WarnKV(cmd.Context(), "Unable to read the log level from the settings", "error", err)
		return nil
	}

	if cfg.LogLevel == "" {
		return nil
	}

	return logger.SetLevelFromString(cfg.LogLevel)
}

func loadSettings(global *globalFlags) (*config.Config, error) {
	dir, err := common.ResolveWorkDir(global.workDir)
	if err != nil {
		return nil, err
	}

	return common.LoadConfig(dir, global.configPath)
}
