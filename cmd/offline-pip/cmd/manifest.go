package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/offline-pip/internal/service/packager"
)

// newManifestCommand writes the package manifest with checksums.
func newManifestCommand(global *globalFlags) *cobra.Command {
	// scan appends archives found in the archive folder to the manifest.
	var scan bool

	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Write the package manifest with SHA-512 checksums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext(cmd.Context())
			defer stop()

			options := &packager.Options{
				ConfigPath: global.configPath,
				WorkDir:    global.workDir,
				Scan:       scan,
			}

			_, err := packager.Run(ctx, options)

			return err
		},
	}

	manifestCmd.Flags().BoolVar(&scan, "scan", false, "append unlisted archives from the archive folder")

	return manifestCmd
}
