package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/offline-pip/internal/service/fetcher"
)

// newFetchCommand seeds the archive folder from update_folder.
func newFetchCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download missing or changed archives from the update folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext(cmd.Context())
			defer stop()

			options := &fetcher.Options{
				ConfigPath: global.configPath,
				WorkDir:    global.workDir,
			}

			result, err := fetcher.Run(ctx, options)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d downloaded, %d up to date\n",
				len(result.Downloaded), len(result.UpToDate))

			return err
		},
	}
}
