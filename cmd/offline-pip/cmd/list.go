package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oshokin/offline-pip/internal/service/installer"
)

// newListCommand prints the install plan.
func newListCommand(global *globalFlags) *cobra.Command {
	var only []string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the packages that would be installed, in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options := &installer.Options{
				ConfigPath: global.configPath,
				WorkDir:    global.workDir,
				Only:       only,
			}

			planned, err := installer.Plan(cmd.Context(), options)
			if err != nil {
				return err
			}

			return writePlan(cmd.OutOrStdout(), planned)
		},
	}

	listCmd.Flags().StringSliceVar(&only, "only", nil, "list only packages matching these glob patterns")

	return listCmd
}

func writePlan(w io.Writer, planned []installer.Planned) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "#\tPACKAGE\tVERSION\tKIND\tVERIFIED\tFILE")

	for i, p := range planned {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n",
			i+1, p.Archive.Name, p.Archive.RawVersion, p.Archive.Kind, p.Checksum != "", p.Archive.Filename)
	}

	return tw.Flush()
}
