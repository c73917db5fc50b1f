package main

import (
	"github.com/spf13/cobra"
)

const longHelp = `bootstrap idempotently reconciles the machine against a compiled-in profile:
packages installed, the identity key imported into the trust store,
repositories cloned, and the home directory linked onto the dotfiles tree.
Re-running is always safe; satisfied steps are skipped.`

type rootFlags struct {
	dryRun  bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "bootstrap",
		Short:         "bootstrap converges this machine onto its declared development setup",
		Long:          longHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false, "Preview execution without making changes")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging (disables the progress UI)")

	cmd.AddCommand(newVersionCmd())

	return cmd
}
