package version

import "github.com/spf13/cobra"

// NewCmd returns a version subcommand that can be added to other commands to
// print the version of fpgavirt.
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version number of fpgavirt",
		Run: func(cmd *cobra.Command, args []string) {
			FprintVersion(cmd.OutOrStdout())
		},
	}
}
