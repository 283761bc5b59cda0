package main

import (
	"os"

	"github.com/savi/fpgavirt/log"
	"github.com/savi/fpgavirt/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if c, err := newMainCmd().ExecuteC(); err != nil {
		c.PrintErrln("Error:", err)
		os.Exit(-1)
	}
}

// newMainCmd builds the command tree. Flags are registered per tree, so each
// invocation starts from the defaults.
func newMainCmd() *cobra.Command {
	mainCmd := &cobra.Command{
		Use:           os.Args[0],
		Short:         "Program and release FPGA regions through a subagent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logrus.SetOutput(os.Stderr)
			flag, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			level, err := logrus.ParseLevel(flag)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			log.L.Debugf("log level set to %s", level)
			return nil
		},
	}

	mainCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (options \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\")")
	mainCmd.PersistentFlags().Duration("timeout", defaultTimeout, "Timeout for connecting to and each read or write on the subagent")
	mainCmd.PersistentFlags().String("metrics-textfile", "", "Write exchange metrics in Prometheus text format to this file on exit")

	mainCmd.AddCommand(
		newProgramCmd(),
		newReleaseCmd(),
		newProvisionCmd(),
		newTeardownCmd(),
		version.NewCmd(),
	)
	return mainCmd
}
