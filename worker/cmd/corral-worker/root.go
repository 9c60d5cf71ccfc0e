package main

import (
	"github.com/spf13/cobra"

	"github.com/corral-dev/corral/version"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "corral-worker",
		Short:         "Run the containers the Corral manager assigns to this node",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}
