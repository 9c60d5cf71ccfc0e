package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/corral-dev/corral/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Corral CLI %s (built with %s)\n",
				version.Version, runtime.Version())
		},
	}
}
