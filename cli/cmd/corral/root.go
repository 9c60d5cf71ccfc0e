package main

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/corral-dev/corral/pkg/client"
	"github.com/corral-dev/corral/version"
)

type globalOptions struct {
	manager string
	timeout time.Duration
	noColor bool
}

func (g *globalOptions) client() (*client.Client, error) {
	return client.New(g.manager, g.timeout)
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "corral",
		Short:         "Submit and inspect tasks on a Corral cluster",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindEnv("CORRAL_", cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			if g.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.manager, "manager", "m", "127.0.0.1:3000",
		"address of the Corral manager")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second,
		"timeout of each request to the manager")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newListCmd(g))
	cmd.AddCommand(newGetCmd(g))
	cmd.AddCommand(newNodesCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
