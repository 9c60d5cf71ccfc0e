package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newNodesCmd(g *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "list the nodes known to the manager",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&format, "output", "o", tableFormat, "output format: table, yaml, json")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := validateFormat(format); err != nil {
			return err
		}
		cl, err := g.client()
		if err != nil {
			return err
		}
		nodes, err := cl.ListNodes(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "error listing nodes")
		}

		out := cmd.OutOrStdout()
		switch {
		case format != tableFormat:
			return printStructured(out, format, nodes)
		case len(nodes) == 0:
			fmt.Fprintln(out, "No nodes registered.")
			return nil
		default:
			return printNodeTable(out, nodes)
		}
	}
	return cmd
}
