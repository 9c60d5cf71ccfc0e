package main

import (
	"fmt"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/model"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	var (
		memory int
		cpu    float64
		env    []string
	)

	cmd := &cobra.Command{
		Use:   "run [NAME] IMAGE",
		Short: "start a new task in the cluster",
		Args:  cobra.RangeArgs(1, 2),
	}
	cmd.Flags().IntVar(&memory, "memory", model.DefaultTaskMemory, "memory limit in MB")
	cmd.Flags().Float64Var(&cpu, "cpu", model.DefaultTaskCPU, "number of cores")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil,
		"environment variable as KEY=VALUE, may be repeated")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		req := apiv1.SubmitTaskRequest{Image: args[len(args)-1]}
		if len(args) == 2 {
			req.Name = args[0]
		} else {
			req.Name = petname.Generate(2, "-")
		}
		if cmd.Flags().Changed("memory") {
			req.Memory = &memory
		}
		if cmd.Flags().Changed("cpu") {
			req.CPU = &cpu
		}
		vars, err := parseEnv(env)
		if err != nil {
			return err
		}
		req.Env = vars

		cl, err := g.client()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Submitting task '%s' with image '%s'...\n", req.Name, req.Image)
		task, err := cl.SubmitTask(cmd.Context(), req)
		if err != nil {
			return errors.Wrap(err, "error submitting task")
		}
		fmt.Fprintf(out, "Task '%s' successfully submitted with ID %s.\n", task.Name, task.ID)
		return nil
	}
	return cmd
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("invalid environment variable %q, expected KEY=VALUE", p)
		}
		vars[k] = v
	}
	return vars, nil
}

func newListCmd(g *globalOptions) *cobra.Command {
	var (
		status string
		format string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "list the tasks in the cluster",
		Args:    cobra.NoArgs,
	}
	cmd.Flags().StringVar(&status, "status", "", "only list tasks with this status")
	cmd.Flags().StringVarP(&format, "output", "o", tableFormat, "output format: table, yaml, json")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := validateFormat(format); err != nil {
			return err
		}
		var filter *model.TaskStatus
		if status != "" {
			s, err := model.ParseTaskStatus(status)
			if err != nil {
				return err
			}
			filter = &s
		}

		cl, err := g.client()
		if err != nil {
			return err
		}
		tasks, err := cl.ListTasks(cmd.Context(), filter)
		if err != nil {
			return errors.Wrap(err, "error listing tasks")
		}

		out := cmd.OutOrStdout()
		switch {
		case format != tableFormat:
			return printStructured(out, format, tasks)
		case len(tasks) == 0:
			fmt.Fprintln(out, "No tasks found in the cluster.")
			return nil
		default:
			return printTaskTable(out, tasks)
		}
	}
	return cmd
}

func newGetCmd(g *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "show one task",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&format, "output", "o", yamlFormat, "output format: table, yaml, json")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(format); err != nil {
			return err
		}
		cl, err := g.client()
		if err != nil {
			return err
		}
		task, err := cl.GetTask(cmd.Context(), args[0])
		if err != nil {
			return errors.Wrapf(err, "error getting task %s", args[0])
		}

		out := cmd.OutOrStdout()
		if format == tableFormat {
			return printTaskTable(out, []model.Task{*task})
		}
		return printStructured(out, format, task)
	}
	return cmd
}
