package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/pkg/ptrs"
)

const (
	tableFormat = "table"
	yamlFormat  = "yaml"
	jsonFormat  = "json"

	shortIDLength = 8
)

var outputFormats = []string{tableFormat, yamlFormat, jsonFormat}

var statusColors = map[model.TaskStatus]*color.Color{
	model.PendingStatus:   color.New(color.FgYellow),
	model.ScheduledStatus: color.New(color.FgCyan),
	model.RunningStatus:   color.New(color.FgBlue),
	model.CompleteStatus:  color.New(color.FgGreen),
	model.FailedStatus:    color.New(color.FgRed),
}

// headerColor uses a two-digit code like every status color; tabwriter counts the escape bytes,
// so a column only lines up when all of its cells carry the same number of them.
var headerColor = color.New(color.FgHiWhite)

func validateFormat(format string) error {
	return check.In(format, outputFormats, "unknown output format %q", format)
}

func printStructured(w io.Writer, format string, v interface{}) error {
	var (
		bs  []byte
		err error
	)
	switch format {
	case jsonFormat:
		bs, err = json.MarshalIndent(v, "", "  ")
		bs = append(bs, '\n')
	default:
		bs, err = yaml.Marshal(v)
	}
	if err != nil {
		return errors.Wrap(err, "failed to render output")
	}
	_, err = w.Write(bs)
	return err
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func orDash(s *string, short bool) string {
	switch {
	case s == nil || *s == "":
		return "-"
	case short:
		return shortID(*s)
	default:
		return *s
	}
}

func statusCell(s model.TaskStatus) string {
	c, ok := statusColors[s]
	if !ok {
		return string(s)
	}
	return c.Sprint(string(s))
}

func printTaskTable(w io.Writer, tasks []model.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tID\tIMAGE\t%s\tNODE\tCONTAINER\n", headerColor.Sprint("STATUS"))
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Name,
			shortID(t.ID.String()),
			t.Image,
			statusCell(t.Status),
			orDash(t.NodeID, false),
			orDash(t.ContainerID, true),
		)
	}
	return tw.Flush()
}

func printNodeTable(w io.Writer, nodes []model.Node) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tSTATUS\tMEMORY (MB)\tCPU")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%g/%g\n",
			n.Name,
			orDash(ptrs.Ptr(n.Address), false),
			n.Status,
			n.AvailableMemory, n.TotalMemory,
			n.AvailableCPU, n.TotalCPU,
		)
	}
	return tw.Flush()
}
