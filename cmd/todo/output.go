package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"task-manager/internal/client"
	"task-manager/internal/models"
)

// print writes v in the selected output format; table uses the given printer.
func (a *app) print(v any, table func(io.Writer)) error {
	switch a.v.GetString("output") {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Go through JSON so YAML keys match the API's field names.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = a.out.Write(out)
		return err
	default:
		table(a.out)
		return nil
	}
}

func printTasks(w io.Writer, tasks []client.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE\tTAGS")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Completed, t.Priority, due(t.TaskFields), t.Title, deref(t.Tags))
	}
	tw.Flush()
}

func printStats(w io.Writer, stats *models.TaskStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\t\n", stats.Total)
	for _, group := range [][]models.StatCount{stats.ByStatus, stats.ByPriority} {
		for _, c := range group {
			fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", c.Key, c.Count, c.Percentage)
		}
	}
	tw.Flush()
}

func due(f models.TaskFields) string {
	switch {
	case f.DueDate != nil && f.DueTime != nil:
		return *f.DueDate + " " + hhmm(*f.DueTime)
	case f.DueDate != nil:
		return *f.DueDate
	case f.DueTime != nil:
		return hhmm(*f.DueTime)
	}
	return "-"
}

func hhmm(t string) string {
	if len(t) > 5 {
		return t[:5]
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
