package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"task-manager/internal/client"
	"task-manager/internal/models"
)

func (a *app) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account (does not log in)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.promptPassword()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			if err := a.api.Register(ctx, args[0], password); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(a.out, "Registered %s. Run \"todo login %s\" to start.\n", args[0], args[0])
			return nil
		},
	}
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := a.promptPassword()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			user, err := a.api.Login(ctx, args[0], password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if user == nil {
				user = &models.UserInfo{Username: args[0]}
			}
			fmt.Fprintf(a.out, "Logged in as %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			if err := a.api.Logout(ctx); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			user, err := a.api.Me(ctx)
			if err != nil {
				return err
			}
			return a.print(user, func(w io.Writer) {
				fmt.Fprintf(w, "%s (id %d)\n", user.Username, user.ID)
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []client.Task
			var err error
			if local {
				tasks, err = a.cache.Mirror()
			} else {
				ctx, cancel := a.context(cmd)
				defer cancel()
				tasks, err = a.cache.FetchTasks(ctx)
			}
			if err != nil {
				return err
			}
			return a.print(tasks, func(w io.Writer) { printTasks(w, tasks) })
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Show the local copy without contacting the server")
	return cmd
}

// taskFlags are the editable fields shared by add and edit.
type taskFlags struct {
	title       string
	description string
	priority    string
	dueDate     string
	dueTime     string
	tags        string
	recurring   string
}

func (f *taskFlags) register(cmd *cobra.Command, withTitle bool) {
	if withTitle {
		cmd.Flags().StringVar(&f.title, "title", "", "Title")
	}
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Description")
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "Priority (Low, Medium, High)")
	cmd.Flags().StringVar(&f.dueDate, "due-date", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.dueTime, "due-time", "", "Due time (HH:MM)")
	cmd.Flags().StringVarP(&f.tags, "tags", "t", "", "Tags")
	cmd.Flags().StringVar(&f.recurring, "recurring", "", "Recurrence, e.g. weekly")
}

func optional(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) || value == "" {
		return nil
	}
	return &value
}

// patchField is absent when the flag was not given and null when it was
// given empty.
func patchField(cmd *cobra.Command, name, value string) models.Nullable[string] {
	switch {
	case !cmd.Flags().Changed(name):
		return models.Nullable[string]{}
	case value == "":
		return models.Null[string]()
	default:
		return models.Some(value)
	}
}

func (a *app) addCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := models.TaskFields{
				Title:       strings.Join(args, " "),
				Description: optional(cmd, "description", f.description),
				Priority:    models.Priority(f.priority),
				DueDate:     optional(cmd, "due-date", f.dueDate),
				DueTime:     optional(cmd, "due-time", f.dueTime),
				Tags:        optional(cmd, "tags", f.tags),
				Recurring:   optional(cmd, "recurring", f.recurring),
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			ref, err := a.cache.AddTask(ctx, fields)
			if err != nil {
				return err
			}
			if ref.IsLocal() {
				fmt.Fprintf(a.out, "Saved task %s locally; run \"todo sync\" when the server is back\n", ref)
			} else {
				fmt.Fprintf(a.out, "Added task %s\n", ref)
			}
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task; an empty value clears an optional field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := client.ParseRef(args[0])
			if err != nil {
				return err
			}
			patch := models.TaskPatch{
				Title:       patchField(cmd, "title", f.title),
				Description: patchField(cmd, "description", f.description),
				DueDate:     patchField(cmd, "due-date", f.dueDate),
				DueTime:     patchField(cmd, "due-time", f.dueTime),
				Tags:        patchField(cmd, "tags", f.tags),
				Recurring:   patchField(cmd, "recurring", f.recurring),
			}
			if cmd.Flags().Changed("priority") {
				patch.Priority = models.Some(models.Priority(f.priority))
			}

			queued, err := a.cache.QueuedEdits()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := a.cache.UpdateTask(ctx, ref, patch); err != nil {
				return err
			}
			return a.changed(queued, fmt.Sprintf("Updated task %s", ref))
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task between Pending and Completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := client.ParseRef(args[0])
			if err != nil {
				return err
			}
			queued, err := a.cache.QueuedEdits()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			status, err := a.cache.ToggleComplete(ctx, ref)
			if err != nil {
				return err
			}
			return a.changed(queued, fmt.Sprintf("Task %s is now %s", ref, status))
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := client.ParseRef(args[0])
			if err != nil {
				return err
			}
			queued, err := a.cache.QueuedEdits()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			if err := a.cache.DeleteTask(ctx, ref); err != nil {
				return err
			}
			return a.changed(queued, fmt.Sprintf("Deleted task %s", ref))
		},
	}
}

// changed prints msg, noting when the change was queued for the next sync
// instead of reaching the server.
func (a *app) changed(queuedBefore int, msg string) error {
	queued, err := a.cache.QueuedEdits()
	if err != nil {
		return err
	}
	if queued > queuedBefore {
		msg += "; saved locally, run \"todo sync\" when the server is back"
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push tasks and edits made offline and refresh the local copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			res, err := a.cache.Sync(ctx)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) {
				if !res.Online {
					fmt.Fprintf(w, "Server unreachable: pushed %d, %d still local, %d edits queued\n", res.Pushed, res.Pending, res.Queued)
					return
				}
				fmt.Fprintf(w, "Synced: pushed %d, %d still local, %d tasks\n", res.Pushed, res.Pending, len(res.Tasks))
				if res.Edited > 0 || res.Queued > 0 {
					fmt.Fprintf(w, "Edits: %d sent, %d queued\n", res.Edited, res.Queued)
				}
			})
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status and priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			stats, err := a.api.Stats(ctx)
			if err != nil {
				return err
			}
			return a.print(stats, func(w io.Writer) { printStats(w, stats) })
		},
	}
}

func (a *app) promptPassword() (string, error) {
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.out, "Password: ")
	}
	password, err := readPassword(a.in)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

func readPassword(stdin io.Reader) (string, error) {
	// Check if stdin is a terminal
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	return "", scanner.Err()
}
