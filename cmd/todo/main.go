package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"task-manager/internal/client"
)

var Version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	v   *viper.Viper
	in  io.Reader
	out io.Writer

	api   *client.API
	store client.LocalStore
	cache *client.Cache
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{v: viper.New(), in: stdin, out: stdout}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "todo",
		Short: "Manage your tasks from the terminal",
		Long: `todo talks to a task server and keeps a local copy of your tasks,
so listing and editing keep working while the server is unreachable.
Tasks created offline are pushed by "todo sync".`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.open() },
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/todo/config.yaml)")
	flags.String("server", "http://localhost:8080", "Task server URL")
	flags.String("data-dir", defaultDataDir(), "Directory for local state")
	flags.String("store", "file", "Local storage backend (file, sqlite)")
	flags.StringP("output", "o", "table", "Output format (table, json, yaml)")
	flags.Duration("timeout", 10*time.Second, "Timeout for each server request")
	_ = a.v.BindPFlags(flags)

	a.v.SetEnvPrefix("TODO")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.listCmd(),
		a.addCmd(),
		a.editCmd(),
		a.doneCmd(),
		a.rmCmd(),
		a.syncCmd(),
		a.statsCmd(),
	)
	return root
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".todo"
	}
	return filepath.Join(dir, "todo")
}

func (a *app) readConfig() error {
	path := a.v.GetString("config")
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, "todo", "config.yaml")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	a.v.SetConfigFile(path)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// open connects the API client and local storage and restores the saved session.
func (a *app) open() error {
	if err := a.readConfig(); err != nil {
		return err
	}
	switch f := a.v.GetString("output"); f {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", f)
	}

	api, err := client.NewAPI(a.v.GetString("server"), nil)
	if err != nil {
		return err
	}

	dataDir := a.v.GetString("data-dir")
	var store client.LocalStore
	switch backend := a.v.GetString("store"); backend {
	case "file":
		store, err = client.NewFileStore(dataDir)
	case "sqlite":
		store, err = client.NewGormStore(filepath.Join(dataDir, "local.db"))
	default:
		return fmt.Errorf("unknown store %q (want file or sqlite)", backend)
	}
	if err != nil {
		return err
	}

	if err := client.RestoreSession(api, store); err != nil {
		store.Close()
		return err
	}

	a.api, a.store = api, store
	a.cache = client.NewCache(api, store)
	return nil
}

// close saves the session the server last issued and releases local storage.
func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := client.SaveSession(a.api, a.store)
	if closeErr := a.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.v.GetDuration("timeout"))
}
