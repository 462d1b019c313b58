package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"task-manager/internal/client"
	"task-manager/internal/handlers"
	"task-manager/internal/models"
	"task-manager/internal/session"
	"task-manager/internal/storage"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := session.NewManager(db, session.Options{})
	router := mux.NewRouter()
	handlers.NewHandlers(db, sessions).Routes(router)
	srv := httptest.NewServer(sessions.Middleware(router))
	t.Cleanup(srv.Close)
	return srv
}

// todo runs one CLI invocation and returns its stdout.
func todo(t *testing.T, serverURL, dataDir, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--server", serverURL, "--data-dir", dataDir}, args...)
	err := run(full, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func mustTodo(t *testing.T, serverURL, dataDir, stdin string, args ...string) string {
	t.Helper()
	out, err := todo(t, serverURL, dataDir, stdin, args...)
	require.NoError(t, err, "todo %v", args)
	return out
}

func TestRun_SessionFlow(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()

	out := mustTodo(t, srv.URL, dir, "secret123\n", "register", "alice")
	assert.Contains(t, out, "Registered alice")

	_, err := todo(t, srv.URL, dir, "", "whoami")
	assert.ErrorIs(t, err, models.ErrUnauthenticated, "register does not log in")

	_, err = todo(t, srv.URL, dir, "wrong\n", "login", "alice")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	out = mustTodo(t, srv.URL, dir, "secret123\n", "login", "alice")
	assert.Contains(t, out, "Logged in as alice")

	// The session survives between invocations
	out = mustTodo(t, srv.URL, dir, "", "whoami")
	assert.Equal(t, "alice (id 1)\n", out)

	mustTodo(t, srv.URL, dir, "", "logout")
	_, err = todo(t, srv.URL, dir, "", "whoami")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestRun_EmptyPassword(t *testing.T) {
	srv := newServer(t)
	_, err := todo(t, srv.URL, t.TempDir(), "\n", "register", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestRun_TaskCommands(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	mustTodo(t, srv.URL, dir, "secret123\n", "register", "alice")
	mustTodo(t, srv.URL, dir, "secret123\n", "login", "alice")

	out := mustTodo(t, srv.URL, dir, "", "add", "Buy", "milk", "-p", "High", "--due-date", "2025-01-31", "-t", "home")
	assert.Equal(t, "Added task 1\n", out)

	out = mustTodo(t, srv.URL, dir, "", "list")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, "High")
	assert.Contains(t, out, "2025-01-31")

	out = mustTodo(t, srv.URL, dir, "", "done", "1")
	assert.Equal(t, "Task 1 is now Completed\n", out)

	mustTodo(t, srv.URL, dir, "", "edit", "1", "--title", "Buy oat milk", "--tags", "")

	out = mustTodo(t, srv.URL, dir, "", "list", "-o", "json")
	var tasks []client.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy oat milk", tasks[0].Title)
	assert.Equal(t, models.StatusCompleted, tasks[0].Completed)
	assert.Nil(t, tasks[0].Tags, "empty flag clears the field")

	out = mustTodo(t, srv.URL, dir, "", "stats", "-o", "yaml")
	var stats map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats["total"])

	_, err := todo(t, srv.URL, dir, "", "edit", "1")
	assert.ErrorIs(t, err, models.ErrNoFields)

	mustTodo(t, srv.URL, dir, "", "rm", "1")
	out = mustTodo(t, srv.URL, dir, "", "list")
	assert.Equal(t, "No tasks\n", out)
}

func TestRun_OfflineThenSync(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	mustTodo(t, srv.URL, dir, "secret123\n", "register", "alice")
	mustTodo(t, srv.URL, dir, "secret123\n", "login", "alice")
	mustTodo(t, srv.URL, dir, "", "add", "online task")
	mustTodo(t, srv.URL, dir, "", "list")

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	out := mustTodo(t, dead.URL, dir, "", "list")
	assert.Contains(t, out, "online task", "offline list shows the local copy")

	out = mustTodo(t, dead.URL, dir, "", "add", "offline task")
	assert.Contains(t, out, "locally")

	out = mustTodo(t, dead.URL, dir, "", "done", "1")
	assert.Contains(t, out, "Task 1 is now Completed; saved locally")

	out = mustTodo(t, dead.URL, dir, "", "sync")
	assert.Contains(t, out, "Server unreachable")
	assert.Contains(t, out, "1 edits queued")

	out = mustTodo(t, srv.URL, dir, "", "sync")
	assert.Contains(t, out, "pushed 1, 0 still local, 2 tasks")
	assert.Contains(t, out, "Edits: 1 sent, 0 queued")

	out = mustTodo(t, srv.URL, dir, "", "list")
	assert.Contains(t, out, "Completed", "the offline toggle reached the server")

	out = mustTodo(t, srv.URL, dir, "", "list", "--local")
	assert.Contains(t, out, "offline task")
	assert.NotContains(t, out, "local-")
}

func TestRun_SQLiteStore(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	mustTodo(t, srv.URL, dir, "secret123\n", "--store", "sqlite", "register", "alice")
	mustTodo(t, srv.URL, dir, "secret123\n", "--store", "sqlite", "login", "alice")

	out := mustTodo(t, srv.URL, dir, "", "--store", "sqlite", "whoami")
	assert.Contains(t, out, "alice")
	assert.FileExists(t, filepath.Join(dir, "local.db"))
}

func TestRun_BadSettings(t *testing.T) {
	srv := newServer(t)

	_, err := todo(t, srv.URL, t.TempDir(), "", "--store", "redis", "list")
	assert.Error(t, err)

	_, err = todo(t, srv.URL, t.TempDir(), "", "-o", "xml", "list")
	assert.Error(t, err)

	_, err = todo(t, "not a url", t.TempDir(), "", "list")
	assert.Error(t, err)

	_, err = todo(t, srv.URL, t.TempDir(), "", "done", "abc")
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestRun_ConfigFile(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("output: json\n"), 0o644))

	mustTodo(t, srv.URL, dir, "secret123\n", "register", "alice")
	mustTodo(t, srv.URL, dir, "secret123\n", "login", "alice")

	out := mustTodo(t, srv.URL, dir, "", "--config", cfg, "whoami")
	assert.JSONEq(t, `{"id":1,"username":"alice"}`, out)
}

func TestReadPassword_NonTerminal(t *testing.T) {
	pw, err := readPassword(strings.NewReader("hunter2\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
}
