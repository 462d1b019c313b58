// Package client talks to the task server and keeps an offline mirror of the
// user's tasks in local storage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"task-manager/internal/models"
)

// sessionCookie must match the server's cookie name.
const sessionCookie = "session"

// Error is a request the server answered and refused.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.kind }

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data,omitempty"`
	Message string           `json:"message,omitempty"`
	User    *models.UserInfo `json:"user,omitempty"`
}

// API is an HTTP client for the task server. It carries the session cookie
// between calls.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI returns a client for the server at baseURL. A nil httpClient gets a
// default client; a client without a cookie jar is given one.
func NewAPI(baseURL string, httpClient *http.Client) (*API, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}
	return &API{base: base, http: httpClient}, nil
}

// SessionToken returns the session token the server last issued, if any.
func (a *API) SessionToken() string {
	for _, c := range a.http.Jar.Cookies(a.base) {
		if c.Name == sessionCookie {
			return c.Value
		}
	}
	return ""
}

// SetSessionToken installs a previously saved session token. An empty token
// clears the session.
func (a *API) SetSessionToken(token string) {
	c := &http.Cookie{Name: sessionCookie, Value: token, Path: "/"}
	if token == "" {
		c.MaxAge = -1
	}
	a.http.Jar.SetCookies(a.base, []*http.Cookie{c})
}

// Register creates an account. It does not log in.
func (a *API) Register(ctx context.Context, username, password string) error {
	return a.auth(ctx, "register", username, password, nil)
}

// Login starts a session and returns the logged-in user. Wrong credentials
// fail with models.ErrInvalidCredentials.
func (a *API) Login(ctx context.Context, username, password string) (*models.UserInfo, error) {
	var env envelope
	if err := a.auth(ctx, "login", username, password, &env); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			apiErr.kind = models.ErrInvalidCredentials
		}
		return nil, err
	}
	return env.User, nil
}

// Logout ends the session and forgets the cookie.
func (a *API) Logout(ctx context.Context) error {
	err := a.auth(ctx, "logout", "", "", nil)
	a.SetSessionToken("")
	return err
}

// Me returns the logged-in user, or models.ErrUnauthenticated.
func (a *API) Me(ctx context.Context) (*models.UserInfo, error) {
	var env envelope
	if err := a.auth(ctx, "me", "", "", &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, models.ErrUnauthenticated
	}
	return env.User, nil
}

func (a *API) auth(ctx context.Context, action, username, password string, out *envelope) error {
	body := map[string]string{"action": action}
	if username != "" || password != "" {
		body["username"] = username
		body["password"] = password
	}
	return a.do(ctx, http.MethodPost, "/api/auth", body, out)
}

// ListTasks returns the user's active tasks.
func (a *API) ListTasks(ctx context.Context) ([]models.Task, error) {
	var env envelope
	if err := a.do(ctx, http.MethodGet, "/api/tasks", nil, &env); err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	if err := decodeData(env.Data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task and returns its server id.
func (a *API) CreateTask(ctx context.Context, fields models.TaskFields) (int64, error) {
	var env envelope
	if err := a.do(ctx, http.MethodPost, "/api/tasks", fields, &env); err != nil {
		return 0, err
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := decodeData(env.Data, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// PatchTask sends the present fields of patch for task id.
func (a *API) PatchTask(ctx context.Context, id int64, patch models.TaskPatch) error {
	body := struct {
		ID int64 `json:"id"`
		models.TaskPatch
	}{ID: id, TaskPatch: patch}
	return a.do(ctx, http.MethodPatch, "/api/tasks", body, nil)
}

// Stats returns the user's task counts.
func (a *API) Stats(ctx context.Context) (*models.TaskStats, error) {
	var env envelope
	if err := a.do(ctx, http.MethodGet, "/api/tasks/stats", nil, &env); err != nil {
		return nil, err
	}
	var stats models.TaskStats
	if err := decodeData(env.Data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// do sends one request. Transport failures, 5xx answers and bodies that are
// not the server's envelope fail with models.ErrUnreachable; other refusals
// come back as *Error wrapping the matching taxonomy error.
func (a *API) do(ctx context.Context, method, path string, in any, out *envelope) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: server returned %d", models.ErrUnreachable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: undecodable response: %v", models.ErrUnreachable, err)
	}
	if !env.Success {
		return &Error{Status: resp.StatusCode, Message: env.Message, kind: classify(resp.StatusCode, env.Message)}
	}
	if out != nil {
		*out = env
	}
	return nil
}

func classify(status int, message string) error {
	switch status {
	case http.StatusUnauthorized:
		if message == "Invalid credentials" {
			return models.ErrInvalidCredentials
		}
		return models.ErrUnauthenticated
	case http.StatusConflict:
		return models.ErrAlreadyExists
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusBadRequest:
		if message == "No fields to update" {
			return models.ErrNoFields
		}
		return models.ErrInvalid
	default:
		return models.ErrInvalid
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: response has no data", models.ErrUnreachable)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: undecodable data: %v", models.ErrUnreachable, err)
	}
	return nil
}
