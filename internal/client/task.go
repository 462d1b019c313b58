package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"task-manager/internal/models"
)

// LocalRefPrefix marks references generated for tasks the server never saw.
const LocalRefPrefix = "local-"

// TaskRef identifies a task in the mirror: the decimal server id, or
// "local-<unix millis>" for a task created while offline. It encodes as a
// JSON number for server ids and a string otherwise.
type TaskRef string

// ServerRef returns the reference for a server-assigned id.
func ServerRef(id int64) TaskRef {
	return TaskRef(strconv.FormatInt(id, 10))
}

// ParseRef parses a reference typed by a user.
func ParseRef(s string) (TaskRef, error) {
	ref := TaskRef(strings.TrimSpace(s))
	if ref.IsLocal() {
		if _, err := strconv.ParseInt(strings.TrimPrefix(string(ref), LocalRefPrefix), 10, 64); err != nil {
			return "", fmt.Errorf("%w: bad local task reference %q", models.ErrInvalid, s)
		}
		return ref, nil
	}
	if _, ok := ref.ServerID(); !ok {
		return "", fmt.Errorf("%w: bad task reference %q", models.ErrInvalid, s)
	}
	return ref, nil
}

// IsLocal reports whether the task exists only in the mirror.
func (r TaskRef) IsLocal() bool {
	return strings.HasPrefix(string(r), LocalRefPrefix)
}

// ServerID returns the server id for a server reference.
func (r TaskRef) ServerID() (int64, bool) {
	if r.IsLocal() {
		return 0, false
	}
	id, err := strconv.ParseInt(string(r), 10, 64)
	return id, err == nil && id > 0
}

func (r TaskRef) MarshalJSON() ([]byte, error) {
	if id, ok := r.ServerID(); ok {
		return []byte(strconv.FormatInt(id, 10)), nil
	}
	return json.Marshal(string(r))
}

func (r *TaskRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = TaskRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("task id %s is not an integer", n)
	}
	*r = TaskRef(n.String())
	return nil
}

// Task is a mirror entry.
type Task struct {
	ID TaskRef `json:"id"`
	models.TaskFields
	CreatedAt time.Time `json:"created_at,omitzero"`
}

func fromServer(tasks []models.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, Task{ID: ServerRef(t.ID), TaskFields: t.TaskFields, CreatedAt: t.CreatedAt})
	}
	return out
}
