package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Priorities lists every priority, lowest first.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Status is the completion state of a task. StatusDeleted marks a soft delete.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusDeleted   Status = "Deleted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Toggled flips Pending and Completed. Deleted stays Deleted.
func (s Status) Toggled() Status {
	switch s {
	case StatusPending:
		return StatusCompleted
	case StatusCompleted:
		return StatusPending
	}
	return s
}

// Statuses lists every status.
var Statuses = []Status{StatusPending, StatusCompleted, StatusDeleted}

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05"
	shortTimeLayout = "15:04"
)

// TaskFields are the user-editable columns of a task.
type TaskFields struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Priority    Priority `json:"priority"`
	DueDate     *string  `json:"due_date"`
	DueTime     *string  `json:"due_time"`
	Tags        *string  `json:"tags"`
	Recurring   *string  `json:"recurring"`
	Completed   Status   `json:"completed"`
}

// Task represents a to-do item owned by exactly one user.
type Task struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	TaskFields
	CreatedAt time.Time `json:"created_at"`
}

// Normalize applies creation defaults and validates f in place.
func (f *TaskFields) Normalize() error {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if f.Priority == "" {
		f.Priority = PriorityLow
	}
	if !f.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, f.Priority)
	}
	if f.Completed == "" {
		f.Completed = StatusPending
	}
	if !f.Completed.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Completed)
	}
	var err error
	if f.DueDate, err = normalizeDate(f.DueDate); err != nil {
		return err
	}
	if f.DueTime, err = normalizeTime(f.DueTime); err != nil {
		return err
	}
	return nil
}

// TaskPatch is a partial update. Absent fields are left untouched, null fields
// are cleared.
type TaskPatch struct {
	Title       Nullable[string]   `json:"title,omitzero"`
	Description Nullable[string]   `json:"description,omitzero"`
	Priority    Nullable[Priority] `json:"priority,omitzero"`
	DueDate     Nullable[string]   `json:"due_date,omitzero"`
	DueTime     Nullable[string]   `json:"due_time,omitzero"`
	Tags        Nullable[string]   `json:"tags,omitzero"`
	Recurring   Nullable[string]   `json:"recurring,omitzero"`
	Completed   Nullable[Status]   `json:"completed,omitzero"`
}

// IsEmpty reports whether no field is present.
func (p *TaskPatch) IsEmpty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Priority.Set && !p.DueDate.Set &&
		!p.DueTime.Set && !p.Tags.Set && !p.Recurring.Set && !p.Completed.Set
}

// Validate rejects nulls on required columns and bad values, and normalizes
// dates and times. An empty due_date or due_time becomes null.
func (p *TaskPatch) Validate() error {
	if p.Title.Set {
		if !p.Title.Valid {
			return fmt.Errorf("%w: title cannot be null", ErrInvalid)
		}
		p.Title.Value = strings.TrimSpace(p.Title.Value)
		if p.Title.Value == "" {
			return fmt.Errorf("%w: title is required", ErrInvalid)
		}
	}
	if p.Priority.Set && (!p.Priority.Valid || !p.Priority.Value.Valid()) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, p.Priority.Value)
	}
	if p.Completed.Set && (!p.Completed.Valid || !p.Completed.Value.Valid()) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, p.Completed.Value)
	}
	if p.DueDate.Valid {
		v, err := normalizeDate(&p.DueDate.Value)
		if err != nil {
			return err
		}
		p.DueDate = nullableFromPtr(v)
	}
	if p.DueTime.Valid {
		v, err := normalizeTime(&p.DueTime.Value)
		if err != nil {
			return err
		}
		p.DueTime = nullableFromPtr(v)
	}
	return nil
}

// Apply copies the present fields of p onto f.
func (p *TaskPatch) Apply(f *TaskFields) {
	if p.Title.Set {
		f.Title = p.Title.Value
	}
	if p.Description.Set {
		f.Description = p.Description.Ptr()
	}
	if p.Priority.Set {
		f.Priority = p.Priority.Value
	}
	if p.DueDate.Set {
		f.DueDate = p.DueDate.Ptr()
	}
	if p.DueTime.Set {
		f.DueTime = p.DueTime.Ptr()
	}
	if p.Tags.Set {
		f.Tags = p.Tags.Ptr()
	}
	if p.Recurring.Set {
		f.Recurring = p.Recurring.Ptr()
	}
	if p.Completed.Set {
		f.Completed = p.Completed.Value
	}
}

// StatCount is one bucket of TaskStats.
type StatCount struct {
	Key        string  `json:"key"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TaskStats summarizes a user's non-deleted tasks.
type TaskStats struct {
	Total      int         `json:"total"`
	ByStatus   []StatCount `json:"by_status"`
	ByPriority []StatCount `json:"by_priority"`
}

func nullableFromPtr(v *string) Nullable[string] {
	if v == nil {
		return Null[string]()
	}
	return Some(*v)
}

func normalizeDate(v *string) (*string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	if _, err := time.Parse(dateLayout, s); err != nil {
		return nil, fmt.Errorf("%w: due_date %q is not YYYY-MM-DD", ErrInvalid, s)
	}
	return &s, nil
}

func normalizeTime(v *string) (*string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	for _, layout := range []string{timeLayout, shortTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format(timeLayout)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: due_time %q is not HH:MM:SS", ErrInvalid, s)
}
