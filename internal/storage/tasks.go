package storage

import (
	"context"
	"strings"

	"task-manager/internal/models"
)

const taskColumns = "id, user_id, title, description, priority, due_date, due_time, tags, recurring, completed, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (models.Task, error) {
	var t models.Task
	err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority,
		&t.DueDate, &t.DueTime, &t.Tags, &t.Recurring, &t.Completed, &t.CreatedAt)
	return t, err
}

// ListActiveTasks returns the user's tasks that are not soft-deleted, newest id first.
func (db *DB) ListActiveTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	if userID == 0 {
		return nil, models.ErrUnauthenticated
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE completed != ? AND user_id = ? ORDER BY id DESC"),
		models.StatusDeleted, userID,
	)
	if err != nil {
		return nil, translate(err, "list tasks")
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, translate(err, "scan task")
		}
		tasks = append(tasks, t)
	}

	return tasks, translate(rows.Err(), "list tasks")
}

// GetTask reads a task row by id regardless of owner or soft-delete state.
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind("SELECT "+taskColumns+" FROM tasks WHERE id = ?"), id)
	t, err := scanTask(row)
	if err != nil {
		return nil, translate(err, "get task")
	}
	return &t, nil
}

// CreateTask inserts a task owned by userID and returns its id. Priority
// defaults to Low and completed to Pending.
func (db *DB) CreateTask(ctx context.Context, userID int64, fields models.TaskFields) (int64, error) {
	if userID == 0 {
		return 0, models.ErrUnauthenticated
	}
	if err := fields.Normalize(); err != nil {
		return 0, err
	}

	var id int64
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		INSERT INTO tasks (user_id, title, description, priority, due_date, due_time, tags, recurring, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		userID, fields.Title, fields.Description, fields.Priority,
		fields.DueDate, fields.DueTime, fields.Tags, fields.Recurring, fields.Completed,
	).Scan(&id)
	if err != nil {
		return 0, translate(err, "create task")
	}
	return id, nil
}

// UpdateTask applies the present fields of patch to a task owned by userID in
// a single statement. An empty patch fails with models.ErrNoFields before
// touching the database; a task that does not exist or belongs to someone
// else fails with models.ErrNotFound.
func (db *DB) UpdateTask(ctx context.Context, userID, taskID int64, patch models.TaskPatch) error {
	if userID == 0 {
		return models.ErrUnauthenticated
	}
	if patch.IsEmpty() {
		return models.ErrNoFields
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Title.Set {
		set("title", patch.Title.Value)
	}
	if patch.Description.Set {
		set("description", patch.Description.Ptr())
	}
	if patch.Priority.Set {
		set("priority", patch.Priority.Value)
	}
	if patch.DueDate.Set {
		set("due_date", patch.DueDate.Ptr())
	}
	if patch.DueTime.Set {
		set("due_time", patch.DueTime.Ptr())
	}
	if patch.Tags.Set {
		set("tags", patch.Tags.Ptr())
	}
	if patch.Recurring.Set {
		set("recurring", patch.Recurring.Ptr())
	}
	if patch.Completed.Set {
		set("completed", patch.Completed.Value)
	}
	args = append(args, taskID, userID)

	res, err := db.conn.ExecContext(ctx,
		db.rebind("UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?"),
		args...,
	)
	if err != nil {
		return translate(err, "update task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, "update task")
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
