package handlers

import (
	"net/http"

	"task-manager/internal/models"
)

// CreatedTask is the data of a successful create.
type CreatedTask struct {
	ID int64 `json:"id"`
}

type patchRequest struct {
	ID *int64 `json:"id"`
	models.TaskPatch
}

// ListTasks returns the caller's active tasks, newest first.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.db.ListActiveTasks(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: tasks})
}

// CreateTask creates a task owned by the caller.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var fields models.TaskFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.db.CreateTask(r.Context(), currentUser(r).ID, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: CreatedTask{ID: id}})
}

// UpdateTask applies a partial update to one of the caller's tasks. The body
// carries the task id next to the fields to change.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ID == nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "Task ID required for update"})
		return
	}

	if err := h.db.UpdateTask(r.Context(), currentUser(r).ID, *req.ID, req.TaskPatch); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}
