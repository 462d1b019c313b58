package handlers

import "net/http"

// Stats returns counts and percentages of the caller's tasks by status and priority.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.TaskStats(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: stats})
}
