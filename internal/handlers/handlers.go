package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"task-manager/internal/auth"
	"task-manager/internal/models"
	"task-manager/internal/session"
	"task-manager/internal/storage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Envelope is the body of every API response.
type Envelope struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Message string           `json:"message,omitempty"`
	User    *models.UserInfo `json:"user,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db       *storage.DB
	creds    *auth.Credentials
	sessions *session.Manager
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, sessions *session.Manager) *Handlers {
	return &Handlers{db: db, creds: auth.NewCredentials(db), sessions: sessions}
}

// Routes registers the API on r. The legacy /api.php and /auth.php paths are
// kept for older front ends.
func (h *Handlers) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	for _, path := range []string{"/api/auth", "/auth.php"} {
		r.HandleFunc(path, h.Auth).Methods(http.MethodPost)
	}

	r.Handle("/api/tasks/stats", h.RequireUser(http.HandlerFunc(h.Stats))).Methods(http.MethodGet)
	for _, path := range []string{"/api/tasks", "/api.php"} {
		r.Handle(path, h.RequireUser(http.HandlerFunc(h.ListTasks))).Methods(http.MethodGet)
		r.Handle(path, h.RequireUser(http.HandlerFunc(h.CreateTask))).Methods(http.MethodPost)
		r.Handle(path, h.RequireUser(http.HandlerFunc(h.UpdateTask))).Methods(http.MethodPatch)
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(h.Unsupported)
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
}

// RequireUser rejects requests without a resolved session.
func (h *Handlers) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.CurrentUser(r.Context()); !ok {
			writeError(w, r, models.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health reports whether the database answers.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

// Unsupported answers requests whose method a route does not accept.
func (h *Handlers) Unsupported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, Envelope{Message: "Unsupported method"})
}

// NotFound answers unknown paths.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, Envelope{Message: "Not found"})
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto a status code and message.
// Anything unclassified is logged and reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, models.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, models.ErrAlreadyExists):
		status, message = http.StatusConflict, "Username already exists"
	case errors.Is(err, models.ErrNoFields):
		status, message = http.StatusBadRequest, "No fields to update"
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "Task not found"
	case errors.Is(err, models.ErrInvalid):
		status, message = http.StatusBadRequest, err.Error()
	default:
		log.Printf("%s %s error: %v request_id=%s", r.Method, r.URL.Path, err, RequestID(r.Context()))
	}
	writeJSON(w, status, Envelope{Message: message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: request body is not valid JSON", models.ErrInvalid)
	}
	return nil
}

func currentUser(r *http.Request) *models.User {
	user, _ := session.CurrentUser(r.Context())
	return user
}
