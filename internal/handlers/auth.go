package handlers

import (
	"log"
	"net/http"

	"task-manager/internal/session"
)

type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Auth dispatches the register, login, logout and me actions.
func (h *Handlers) Auth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "Unsupported method or missing action"})
		return
	}

	switch req.Action {
	case "register":
		h.register(w, r, req)
	case "login":
		h.login(w, r, req)
	case "logout":
		h.logout(w, r)
	case "me":
		h.me(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, Envelope{Message: "Unsupported method or missing action"})
	}
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request, req authRequest) {
	user, err := h.creds.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Printf("Registered user %s (id %d)", user.Username, user.ID)
	writeJSON(w, http.StatusCreated, Envelope{Success: true})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request, req authRequest) {
	user, err := h.creds.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.sessions.Create(w, r, user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, User: user.Info()})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		log.Printf("Failed to delete session: %v", err)
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	user, ok := session.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Envelope{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, User: user.Info()})
}
