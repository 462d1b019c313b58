// Package session binds server-side sessions to browser clients through a
// cookie-carried token. The session store is explicit and per-request state
// travels in the request context.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"task-manager/internal/auth"
	"task-manager/internal/models"
	"task-manager/internal/storage"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

// Context key type to avoid collisions.
type contextKey string

const (
	userContextKey  contextKey = "user"
	tokenContextKey contextKey = "session_token"
)

// Store persists sessions keyed by token.
type Store interface {
	CreateSession(ctx context.Context, token string, userID int64, expiresAt *time.Time) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*storage.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
}

// Options configures a Manager.
type Options struct {
	// TTL is the session lifetime. Zero means sessions last until destroyed.
	TTL time.Duration
	// SecureCookie marks the cookie Secure (HTTPS only).
	SecureCookie bool
}

// Manager issues, resolves and destroys sessions.
type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	return &Manager{store: store, ttl: opts.TTL, secure: opts.SecureCookie}
}

// CurrentUser returns the user resolved for the request, if any.
func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok && user != nil
}

func tokenFrom(r *http.Request) string {
	if token, ok := r.Context().Value(tokenContextKey).(string); ok && token != "" {
		return token
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware resolves the session cookie into the request context. Requests
// without a valid session continue anonymously; a stale cookie is destroyed.
// With a TTL, sessions past the halfway point of their lifetime are renewed.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		info, err := m.store.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				log.Printf("Failed to validate session: %v", err)
			} else if err := m.store.DeleteSession(r.Context(), cookie.Value); err != nil {
				log.Printf("Failed to delete stale session: %v", err)
			}
			m.clearCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if m.ttl > 0 && info.ExpiresAt != nil && time.Until(*info.ExpiresAt) < m.ttl/2 {
			newExpiresAt := time.Now().Add(m.ttl)
			if err := m.store.RenewSession(r.Context(), cookie.Value, newExpiresAt); err == nil {
				m.setCookie(w, cookie.Value)
			}
			// If renewal fails, just continue with the current session
		}

		ctx := context.WithValue(r.Context(), userContextKey, info.User)
		ctx = context.WithValue(ctx, tokenContextKey, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Create starts a session for userID and sets the cookie. Any session the
// request already carries is destroyed first, so a client holds one session.
func (m *Manager) Create(w http.ResponseWriter, r *http.Request, userID int64) (string, error) {
	if old := tokenFrom(r); old != "" {
		if err := m.store.DeleteSession(r.Context(), old); err != nil {
			log.Printf("Failed to delete previous session: %v", err)
		}
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", err
	}

	var expiresAt *time.Time
	if m.ttl > 0 {
		t := time.Now().Add(m.ttl)
		expiresAt = &t
	}
	if err := m.store.CreateSession(r.Context(), token, userID, expiresAt); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	m.setCookie(w, token)
	return token, nil
}

// Destroy deletes the request's session, if any, and clears the cookie.
// Destroying when there is no session is not an error.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	defer m.clearCookie(w)
	token := tokenFrom(r)
	if token == "" {
		return nil
	}
	return m.store.DeleteSession(r.Context(), token)
}

func (m *Manager) setCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.ttl > 0 {
		cookie.MaxAge = int(m.ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
