package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxUsernameLength bounds usernames in characters.
const MaxUsernameLength = 64

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserInfo is the public view of a user returned by the "me" action.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Info returns the public view of u.
func (u *User) Info() *UserInfo {
	return &UserInfo{ID: u.ID, Username: u.Username}
}

// Session represents a server-side session. A nil ExpiresAt never expires.
type Session struct {
	Token        string     `json:"token"`
	UserID       int64      `json:"user_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
}

// NormalizeUsername trims surrounding whitespace and checks the length bounds.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n == 0 {
		return "", fmt.Errorf("%w: username is required", ErrInvalid)
	}
	if n > MaxUsernameLength {
		return "", fmt.Errorf("%w: username longer than %d characters", ErrInvalid, MaxUsernameLength)
	}
	return username, nil
}
