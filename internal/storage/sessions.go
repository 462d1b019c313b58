package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"task-manager/internal/models"
)

// CreateSession creates a new session for a user. A nil expiresAt never expires.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt *time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		db.rebind("INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)"),
		token, userID, utcPtr(expiresAt), now(),
	)
	return translate(err, "create session")
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	models.Session
	User *models.User
}

// ValidateSessionWithInfo checks if a session token is valid and returns
// session details. Unknown, expired and orphaned sessions all fail with
// models.ErrNotFound.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ?
	`), token)

	var u models.User
	var lastActivity time.Time
	var expiresAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastActivity, &expiresAt); err != nil {
		return nil, translate(err, "validate session")
	}

	info := &SessionInfo{
		Session: models.Session{Token: token, UserID: u.ID, LastActivity: lastActivity},
		User:    &u,
	}
	if expiresAt.Valid {
		if !expiresAt.Time.After(time.Now()) {
			return nil, fmt.Errorf("validate session: expired: %w", models.ErrNotFound)
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return info, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		db.rebind("UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?"),
		now(), newExpiresAt.UTC().Round(0), token,
	)
	return translate(err, "renew session")
}

// DeleteSession removes a session by token. Deleting an unknown token is not an error.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE token = ?"), token)
	return translate(err, "delete session")
}

// CleanSessions removes expired sessions and sessions whose user no longer
// exists, returning how many were removed.
func (db *DB) CleanSessions(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.rebind(`
		DELETE FROM sessions
		WHERE (expires_at IS NOT NULL AND expires_at <= ?)
		   OR user_id NOT IN (SELECT id FROM users)
	`), now())
	if err != nil {
		return 0, translate(err, "clean sessions")
	}
	return res.RowsAffected()
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Round(0)
}
