package storage

import (
	"context"

	"task-manager/internal/models"
)

// CreateUser creates a new user with the given username and password hash.
// A taken username fails with models.ErrAlreadyExists; uniqueness is left to
// the table constraint so concurrent registrations cannot both succeed.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		db.rebind("INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id"),
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		return nil, translate(err, "create user")
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT id, username, password_hash, created_at FROM users WHERE id = ?"),
		id,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind("SELECT id, username, password_hash, created_at FROM users WHERE username = ?"),
		username,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, translate(err, "count users")
}
