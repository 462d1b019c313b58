package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"task-manager/internal/models"
)

// UserStore persists users. CreateUser must report a taken username as
// models.ErrAlreadyExists.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Credentials registers and verifies username/password pairs.
type Credentials struct {
	users UserStore
}

// NewCredentials creates a credential store over users.
func NewCredentials(users UserStore) *Credentials {
	return &Credentials{users: users}
}

// Register creates a user. There is no existence pre-check: the storage
// uniqueness constraint decides, and a conflict surfaces as models.ErrAlreadyExists.
func (c *Credentials) Register(ctx context.Context, username, password string) (*models.User, error) {
	username, err := models.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", models.ErrInvalid)
	}
	if len(password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password longer than %d bytes", models.ErrInvalid, MaxPasswordBytes)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return c.users.CreateUser(ctx, username, hash)
}

// Verify returns the user for a matching username and password. An unknown
// username and a wrong password both fail with models.ErrInvalidCredentials and
// take the same bcrypt work, so callers cannot tell them apart.
func (c *Credentials) Verify(ctx context.Context, username, password string) (*models.User, error) {
	username, err := models.NormalizeUsername(username)
	if err != nil {
		CheckPassword(password, dummyHash())
		return nil, models.ErrInvalidCredentials
	}

	user, err := c.users.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, models.ErrNotFound):
		CheckPassword(password, dummyHash())
		return nil, models.ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash is compared against when the user does not exist.
func dummyHash() string {
	dummyOnce.Do(func() {
		dummy, _ = HashPassword("not-a-real-password")
	})
	return dummy
}
