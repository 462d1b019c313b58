package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"task-manager/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers is an in-memory UserStore.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (m *memUsers) CreateUser(_ context.Context, username, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return nil, models.ErrAlreadyExists
	}
	u := &models.User{ID: int64(len(m.users) + 1), Username: username, PasswordHash: hash}
	m.users[username] = u
	return u, nil
}

func (m *memUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := GenerateSessionToken()
	require.NoError(t, err)
	b, err := GenerateSessionToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestRegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentials(newMemUsers())

	user, err := creds.Register(ctx, " alice ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "secret123", user.PasswordHash, "password must be stored hashed")

	got, err := creds.Verify(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentials(newMemUsers())

	_, err := creds.Register(ctx, "alice", "secret123")
	require.NoError(t, err)

	_, err = creds.Register(ctx, "alice", "another")
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestRegisterInvalid(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentials(newMemUsers())

	_, err := creds.Register(ctx, "", "secret123")
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = creds.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = creds.Register(ctx, strings.Repeat("a", models.MaxUsernameLength+1), "secret123")
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = creds.Register(ctx, "bob", strings.Repeat("p", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, models.ErrInvalid)

	// Multi-byte characters count by bytes
	_, err = creds.Register(ctx, "bob", strings.Repeat("é", MaxPasswordBytes/2+1))
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = creds.Register(ctx, "bob", strings.Repeat("p", MaxPasswordBytes))
	assert.NoError(t, err)
}

func TestVerifyFailuresLookAlike(t *testing.T) {
	ctx := context.Background()
	creds := NewCredentials(newMemUsers())
	_, err := creds.Register(ctx, "alice", "secret123")
	require.NoError(t, err)

	_, wrongPassword := creds.Verify(ctx, "alice", "wrong")
	_, unknownUser := creds.Verify(ctx, "mallory", "secret123")
	_, blankUser := creds.Verify(ctx, "", "secret123")

	for _, err := range []error{wrongPassword, unknownUser, blankUser} {
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
		assert.Equal(t, wrongPassword.Error(), err.Error())
	}
}
