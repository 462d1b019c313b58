package models

import "errors"

// Error taxonomy shared by storage, handlers and the client. Boundaries classify
// with errors.Is; lower layers wrap these with context.
var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrAlreadyExists      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoFields           = errors.New("no fields to update")
	ErrUnreachable        = errors.New("server unreachable")
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid input")
)
