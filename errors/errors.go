package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrToolNotFound indicates that a tool name has no registration
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmitterClosed indicates a write to an already closed event emitter
	ErrEmitterClosed = errors.New("emitter closed")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
