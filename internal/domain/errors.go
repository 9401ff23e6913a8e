package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
	ErrValidation = errors.New("invalid input")
	// ErrResolution means a referenced identity (sender, receiver, or the
	// admin account) could not be resolved; the operation is aborted with no
	// partial state.
	ErrResolution = errors.New("identity could not be resolved")
	ErrInternal   = errors.New("internal server error")
)
