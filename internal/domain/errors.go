package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	// ErrUnauthorized means the request or handshake carried no valid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation means client input failed validation. No state changed.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means a unique field (username, email) is already taken.
	ErrConflict = errors.New("resource already exists")

	// ErrNotFound means a referenced user or message is absent.
	ErrNotFound = errors.New("requested resource not found")

	// ErrTransientStore means the persistence layer could not be reached.
	ErrTransientStore = errors.New("store unavailable")

	// ErrInvalidCredentials is returned by sign-in for a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid credentials provided")
)

// ValidationError describes which field failed and why. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return "validation failed: " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError names the unique field that is already taken. It matches
// ErrConflict with errors.Is.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already exists"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
