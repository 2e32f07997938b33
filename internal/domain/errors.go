package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors below wrap one of these so callers can branch with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
)

var (
	// ErrUserNotFound is returned when no user matches the lookup key.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrImageItemNotFound indicates a submitted image item ID is invalid.
	ErrImageItemNotFound = fmt.Errorf("image item %w", ErrNotFound)
	// ErrSessionNotFound is returned when a user has no active quiz session.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrStatsNotFound is returned when stats were never created for a user.
	ErrStatsNotFound = fmt.Errorf("user stats %w", ErrNotFound)
	// ErrHandshakeNotFound is returned by token stores for unknown or expired tokens.
	ErrHandshakeNotFound = fmt.Errorf("handshake token %w", ErrNotFound)

	ErrUsernameTaken   = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrExternalIDTaken = fmt.Errorf("%w: external id already linked", ErrConflict)
	// ErrDuplicateAnswer is returned when an item is answered twice within one active session.
	ErrDuplicateAnswer = fmt.Errorf("%w: item already answered in this session", ErrConflict)

	// ErrHandshakeClaimed is returned by token stores when another identity already claimed the token.
	ErrHandshakeClaimed = fmt.Errorf("%w: handshake token already claimed", ErrConflict)

	ErrMissingCategory   = fmt.Errorf("%w: category is required", ErrBadRequest)
	ErrMissingExternalID = fmt.Errorf("%w: missing external id", ErrBadRequest)
	ErrInvalidExternalID = fmt.Errorf("%w: invalid external id", ErrBadRequest)
	ErrMissingQuestion   = fmt.Errorf("%w: question is required", ErrBadRequest)
	ErrMissingCredential = fmt.Errorf("%w: username and password are required", ErrBadRequest)

	ErrNotLoggedIn          = fmt.Errorf("%w: user not authenticated", ErrUnauthenticated)
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrHandshakeInvalid     = fmt.Errorf("%w: handshake token invalid or expired", ErrUnauthenticated)
	ErrHandshakeTokenNeeded = fmt.Errorf("%w: handshake token required", ErrUnauthenticated)
)

// Internal wraps an infrastructure failure so it reports as ErrInternal while keeping the cause.
func Internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
