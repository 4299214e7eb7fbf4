package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("inactive account")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already registered")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenBadSignature  = errors.New("token signature invalid")
	ErrTokenMalformed     = errors.New("token malformed")
)

// ValidationError reports the first input rule a request failed.
// The field and rule are safe to surface verbatim to the caller.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Rule)
}

// IsConflict reports whether err is a uniqueness conflict (email or username).
func IsConflict(err error) bool {
	return errors.Is(err, ErrEmailExists) || errors.Is(err, ErrUsernameExists)
}
