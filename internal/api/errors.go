package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stockroom/stockroom-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeTokenExpired = "token_expired"
	ErrCodeInactive     = "account_inactive"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps auth package errors onto HTTP responses.
//
// Validation failures become 400 with the failing rule in the message,
// conflicts become 409, credential, account, and token failures all
// become 401. Expired tokens and inactive accounts get their own codes
// so clients can distinguish "log in again" and "account disabled" from
// "this token was never valid".
func writeAuthError(w http.ResponseWriter, err error) {
	var vErr *auth.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, vErr.Error())
	case auth.IsConflict(err):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, http.StatusUnauthorized, ErrCodeInactive, "account is deactivated")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "token has expired")
	case errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenBadSignature),
		errors.Is(err, auth.ErrTokenMalformed):
		writeUnauthorized(w, "invalid token")
	case errors.Is(err, auth.ErrAccountNotFound):
		writeUnauthorized(w, "account no longer exists")
	default:
		writeInternalError(w, "internal server error")
	}
}
