// Package api implements the HTTP client for the Stockroom Core
// authentication endpoints. It is consumed by terminal and admin
// frontends via the session manager in internal/client/session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors mapped from structured API error responses.
var (
	// ErrUnauthorized covers bad credentials and invalid tokens.
	ErrUnauthorized = errors.New("unauthorised")

	// ErrTokenExpired is returned when the server rejects a token
	// specifically because its lifetime has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrConflict is returned when a registration collides with an
	// existing email or username.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned when the server rejects the input.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned for deactivated accounts. The server
	// answers 401 with the account_inactive code, so the sentinel is
	// driven by the body rather than the status.
	ErrForbidden = errors.New("forbidden")
)

// TransportError wraps network-level failures so callers can tell
// "the server said no" apart from "the server was unreachable".
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// User is the identity profile returned by the server.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TokenBundle is the result of a successful login or refresh.
type TokenBundle struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterInput is the payload for account registration.
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// apiError mirrors the server's structured error body.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// defaultTimeout bounds each request when the caller's context doesn't.
const defaultTimeout = 15 * time.Second

// Client talks to the Stockroom Core REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL (e.g. "https://stockroom.local:8080").
// A nil httpClient gets a default with a 15s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*User, error) {
	var user User
	if err := c.post(ctx, "/api/auth/register", "", input, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for an identity token.
func (c *Client) Login(ctx context.Context, identifier, password string) (*TokenBundle, error) {
	payload := map[string]string{"identifier": identifier, "password": password}

	var bundle TokenBundle
	if err := c.post(ctx, "/api/auth/login", "", payload, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Refresh exchanges a still-valid token for a fresh one.
func (c *Client) Refresh(ctx context.Context, token string) (*TokenBundle, error) {
	payload := map[string]string{"token": token}

	var bundle TokenBundle
	if err := c.post(ctx, "/api/auth/refresh", "", payload, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Logout revokes the token server-side. The server always answers 200,
// so an error here means the request never arrived.
func (c *Client) Logout(ctx context.Context, token string) error {
	payload := map[string]string{"token": token}
	return c.post(ctx, "/api/auth/logout", "", payload, nil)
}

// Me returns the identity for the given bearer token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var user User
	if err := c.do(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword updates the authenticated account's password.
func (c *Client) ChangePassword(ctx context.Context, token, current, next string) error {
	payload := map[string]string{"current_password": current, "new_password": next}
	return c.post(ctx, "/api/auth/password", token, payload, nil)
}

// post sends a JSON POST and decodes the response into out (if non-nil).
func (c *Client) post(ctx context.Context, path, bearer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(req, out)
}

// do executes the request and maps non-2xx responses onto sentinels.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	var apiErr apiError
	//nolint:errcheck // an undecodable error body falls through to the status-based mapping
	json.NewDecoder(resp.Body).Decode(&apiErr)

	return mapError(resp.StatusCode, apiErr)
}

// mapError converts a status code and structured body to a sentinel,
// keeping the server's message for context.
func mapError(status int, body apiError) error {
	sentinel := func() error {
		switch {
		case body.Code == "token_expired":
			return ErrTokenExpired
		case body.Code == "account_inactive":
			return ErrForbidden
		case body.Code == "validation_error":
			return ErrValidation
		case status == http.StatusUnauthorized:
			return ErrUnauthorized
		case status == http.StatusForbidden:
			return ErrForbidden
		case status == http.StatusConflict:
			return ErrConflict
		case status == http.StatusBadRequest:
			return ErrValidation
		default:
			return fmt.Errorf("unexpected status %d", status)
		}
	}()

	if body.Message != "" {
		return fmt.Errorf("%w: %s", sentinel, body.Message)
	}
	return sentinel
}
