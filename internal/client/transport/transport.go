// Package transport provides an http.RoundTripper that attaches the
// session's bearer token to outgoing API requests, refreshes it when it
// is about to expire, and drops the local session when the server
// rejects it.
package transport

import (
	"context"
	"net/http"
)

// TokenSource is the slice of the session the transport needs.
type TokenSource interface {
	Token() string
	ShouldRefresh() bool
	Refresh(ctx context.Context) error
	ClearLocal()
}

// AuthTransport decorates a base RoundTripper with bearer-token
// handling. It implements http.RoundTripper and slots into any
// http.Client.
type AuthTransport struct {
	session TokenSource
	base    http.RoundTripper
}

// New creates an AuthTransport over the given session. A nil base uses
// http.DefaultTransport.
func New(session TokenSource, base http.RoundTripper) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{session: session, base: base}
}

// RoundTrip attaches the bearer token, refreshing it first when it is
// inside the proactive refresh window. A 401 or 403 response clears the
// local session: the server has spoken, holding the token is pointless.
//
// Requests that already carry an Authorization header pass through
// untouched, so login and refresh calls never recurse into the session.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}

	token := t.session.Token()
	if token == "" {
		return t.base.RoundTrip(req)
	}

	if t.session.ShouldRefresh() {
		// A failed proactive refresh is not fatal: the current token may
		// still be accepted, and the 401 path below handles the rest.
		if err := t.session.Refresh(req.Context()); err == nil {
			token = t.session.Token()
		}
	}

	// Per RoundTripper contract the request must not be mutated.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		t.session.ClearLocal()
	}

	return resp, nil
}
