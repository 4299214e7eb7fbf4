package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/stockroom/stockroom-core/internal/audit"
	"github.com/stockroom/stockroom-core/internal/auth"
)

// loginRequest is the request body for POST /api/auth/login.
// The identifier may be a username or an email address.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// tokenRequest is the request body for POST /api/auth/refresh and logout.
// If the body carries no token, the Authorization header is used instead.
type tokenRequest struct {
	Token string `json:"token"`
}

// changePasswordRequest is the request body for POST /api/auth/password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleRegister creates a new account.
//
// Responses: 201 with the profile, 400 for validation failures,
// 409 when the email or username is already taken.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	profile, err := s.auth.Register(r.Context(), input)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionRegister, profile.ID, map[string]any{
		"username": profile.Username,
	})

	writeJSON(w, http.StatusCreated, profile)
}

// handleLogin verifies credentials and issues an identity token.
//
// Responses: 200 with {token, user, expires_at}, 401 for bad credentials
// (unknown identifier and wrong password are indistinguishable) and for
// deactivated accounts, which carry the account_inactive code.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.recordAudit(r.Context(), audit.ActionLoginFailed, "", map[string]any{
			"identifier": req.Identifier,
		})
		writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionLogin, result.Profile.ID, nil)

	writeJSON(w, http.StatusOK, result)
}

// handleRefresh exchanges a still-valid token for a fresh one.
//
// The superseded token is revoked on success. Expired tokens fail with
// the token_expired code; revoked, tampered, and malformed ones with a
// generic 401.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	result, err := s.auth.Refresh(r.Context(), token)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionRefresh, result.Profile.ID, nil)

	writeJSON(w, http.StatusOK, result)
}

// handleLogout revokes the presented token.
//
// Always responds 200: logout is best-effort and an invalid or missing
// token means there is nothing to revoke.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)

	if claims, err := s.auth.Authenticate(r.Context(), token); err == nil {
		s.recordAudit(r.Context(), audit.ActionLogout, claims.Subject, nil)
	}
	s.auth.Logout(r.Context(), token)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the identity snapshot carried in the bearer token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         claims.Subject,
		"username":   claims.Username,
		"email":      claims.Email,
		"first_name": claims.GivenName,
		"last_name":  claims.FamilyName,
	})
}

// handleChangePassword updates the authenticated account's password.
//
// Responses: 200 on success, 400 when the new password fails the policy,
// 401 when the current password is wrong.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.ActionPasswordChange, claims.Subject, nil)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// tokenFromRequest reads the token from the JSON body, falling back to
// the Authorization header. The body is optional on refresh and logout.
func tokenFromRequest(r *http.Request) string {
	var req tokenRequest
	//nolint:errcheck // an unparseable or empty body just means "use the header"
	json.NewDecoder(r.Body).Decode(&req)
	if req.Token != "" {
		return req.Token
	}
	return bearerToken(r)
}

// recordAudit writes an audit entry, logging rather than failing the
// request when the write does not succeed.
func (s *Server) recordAudit(ctx context.Context, action, accountID string, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:    action,
		AccountID: accountID,
		Source:    "api",
		Details:   details,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("recording audit entry failed", "action", action, "error", err)
	}
}
