package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockroom/stockroom-core/internal/infrastructure/logging"
)

// Service orchestrates registration, login, refresh, and logout.
//
// It is the sole writer of identity records via the Directory and the sole
// user of password hashing and the token codec. It holds no mutable state
// of its own; every method is request/response.
type Service struct {
	directory Directory
	revoked   RevocationList
	codec     *TokenCodec
	logger    *logging.Logger
}

// NewService creates an auth service with explicitly passed collaborators.
func NewService(directory Directory, revoked RevocationList, codec *TokenCodec, logger *logging.Logger) *Service {
	return &Service{
		directory: directory,
		revoked:   revoked,
		codec:     codec,
		logger:    logger.With("component", "auth"),
	}
}

// TokenTTL returns the configured identity token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.codec.TTL()
}

// Register validates the input, hashes the password, and persists a new
// active account. Returns the safe profile projection, never the hash.
//
// Failure modes, in check order:
//   - *ValidationError naming the first failing rule
//   - ErrEmailExists / ErrUsernameExists (email is checked first)
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Profile, error) {
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	// Explicit duplicate checks give the common case a clean error;
	// the UNIQUE constraints in Create still catch the race.
	if _, err := s.directory.GetByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	if _, err := s.directory.GetByUsername(ctx, input.Username); err == nil {
		return nil, ErrUsernameExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		IsActive:     true,
	}

	if err := s.directory.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "username", account.Username)
	return account.Profile(), nil
}

// unknownAccountDigest is a syntactically valid Argon2id digest with the
// production cost parameters. Login verifies against it when the
// identifier resolves to no account, so the unknown-identifier path burns
// the same hashing cost as a real check and response timing cannot
// reveal whether a username exists.
const unknownAccountDigest = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Login verifies credentials and issues an identity token.
//
// The identifier may be a username or an email address; username is tried
// first. A missing account and a wrong password both return
// ErrInvalidCredentials — the caller cannot tell them apart, so login
// cannot be used to enumerate usernames. ErrAccountInactive is returned
// only after the credentials verified correct.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if identifier == "" {
		return nil, &ValidationError{Field: "identifier", Rule: "is required"}
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Rule: "is required"}
	}

	account, err := s.directory.GetByUsername(ctx, identifier)
	if errors.Is(err, ErrAccountNotFound) {
		account, err = s.directory.GetByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			//nolint:errcheck // the result is discarded: this only equalises timing
			VerifyPassword(password, unknownAccountDigest)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolving account: %w", err)
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	return s.issueFor(ctx, account)
}

// Refresh exchanges a still-valid token for a new one with a fresh expiry.
//
// The old token is validated first: expired, tampered, and malformed
// tokens fail with their distinct sentinels (ErrTokenExpired vs
// ErrTokenBadSignature/ErrTokenMalformed), and a blacklisted token fails
// with ErrTokenRevoked. The account is re-fetched by id — a deleted or
// deactivated account cannot keep refreshing a stale identity snapshot.
// On success the superseded token is revoked, so the old string cannot be
// replayed, and the new token always differs (fresh JTI and expiry).
func (s *Service) Refresh(ctx context.Context, oldToken string) (*LoginResult, error) {
	claims, err := s.codec.Validate(oldToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	account, err := s.directory.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("fetching account: %w", err)
	}

	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	result, err := s.issueFor(ctx, account)
	if err != nil {
		return nil, err
	}

	// Rotate: the superseded token must stop validating immediately.
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, fmt.Errorf("revoking superseded token: %w", err)
	}

	s.logger.Info("token refreshed", "account_id", account.ID, "old_jti", claims.ID)
	return result, nil
}

// Logout revokes the token so subsequent Authenticate/Refresh calls fail.
//
// Best-effort by contract: empty, malformed, or already-expired input is
// silently ignored (an invalid token needs no blacklist entry), and a
// storage failure is logged rather than surfaced. Local client state is
// cleared regardless of what happens here.
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}

	claims, err := s.codec.Validate(token)
	if err != nil {
		return
	}

	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("revoking token on logout failed", "jti", claims.ID, "error", err)
		return
	}

	s.logger.Info("logged out", "account_id", claims.Subject, "jti", claims.ID)
}

// Authenticate validates a bearer token for request access: signature,
// expiry, and the revocation list. Returns the identity claims on success.
func (s *Service) Authenticate(ctx context.Context, token string) (*IdentityClaims, error) {
	claims, err := s.codec.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// ChangePassword verifies the current password and stores a new hash.
// The new password must satisfy the complexity policy.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.directory.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := VerifyPassword(current, account.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	if rule := CheckPasswordPolicy(next); rule != "" {
		return &ValidationError{Field: "password", Rule: rule}
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.directory.UpdatePassword(ctx, accountID, hash); err != nil {
		return err
	}

	s.logger.Info("password changed", "account_id", accountID)
	return nil
}

// issueFor updates the last-login timestamp and issues a fresh token.
// The directory write completes before the token is returned; last-login
// is security-relevant state and must be durable before the response.
func (s *Service) issueFor(ctx context.Context, account *Account) (*LoginResult, error) {
	now := time.Now().UTC()
	if err := s.directory.UpdateLastLogin(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("recording last login: %w", err)
	}
	account.LastLoginAt = &now

	token, expiresAt, err := s.codec.Issue(account)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		Profile:   account.Profile(),
		ExpiresAt: expiresAt,
	}, nil
}

// validateRegisterInput checks registration fields in a fixed order and
// reports the first failing rule.
func validateRegisterInput(input RegisterInput) error {
	switch {
	case input.FirstName == "":
		return &ValidationError{Field: "first_name", Rule: "is required"}
	case input.LastName == "":
		return &ValidationError{Field: "last_name", Rule: "is required"}
	case input.Username == "":
		return &ValidationError{Field: "username", Rule: "is required"}
	case !IsValidUsername(input.Username):
		return &ValidationError{Field: "username", Rule: "must be 1-64 characters: letters, digits, dots, hyphens, underscores"}
	case !IsValidEmail(input.Email):
		return &ValidationError{Field: "email", Rule: "must be a valid email address"}
	}

	if rule := CheckPasswordPolicy(input.Password); rule != "" {
		return &ValidationError{Field: "password", Rule: rule}
	}
	return nil
}
