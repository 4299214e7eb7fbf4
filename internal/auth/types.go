package auth

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// emailPattern is a syntactic sanity check, not a full RFC 5322 parser.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// IsValidEmail checks if an email address is syntactically plausible.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// CheckPasswordPolicy validates password complexity: at least 8 characters
// with an upper-case letter, a lower-case letter, a digit, and a symbol.
// Returns the first failing rule, or "" if the password is acceptable.
func CheckPasswordPolicy(password string) string {
	if len(password) < minPasswordLength {
		return "must be at least 8 characters"
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return "must contain an upper-case letter"
	case !hasLower:
		return "must contain a lower-case letter"
	case !hasDigit:
		return "must contain a digit"
	case !hasSymbol:
		return "must contain a symbol"
	}
	return ""
}

// Account represents an identity record in the user directory.
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"` // never serialised
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName returns the human-readable name for the account.
func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Profile returns the safe projection of the account for API responses.
// It never includes the password hash.
func (a *Account) Profile() *Profile {
	return &Profile{
		ID:          a.ID,
		Username:    a.Username,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		LastLoginAt: a.LastLoginAt,
	}
}

// Profile is the externally visible projection of an account.
type Profile struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// RegisterInput is the request payload for account registration.
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginResult is the outcome of a successful login or refresh.
type LoginResult struct {
	Token     string    `json:"token"`
	Profile   *Profile  `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}
