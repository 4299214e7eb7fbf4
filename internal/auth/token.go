package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the identity token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// IdentityClaims extends JWT registered claims with the account identity
// snapshot carried inside every token.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Username   string `json:"username"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// TokenCodec issues and validates signed, time-bounded identity tokens.
//
// Tokens are JWTs in compact serialisation (three dot-separated base64url
// segments) signed with HS256. Each issuance carries a fresh UUID JTI, so
// two tokens issued to the same identity in the same instant still differ,
// and the JTI doubles as the revocation-list key.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec creates a codec with the given signing secret and token TTL.
// An empty secret is refused — it would make every token forgeable.
// A non-positive TTL falls back to DefaultTokenTTL.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token codec: signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue creates a signed identity token for the account, expiring at
// now + TTL. Returns the compact token string and its expiry instant.
func (c *TokenCodec) Issue(account *Account) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.ttl)

	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Username:   account.Username,
		Email:      account.Email,
		GivenName:  account.FirstName,
		FamilyName: account.LastName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing identity token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies signature integrity and expiration, returning the
// embedded claims. Untrusted input never causes a panic — failures come
// back as one of the typed sentinels:
//
//   - ErrTokenMalformed: not a parseable compact JWT
//   - ErrTokenBadSignature: signature does not verify
//   - ErrTokenExpired: signature fine, expiry in the past
//
// No clock-skew tolerance is applied; expiry is never silently extended.
func (c *TokenCodec) Validate(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %w", ErrTokenBadSignature, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrTokenMalformed)
	}

	return claims, nil
}
