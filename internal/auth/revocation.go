package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RevocationList defines the interface for the token blacklist.
//
// Entries are keyed by token JTI and carry the token's natural expiry so
// dead entries can be purged: once a token has expired, signature
// validation alone rejects it and the list entry serves no purpose.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// SQLiteRevocationList implements RevocationList using SQLite.
type SQLiteRevocationList struct {
	db *sql.DB
}

// NewRevocationList creates a new SQLite-backed revocation list.
func NewRevocationList(db *sql.DB) *SQLiteRevocationList {
	return &SQLiteRevocationList{db: db}
}

// Revoke blacklists a token id until its natural expiry. Revoking the
// same token twice is a no-op, not an error.
func (r *SQLiteRevocationList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (token_id, expires_at, revoked_at) VALUES (?, ?, ?)`,
		tokenID, expiresAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token id is on the blacklist.
func (r *SQLiteRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM revoked_tokens WHERE token_id = ?", tokenID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired removes entries whose natural expiry has passed, freeing
// storage. Returns the number of deleted rows.
func (r *SQLiteRevocationList) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("purging expired revocations: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
