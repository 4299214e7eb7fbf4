package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Directory defines the interface for account persistence.
// It is the single owner of identity records; only the auth service
// mutates them (registration, login, password change).
type Directory interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context) (int, error)
}

const accountColumns = "id, username, email, first_name, last_name, password_hash, is_active, last_login_at, created_at, updated_at"

// SQLiteDirectory implements Directory using SQLite.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewDirectory creates a new SQLite-backed account directory.
func NewDirectory(db *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{db: db}
}

// Create inserts a new account. The ID is generated if empty.
// Duplicate email or username maps to ErrEmailExists / ErrUsernameExists.
func (d *SQLiteDirectory) Create(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = "acc-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	account.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	account.UpdatedAt = account.CreatedAt

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, first_name, last_name, password_hash, is_active, last_login_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Username, account.Email,
		account.FirstName, account.LastName, account.PasswordHash,
		boolToInt(account.IsActive), nullTime(account.LastLoginAt), now, now,
	)
	if err != nil {
		if conflictErr := uniqueViolation(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("creating account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its unique ID.
func (d *SQLiteDirectory) GetByID(ctx context.Context, id string) (*Account, error) {
	return d.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

// GetByUsername retrieves an account by its username.
func (d *SQLiteDirectory) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return d.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE username = ?", username)
}

// GetByEmail retrieves an account by its email address.
func (d *SQLiteDirectory) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return d.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
}

// UpdateLastLogin records a successful authentication instant.
// The write is synchronous; callers must not respond before it returns.
func (d *SQLiteDirectory) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := d.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdatePassword changes an account's password hash.
func (d *SQLiteDirectory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := d.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetActive activates or deactivates an account.
func (d *SQLiteDirectory) SetActive(ctx context.Context, id string, active bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := d.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating active flag: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Count returns the total number of accounts.
func (d *SQLiteDirectory) Count(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

// getAccount executes a query and scans a single account result.
func (d *SQLiteDirectory) getAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	row := d.db.QueryRowContext(ctx, query, args...)

	var a Account
	var lastLogin sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName,
		&a.PasswordHash, &isActive, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.IsActive = isActive != 0
	if lastLogin.Valid {
		t, parseErr := time.Parse(time.RFC3339, lastLogin.String)
		if parseErr == nil {
			a.LastLoginAt = &t
		}
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &a, nil
}

// Helper functions.

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// uniqueViolation maps a SQLite UNIQUE constraint error to the matching
// conflict sentinel, or nil if the error is something else.
func uniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "unique constraint") {
		return nil
	}
	if strings.Contains(msg, "accounts.email") {
		return ErrEmailExists
	}
	if strings.Contains(msg, "accounts.username") {
		return ErrUsernameExists
	}
	return ErrUsernameExists
}
