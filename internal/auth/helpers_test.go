package auth

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stockroom/stockroom-core/internal/infrastructure/logging"
)

// testSecret is long enough to satisfy the config minimum, matching production.
const testSecret = "test-signing-secret-at-least-32-chars!"

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_login_at TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE revoked_tokens (
			token_id TEXT PRIMARY KEY,
			expires_at TEXT NOT NULL,
			revoked_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying auth schema: %v", err)
	}

	return db
}

// newTestService builds a Service over a fresh test database.
// The token TTL defaults to DefaultTokenTTL unless overridden.
func newTestService(t *testing.T, ttl time.Duration) (*Service, *sql.DB) {
	t.Helper()

	db := testDB(t)
	codec, err := NewTokenCodec(testSecret, ttl)
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}

	svc := NewService(NewDirectory(db), NewRevocationList(db), codec, logging.Default())
	return svc, db
}

// registerTestAccount registers an account through the service and returns its profile.
func registerTestAccount(t *testing.T, svc *Service, username, email, password string) *Profile {
	t.Helper()

	profile, err := svc.Register(t.Context(), RegisterInput{
		FirstName: "Test",
		LastName:  "User",
		Username:  username,
		Email:     email,
		Password:  password,
	})
	if err != nil {
		t.Fatalf("registering test account %s: %v", username, err)
	}
	return profile
}
