package audit

import (
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			account_id TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying audit schema: %v", err)
	}

	return db
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	entry := &Entry{
		Action:    ActionLogin,
		AccountID: "acc-1",
		Source:    "api",
		Details:   map[string]any{"identifier": "jdoe"},
	}
	if err := repo.Record(t.Context(), entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Record() should assign an id")
	}

	result, err := repo.List(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != ActionLogin || got.AccountID != "acc-1" || got.Source != "api" {
		t.Errorf("entry = %+v, want login/acc-1/api", got)
	}
	if got.Details["identifier"] != "jdoe" {
		t.Errorf("Details = %v, want identifier=jdoe", got.Details)
	}
}

func TestRepository_List_Filters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	seed := []Entry{
		{Action: ActionLogin, AccountID: "acc-1", Source: "api"},
		{Action: ActionLoginFailed, Source: "api"},
		{Action: ActionLogout, AccountID: "acc-1", Source: "api"},
		{Action: ActionLogin, AccountID: "acc-2", Source: "api"},
	}
	for i := range seed {
		if err := repo.Record(t.Context(), &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	t.Run("by action", func(t *testing.T) {
		result, err := repo.List(t.Context(), Filter{Action: ActionLogin})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
		for _, e := range result.Entries {
			if e.Action != ActionLogin {
				t.Errorf("Action = %q, want login", e.Action)
			}
		}
	})

	t.Run("by account", func(t *testing.T) {
		result, err := repo.List(t.Context(), Filter{AccountID: "acc-1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
	})

	t.Run("action and account", func(t *testing.T) {
		result, err := repo.List(t.Context(), Filter{Action: ActionLogin, AccountID: "acc-2"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 1 {
			t.Errorf("Total = %d, want 1", result.Total)
		}
	})
}

func TestRepository_List_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		entry := &Entry{
			Action:    ActionLogin,
			AccountID: "acc-1",
			Source:    "api",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(t.Context(), entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := repo.List(t.Context(), Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 || len(result.Entries) != 2 {
		t.Fatalf("total = %d, page = %d, want 5/2", result.Total, len(result.Entries))
	}

	// Most recent first.
	if !result.Entries[0].CreatedAt.After(result.Entries[1].CreatedAt) {
		t.Error("entries should be ordered most recent first")
	}

	next, err := repo.List(t.Context(), Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if next.Entries[0].ID == result.Entries[0].ID {
		t.Error("offset page should not repeat entries")
	}
}

func TestRepository_List_ClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	result, err := repo.List(t.Context(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped to 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want clamped to 0", result.Offset)
	}
	if result.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}
