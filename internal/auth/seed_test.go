package auth

import (
	"testing"
	"time"
)

func TestSeedAdmin_EmptyDirectory(t *testing.T) {
	svc, db := newTestService(t, time.Hour)
	dir := NewDirectory(db)

	password, err := SeedAdmin(t.Context(), dir, svc.logger)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() should return the generated password")
	}

	admin, err := dir.GetByUsername(t.Context(), "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if !admin.IsActive {
		t.Error("seed admin should be active")
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against the stored hash")
	}
}

func TestSeedAdmin_SkipsWhenAccountsExist(t *testing.T) {
	svc, db := newTestService(t, time.Hour)
	dir := NewDirectory(db)
	registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	password, err := SeedAdmin(t.Context(), dir, svc.logger)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password != "" {
		t.Error("SeedAdmin() should skip when accounts already exist")
	}

	count, err := dir.Count(t.Context())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}
