package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testPassword = "Sup3r!Secret"

func TestService_Register(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	profile, err := svc.Register(t.Context(), RegisterInput{
		FirstName: "Jane",
		LastName:  "Doe",
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		Password:  testPassword,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if profile.ID == "" {
		t.Error("profile should carry a generated id")
	}
	if profile.Username != "jdoe" || profile.Email != "jdoe@example.com" {
		t.Errorf("profile = %q/%q, want jdoe/jdoe@example.com", profile.Username, profile.Email)
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	valid := RegisterInput{
		FirstName: "Jane",
		LastName:  "Doe",
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		Password:  testPassword,
	}

	tests := []struct {
		name      string
		mutate    func(*RegisterInput)
		wantField string
	}{
		{"missing first name", func(i *RegisterInput) { i.FirstName = "" }, "first_name"},
		{"missing last name", func(i *RegisterInput) { i.LastName = "" }, "last_name"},
		{"missing username", func(i *RegisterInput) { i.Username = "" }, "username"},
		{"username with spaces", func(i *RegisterInput) { i.Username = "j doe" }, "username"},
		{"email without at", func(i *RegisterInput) { i.Email = "not-an-email" }, "email"},
		{"email without domain dot", func(i *RegisterInput) { i.Email = "a@b" }, "email"},
		{"password too short", func(i *RegisterInput) { i.Password = "S3c!" }, "password"},
		{"password no upper", func(i *RegisterInput) { i.Password = "sup3r!secret" }, "password"},
		{"password no lower", func(i *RegisterInput) { i.Password = "SUP3R!SECRET" }, "password"},
		{"password no digit", func(i *RegisterInput) { i.Password = "Super!Secret" }, "password"},
		{"password no symbol", func(i *RegisterInput) { i.Password = "Sup3rSecret" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)

			_, err := svc.Register(t.Context(), input)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Register() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
			if vErr.Rule == "" {
				t.Error("validation error should name the failing rule")
			}
		})
	}
}

func TestService_Register_Conflicts(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(t.Context(), RegisterInput{
			FirstName: "Other", LastName: "User",
			Username: "other", Email: "jdoe@example.com", Password: testPassword,
		})
		if !errors.Is(err, ErrEmailExists) {
			t.Errorf("Register() error = %v, want ErrEmailExists", err)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(t.Context(), RegisterInput{
			FirstName: "Other", LastName: "User",
			Username: "jdoe", Email: "other@example.com", Password: testPassword,
		})
		if !errors.Is(err, ErrUsernameExists) {
			t.Errorf("Register() error = %v, want ErrUsernameExists", err)
		}
	})

	t.Run("email reported before username when both collide", func(t *testing.T) {
		_, err := svc.Register(t.Context(), RegisterInput{
			FirstName: "Other", LastName: "User",
			Username: "jdoe", Email: "jdoe@example.com", Password: testPassword,
		})
		if !errors.Is(err, ErrEmailExists) {
			t.Errorf("Register() error = %v, want ErrEmailExists", err)
		}
	})
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	t.Run("by username", func(t *testing.T) {
		result, err := svc.Login(t.Context(), "jdoe", testPassword)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.Token == "" {
			t.Error("login should issue a token")
		}
		if result.Profile == nil || result.Profile.Username != "jdoe" {
			t.Error("login should return the account profile")
		}
		wantExpiry := time.Now().Add(time.Hour)
		if diff := result.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
			t.Errorf("ExpiresAt = %v, want about %v", result.ExpiresAt, wantExpiry)
		}
	})

	t.Run("by email", func(t *testing.T) {
		result, err := svc.Login(t.Context(), "jdoe@example.com", testPassword)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.Profile.Username != "jdoe" {
			t.Errorf("Username = %q, want jdoe", result.Profile.Username)
		}
	})

	t.Run("records last login", func(t *testing.T) {
		result, err := svc.Login(t.Context(), "jdoe", testPassword)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.Profile.LastLoginAt == nil {
			t.Fatal("login should record a last-login instant")
		}
		if since := time.Since(*result.Profile.LastLoginAt); since < 0 || since > time.Minute {
			t.Errorf("LastLoginAt = %v, want recent", result.Profile.LastLoginAt)
		}
	})
}

func TestService_Login_Failures(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	profile := registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(t.Context(), "jdoe", "Wr0ng!Password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown identifier is indistinguishable from wrong password", func(t *testing.T) {
		_, errUnknown := svc.Login(t.Context(), "nobody", testPassword)
		_, errWrong := svc.Login(t.Context(), "jdoe", "Wr0ng!Password")
		if !errors.Is(errUnknown, ErrInvalidCredentials) {
			t.Fatalf("Login(unknown) error = %v, want ErrInvalidCredentials", errUnknown)
		}
		if errUnknown.Error() != errWrong.Error() {
			t.Errorf("error text differs: %q vs %q", errUnknown, errWrong)
		}
	})

	t.Run("blank identifier", func(t *testing.T) {
		_, err := svc.Login(t.Context(), "", testPassword)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("Login() error = %v, want *ValidationError", err)
		}
	})

	t.Run("blank password", func(t *testing.T) {
		_, err := svc.Login(t.Context(), "jdoe", "")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("Login() error = %v, want *ValidationError", err)
		}
	})

	t.Run("inactive account with correct password", func(t *testing.T) {
		if err := svc.directory.SetActive(t.Context(), profile.ID, false); err != nil {
			t.Fatalf("SetActive() error = %v", err)
		}
		t.Cleanup(func() {
			// t.Context() is already canceled when cleanup runs.
			if err := svc.directory.SetActive(context.Background(), profile.ID, true); err != nil {
				t.Fatalf("SetActive() error = %v", err)
			}
		})

		_, err := svc.Login(t.Context(), "jdoe", testPassword)
		if !errors.Is(err, ErrAccountInactive) {
			t.Errorf("Login() error = %v, want ErrAccountInactive", err)
		}
	})
}

func TestUnknownAccountDigest(t *testing.T) {
	// The digest must decode cleanly: a parse error would skip the
	// Argon2 computation and reopen the timing difference between
	// unknown identifiers and wrong passwords.
	ok, err := VerifyPassword("any-password", unknownAccountDigest)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v, want a decodable placeholder digest", err)
	}
	if ok {
		t.Error("no password should verify against the placeholder digest")
	}
}

func TestService_Refresh(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	login, err := svc.Login(t.Context(), "jdoe", testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	refreshed, err := svc.Refresh(t.Context(), login.Token)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if refreshed.Token == login.Token {
		t.Error("refresh should issue a different token")
	}
	if refreshed.Profile.Username != "jdoe" {
		t.Errorf("Username = %q, want jdoe", refreshed.Profile.Username)
	}

	// The superseded token is rotated out and cannot be replayed.
	if _, err := svc.Authenticate(t.Context(), login.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Authenticate(old) error = %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.Refresh(t.Context(), login.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Refresh(old) error = %v, want ErrTokenRevoked", err)
	}

	if _, err := svc.Authenticate(t.Context(), refreshed.Token); err != nil {
		t.Errorf("Authenticate(new) error = %v", err)
	}
}

func TestService_Refresh_Failures(t *testing.T) {
	svc, db := newTestService(t, time.Hour)
	profile := registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	t.Run("expired token", func(t *testing.T) {
		short, _ := newTestService(t, time.Nanosecond)
		registerTestAccount(t, short, "jdoe", "jdoe@example.com", testPassword)
		login, err := short.Login(t.Context(), "jdoe", testPassword)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)

		if _, err := short.Refresh(t.Context(), login.Token); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("Refresh() error = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		forger, err := NewTokenCodec("a-completely-different-secret-value!!", time.Hour)
		if err != nil {
			t.Fatalf("NewTokenCodec() error = %v", err)
		}
		forged, _, err := forger.Issue(&Account{ID: profile.ID, Username: "jdoe"})
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}

		if _, err := svc.Refresh(t.Context(), forged); !errors.Is(err, ErrTokenBadSignature) {
			t.Errorf("Refresh() error = %v, want ErrTokenBadSignature", err)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		if _, err := svc.Refresh(t.Context(), "not-a-token"); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Refresh() error = %v, want ErrTokenMalformed", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		login, err := svc.Login(t.Context(), "jdoe", testPassword)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if err := svc.directory.SetActive(t.Context(), profile.ID, false); err != nil {
			t.Fatalf("SetActive() error = %v", err)
		}
		t.Cleanup(func() {
			// t.Context() is already canceled when cleanup runs.
			if err := svc.directory.SetActive(context.Background(), profile.ID, true); err != nil {
				t.Fatalf("SetActive() error = %v", err)
			}
		})

		if _, err := svc.Refresh(t.Context(), login.Token); !errors.Is(err, ErrAccountInactive) {
			t.Errorf("Refresh() error = %v, want ErrAccountInactive", err)
		}
	})

	t.Run("deleted account", func(t *testing.T) {
		login, err := svc.Login(t.Context(), "jdoe", testPassword)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if _, err := db.Exec("DELETE FROM accounts WHERE id = ?", profile.ID); err != nil {
			t.Fatalf("deleting account row: %v", err)
		}

		if _, err := svc.Refresh(t.Context(), login.Token); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("Refresh() error = %v, want ErrAccountNotFound", err)
		}
	})
}

func TestService_Logout(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	login, err := svc.Login(t.Context(), "jdoe", testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	svc.Logout(t.Context(), login.Token)

	if _, err := svc.Authenticate(t.Context(), login.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Authenticate() after logout error = %v, want ErrTokenRevoked", err)
	}
	if _, err := svc.Refresh(t.Context(), login.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Refresh() after logout error = %v, want ErrTokenRevoked", err)
	}
}

func TestService_Logout_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	// Best-effort contract: none of these may panic or error out.
	svc.Logout(t.Context(), "")
	svc.Logout(t.Context(), "garbage")
	svc.Logout(t.Context(), "aa.bb.cc")
}

func TestService_Authenticate(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	profile := registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	login, err := svc.Login(t.Context(), "jdoe", testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := svc.Authenticate(t.Context(), login.Token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if claims.Subject != profile.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, profile.ID)
	}
	if claims.Username != "jdoe" {
		t.Errorf("Username = %q, want jdoe", claims.Username)
	}

	if _, err := svc.Authenticate(t.Context(), "garbage"); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("Authenticate(garbage) error = %v, want ErrTokenMalformed", err)
	}
}

func TestService_ChangePassword(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	profile := registerTestAccount(t, svc, "jdoe", "jdoe@example.com", testPassword)

	const newPassword = "N3w!Password"

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(t.Context(), profile.ID, "Wr0ng!Password", newPassword)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("ChangePassword() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("weak new password", func(t *testing.T) {
		err := svc.ChangePassword(t.Context(), profile.ID, testPassword, "weak")
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("ChangePassword() error = %v, want *ValidationError", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		if err := svc.ChangePassword(t.Context(), profile.ID, testPassword, newPassword); err != nil {
			t.Fatalf("ChangePassword() error = %v", err)
		}

		if _, err := svc.Login(t.Context(), "jdoe", testPassword); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(old password) error = %v, want ErrInvalidCredentials", err)
		}
		if _, err := svc.Login(t.Context(), "jdoe", newPassword); err != nil {
			t.Errorf("Login(new password) error = %v", err)
		}
	})
}
