package filestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/arturkam25/intelplatform/internal/account"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.csv")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func testAccount(username, email string) *account.Account {
	return &account.Account{
		Username:     username,
		PasswordHash: "$2a$12$fakehashfakehashfakehashfakehashfakehashfakehashfake",
		Role:         account.RoleUser,
		Email:        email,
		RecoveryCode: "AB12-CD34-" + username[:2] + "56",
		LicenseKey:   "ZZ99-YY88-" + username[:2] + "77",
	}
}

func TestInsertAndReload(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	a := testAccount("alice", "alice@x.com")
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatal("Insert did not assign an id")
	}

	// A fresh Open must see exactly what was written.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername after reload: %v", err)
	}
	if got.ID != a.ID || got.Email != "alice@x.com" || got.RecoveryCode != a.RecoveryCode {
		t.Errorf("reloaded account differs: %+v", got)
	}
}

func TestUniquenessRules(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	if err := s.Insert(ctx, testAccount("alice", "alice@x.com")); err != nil {
		t.Fatal(err)
	}

	if err := s.Insert(ctx, testAccount("alice", "other@x.com")); !errors.Is(err, account.ErrDuplicateUsername) {
		t.Errorf("duplicate username: err = %v", err)
	}

	b := testAccount("bobby", "alice@x.com")
	if err := s.Insert(ctx, b); !errors.Is(err, account.ErrDuplicateEmail) {
		t.Errorf("duplicate email: err = %v", err)
	}

	c := testAccount("carol", "carol@x.com")
	c.RecoveryCode = "AB12-CD34-al56" // collides with alice
	if err := s.Insert(ctx, c); !errors.Is(err, account.ErrDuplicateCredential) {
		t.Errorf("duplicate recovery code: err = %v", err)
	}

	// Accounts without an email never collide on the empty string.
	d := testAccount("dave1", "")
	e := testAccount("erin1", "")
	if err := s.Insert(ctx, d); err != nil {
		t.Fatalf("insert dave1: %v", err)
	}
	if err := s.Insert(ctx, e); err != nil {
		t.Fatalf("insert erin1 with empty email: %v", err)
	}
}

func TestApplyFailedAttempt(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	a := testAccount("alice", "")
	if err := s.Insert(ctx, a); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		attempts, disabled, err := s.ApplyFailedAttempt(ctx, a.ID, 3)
		if err != nil {
			t.Fatalf("ApplyFailedAttempt %d: %v", i, err)
		}
		if attempts != i {
			t.Errorf("attempt %d: counter = %d", i, attempts)
		}
		if disabled != (i >= 3) {
			t.Errorf("attempt %d: disabled = %v", i, disabled)
		}
	}

	// Failures past the threshold must not push the counter out of range.
	for i := 0; i < 2; i++ {
		attempts, disabled, err := s.ApplyFailedAttempt(ctx, a.ID, 3)
		if err != nil {
			t.Fatalf("ApplyFailedAttempt past threshold: %v", err)
		}
		if attempts != 3 || !disabled {
			t.Errorf("counter left the cap: attempts = %d, disabled = %v", attempts, disabled)
		}
	}
}

func TestDelimiterInFieldRoundTrips(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	// bcrypt hashes never contain commas, but the store must not depend on
	// that; csv quoting has to carry any field content.
	a := testAccount("alice", "alice@x.com")
	a.PasswordHash = `$2a$12$with,comma,and"quote`
	if err := s.Insert(ctx, a); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PasswordHash != a.PasswordHash {
		t.Errorf("hash corrupted by persistence: %q", got.PasswordHash)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	a := testAccount("alice", "")
	if err := s.Insert(ctx, a); err != nil {
		t.Fatal(err)
	}

	a.Disabled = true
	a.FailedAttempts = 3
	if err := s.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.GetByID(ctx, a.ID)
	if !got.Disabled || got.FailedAttempts != 3 {
		t.Errorf("update not applied: %+v", got)
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, account.ErrStoreNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestPersistenceRoundTripProperty(t *testing.T) {
	usernameGen := rapid.StringMatching(`[a-zA-Z0-9]{3,20}`)
	hashGen := rapid.StringN(1, 72, 72)

	base := t.TempDir()
	iteration := 0

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		iteration++
		path := filepath.Join(base, fmt.Sprintf("accounts-%d.csv", iteration))
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		a := &account.Account{
			Username:     usernameGen.Draw(t, "username"),
			PasswordHash: hashGen.Draw(t, "hash"),
			Role:         account.RoleUser,
			RecoveryCode: "AB12-CD34-EF56",
			LicenseKey:   "ZZ99-YY88-XX77",
		}
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		reopened, err := Open(path)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		got, err := reopened.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Username != a.Username || got.PasswordHash != a.PasswordHash {
			t.Fatalf("round trip mangled the record: %+v vs %+v", got, a)
		}
	})
}
