package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// mockStore implements Store in memory with the same atomicity guarantees the
// contract demands: every mutation runs under one lock.
type mockStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account

	insertCalls int
	failInsert  error
	failUpdate  error
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[uuid.UUID]*Account)}
}

func (m *mockStore) GetByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *mockStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email != "" && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrStoreNotFound
}

func (m *mockStore) Insert(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.failInsert != nil {
		err := m.failInsert
		m.failInsert = nil
		return err
	}
	for _, existing := range m.accounts {
		if existing.Username == a.Username {
			return ErrDuplicateUsername
		}
		if a.Email != "" && existing.Email == a.Email {
			return ErrDuplicateEmail
		}
		if existing.RecoveryCode == a.RecoveryCode || existing.LicenseKey == a.LicenseKey {
			return ErrDuplicateCredential
		}
	}
	a.ID = uuid.New()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *mockStore) Update(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.accounts[a.ID]; !ok {
		return ErrStoreNotFound
	}
	for id, existing := range m.accounts {
		if id != a.ID && existing.Username == a.Username {
			return ErrDuplicateUsername
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *mockStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return ErrStoreNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockStore) List(_ context.Context) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) ApplyFailedAttempt(_ context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, false, ErrStoreNotFound
	}
	if a.FailedAttempts < threshold {
		a.FailedAttempts++
	}
	if a.FailedAttempts >= threshold {
		a.Disabled = true
	}
	return a.FailedAttempts, a.Disabled, nil
}

func (m *mockStore) snapshot(t *testing.T, username string) *Account {
	t.Helper()
	a, err := m.GetByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("account %q not in store: %v", username, err)
	}
	return a
}

func newTestService(store *mockStore) *Service {
	return NewService(store, DefaultServiceConfig(), nil, nil)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)

	res, err := svc.Register(ctx, "alice", "Str0ng!Pass", "alice@x.com")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(res.RecoveryCode) != 14 {
		t.Errorf("recovery code %q has length %d, want 14", res.RecoveryCode, len(res.RecoveryCode))
	}
	if !credentialFormat.MatchString(res.RecoveryCode) {
		t.Errorf("recovery code %q breaks format", res.RecoveryCode)
	}
	if !credentialFormat.MatchString(res.LicenseKey) {
		t.Errorf("license key %q breaks format", res.LicenseKey)
	}
	if res.Account.Role != RoleUser {
		t.Errorf("role = %q, want user", res.Account.Role)
	}

	stored := store.snapshot(t, "alice")
	if stored.PasswordHash == "Str0ng!Pass" || stored.PasswordHash == "" {
		t.Error("password stored in plaintext or not at all")
	}
	if stored.FailedAttempts != 0 || stored.Disabled {
		t.Error("fresh account is not active with zero failed attempts")
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		email    string
		wantErr  error
	}{
		{"username too short", "al", "Str0ng!Pass", "", ErrInvalidUsername},
		{"username too long", "abcdefghijklmnopqrstu", "Str0ng!Pass", "", ErrInvalidUsername},
		{"username not alphanumeric", "al_ice", "Str0ng!Pass", "", ErrInvalidUsername},
		{"bad email", "alice", "Str0ng!Pass", "not-an-email", ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			svc := newTestService(store)
			_, err := svc.Register(ctx, tt.username, tt.password, tt.email)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register = %v, want %v", err, tt.wantErr)
			}
			if store.insertCalls != 0 {
				t.Error("store touched despite a format rejection")
			}
		})
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)

	_, err := svc.Register(ctx, "alice", "weak", "")
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("Register = %v, want WeakPasswordError", err)
	}
	if len(weak.Reasons) == 0 {
		t.Error("WeakPasswordError carries no reasons")
	}
	if store.insertCalls != 0 {
		t.Error("store touched despite weak password")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)

	mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")
	_, err := svc.Register(ctx, "alice", "0ther!Pass", "other@x.com")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate register = %v, want ErrConflict", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)

	mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")
	_, err := svc.Register(ctx, "bob", "0ther!Pass", "alice@x.com")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email register = %v, want ErrEmailTaken", err)
	}
	if errors.Is(err, ErrInvalidEmail) {
		t.Error("well-formed taken email reported as a format error")
	}
}

func TestRegisterRetriesOnCredentialCollision(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	store.failInsert = ErrDuplicateCredential
	svc := newTestService(store)

	if _, err := svc.Register(ctx, "alice", "Str0ng!Pass", ""); err != nil {
		t.Fatalf("Register did not retry after credential collision: %v", err)
	}
	if store.insertCalls != 2 {
		t.Errorf("insert called %d times, want 2", store.insertCalls)
	}
}

func TestRegisterBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMockStore())

	res, err := svc.Register(ctx, "Admin", "Str0ng!Pass", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Account.Role != RoleAdmin {
		t.Errorf("bootstrap username got role %q, want admin", res.Account.Role)
	}
}

func TestLoginLockoutScenario(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)

	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")

	// Two wrong attempts leave the account active.
	for i := 1; i <= 2; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: err = %v, want ErrInvalidCredentials", i, err)
		}
		a := store.snapshot(t, "alice")
		if a.FailedAttempts != i || a.Disabled {
			t.Fatalf("attempt %d: attempts=%d disabled=%v", i, a.FailedAttempts, a.Disabled)
		}
	}

	// The third wrong attempt locks in the same step as the increment.
	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrLockedNow) {
		t.Fatalf("third attempt: err = %v, want ErrLockedNow", err)
	}
	a := store.snapshot(t, "alice")
	if a.FailedAttempts != 3 || !a.Disabled {
		t.Fatalf("after lock: attempts=%d disabled=%v", a.FailedAttempts, a.Disabled)
	}

	// Even the correct password is refused on a locked account, and the
	// counter does not move.
	if _, err := svc.Login(ctx, "alice", "Str0ng!Pass"); !errors.Is(err, ErrLocked) {
		t.Fatalf("locked login: err = %v, want ErrLocked", err)
	}
	if got := store.snapshot(t, "alice").FailedAttempts; got != 3 {
		t.Fatalf("locked login moved the counter to %d", got)
	}

	// Recovery with the code unlocks and resets.
	if err := svc.RecoverPassword(ctx, "alice", "alice@x.com", res.RecoveryCode, "NewPass1!"); err != nil {
		t.Fatalf("RecoverPassword: %v", err)
	}
	profile, err := svc.Login(ctx, "alice", "NewPass1!")
	if err != nil {
		t.Fatalf("login after recovery: %v", err)
	}
	if profile.FailedAttempts != 0 {
		t.Errorf("failed attempts after recovery = %d, want 0", profile.FailedAttempts)
	}
}

func TestLoginSuccessResetsAttempts(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	mustRegister(t, svc, "alice", "Str0ng!Pass", "")

	if _, err := svc.Login(ctx, "alice", "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := svc.Login(ctx, "alice", "Str0ng!Pass"); err != nil {
		t.Fatalf("correct login: %v", err)
	}
	if got := store.snapshot(t, "alice").FailedAttempts; got != 0 {
		t.Errorf("attempts after success = %d, want 0", got)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	ctx := context.Background()

	// Hardened default: same error for unknown user and wrong password.
	svc := newTestService(newMockStore())
	if _, err := svc.Login(ctx, "ghost", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("hardened mode: err = %v, want ErrInvalidCredentials", err)
	}

	// Verbose mode keeps the legacy distinction.
	cfg := DefaultServiceConfig()
	cfg.VerboseLoginErrors = true
	verbose := NewService(newMockStore(), cfg, nil, nil)
	if _, err := verbose.Login(ctx, "ghost", "whatever"); !errors.Is(err, ErrNotFound) {
		t.Errorf("verbose mode: err = %v, want ErrNotFound", err)
	}
}

func TestLoginVerboseAttemptsRemaining(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	cfg := DefaultServiceConfig()
	cfg.VerboseLoginErrors = true
	svc := NewService(store, cfg, nil, nil)
	mustRegister(t, svc, "alice", "Str0ng!Pass", "")

	_, err := svc.Login(ctx, "alice", "wrong")
	var wrong *WrongPasswordError
	if !errors.As(err, &wrong) {
		t.Fatalf("err = %v, want WrongPasswordError", err)
	}
	if wrong.AttemptsLeft != 2 {
		t.Errorf("attempts left = %d, want 2", wrong.AttemptsLeft)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "")
	id := uuid.MustParse(res.Account.ID)

	if err := svc.ChangePassword(ctx, id, "wrong", "NewPass1!"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("wrong current password: err = %v, want ErrAuthFailed", err)
	}
	if err := svc.ChangePassword(ctx, id, "Str0ng!Pass", "Str0ng!Pass"); !errors.Is(err, ErrSamePassword) {
		t.Errorf("same password: err = %v, want ErrSamePassword", err)
	}

	var weak *WeakPasswordError
	if err := svc.ChangePassword(ctx, id, "Str0ng!Pass", "weak"); !errors.As(err, &weak) {
		t.Errorf("weak password: err = %v, want WeakPasswordError", err)
	}

	if err := svc.ChangePassword(ctx, id, "Str0ng!Pass", "NewPass1!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "NewPass1!"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestChangePasswordResetsLockState(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "")
	id := uuid.MustParse(res.Account.ID)

	_, _ = svc.Login(ctx, "alice", "wrong")
	if err := svc.ChangePassword(ctx, id, "Str0ng!Pass", "NewPass1!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	a := store.snapshot(t, "alice")
	if a.FailedAttempts != 0 || a.Disabled {
		t.Errorf("hash updated without resetting attempts/disabled: attempts=%d disabled=%v",
			a.FailedAttempts, a.Disabled)
	}
}

func TestAdminResetPassword(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	adminRes := mustRegister(t, svc, "admin", "Adm1n!Pass", "")
	mustRegister(t, svc, "bob", "B0bs!Pass1", "")
	adminID := uuid.MustParse(adminRes.Account.ID)

	if err := svc.AdminResetPassword(ctx, adminID, "wrong", "bob", "NewPass1!"); !errors.Is(err, ErrAdminAuthFailed) {
		t.Errorf("bad admin password: err = %v, want ErrAdminAuthFailed", err)
	}
	if err := svc.AdminResetPassword(ctx, adminID, "Adm1n!Pass", "ghost", "NewPass1!"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing target: err = %v, want ErrNotFound", err)
	}
	if err := svc.AdminResetPassword(ctx, adminID, "Adm1n!Pass", "bob", "NewPass1!"); err != nil {
		t.Fatalf("AdminResetPassword: %v", err)
	}
	if _, err := svc.Login(ctx, "bob", "NewPass1!"); err != nil {
		t.Errorf("login with reset password: %v", err)
	}
}

func TestAdminResetPasswordRequiresAdminRole(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	userRes := mustRegister(t, svc, "mallory", "Mall0ry!Pw", "")
	mustRegister(t, svc, "bob", "B0bs!Pass1", "")

	err := svc.AdminResetPassword(ctx, uuid.MustParse(userRes.Account.ID), "Mall0ry!Pw", "bob", "NewPass1!")
	if !errors.Is(err, ErrAdminAuthFailed) {
		t.Errorf("non-admin reset: err = %v, want ErrAdminAuthFailed", err)
	}
}

func TestUnlockIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	mustRegister(t, svc, "alice", "Str0ng!Pass", "")

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, "alice", "wrong")
	}
	if !store.snapshot(t, "alice").Disabled {
		t.Fatal("account not locked after three failures")
	}

	if err := svc.Unlock(ctx, "alice"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	a := store.snapshot(t, "alice")
	if a.Disabled || a.FailedAttempts != 0 {
		t.Fatalf("after unlock: disabled=%v attempts=%d", a.Disabled, a.FailedAttempts)
	}

	// Second unlock is a no-op success.
	if err := svc.Unlock(ctx, "alice"); err != nil {
		t.Fatalf("idempotent unlock: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "Str0ng!Pass"); err != nil {
		t.Errorf("login after unlock: %v", err)
	}
}

func TestRecoverPassword(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")

	tests := []struct {
		name     string
		username string
		email    string
		proof    string
		password string
		wantErr  error
	}{
		{"unknown user", "ghost", "alice@x.com", res.RecoveryCode, "NewPass1!", ErrNotFound},
		{"email mismatch", "alice", "bob@x.com", res.RecoveryCode, "NewPass1!", ErrEmailMismatch},
		{"bad proof", "alice", "alice@x.com", "QQ11-QQ11-QQ11", "NewPass1!", ErrInvalidProof},
		{"same password", "alice", "alice@x.com", res.RecoveryCode, "Str0ng!Pass", ErrSamePassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RecoverPassword(ctx, tt.username, tt.email, tt.proof, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecoverPassword = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Email comparison is case-insensitive, proof is trimmed and
	// case-insensitive.
	err := svc.RecoverPassword(ctx, "alice", "ALICE@X.com", "  "+res.RecoveryCode+" ", "NewPass1!")
	if err != nil {
		t.Fatalf("RecoverPassword with loose casing: %v", err)
	}
}

func TestRecoverPasswordWeakNeverHashes(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")
	before := store.snapshot(t, "alice").PasswordHash

	var weak *WeakPasswordError
	err := svc.RecoverPassword(ctx, "alice", "alice@x.com", res.RecoveryCode, "weak")
	if !errors.As(err, &weak) {
		t.Fatalf("err = %v, want WeakPasswordError", err)
	}
	if store.snapshot(t, "alice").PasswordHash != before {
		t.Error("weak recovery attempt changed the stored hash")
	}
}

func TestRecoverPasswordAcceptsLicenseKey(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")

	if res.LicenseKey == res.RecoveryCode {
		t.Fatal("license key and recovery code are identical")
	}
	if err := svc.RecoverPassword(ctx, "alice", "alice@x.com", res.LicenseKey, "NewPass1!"); err != nil {
		t.Fatalf("RecoverPassword with license key: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "NewPass1!"); err != nil {
		t.Errorf("login after license-key recovery: %v", err)
	}
}

func TestRecoverUsername(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")

	name, err := svc.RecoverUsername(ctx, "Alice@X.com", res.RecoveryCode)
	if err != nil {
		t.Fatalf("RecoverUsername: %v", err)
	}
	if name != "alice" {
		t.Errorf("recovered username %q, want alice", name)
	}

	if _, err := svc.RecoverUsername(ctx, "ghost@x.com", res.RecoveryCode); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown email: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.RecoverUsername(ctx, "alice@x.com", "QQ11-QQ11-QQ11"); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("bad proof: err = %v, want ErrInvalidProof", err)
	}
}

func TestDeleteSelf(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "")
	id := uuid.MustParse(res.Account.ID)

	if err := svc.DeleteSelf(ctx, id, "wrong"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("wrong password: err = %v, want ErrAuthFailed", err)
	}
	if err := svc.DeleteSelf(ctx, id, "Str0ng!Pass"); err != nil {
		t.Fatalf("DeleteSelf: %v", err)
	}
	if _, err := store.GetByUsername(ctx, "alice"); !errors.Is(err, ErrStoreNotFound) {
		t.Error("account survived self-delete")
	}
}

func TestAdminDelete(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	mustRegister(t, svc, "admin", "Adm1n!Pass", "")
	mustRegister(t, svc, "bob", "B0bs!Pass1", "")

	if err := svc.AdminDelete(ctx, "admin", "admin"); !errors.Is(err, ErrSelfDeleteForbidden) {
		t.Errorf("self delete: err = %v, want ErrSelfDeleteForbidden", err)
	}
	if err := svc.AdminDelete(ctx, "admin", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing target: err = %v, want ErrNotFound", err)
	}
	if err := svc.AdminDelete(ctx, "admin", "bob"); err != nil {
		t.Fatalf("AdminDelete: %v", err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "")
	mustRegister(t, svc, "bob", "B0bs!Pass1", "")
	id := uuid.MustParse(res.Account.ID)

	if err := svc.Rename(ctx, id, "a"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("bad new name: err = %v, want ErrInvalidUsername", err)
	}
	if err := svc.Rename(ctx, id, "bob"); !errors.Is(err, ErrConflict) {
		t.Errorf("taken name: err = %v, want ErrConflict", err)
	}
	if err := svc.Rename(ctx, id, "alice2"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := svc.Login(ctx, "alice2", "Str0ng!Pass"); err != nil {
		t.Errorf("login under new name: %v", err)
	}
}

func TestRegenerateRecoveryCode(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "alice@x.com")
	id := uuid.MustParse(res.Account.ID)

	code, err := svc.RegenerateRecoveryCode(ctx, id, "Str0ng!Pass")
	if err != nil {
		t.Fatalf("RegenerateRecoveryCode: %v", err)
	}
	if !credentialFormat.MatchString(code) {
		t.Errorf("regenerated code %q breaks format", code)
	}

	// Old code is dead, new one works.
	if err := svc.RecoverPassword(ctx, "alice", "alice@x.com", res.RecoveryCode, "NewPass1!"); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("old code still accepted: %v", err)
	}
	if err := svc.RecoverPassword(ctx, "alice", "alice@x.com", code, "NewPass1!"); err != nil {
		t.Errorf("new code rejected: %v", err)
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := newTestService(store)
	res := mustRegister(t, svc, "alice", "Str0ng!Pass", "")
	id := uuid.MustParse(res.Account.ID)

	store.failUpdate = errors.New("disk on fire")
	err := svc.ChangePassword(ctx, id, "Str0ng!Pass", "NewPass1!")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StoreError", err)
	}

	// The record is unchanged: the old password still works.
	store.failUpdate = nil
	if _, err := svc.Login(ctx, "alice", "Str0ng!Pass"); err != nil {
		t.Errorf("old password rejected after failed update: %v", err)
	}
}

func mustRegister(t *testing.T, svc *Service, username, password, email string) *RegisterResult {
	t.Helper()
	res, err := svc.Register(context.Background(), username, password, email)
	if err != nil {
		t.Fatalf("register %q: %v", username, err)
	}
	return res
}
