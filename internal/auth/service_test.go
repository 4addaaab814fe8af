package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arturkam25/intelplatform/internal/account"
	"github.com/arturkam25/intelplatform/internal/repository"
)

// memAccountStore is an in-memory account.Store for session flow tests.
type memAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account.Account
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: make(map[uuid.UUID]*account.Account)}
}

func (m *memAccountStore) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrStoreNotFound
}

func (m *memAccountStore) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email != "" && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrStoreNotFound
}

func (m *memAccountStore) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, account.ErrStoreNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountStore) Insert(_ context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Username == a.Username {
			return account.ErrDuplicateUsername
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memAccountStore) Update(_ context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; !ok {
		return account.ErrStoreNotFound
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memAccountStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return account.ErrStoreNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *memAccountStore) List(_ context.Context) ([]*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*account.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memAccountStore) ApplyFailedAttempt(_ context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, false, account.ErrStoreNotFound
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		a.Disabled = true
	}
	return a.FailedAttempts, a.Disabled, nil
}

// memSessionRepo is an in-memory repository.SessionRepository.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*repository.Session)}
}

func (m *memSessionRepo) Create(_ context.Context, s *repository.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *memSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[tokenHash]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memSessionRepo) DeleteForAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (m *memSessionRepo) CleanupExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for hash, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (m *memSessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

const testPassword = "Sup3rStr0ng!pwd"

func newTestService(t *testing.T) (*Service, *memAccountStore, *memSessionRepo) {
	t.Helper()
	store := newMemAccountStore()
	sessions := newMemSessionRepo()
	accounts := account.NewService(store, account.DefaultServiceConfig(), nil, nil)
	svc := NewService(accounts, newTestTokenService(), sessions, nil)
	return svc, store, sessions
}

func registerTestAccount(t *testing.T, svc *Service, username string) {
	t.Helper()
	if _, err := svc.Accounts().Register(context.Background(), username, testPassword, ""); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
}

func TestLoginCreatesSession(t *testing.T) {
	svc, _, sessions := newTestService(t)
	registerTestAccount(t, svc, "alice")

	result, err := svc.Login(context.Background(), "alice", testPassword, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("missing tokens")
	}
	if result.Profile.Username != "alice" {
		t.Errorf("unexpected profile username %q", result.Profile.Username)
	}
	if sessions.count() != 1 {
		t.Errorf("expected 1 session, got %d", sessions.count())
	}
}

func TestLoginFailurePropagates(t *testing.T) {
	svc, _, sessions := newTestService(t)
	registerTestAccount(t, svc, "alice")

	_, err := svc.Login(context.Background(), "alice", "wrong-password", "", "")
	if !errors.Is(err, account.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if sessions.count() != 0 {
		t.Errorf("failed login must not open a session, got %d", sessions.count())
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, _, sessions := newTestService(t)
	registerTestAccount(t, svc, "alice")

	result, err := svc.Login(context.Background(), "alice", testPassword, "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	tokens, err := svc.Refresh(context.Background(), result.Tokens.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.RefreshToken == result.Tokens.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if sessions.count() != 1 {
		t.Errorf("expected 1 session after rotation, got %d", sessions.count())
	}

	// The consumed token must not work a second time.
	if _, err := svc.Refresh(context.Background(), result.Tokens.RefreshToken, "", ""); !errors.Is(err, account.ErrInvalidCredentials) {
		t.Errorf("expected rotated token to be rejected, got %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Refresh(context.Background(), "not-a-jwt", "", ""); !errors.Is(err, account.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRejectsLockedAccount(t *testing.T) {
	svc, store, sessions := newTestService(t)
	registerTestAccount(t, svc, "alice")

	result, err := svc.Login(context.Background(), "alice", testPassword, "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Lock the account out from under the open session.
	for i := 0; i < account.LockThreshold; i++ {
		_, _ = svc.Login(context.Background(), "alice", "wrong-password", "", "")
	}
	a, err := store.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !a.Disabled {
		t.Fatal("account should be locked")
	}

	if _, err := svc.Refresh(context.Background(), result.Tokens.RefreshToken, "", ""); !errors.Is(err, account.ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
	if sessions.count() != 0 {
		t.Errorf("locked account sessions should be revoked, got %d", sessions.count())
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, sessions := newTestService(t)
	registerTestAccount(t, svc, "alice")

	result, err := svc.Login(context.Background(), "alice", testPassword, "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(context.Background(), result.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sessions.count() != 0 {
		t.Errorf("expected 0 sessions, got %d", sessions.count())
	}
	if err := svc.Logout(context.Background(), result.Tokens.RefreshToken); err != nil {
		t.Errorf("second logout should be a no-op, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	svc, store, sessions := newTestService(t)
	registerTestAccount(t, svc, "alice")

	for i := 0; i < 3; i++ {
		if _, err := svc.Login(context.Background(), "alice", testPassword, "", ""); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	if sessions.count() != 3 {
		t.Fatalf("expected 3 sessions, got %d", sessions.count())
	}

	a, err := store.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := svc.LogoutAll(context.Background(), a.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if sessions.count() != 0 {
		t.Errorf("expected 0 sessions, got %d", sessions.count())
	}
}
