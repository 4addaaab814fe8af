// Package filestore is a file-backed account store for the terminal client.
// Records are CSV rows in a fixed field order; encoding/csv handles quoting,
// so a field containing the delimiter round-trips instead of corrupting the
// row. The whole file is rewritten through a temp file and rename on every
// mutation, and all operations run under one mutex, which makes
// increment-and-lock atomic for a single process.
package filestore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturkam25/intelplatform/internal/account"
)

// recordFields is the exact column count of one account row:
// username, password_hash, failed_attempts, disabled, role, email,
// recovery_code, license_key, id, created_at. Rows of any other width are
// rejected at load; schema evolution is a migration, not read-time sniffing.
const recordFields = 10

// Store implements account.Store on a single CSV file.
type Store struct {
	mu       sync.Mutex
	path     string
	accounts map[uuid.UUID]*account.Account
}

// Open loads the store file, creating it empty when absent.
func Open(path string) (*Store, error) {
	s := &Store{path: path, accounts: make(map[uuid.UUID]*account.Account)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening account file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = recordFields
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading account file: %w", err)
		}
		a, err := parseRecord(row)
		if err != nil {
			return fmt.Errorf("parsing account record: %w", err)
		}
		s.accounts[a.ID] = a
	}
}

func parseRecord(row []string) (*account.Account, error) {
	attempts, err := strconv.Atoi(row[2])
	if err != nil || attempts < 0 {
		return nil, fmt.Errorf("bad failed_attempts %q", row[2])
	}
	if row[3] != "0" && row[3] != "1" {
		return nil, fmt.Errorf("bad disabled flag %q", row[3])
	}
	id, err := uuid.Parse(row[8])
	if err != nil {
		return nil, fmt.Errorf("bad account id %q: %w", row[8], err)
	}
	created, err := time.Parse(time.RFC3339, row[9])
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", row[9], err)
	}
	return &account.Account{
		ID:             id,
		Username:       row[0],
		PasswordHash:   row[1],
		FailedAttempts: attempts,
		Disabled:       row[3] == "1",
		Role:           account.Role(row[4]),
		Email:          row[5],
		RecoveryCode:   row[6],
		LicenseKey:     row[7],
		CreatedAt:      created,
	}, nil
}

func record(a *account.Account) []string {
	disabled := "0"
	if a.Disabled {
		disabled = "1"
	}
	return []string{
		a.Username,
		a.PasswordHash,
		strconv.Itoa(a.FailedAttempts),
		disabled,
		string(a.Role),
		a.Email,
		a.RecoveryCode,
		a.LicenseKey,
		a.ID.String(),
		a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// flush writes every account to a temp file and renames it over the store
// file, so a crash mid-write never leaves a half-written store behind.
func (s *Store) flush() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".accounts-*")
	if err != nil {
		return fmt.Errorf("creating temp account file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	ids := make([]uuid.UUID, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.accounts[ids[i]].Username < s.accounts[ids[j]].Username
	})
	for _, id := range ids {
		if err := w.Write(record(s.accounts[id])); err != nil {
			tmp.Close()
			return fmt.Errorf("writing account record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing account file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp account file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing account file: %w", err)
	}
	return nil
}

func (s *Store) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrStoreNotFound
}

func (s *Store) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email != "" && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrStoreNotFound
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrStoreNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) Insert(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Username == a.Username {
			return account.ErrDuplicateUsername
		}
		if a.Email != "" && existing.Email == a.Email {
			return account.ErrDuplicateEmail
		}
		if existing.RecoveryCode == a.RecoveryCode || existing.LicenseKey == a.LicenseKey {
			return account.ErrDuplicateCredential
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	s.accounts[a.ID] = &cp
	if err := s.flush(); err != nil {
		delete(s.accounts, a.ID)
		return err
	}
	return nil
}

func (s *Store) Update(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[a.ID]
	if !ok {
		return account.ErrStoreNotFound
	}
	for id, existing := range s.accounts {
		if id == a.ID {
			continue
		}
		if existing.Username == a.Username {
			return account.ErrDuplicateUsername
		}
		if a.Email != "" && existing.Email == a.Email {
			return account.ErrDuplicateEmail
		}
		if existing.RecoveryCode == a.RecoveryCode || existing.LicenseKey == a.LicenseKey {
			return account.ErrDuplicateCredential
		}
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	s.accounts[a.ID] = &cp
	if err := s.flush(); err != nil {
		s.accounts[a.ID] = prev
		return err
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[id]
	if !ok {
		return account.ErrStoreNotFound
	}
	delete(s.accounts, id)
	if err := s.flush(); err != nil {
		s.accounts[id] = prev
		return err
	}
	return nil
}

func (s *Store) List(_ context.Context) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) ApplyFailedAttempt(_ context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return 0, false, account.ErrStoreNotFound
	}
	prev := *a
	// Saturate at the threshold so repeated failures cannot push the
	// counter out of range.
	if a.FailedAttempts < threshold {
		a.FailedAttempts++
	}
	if a.FailedAttempts >= threshold {
		a.Disabled = true
	}
	a.UpdatedAt = time.Now().UTC()
	if err := s.flush(); err != nil {
		*a = prev
		return 0, false, err
	}
	return a.FailedAttempts, a.Disabled, nil
}
