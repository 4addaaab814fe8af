// Package repository provides the PostgreSQL-backed stores of the platform.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkam25/intelplatform/internal/account"
)

// AccountRepository implements account.Store on PostgreSQL. Uniqueness of
// username, email, recovery code, and license key is enforced by indexes;
// the failed-attempt increment and the conditional lock happen in a single
// statement so concurrent failures cannot race.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository on the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, username, password_hash, role, disabled, email,
	license_key, recovery_code, failed_attempts, created_at, updated_at`

func scanAccount(row pgx.Row) (*account.Account, error) {
	a := &account.Account{}
	var email *string
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.Role,
		&a.Disabled,
		&email,
		&a.LicenseKey,
		&a.RecoveryCode,
		&a.FailedAttempts,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrStoreNotFound
		}
		return nil, err
	}
	if email != nil {
		a.Email = *email
	}
	return a, nil
}

// nullableEmail maps the empty string to NULL so the partial unique index on
// email never treats two email-less accounts as duplicates.
func nullableEmail(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}

// translateConflict maps a unique-violation to the store error the service
// understands. Anything else passes through untouched.
func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "accounts_username_key", "idx_accounts_username":
		return account.ErrDuplicateUsername
	case "idx_accounts_email":
		return account.ErrDuplicateEmail
	case "idx_accounts_recovery_code", "idx_accounts_license_key":
		return account.ErrDuplicateCredential
	}
	return err
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) Insert(ctx context.Context, a *account.Account) error {
	query := `
		INSERT INTO accounts (username, password_hash, role, disabled, email,
			license_key, recovery_code, failed_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		a.Username,
		a.PasswordHash,
		a.Role,
		a.Disabled,
		nullableEmail(a.Email),
		a.LicenseKey,
		a.RecoveryCode,
		a.FailedAttempts,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return translateConflict(err)
	}
	return nil
}

func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	query := `
		UPDATE accounts
		SET username = $2,
			password_hash = $3,
			role = $4,
			disabled = $5,
			email = $6,
			license_key = $7,
			recovery_code = $8,
			failed_attempts = $9,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Username,
		a.PasswordHash,
		a.Role,
		a.Disabled,
		nullableEmail(a.Email),
		a.LicenseKey,
		a.RecoveryCode,
		a.FailedAttempts,
	)
	if err != nil {
		return translateConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrStoreNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrStoreNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY username`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ApplyFailedAttempt is one round trip: the counter moves and the account is
// disabled, when the threshold is hit, in the same row update. Two
// concurrent calls serialize on the row lock, so an increment is never lost
// and disabled=false with attempts at the threshold is unrepresentable.
// The counter saturates at the threshold; attempts already at the cap no
// longer move it.
func (r *AccountRepository) ApplyFailedAttempt(ctx context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = LEAST(failed_attempts + 1, $2),
			disabled = disabled OR failed_attempts + 1 >= $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts, disabled
	`
	var attempts int
	var disabled bool
	err := r.pool.QueryRow(ctx, query, id, threshold).Scan(&attempts, &disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, account.ErrStoreNotFound
		}
		return 0, false, err
	}
	return attempts, disabled, nil
}
