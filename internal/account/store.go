package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Store errors. Implementations must return these (possibly wrapped) so the
// service can translate them into its own taxonomy.
var (
	// ErrStoreNotFound is returned when no account matches the key.
	ErrStoreNotFound = errors.New("account record not found")
	// ErrDuplicateUsername is returned by Insert and Update when the
	// username is already taken by another account.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrDuplicateEmail is returned when a non-empty email is already
	// registered to another account.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateCredential is returned when a generated recovery code or
	// license key collides with an existing one. The service regenerates
	// and retries.
	ErrDuplicateCredential = errors.New("duplicate recovery credential")
)

// Store is the durable account store. All mutating calls are atomic with
// respect to concurrent callers: no partial writes are ever visible, and two
// concurrent ApplyFailedAttempt calls for the same account must not lose an
// increment.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// Insert stores a new account and assigns its ID and timestamps.
	Insert(ctx context.Context, a *Account) error

	// Update replaces the full row identified by a.ID.
	Update(ctx context.Context, a *Account) error

	// Delete removes the account by id.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns every account, ordered by username.
	List(ctx context.Context) ([]*Account, error)

	// ApplyFailedAttempt increments the failed-attempt counter and, when the
	// new value reaches threshold, disables the account in the same atomic
	// step. The counter saturates at threshold, so it always stays in
	// [0, threshold]. It returns the counter and disabled flag after the
	// update. There is never a window where the counter has reached the
	// threshold but the account is still enabled.
	ApplyFailedAttempt(ctx context.Context, id uuid.UUID, threshold int) (attempts int, disabled bool, err error)
}
