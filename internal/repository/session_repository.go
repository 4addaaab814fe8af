package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when no session matches the token hash.
var ErrSessionNotFound = errors.New("session not found")

// Session is one refresh-token session. Only the SHA-256 hash of the token
// is stored; the token itself never touches the database.
type Session struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	IPAddress *string
	UserAgent *string
}

// SessionRepository is the store for refresh-token sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteForAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a SessionRepository on PostgreSQL.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (account_id, token_hash, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.pool.QueryRow(ctx, query,
		session.AccountID,
		session.TokenHash,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
	).Scan(&session.ID, &session.CreatedAt)
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, created_at, ip_address, user_agent
		FROM sessions
		WHERE token_hash = $1
	`
	s := &Session{}
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID,
		&s.AccountID,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.IPAddress,
		&s.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteForAccount drops every session of an account. Called when the
// account is deleted or its password changes out from under a session.
func (r *sessionRepository) DeleteForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *sessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
