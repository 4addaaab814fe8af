package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// AccountIDKey is the context key for the authenticated account id
	AccountIDKey ContextKey = "account_id"
	// UsernameKey is the context key for the authenticated username
	UsernameKey ContextKey = "username"
	// RoleKey is the context key for the authenticated role
	RoleKey ContextKey = "role"
)

// WithAccount stores the authenticated identity on the context.
func WithAccount(ctx context.Context, accountID, username, role string) context.Context {
	ctx = context.WithValue(ctx, AccountIDKey, accountID)
	ctx = context.WithValue(ctx, UsernameKey, username)
	ctx = context.WithValue(ctx, RoleKey, role)
	return ctx
}

// ExtractAccountID extracts the account id from the request context
func ExtractAccountID(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(AccountIDKey).(string)
	return accountID, ok
}

// ExtractUsername extracts the username from the request context
func ExtractUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// ExtractRole extracts the role from the request context
func ExtractRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}
