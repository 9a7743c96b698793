// Package auth provides authentication context helpers and API key
// verification.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/voxwatch/voxwatch/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// accountContextKey is the key used to store the authenticated account in context.
	accountContextKey contextKey = "account"
)

// GetAccount retrieves the authenticated account from the context.
//
// Returns nil if no account is authenticated.
func GetAccount(ctx context.Context) *domain.Account {
	account, ok := ctx.Value(accountContextKey).(*domain.Account)
	if !ok {
		return nil
	}
	return account
}

// GetAccountFromRequest retrieves the authenticated account from the
// request context.
func GetAccountFromRequest(r *http.Request) *domain.Account {
	return GetAccount(r.Context())
}

// SetAccount stores an account in the context.
//
// This is typically called by authentication middleware after verifying
// an API key.
func SetAccount(ctx context.Context, account *domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}
