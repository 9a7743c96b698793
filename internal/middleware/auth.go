package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxwatch/voxwatch/internal/auth"
	"github.com/voxwatch/voxwatch/internal/domain"
)

// AccountLookup resolves accounts by their API key ID.
type AccountLookup interface {
	GetAccountByAPIKeyID(ctx context.Context, apiKeyID string) (*domain.Account, error)
}

// APIKeyMiddleware authenticates requests by bearer API key.
type APIKeyMiddleware struct {
	accounts AccountLookup
	logger   *slog.Logger
}

// NewAPIKeyMiddleware creates API key authentication middleware.
func NewAPIKeyMiddleware(accounts AccountLookup, logger *slog.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		accounts: accounts,
		logger:   logger,
	}
}

// RequireAccount returns middleware that rejects requests without a
// valid API key and stores the resolved account in the request context.
func (m *APIKeyMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := m.authenticate(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"error":"invalid or missing API key"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetAccount(r.Context(), account)))
	})
}

func (m *APIKeyMiddleware) authenticate(r *http.Request) (*domain.Account, bool) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return nil, false
	}

	key, err := auth.ParseAPIKey(raw)
	if err != nil {
		return nil, false
	}

	account, err := m.accounts.GetAccountByAPIKeyID(r.Context(), key.ID)
	if err != nil {
		// Not distinguishing lookup errors from unknown keys in the
		// response; log for operators.
		m.logger.Debug("API key lookup failed", "key_id", key.ID, "error", err)
		return nil, false
	}

	if !auth.VerifyAPIKey(account.APIKeyHash, key.Secret) {
		return nil, false
	}

	return account, true
}
