package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voxwatch/voxwatch/internal/domain"
)

const accountColumns = `id, name, paid_plan, free_calls_remaining, api_key_id, api_key_hash, created_at`

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.PaidPlan, &a.FreeCallsRemaining, &a.APIKeyID, &a.APIKeyHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

// GetAccount fetches an account by its external identity id.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountByAPIKeyID fetches an account by the public half of its API key.
func (s *Store) GetAccountByAPIKeyID(ctx context.Context, keyID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE api_key_id = $1`, keyID)
	return scanAccount(row)
}

// CreateAccount inserts a new account row.
func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, paid_plan, free_calls_remaining, api_key_id, api_key_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Name, a.PaidPlan, a.FreeCallsRemaining, a.APIKeyID, a.APIKeyHash)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// DecrementFreeCalls atomically decrements the free-call counter if it is
// still positive. The WHERE clause makes the remaining-check and the
// decrement a single statement, so two concurrent submissions cannot both
// consume the last free call. Returns true if a call was consumed.
func (s *Store) DecrementFreeCalls(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts
		 SET free_calls_remaining = free_calls_remaining - 1
		 WHERE id = $1 AND free_calls_remaining > 0`, id)
	if err != nil {
		return false, fmt.Errorf("decrement free calls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement free calls: %w", err)
	}
	return n > 0, nil
}
