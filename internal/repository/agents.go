package repository

import (
	"context"
	"fmt"

	"github.com/voxwatch/voxwatch/internal/domain"
)

// UpsertAgent returns the agent for (customerAgentID, ownerID), creating it
// on first sight. The conflict arm touches updated_at so RETURNING always
// yields a row, whichever branch ran.
func (s *Store) UpsertAgent(ctx context.Context, customerAgentID, ownerID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO agents (customer_agent_id, owner_id)
		 VALUES ($1, $2)
		 ON CONFLICT (customer_agent_id, owner_id)
		 DO UPDATE SET updated_at = now()
		 RETURNING id, customer_agent_id, owner_id, created_at, updated_at`,
		customerAgentID, ownerID)

	var a domain.Agent
	if err := row.Scan(&a.ID, &a.CustomerAgentID, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}
	return &a, nil
}
