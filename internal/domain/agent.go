package domain

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a voice agent that calls are attributed to. Agents are created
// lazily the first time a call references the (CustomerAgentID, OwnerID)
// pair and are never deleted by the ingestion path.
type Agent struct {
	ID              uuid.UUID
	CustomerAgentID string // identifier the customer uses for this agent
	OwnerID         string // owning account
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
