package catalog

import (
	"context"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AgentRepository defines the interface for agent persistence
type AgentRepository interface {
	// FindByID finds an agent by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Agent, error)

	// FindByName finds an agent by its unique name
	FindByName(ctx context.Context, name string) (*Agent, error)

	// FindAll finds agents with filtering and pagination
	FindAll(ctx context.Context, filter shared.Filter) ([]Agent, error)

	// FindActive finds all active agents
	FindActive(ctx context.Context, filter shared.Filter) ([]Agent, error)

	// Save creates or updates an agent
	Save(ctx context.Context, agent *Agent) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, agent *Agent) error

	// Delete deletes an agent
	Delete(ctx context.Context, id uuid.UUID) error

	// Count counts agents matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

// TierRepository defines the interface for tier persistence
type TierRepository interface {
	// FindByID finds a tier row by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Tier, error)

	// FindActiveByAgentAndCode finds the active revision of a tier
	FindActiveByAgentAndCode(ctx context.Context, agentID uuid.UUID, code string) (*Tier, error)

	// FindByAgent finds all active tiers of an agent
	FindByAgent(ctx context.Context, agentID uuid.UUID) ([]Tier, error)

	// Save creates or updates a tier row
	Save(ctx context.Context, tier *Tier) error

	// SaveAll persists multiple tier rows in one transaction,
	// used when a revision supersedes its predecessor
	SaveAll(ctx context.Context, tiers []*Tier) error
}
