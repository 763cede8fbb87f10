package access

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntitlementRepository defines the interface for entitlement persistence
type EntitlementRepository interface {
	// FindByID finds an entitlement by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Entitlement, error)

	// FindEffective finds the entitlements of a buyer for an agent that
	// cover the given instant, newest first
	FindEffective(ctx context.Context, buyerID, agentID uuid.UUID, at time.Time) ([]Entitlement, error)

	// FindByBuyer finds all entitlements of a buyer
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]Entitlement, error)

	// FindByTxRef finds the entitlement granted by a settlement, or nil
	FindByTxRef(ctx context.Context, txRef string) (*Entitlement, error)

	// Save creates or updates an entitlement
	Save(ctx context.Context, entitlement *Entitlement) error
}

// UsageCounterRepository defines the interface for usage counter persistence
type UsageCounterRepository interface {
	// Get finds the counter for a (buyer, agent, day) bucket, or nil
	Get(ctx context.Context, buyerID, agentID uuid.UUID, day string) (*UsageCounter, error)

	// Increment atomically adds one unit to the bucket, creating the
	// row if absent, and returns the new used count
	Increment(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error)

	// Used returns the used count for the bucket, zero if absent
	Used(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error)
}
