package payment

import (
	"context"

	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// SettlementRepository defines the interface for settlement persistence
type SettlementRepository interface {
	// FindByID finds a settlement by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Settlement, error)

	// FindByTxRef finds a settlement by its transaction reference, or nil
	FindByTxRef(ctx context.Context, txRef string) (*Settlement, error)

	// FindByBuyer finds all settlements of a buyer, newest first
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]Settlement, error)

	// Create inserts a new settlement. The unique index on tx_ref is
	// the idempotency barrier: inserting a duplicate reference returns
	// shared.ErrAlreadyExists.
	Create(ctx context.Context, settlement *Settlement) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, settlement *Settlement) error
}

// ProviderOutcome is the result of a charge submission
type ProviderOutcome struct {
	ProviderRef string
	Settled     bool // false means the provider accepted the charge but has not settled it yet
}

// LedgerProvider is the port to the external payment ledger.
// Implementations return shared.ErrProviderRejected when the provider
// refuses the charge and shared.ErrProviderTimeout when the outcome is
// unknown; a timeout leaves the settlement PENDING, not failed.
type LedgerProvider interface {
	// SubmitCharge submits a charge for the given settlement reference
	SubmitCharge(ctx context.Context, txRef string, amount valueobject.Money) (*ProviderOutcome, error)

	// ChargeStatus polls the provider for the outcome of a pending charge
	ChargeStatus(ctx context.Context, txRef string) (*ProviderOutcome, error)
}
