package access

import (
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// SubscriptionPeriod is the length of one subscription term
const SubscriptionPeriod = 30 * 24 * time.Hour

// Entitlement represents a buyer's paid access to an agent tier.
// It is granted when a payment settles and resolved on every
// invocation to decide which tier governs the call.
type Entitlement struct {
	shared.BaseAggregateRoot
	BuyerID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_entitlement_buyer_agent,priority:1"`
	AgentID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_entitlement_buyer_agent,priority:2"`
	TierID   uuid.UUID  `gorm:"type:uuid;not null"` // the immutable tier revision the buyer purchased
	TierCode string     `gorm:"type:varchar(50);not null"`
	TxRef    string     `gorm:"type:varchar(100);not null;uniqueIndex"` // settlement that granted this entitlement, one grant per settlement
	StartAt  time.Time  `gorm:"not null"`
	EndAt    *time.Time `gorm:"index"` // nil means open-ended (ONE_TIME and PER_UNIT grants)
	Revoked  bool       `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Entitlement) TableName() string {
	return "entitlements"
}

// NewEntitlement creates an open-ended entitlement starting now
func NewEntitlement(buyerID, agentID, tierID uuid.UUID, tierCode, txRef string, now time.Time) (*Entitlement, error) {
	if buyerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer ID cannot be empty")
	}
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}
	if tierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TIER", "Tier ID cannot be empty")
	}
	if tierCode == "" {
		return nil, shared.NewDomainError("INVALID_TIER", "Tier code cannot be empty")
	}
	if txRef == "" {
		return nil, shared.NewDomainError("INVALID_TX_REF", "Transaction reference cannot be empty")
	}

	e := &Entitlement{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		BuyerID:           buyerID,
		AgentID:           agentID,
		TierID:            tierID,
		TierCode:          tierCode,
		TxRef:             txRef,
		StartAt:           now,
	}

	e.AddDomainEvent(NewEntitlementGrantedEvent(e))

	return e, nil
}

// NewSubscriptionEntitlement creates an entitlement that expires one
// subscription period after now
func NewSubscriptionEntitlement(buyerID, agentID, tierID uuid.UUID, tierCode, txRef string, now time.Time) (*Entitlement, error) {
	e, err := NewEntitlement(buyerID, agentID, tierID, tierCode, txRef, now)
	if err != nil {
		return nil, err
	}
	endAt := now.Add(SubscriptionPeriod)
	e.EndAt = &endAt
	return e, nil
}

// IsEffectiveAt reports whether the entitlement covers the given instant.
// The window is half-open: StartAt inclusive, EndAt exclusive.
func (e *Entitlement) IsEffectiveAt(t time.Time) bool {
	if e.Revoked {
		return false
	}
	if t.Before(e.StartAt) {
		return false
	}
	if e.EndAt != nil && !t.Before(*e.EndAt) {
		return false
	}
	return true
}

// Revoke withdraws the entitlement, after a refund or when a newer
// purchase for the same agent replaces it
func (e *Entitlement) Revoke() error {
	if e.Revoked {
		return shared.NewDomainError("INVALID_STATE", "Entitlement is already revoked")
	}
	e.Revoked = true
	e.UpdatedAt = time.Now()
	e.IncrementVersion()

	e.AddDomainEvent(NewEntitlementRevokedEvent(e))

	return nil
}
