package access

import (
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EntitlementGrantedEvent is raised when a settled payment grants access
type EntitlementGrantedEvent struct {
	shared.BaseDomainEvent
	EntitlementID uuid.UUID  `json:"entitlement_id"`
	BuyerID       uuid.UUID  `json:"buyer_id"`
	AgentID       uuid.UUID  `json:"agent_id"`
	TierCode      string     `json:"tier_code"`
	TxRef         string     `json:"tx_ref"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         *time.Time `json:"end_at,omitempty"`
}

// EventType returns the event type name
func (e *EntitlementGrantedEvent) EventType() string {
	return "EntitlementGranted"
}

// NewEntitlementGrantedEvent creates a new EntitlementGrantedEvent
func NewEntitlementGrantedEvent(ent *Entitlement) *EntitlementGrantedEvent {
	return &EntitlementGrantedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("EntitlementGranted", "Entitlement", ent.ID),
		EntitlementID:   ent.ID,
		BuyerID:         ent.BuyerID,
		AgentID:         ent.AgentID,
		TierCode:        ent.TierCode,
		TxRef:           ent.TxRef,
		StartAt:         ent.StartAt,
		EndAt:           ent.EndAt,
	}
}

// EntitlementRevokedEvent is raised when an entitlement is withdrawn
type EntitlementRevokedEvent struct {
	shared.BaseDomainEvent
	EntitlementID uuid.UUID `json:"entitlement_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	AgentID       uuid.UUID `json:"agent_id"`
	TierCode      string    `json:"tier_code"`
}

// EventType returns the event type name
func (e *EntitlementRevokedEvent) EventType() string {
	return "EntitlementRevoked"
}

// NewEntitlementRevokedEvent creates a new EntitlementRevokedEvent
func NewEntitlementRevokedEvent(ent *Entitlement) *EntitlementRevokedEvent {
	return &EntitlementRevokedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("EntitlementRevoked", "Entitlement", ent.ID),
		EntitlementID:   ent.ID,
		BuyerID:         ent.BuyerID,
		AgentID:         ent.AgentID,
		TierCode:        ent.TierCode,
	}
}
