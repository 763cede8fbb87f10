package event

import (
	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/payment"
)

// RegisterAllEvents registers all domain event types with the serializer
// so that persisted events can be deserialized back into their Go types
func RegisterAllEvents(serializer *EventSerializer) {
	// Catalog domain events
	serializer.Register("AgentListed", &catalog.AgentListedEvent{})
	serializer.Register("AgentStatusChanged", &catalog.AgentStatusChangedEvent{})

	// Access domain events
	serializer.Register("EntitlementGranted", &access.EntitlementGrantedEvent{})
	serializer.Register("EntitlementRevoked", &access.EntitlementRevokedEvent{})

	// Payment domain events
	serializer.Register("SettlementStarted", &payment.SettlementStartedEvent{})
	serializer.Register("SettlementSucceeded", &payment.SettlementSucceededEvent{})
	serializer.Register("SettlementFailed", &payment.SettlementFailedEvent{})
}
