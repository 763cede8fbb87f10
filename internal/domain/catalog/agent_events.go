package catalog

import (
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AgentListedEvent is raised when a new agent is listed on the marketplace
type AgentListedEvent struct {
	shared.BaseDomainEvent
	AgentID  uuid.UUID `json:"agent_id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
}

// EventType returns the event type name
func (e *AgentListedEvent) EventType() string {
	return "AgentListed"
}

// NewAgentListedEvent creates a new AgentListedEvent
func NewAgentListedEvent(a *Agent) *AgentListedEvent {
	return &AgentListedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("AgentListed", "Agent", a.ID),
		AgentID:         a.ID,
		Name:            a.Name,
		Category:        a.Category,
	}
}

// AgentStatusChangedEvent is raised when an agent is enabled or disabled
type AgentStatusChangedEvent struct {
	shared.BaseDomainEvent
	AgentID uuid.UUID   `json:"agent_id"`
	Name    string      `json:"name"`
	Status  AgentStatus `json:"status"`
}

// EventType returns the event type name
func (e *AgentStatusChangedEvent) EventType() string {
	return "AgentStatusChanged"
}

// NewAgentStatusChangedEvent creates a new AgentStatusChangedEvent
func NewAgentStatusChangedEvent(a *Agent) *AgentStatusChangedEvent {
	return &AgentStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("AgentStatusChanged", "Agent", a.ID),
		AgentID:         a.ID,
		Name:            a.Name,
		Status:          a.Status,
	}
}
