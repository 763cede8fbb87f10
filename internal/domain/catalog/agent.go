package catalog

import (
	"fmt"
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
)

// AgentStatus represents the lifecycle status of a listed agent
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "ACTIVE"
	AgentStatusDisabled AgentStatus = "DISABLED"
)

// IsValid checks if the status is a valid AgentStatus
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentStatusActive, AgentStatusDisabled:
		return true
	}
	return false
}

// String returns the string representation of AgentStatus
func (s AgentStatus) String() string {
	return string(s)
}

// Agent represents an AI agent listed on the marketplace.
// Buyers invoke an agent through the access gate; what they may do is
// governed by the tiers attached to it.
type Agent struct {
	shared.BaseAggregateRoot
	Name         string      `gorm:"type:varchar(200);not null;uniqueIndex"`
	Description  string      `gorm:"type:text"`
	Category     string      `gorm:"type:varchar(100);index"`
	ModelRef     string      `gorm:"type:varchar(200)"` // upstream model identifier passed to the inference provider
	SystemPrompt string      `gorm:"type:text"`
	Status       AgentStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	Tiers        []Tier      `gorm:"foreignKey:AgentID;references:ID"`
}

// TableName returns the table name for GORM
func (Agent) TableName() string {
	return "agents"
}

// NewAgent creates a new agent listing
func NewAgent(name, description, category, modelRef, systemPrompt string) (*Agent, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_AGENT_NAME", "Agent name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_AGENT_NAME", "Agent name cannot exceed 200 characters")
	}

	a := &Agent{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Description:       description,
		Category:          category,
		ModelRef:          modelRef,
		SystemPrompt:      systemPrompt,
		Status:            AgentStatusActive,
		Tiers:             make([]Tier, 0),
	}

	a.AddDomainEvent(NewAgentListedEvent(a))

	return a, nil
}

// Disable takes the agent off the marketplace. Existing entitlements are
// kept but invocations are rejected while disabled.
func (a *Agent) Disable() error {
	if a.Status == AgentStatusDisabled {
		return shared.NewDomainError("INVALID_STATE", "Agent is already disabled")
	}
	a.Status = AgentStatusDisabled
	a.UpdatedAt = time.Now()
	a.IncrementVersion()

	a.AddDomainEvent(NewAgentStatusChangedEvent(a))

	return nil
}

// Enable puts the agent back on the marketplace
func (a *Agent) Enable() error {
	if a.Status == AgentStatusActive {
		return shared.NewDomainError("INVALID_STATE", "Agent is already active")
	}
	a.Status = AgentStatusActive
	a.UpdatedAt = time.Now()
	a.IncrementVersion()

	a.AddDomainEvent(NewAgentStatusChangedEvent(a))

	return nil
}

// UpdateDetails updates the descriptive fields of the agent
func (a *Agent) UpdateDetails(description, category, modelRef, systemPrompt string) error {
	if a.Status == AgentStatusDisabled {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot update agent in %s status", a.Status))
	}
	a.Description = description
	a.Category = category
	a.ModelRef = modelRef
	a.SystemPrompt = systemPrompt
	a.UpdatedAt = time.Now()
	a.IncrementVersion()

	return nil
}

// IsActive returns true if the agent is invocable
func (a *Agent) IsActive() bool {
	return a.Status == AgentStatusActive
}

// TierByCode returns the active tier with the given code, or nil
func (a *Agent) TierByCode(code string) *Tier {
	for i := range a.Tiers {
		if a.Tiers[i].Code == code && a.Tiers[i].Active {
			return &a.Tiers[i]
		}
	}
	return nil
}
