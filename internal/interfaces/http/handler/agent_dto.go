package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentmarket/backend/internal/domain/catalog"
)

// AgentResponse represents an agent listing in responses
type AgentResponse struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Category     string         `json:"category,omitempty"`
	ModelRef     string         `json:"model_ref,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Status       string         `json:"status"`
	Tiers        []TierResponse `json:"tiers,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TierResponse represents a pricing tier in responses
type TierResponse struct {
	ID          uuid.UUID `json:"id"`
	AgentID     uuid.UUID `json:"agent_id"`
	Code        string    `json:"code"`
	Revision    int       `json:"revision"`
	Name        string    `json:"name"`
	PriceModel  string    `json:"price_model"`
	Price       string    `json:"price"`
	Currency    string    `json:"currency"`
	UnitsPerDay int64     `json:"units_per_day"`
	Unlimited   bool      `json:"unlimited"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateAgentRequest is the payload for listing a new agent
type CreateAgentRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	Description  string `json:"description"`
	Category     string `json:"category" binding:"max=100"`
	ModelRef     string `json:"model_ref" binding:"max=200"`
	SystemPrompt string `json:"system_prompt"`
}

// SetAgentStatusRequest toggles an agent's availability
type SetAgentStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CreateTierRequest is the payload for adding or superseding a tier
type CreateTierRequest struct {
	Code        string `json:"code" binding:"required,max=50"`
	Name        string `json:"name" binding:"required,max=200"`
	PriceModel  string `json:"price_model" binding:"required,oneof=PER_UNIT SUBSCRIPTION ONE_TIME"`
	Price       string `json:"price" binding:"required"`
	Currency    string `json:"currency" binding:"omitempty,len=3"`
	UnitsPerDay int64  `json:"units_per_day" binding:"min=0"`
	Unlimited   bool   `json:"unlimited"`
}

// InvokeRequest is the payload for invoking an agent
type InvokeRequest struct {
	Prompt string `json:"prompt" binding:"required,max=32768"`
}

func toAgentResponse(agent *catalog.Agent) AgentResponse {
	resp := AgentResponse{
		ID:           agent.ID,
		Name:         agent.Name,
		Description:  agent.Description,
		Category:     agent.Category,
		ModelRef:     agent.ModelRef,
		SystemPrompt: agent.SystemPrompt,
		Status:       string(agent.Status),
		CreatedAt:    agent.CreatedAt,
		UpdatedAt:    agent.UpdatedAt,
	}
	for i := range agent.Tiers {
		resp.Tiers = append(resp.Tiers, toTierResponse(&agent.Tiers[i]))
	}
	return resp
}

func toAgentResponses(agents []catalog.Agent) []AgentResponse {
	out := make([]AgentResponse, 0, len(agents))
	for i := range agents {
		out = append(out, toAgentResponse(&agents[i]))
	}
	return out
}

func toTierResponse(tier *catalog.Tier) TierResponse {
	return TierResponse{
		ID:          tier.ID,
		AgentID:     tier.AgentID,
		Code:        tier.Code,
		Revision:    tier.Revision,
		Name:        tier.Name,
		PriceModel:  string(tier.PriceModel),
		Price:       tier.Price.String(),
		Currency:    tier.Currency,
		UnitsPerDay: tier.UnitsPerDay,
		Unlimited:   tier.Unlimited,
		Active:      tier.Active,
		CreatedAt:   tier.CreatedAt,
	}
}

func toTierResponses(tiers []catalog.Tier) []TierResponse {
	out := make([]TierResponse, 0, len(tiers))
	for i := range tiers {
		out = append(out, toTierResponse(&tiers[i]))
	}
	return out
}
