package agent

import (
	"context"
	"fmt"

	accessapp "github.com/agentmarket/backend/internal/application/access"
	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Completer is the port to the upstream inference provider
type Completer interface {
	// Complete generates a reply for the prompt using the agent's model
	Complete(ctx context.Context, modelRef, systemPrompt, prompt string) (string, error)
}

// InvokeInput contains input for invoking an agent
type InvokeInput struct {
	BuyerID uuid.UUID
	AgentID uuid.UUID
	Prompt  string `validate:"required,max=32768"`
}

// InvokeResult is the outcome of a permitted invocation
type InvokeResult struct {
	AgentID   uuid.UUID `json:"agent_id"`
	TierCode  string    `json:"tier_code"`
	IsPaid    bool      `json:"is_paid"`
	Reply     string    `json:"reply"`
	Remaining int64     `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
}

// InvocationService runs buyer invocations through the access gate,
// the inference provider and the interaction stream
type InvocationService struct {
	gate      *accessapp.GateService
	agentRepo catalog.AgentRepository
	completer Completer
	bus       stream.Bus
	logger    *zap.Logger
}

// NewInvocationService creates a new InvocationService
func NewInvocationService(
	gate *accessapp.GateService,
	agentRepo catalog.AgentRepository,
	completer Completer,
	bus stream.Bus,
	logger *zap.Logger,
) *InvocationService {
	return &InvocationService{
		gate:      gate,
		agentRepo: agentRepo,
		completer: completer,
		bus:       bus,
		logger:    logger,
	}
}

// Invoke authorizes, executes and streams one agent invocation.
// A denial maps straight to a domain error carrying the deny code; no
// inference call is made and no usage is consumed for denials.
func (s *InvocationService) Invoke(ctx context.Context, input InvokeInput) (*InvokeResult, error) {
	if input.Prompt == "" {
		return nil, shared.NewDomainError("INVALID_PROMPT", "Prompt cannot be empty")
	}

	decision, err := s.gate.Authorize(ctx, input.BuyerID, input.AgentID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &access.DeniedError{Decision: *decision}
	}

	agent, err := s.agentRepo.FindByID(ctx, input.AgentID)
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}
	if agent == nil {
		return nil, shared.NewDomainError("AGENT_NOT_FOUND", "Agent not found")
	}

	reply, err := s.completer.Complete(ctx, agent.ModelRef, agent.SystemPrompt, input.Prompt)
	if err != nil {
		// the unit is already consumed, report the failure but keep the
		// decision visible to the caller
		s.logger.Error("Inference call failed",
			zap.String("agent_id", input.AgentID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("complete prompt: %w", err)
	}

	result := &InvokeResult{
		AgentID:   input.AgentID,
		TierCode:  decision.TierCode,
		IsPaid:    decision.IsPaid,
		Reply:     reply,
		Remaining: decision.Remaining,
		Unlimited: decision.Unlimited,
	}

	s.publishInteraction(ctx, input, result)

	return result, nil
}

// publishInteraction streams the interaction to the agent's topic,
// best effort
func (s *InvocationService) publishInteraction(ctx context.Context, input InvokeInput, result *InvokeResult) {
	if s.bus == nil {
		return
	}
	ev, err := stream.NewEvent(stream.InteractionTopic(input.AgentID), stream.EventTypeInteraction, stream.InteractionPayload{
		BuyerID:   input.BuyerID,
		AgentID:   input.AgentID,
		TierCode:  result.TierCode,
		IsPaid:    result.IsPaid,
		Prompt:    input.Prompt,
		Reply:     result.Reply,
		Remaining: result.Remaining,
		Unlimited: result.Unlimited,
	})
	if err != nil {
		s.logger.Error("Failed to build interaction event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Error("Failed to publish interaction",
			zap.String("agent_id", input.AgentID.String()),
			zap.Error(err))
	}
}
