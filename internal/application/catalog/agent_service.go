package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateAgentInput contains input for listing a new agent
type CreateAgentInput struct {
	Name         string `validate:"required,max=200"`
	Description  string
	Category     string `validate:"max=100"`
	ModelRef     string `validate:"max=200"`
	SystemPrompt string
}

// CreateTierInput contains input for adding a tier to an agent
type CreateTierInput struct {
	Code        string `validate:"required,max=50"`
	Name        string `validate:"required,max=200"`
	PriceModel  string `validate:"required,oneof=PER_UNIT SUBSCRIPTION ONE_TIME"`
	Price       string `validate:"required"`
	Currency    string `validate:"omitempty,len=3"`
	UnitsPerDay int64  `validate:"min=0"`
	Unlimited   bool
}

// AgentService manages the marketplace catalog
type AgentService struct {
	agentRepo      catalog.AgentRepository
	tierRepo       catalog.TierRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewAgentService creates a new AgentService
func NewAgentService(agentRepo catalog.AgentRepository, tierRepo catalog.TierRepository, logger *zap.Logger) *AgentService {
	return &AgentService{
		agentRepo: agentRepo,
		tierRepo:  tierRepo,
		logger:    logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *AgentService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// publishDomainEvents publishes pending domain events from the aggregate.
// Errors are logged by the event bus, not propagated.
func (s *AgentService) publishDomainEvents(ctx context.Context, agent *catalog.Agent) {
	if s.eventPublisher == nil {
		return
	}
	events := agent.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	agent.ClearDomainEvents()
}

// CreateAgent lists a new agent
func (s *AgentService) CreateAgent(ctx context.Context, input CreateAgentInput) (*catalog.Agent, error) {
	existing, err := s.agentRepo.FindByName(ctx, input.Name)
	if err != nil {
		return nil, fmt.Errorf("check agent name: %w", err)
	}
	if existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "An agent with this name already exists")
	}

	agent, err := catalog.NewAgent(input.Name, input.Description, input.Category, input.ModelRef, input.SystemPrompt)
	if err != nil {
		return nil, err
	}

	if err := s.agentRepo.Save(ctx, agent); err != nil {
		return nil, fmt.Errorf("save agent: %w", err)
	}
	s.publishDomainEvents(ctx, agent)

	s.logger.Info("Agent listed",
		zap.String("agent_id", agent.ID.String()),
		zap.String("name", agent.Name))

	return agent, nil
}

// GetAgent fetches an agent with its tiers
func (s *AgentService) GetAgent(ctx context.Context, id uuid.UUID) (*catalog.Agent, error) {
	agent, err := s.agentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, shared.NewDomainError("AGENT_NOT_FOUND", "Agent not found")
	}
	return agent, nil
}

// ListAgents lists agents with pagination
func (s *AgentService) ListAgents(ctx context.Context, filter shared.Filter) (*shared.Paginated[catalog.Agent], error) {
	agents, err := s.agentRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.agentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(agents, total, filter.Page, filter.PageSize)
	return &page, nil
}

// SetAgentStatus enables or disables an agent
func (s *AgentService) SetAgentStatus(ctx context.Context, id uuid.UUID, active bool) (*catalog.Agent, error) {
	agent, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	if active {
		err = agent.Enable()
	} else {
		err = agent.Disable()
	}
	if err != nil {
		return nil, err
	}

	if err := s.agentRepo.SaveWithLock(ctx, agent); err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, agent)
	return agent, nil
}

// AddTier attaches a new tier to an agent
func (s *AgentService) AddTier(ctx context.Context, agentID uuid.UUID, input CreateTierInput) (*catalog.Tier, error) {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.tierRepo.FindActiveByAgentAndCode(ctx, agent.ID, input.Code)
	if err != nil {
		return nil, fmt.Errorf("check tier code: %w", err)
	}
	if existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "An active tier with this code already exists")
	}

	currency := input.Currency
	if currency == "" {
		currency = string(valueobject.DefaultCurrency)
	}
	price, err := valueobject.NewMoneyFromString(input.Price, valueobject.Currency(currency))
	if err != nil {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price is not a valid decimal")
	}

	tier, err := catalog.NewTier(agent.ID, input.Code, input.Name, catalog.PriceModel(input.PriceModel), price, input.UnitsPerDay, input.Unlimited)
	if err != nil {
		return nil, err
	}

	if err := s.tierRepo.Save(ctx, tier); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewDomainError("ALREADY_EXISTS", "An active tier with this code already exists")
		}
		return nil, fmt.Errorf("save tier: %w", err)
	}

	s.logger.Info("Tier added",
		zap.String("agent_id", agent.ID.String()),
		zap.String("tier_code", tier.Code),
		zap.String("price", tier.Price.String()))

	return tier, nil
}

// UpdateTier supersedes the active revision of a tier with new terms
func (s *AgentService) UpdateTier(ctx context.Context, agentID uuid.UUID, code string, input CreateTierInput) (*catalog.Tier, error) {
	current, err := s.tierRepo.FindActiveByAgentAndCode(ctx, agentID, code)
	if err != nil {
		return nil, fmt.Errorf("find tier: %w", err)
	}
	if current == nil {
		return nil, shared.NewDomainError("TIER_NOT_FOUND", "Tier not found")
	}

	currency := input.Currency
	if currency == "" {
		currency = current.Currency
	}
	price, err := valueobject.NewMoneyFromString(input.Price, valueobject.Currency(currency))
	if err != nil {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price is not a valid decimal")
	}

	next, err := current.Supersede(input.Name, price, input.UnitsPerDay, input.Unlimited)
	if err != nil {
		return nil, err
	}

	if err := s.tierRepo.SaveAll(ctx, []*catalog.Tier{current, next}); err != nil {
		return nil, fmt.Errorf("save tier revisions: %w", err)
	}

	s.logger.Info("Tier superseded",
		zap.String("agent_id", agentID.String()),
		zap.String("tier_code", code),
		zap.Int("revision", next.Revision))

	return next, nil
}

// ListTiers lists the active tiers of an agent
func (s *AgentService) ListTiers(ctx context.Context, agentID uuid.UUID) ([]catalog.Tier, error) {
	if _, err := s.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.tierRepo.FindByAgent(ctx, agentID)
}
