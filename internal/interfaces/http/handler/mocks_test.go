package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/payment"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/agentmarket/backend/internal/domain/stream"
)

// testBuyerID is the buyer identity used by handler tests
var testBuyerID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// setupTestRouter creates a gin router in test mode
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// MockAgentRepository implements catalog.AgentRepository for testing
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Agent), args.Error(1)
}

func (m *MockAgentRepository) FindByName(ctx context.Context, name string) (*catalog.Agent, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Agent), args.Error(1)
}

func (m *MockAgentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Agent, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]catalog.Agent), args.Error(1)
}

func (m *MockAgentRepository) FindActive(ctx context.Context, filter shared.Filter) ([]catalog.Agent, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]catalog.Agent), args.Error(1)
}

func (m *MockAgentRepository) Save(ctx context.Context, agent *catalog.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *MockAgentRepository) SaveWithLock(ctx context.Context, agent *catalog.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *MockAgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAgentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// MockTierRepository implements catalog.TierRepository for testing
type MockTierRepository struct {
	mock.Mock
}

func (m *MockTierRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Tier, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Tier), args.Error(1)
}

func (m *MockTierRepository) FindActiveByAgentAndCode(ctx context.Context, agentID uuid.UUID, code string) (*catalog.Tier, error) {
	args := m.Called(ctx, agentID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Tier), args.Error(1)
}

func (m *MockTierRepository) FindByAgent(ctx context.Context, agentID uuid.UUID) ([]catalog.Tier, error) {
	args := m.Called(ctx, agentID)
	return args.Get(0).([]catalog.Tier), args.Error(1)
}

func (m *MockTierRepository) Save(ctx context.Context, tier *catalog.Tier) error {
	args := m.Called(ctx, tier)
	return args.Error(0)
}

func (m *MockTierRepository) SaveAll(ctx context.Context, tiers []*catalog.Tier) error {
	args := m.Called(ctx, tiers)
	return args.Error(0)
}

// MockEntitlementRepository implements access.EntitlementRepository for testing
type MockEntitlementRepository struct {
	mock.Mock
}

func (m *MockEntitlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*access.Entitlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Entitlement), args.Error(1)
}

func (m *MockEntitlementRepository) FindEffective(ctx context.Context, buyerID, agentID uuid.UUID, at time.Time) ([]access.Entitlement, error) {
	args := m.Called(ctx, buyerID, agentID, at)
	return args.Get(0).([]access.Entitlement), args.Error(1)
}

func (m *MockEntitlementRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]access.Entitlement, error) {
	args := m.Called(ctx, buyerID)
	return args.Get(0).([]access.Entitlement), args.Error(1)
}

func (m *MockEntitlementRepository) FindByTxRef(ctx context.Context, txRef string) (*access.Entitlement, error) {
	args := m.Called(ctx, txRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Entitlement), args.Error(1)
}

func (m *MockEntitlementRepository) Save(ctx context.Context, entitlement *access.Entitlement) error {
	args := m.Called(ctx, entitlement)
	return args.Error(0)
}

// MockUsageCounterRepository implements access.UsageCounterRepository for testing
type MockUsageCounterRepository struct {
	mock.Mock
}

func (m *MockUsageCounterRepository) Get(ctx context.Context, buyerID, agentID uuid.UUID, day string) (*access.UsageCounter, error) {
	args := m.Called(ctx, buyerID, agentID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.UsageCounter), args.Error(1)
}

func (m *MockUsageCounterRepository) Increment(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error) {
	args := m.Called(ctx, buyerID, agentID, day)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageCounterRepository) Used(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error) {
	args := m.Called(ctx, buyerID, agentID, day)
	return args.Get(0).(int64), args.Error(1)
}

// MockSettlementRepository implements payment.SettlementRepository for testing
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) FindByTxRef(ctx context.Context, txRef string) (*payment.Settlement, error) {
	args := m.Called(ctx, txRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]payment.Settlement, error) {
	args := m.Called(ctx, buyerID)
	return args.Get(0).([]payment.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) Create(ctx context.Context, settlement *payment.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementRepository) SaveWithLock(ctx context.Context, settlement *payment.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

// MockLedgerProvider implements payment.LedgerProvider for testing
type MockLedgerProvider struct {
	mock.Mock
}

func (m *MockLedgerProvider) SubmitCharge(ctx context.Context, txRef string, amount valueobject.Money) (*payment.ProviderOutcome, error) {
	args := m.Called(ctx, txRef, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ProviderOutcome), args.Error(1)
}

func (m *MockLedgerProvider) ChargeStatus(ctx context.Context, txRef string) (*payment.ProviderOutcome, error) {
	args := m.Called(ctx, txRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ProviderOutcome), args.Error(1)
}

// MockBus implements stream.Bus for testing
type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, event *stream.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBus) Subscribe(ctx context.Context, topic string, afterSeq int64) (stream.Subscription, error) {
	args := m.Called(ctx, topic, afterSeq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(stream.Subscription), args.Error(1)
}

func (m *MockBus) History(ctx context.Context, topic string, afterSeq int64, limit int) ([]*stream.Event, error) {
	args := m.Called(ctx, topic, afterSeq, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*stream.Event), args.Error(1)
}

func (m *MockBus) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockCompleter implements agentapp.Completer for testing
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, modelRef, systemPrompt, prompt string) (string, error) {
	args := m.Called(ctx, modelRef, systemPrompt, prompt)
	return args.String(0), args.Error(1)
}
