package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock implementations

type mockAgentRepository struct {
	mock.Mock
}

func (m *mockAgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Agent), args.Error(1)
}

func (m *mockAgentRepository) FindByName(ctx context.Context, name string) (*catalog.Agent, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Agent), args.Error(1)
}

func (m *mockAgentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Agent, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Agent), args.Error(1)
}

func (m *mockAgentRepository) FindActive(ctx context.Context, filter shared.Filter) ([]catalog.Agent, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Agent), args.Error(1)
}

func (m *mockAgentRepository) Save(ctx context.Context, agent *catalog.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *mockAgentRepository) SaveWithLock(ctx context.Context, agent *catalog.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *mockAgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAgentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

type mockTierRepository struct {
	mock.Mock
}

func (m *mockTierRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Tier, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Tier), args.Error(1)
}

func (m *mockTierRepository) FindActiveByAgentAndCode(ctx context.Context, agentID uuid.UUID, code string) (*catalog.Tier, error) {
	args := m.Called(ctx, agentID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Tier), args.Error(1)
}

func (m *mockTierRepository) FindByAgent(ctx context.Context, agentID uuid.UUID) ([]catalog.Tier, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Tier), args.Error(1)
}

func (m *mockTierRepository) Save(ctx context.Context, tier *catalog.Tier) error {
	args := m.Called(ctx, tier)
	return args.Error(0)
}

func (m *mockTierRepository) SaveAll(ctx context.Context, tiers []*catalog.Tier) error {
	args := m.Called(ctx, tiers)
	return args.Error(0)
}

type mockEntitlementRepository struct {
	mock.Mock
}

func (m *mockEntitlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*access.Entitlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Entitlement), args.Error(1)
}

func (m *mockEntitlementRepository) FindEffective(ctx context.Context, buyerID, agentID uuid.UUID, at time.Time) ([]access.Entitlement, error) {
	args := m.Called(ctx, buyerID, agentID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]access.Entitlement), args.Error(1)
}

func (m *mockEntitlementRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]access.Entitlement, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]access.Entitlement), args.Error(1)
}

func (m *mockEntitlementRepository) FindByTxRef(ctx context.Context, txRef string) (*access.Entitlement, error) {
	args := m.Called(ctx, txRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*access.Entitlement), args.Error(1)
}

func (m *mockEntitlementRepository) Save(ctx context.Context, entitlement *access.Entitlement) error {
	args := m.Called(ctx, entitlement)
	return args.Error(0)
}

// fakeUsageRepository is an in-memory counter store. Operations are
// individually atomic but carry no cross-call locking, matching what a
// database row increment gives the service.
type fakeUsageRepository struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newFakeUsageRepository() *fakeUsageRepository {
	return &fakeUsageRepository{counters: make(map[string]int64)}
}

func (f *fakeUsageRepository) key(buyerID, agentID uuid.UUID, day string) string {
	return buyerID.String() + "|" + agentID.String() + "|" + day
}

func (f *fakeUsageRepository) Get(ctx context.Context, buyerID, agentID uuid.UUID, day string) (*access.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	used, ok := f.counters[f.key(buyerID, agentID, day)]
	if !ok {
		return nil, nil
	}
	c, _ := access.NewUsageCounter(buyerID, agentID, day)
	c.Used = used
	return c, nil
}

func (f *fakeUsageRepository) Increment(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(buyerID, agentID, day)
	f.counters[k]++
	return f.counters[k], nil
}

func (f *fakeUsageRepository) Used(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[f.key(buyerID, agentID, day)], nil
}

// Test fixtures

func activeAgent(t *testing.T) *catalog.Agent {
	t.Helper()
	a, err := catalog.NewAgent("summarizer", "", "productivity", "gpt-large", "")
	require.NoError(t, err)
	return a
}

func newGate(t *testing.T, agentRepo *mockAgentRepository, tierRepo *mockTierRepository, entRepo *mockEntitlementRepository, usage access.UsageCounterRepository) *GateService {
	t.Helper()
	return NewGateService(agentRepo, tierRepo, entRepo, usage, zap.NewNop(), DefaultGateConfig())
}

func TestAuthorizeFreeTierQuota(t *testing.T) {
	agent := activeAgent(t)
	buyerID := uuid.New()

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	entRepo := new(mockEntitlementRepository)
	entRepo.On("FindEffective", mock.Anything, buyerID, agent.ID, mock.Anything).Return([]access.Entitlement{}, nil)

	usage := newFakeUsageRepository()
	gate := newGate(t, agentRepo, new(mockTierRepository), entRepo, usage)

	// five free invocations count down 4,3,2,1,0
	for want := int64(4); want >= 0; want-- {
		d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, catalog.FreeTierCode, d.TierCode)
		assert.False(t, d.IsPaid)
		assert.Equal(t, want, d.Remaining)
	}

	// the sixth is refused and consumes nothing
	d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "QUOTA_EXCEEDED", d.DenyCode)
	assert.False(t, d.IsPaid)
	assert.True(t, d.NeedsUpgrade, "exhausted free quota points at a purchase")

	used, _ := usage.Used(context.Background(), buyerID, agent.ID, d.Day)
	assert.Equal(t, int64(5), used)
}

func TestAuthorizePaidTier(t *testing.T) {
	agent := activeAgent(t)
	buyerID := uuid.New()
	price := valueobject.NewMoneyUSDFromFloat(9.99)

	tier, err := catalog.NewTier(agent.ID, "PRO", "Pro", catalog.PriceModelSubscription, price, 100, false)
	require.NoError(t, err)
	ent, err := access.NewSubscriptionEntitlement(buyerID, agent.ID, tier.ID, tier.Code, "tx-001", time.Now())
	require.NoError(t, err)

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	tierRepo := new(mockTierRepository)
	tierRepo.On("FindByID", mock.Anything, tier.ID).Return(tier, nil)

	entRepo := new(mockEntitlementRepository)
	entRepo.On("FindEffective", mock.Anything, buyerID, agent.ID, mock.Anything).Return([]access.Entitlement{*ent}, nil)

	gate := newGate(t, agentRepo, tierRepo, entRepo, newFakeUsageRepository())

	d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "PRO", d.TierCode)
	assert.True(t, d.IsPaid)
	assert.Equal(t, int64(99), d.Remaining)
}

func TestAuthorizeUnlimitedTierSkipsMetering(t *testing.T) {
	agent := activeAgent(t)
	buyerID := uuid.New()
	price := valueobject.NewMoneyUSDFromFloat(49.99)

	tier, err := catalog.NewTier(agent.ID, "MAX", "Max", catalog.PriceModelSubscription, price, 0, true)
	require.NoError(t, err)
	ent, err := access.NewSubscriptionEntitlement(buyerID, agent.ID, tier.ID, tier.Code, "tx-001", time.Now())
	require.NoError(t, err)

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	tierRepo := new(mockTierRepository)
	tierRepo.On("FindByID", mock.Anything, tier.ID).Return(tier, nil)

	entRepo := new(mockEntitlementRepository)
	entRepo.On("FindEffective", mock.Anything, buyerID, agent.ID, mock.Anything).Return([]access.Entitlement{*ent}, nil)

	usage := newFakeUsageRepository()
	gate := newGate(t, agentRepo, tierRepo, entRepo, usage)

	for i := 0; i < 20; i++ {
		d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, d.Unlimited)
	}

	used, _ := usage.Used(context.Background(), buyerID, agent.ID, access.DayKey(time.Now(), time.UTC))
	assert.Equal(t, int64(0), used)
}

func TestAuthorizeZeroLimitPaidTier(t *testing.T) {
	agent := activeAgent(t)
	buyerID := uuid.New()
	price := valueobject.NewMoneyUSDFromFloat(9.99)

	tier, err := catalog.NewTier(agent.ID, "BROKEN", "Broken", catalog.PriceModelSubscription, price, 0, false)
	require.NoError(t, err)
	ent, err := access.NewSubscriptionEntitlement(buyerID, agent.ID, tier.ID, tier.Code, "tx-001", time.Now())
	require.NoError(t, err)

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	tierRepo := new(mockTierRepository)
	tierRepo.On("FindByID", mock.Anything, tier.ID).Return(tier, nil)

	entRepo := new(mockEntitlementRepository)
	entRepo.On("FindEffective", mock.Anything, buyerID, agent.ID, mock.Anything).Return([]access.Entitlement{*ent}, nil)

	usage := newFakeUsageRepository()
	gate := newGate(t, agentRepo, tierRepo, entRepo, usage)

	d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "ZERO_LIMIT_TIER", d.DenyCode)

	used, _ := usage.Used(context.Background(), buyerID, agent.ID, d.Day)
	assert.Equal(t, int64(0), used)
}

func TestAuthorizeDisabledAgent(t *testing.T) {
	agent := activeAgent(t)
	require.NoError(t, agent.Disable())

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	gate := newGate(t, agentRepo, new(mockTierRepository), new(mockEntitlementRepository), newFakeUsageRepository())

	d, err := gate.Authorize(context.Background(), uuid.New(), agent.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "AGENT_DISABLED", d.DenyCode)
}

func TestAuthorizeConcurrentInvocationsNeverOvershoot(t *testing.T) {
	agent := activeAgent(t)
	buyerID := uuid.New()

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	entRepo := new(mockEntitlementRepository)
	entRepo.On("FindEffective", mock.Anything, buyerID, agent.ID, mock.Anything).Return([]access.Entitlement{}, nil)

	usage := newFakeUsageRepository()
	gate := newGate(t, agentRepo, new(mockTierRepository), entRepo, usage)

	const workers = 50
	var wg sync.WaitGroup
	allowed := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
			if !assert.NoError(t, err) {
				allowed <- false
				return
			}
			allowed <- d.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	var grants int
	for ok := range allowed {
		if ok {
			grants++
		}
	}
	assert.Equal(t, 5, grants, "exactly the free allowance is granted")

	used, _ := usage.Used(context.Background(), buyerID, agent.ID, access.DayKey(time.Now(), time.UTC))
	assert.Equal(t, int64(5), used)
}

func TestAuthorizeDayBoundaryResetsCounter(t *testing.T) {
	agent := activeAgent(t)
	buyerID := uuid.New()

	agentRepo := new(mockAgentRepository)
	agentRepo.On("FindByID", mock.Anything, agent.ID).Return(agent, nil)

	entRepo := new(mockEntitlementRepository)
	entRepo.On("FindEffective", mock.Anything, buyerID, agent.ID, mock.Anything).Return([]access.Entitlement{}, nil)

	usage := newFakeUsageRepository()
	gate := newGate(t, agentRepo, new(mockTierRepository), entRepo, usage)

	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	gate.WithClock(func() time.Time { return day1 })

	for i := 0; i < 5; i++ {
		d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := gate.Authorize(context.Background(), buyerID, agent.ID)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// two hours later it is the next UTC day and the allowance is fresh
	gate.WithClock(func() time.Time { return day1.Add(2 * time.Hour) })
	d, err = gate.Authorize(context.Background(), buyerID, agent.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(4), d.Remaining)
}
