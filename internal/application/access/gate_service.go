package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GateConfig contains configuration for the access gate
type GateConfig struct {
	FreeDailyLimit int64          // daily allowance of the implicit free tier
	Location       *time.Location // day boundary location for counter resets
}

// DefaultGateConfig returns default configuration
func DefaultGateConfig() GateConfig {
	return GateConfig{
		FreeDailyLimit: 5,
		Location:       time.UTC,
	}
}

// keyedMutex serializes work per string key so that concurrent
// invocations of the same (buyer, agent, day) bucket check and consume
// usage one at a time. Counters for different buckets do not contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// GateService decides whether an invocation may proceed. It resolves
// the buyer's effective tier, checks the daily counter and consumes one
// unit when allowed. Denials never consume usage.
type GateService struct {
	agentRepo       catalog.AgentRepository
	tierRepo        catalog.TierRepository
	entitlementRepo access.EntitlementRepository
	usageRepo       access.UsageCounterRepository
	logger          *zap.Logger
	config          GateConfig

	buckets *keyedMutex
	now     func() time.Time // injectable for tests
}

// NewGateService creates a new GateService
func NewGateService(
	agentRepo catalog.AgentRepository,
	tierRepo catalog.TierRepository,
	entitlementRepo access.EntitlementRepository,
	usageRepo access.UsageCounterRepository,
	logger *zap.Logger,
	config GateConfig,
) *GateService {
	if config.FreeDailyLimit <= 0 {
		config.FreeDailyLimit = DefaultGateConfig().FreeDailyLimit
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &GateService{
		agentRepo:       agentRepo,
		tierRepo:        tierRepo,
		entitlementRepo: entitlementRepo,
		usageRepo:       usageRepo,
		logger:          logger,
		config:          config,
		buckets:         newKeyedMutex(),
		now:             time.Now,
	}
}

// WithClock overrides the time source, used by tests to pin the day
func (s *GateService) WithClock(now func() time.Time) *GateService {
	s.now = now
	return s
}

// resolvedTier is the outcome of tier resolution for one invocation
type resolvedTier struct {
	code      string
	limit     int64
	unlimited bool
	zeroLimit bool
	paid      bool
}

// resolveTier picks the tier governing the invocation: the newest
// effective paid entitlement wins, otherwise the free tier applies.
func (s *GateService) resolveTier(ctx context.Context, buyerID, agentID uuid.UUID, at time.Time) (*resolvedTier, error) {
	entitlements, err := s.entitlementRepo.FindEffective(ctx, buyerID, agentID, at)
	if err != nil {
		return nil, fmt.Errorf("find effective entitlements: %w", err)
	}

	if len(entitlements) == 0 {
		return &resolvedTier{
			code:  catalog.FreeTierCode,
			limit: s.config.FreeDailyLimit,
		}, nil
	}

	ent := entitlements[0]
	tier, err := s.tierRepo.FindByID(ctx, ent.TierID)
	if err != nil {
		return nil, fmt.Errorf("find entitled tier: %w", err)
	}
	if tier == nil {
		return nil, shared.NewDomainError("TIER_NOT_FOUND", "Entitled tier no longer exists")
	}

	return &resolvedTier{
		code:      tier.Code,
		limit:     tier.UnitsPerDay,
		unlimited: tier.Unlimited,
		zeroLimit: tier.HasZeroLimit(),
		paid:      !tier.IsFree(),
	}, nil
}

// Authorize checks and, when allowed, consumes one unit for the
// invocation. The increment and the limit check run under a per-bucket
// lock so concurrent calls cannot overshoot the allowance.
func (s *GateService) Authorize(ctx context.Context, buyerID, agentID uuid.UUID) (*access.Decision, error) {
	if buyerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer ID cannot be empty")
	}
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}

	agent, err := s.agentRepo.FindByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}
	if agent == nil {
		return nil, shared.NewDomainError("AGENT_NOT_FOUND", "Agent not found")
	}
	if !agent.IsActive() {
		d := access.Deny(buyerID, agentID, "", "", "AGENT_DISABLED", 0, false)
		return &d, nil
	}

	now := s.now()
	day := access.DayKey(now, s.config.Location)

	tier, err := s.resolveTier(ctx, buyerID, agentID, now)
	if err != nil {
		return nil, err
	}

	if tier.zeroLimit {
		// a paid tier granting zero units is misconfigured, not exhausted
		s.logger.Warn("Paid tier with zero daily limit",
			zap.String("agent_id", agentID.String()),
			zap.String("tier_code", tier.code))
		d := access.Deny(buyerID, agentID, tier.code, day, shared.ErrZeroLimitTier.Code, 0, tier.paid)
		return &d, nil
	}

	if tier.unlimited {
		d := access.Allow(buyerID, agentID, tier.code, day, 0, 0, true, tier.paid)
		return &d, nil
	}

	bucket := fmt.Sprintf("%s|%s|%s", buyerID, agentID, day)
	mu := s.buckets.lock(bucket)
	defer mu.Unlock()

	used, err := s.usageRepo.Used(ctx, buyerID, agentID, day)
	if err != nil {
		return nil, fmt.Errorf("read usage counter: %w", err)
	}
	if used >= tier.limit {
		s.logger.Debug("Invocation denied, quota exhausted",
			zap.String("buyer_id", buyerID.String()),
			zap.String("agent_id", agentID.String()),
			zap.String("day", day),
			zap.Int64("limit", tier.limit))
		d := access.Deny(buyerID, agentID, tier.code, day, shared.ErrQuotaExceeded.Code, tier.limit, tier.paid)
		return &d, nil
	}

	newUsed, err := s.usageRepo.Increment(ctx, buyerID, agentID, day)
	if err != nil {
		return nil, fmt.Errorf("consume usage unit: %w", err)
	}

	d := access.Allow(buyerID, agentID, tier.code, day, tier.limit, tier.limit-newUsed, false, tier.paid)
	return &d, nil
}

// Usage reports the current counter state for a buyer and agent without
// consuming anything
func (s *GateService) Usage(ctx context.Context, buyerID, agentID uuid.UUID) (*access.Decision, error) {
	now := s.now()
	day := access.DayKey(now, s.config.Location)

	tier, err := s.resolveTier(ctx, buyerID, agentID, now)
	if err != nil {
		return nil, err
	}
	if tier.unlimited {
		d := access.Allow(buyerID, agentID, tier.code, day, 0, 0, true, tier.paid)
		return &d, nil
	}

	used, err := s.usageRepo.Used(ctx, buyerID, agentID, day)
	if err != nil {
		return nil, fmt.Errorf("read usage counter: %w", err)
	}
	remaining := tier.limit - used
	if remaining < 0 {
		remaining = 0
	}
	d := access.Allow(buyerID, agentID, tier.code, day, tier.limit, remaining, false, tier.paid)
	d.Allowed = remaining > 0
	return &d, nil
}
