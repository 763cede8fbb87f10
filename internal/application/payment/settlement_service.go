package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/payment"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/agentmarket/backend/internal/domain/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettlementConfig contains configuration for the settlement service
type SettlementConfig struct {
	// AllowConnectingCancel permits cancelling a settlement that is
	// already talking to the provider. Off by default: the charge may
	// have reached the provider and the outcome should be awaited.
	AllowConnectingCancel bool

	// IdempotencyTTL bounds the fast-path duplicate window. The unique
	// settlement row remains the durable guard after expiry.
	IdempotencyTTL time.Duration
}

// DefaultSettlementConfig returns default configuration
func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		AllowConnectingCancel: false,
		IdempotencyTTL:        24 * time.Hour,
	}
}

// QuoteResult is the priced offer for a tier purchase
type QuoteResult struct {
	AgentID     uuid.UUID          `json:"agent_id"`
	TierCode    string             `json:"tier_code"`
	PriceModel  catalog.PriceModel `json:"price_model"`
	BaseAmount  string             `json:"base_amount"`
	TotalAmount string             `json:"total_amount"` // base x surcharge, exact
	Currency    string             `json:"currency"`
}

// StartInput contains input for opening a settlement
type StartInput struct {
	TxRef    string
	BuyerID  uuid.UUID
	AgentID  uuid.UUID
	TierCode string
}

// ConfirmInput contains input for committing a settlement
type ConfirmInput struct {
	TxRef    string
	Amount   string // committed amount, must equal the quoted total exactly
	Currency string
}

// SettlementService drives payment settlements from quote to terminal
// state. Confirmation is idempotent on the transaction reference: the
// second confirm of the same reference observes the first outcome
// instead of charging again.
type SettlementService struct {
	settlementRepo  payment.SettlementRepository
	tierRepo        catalog.TierRepository
	entitlementRepo access.EntitlementRepository
	provider        payment.LedgerProvider
	idempotency     shared.IdempotencyStore
	bus             stream.Bus
	eventPublisher  shared.EventPublisher
	logger          *zap.Logger
	config          SettlementConfig
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *SettlementService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// publishDomainEvents publishes pending domain events from the aggregate.
// Errors are logged by the event bus, not propagated.
func (s *SettlementService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	root.ClearDomainEvents()
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	settlementRepo payment.SettlementRepository,
	tierRepo catalog.TierRepository,
	entitlementRepo access.EntitlementRepository,
	provider payment.LedgerProvider,
	idempotency shared.IdempotencyStore,
	bus stream.Bus,
	logger *zap.Logger,
	config SettlementConfig,
) *SettlementService {
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = DefaultSettlementConfig().IdempotencyTTL
	}
	return &SettlementService{
		settlementRepo:  settlementRepo,
		tierRepo:        tierRepo,
		entitlementRepo: entitlementRepo,
		provider:        provider,
		idempotency:     idempotency,
		bus:             bus,
		logger:          logger,
		config:          config,
	}
}

// Quote prices a tier purchase without creating anything
func (s *SettlementService) Quote(ctx context.Context, agentID uuid.UUID, tierCode string) (*QuoteResult, error) {
	tier, err := s.findTier(ctx, agentID, tierCode)
	if err != nil {
		return nil, err
	}

	base := tier.PriceMoney()
	total := payment.ChargedAmount(base)

	return &QuoteResult{
		AgentID:     agentID,
		TierCode:    tier.Code,
		PriceModel:  tier.PriceModel,
		BaseAmount:  base.Amount().String(),
		TotalAmount: total.Amount().String(),
		Currency:    string(base.Currency()),
	}, nil
}

// Start opens a settlement in CONFIRM for the given reference. Starting
// an already known reference returns the existing settlement unchanged.
func (s *SettlementService) Start(ctx context.Context, input StartInput) (*payment.Settlement, error) {
	tier, err := s.findTier(ctx, input.AgentID, input.TierCode)
	if err != nil {
		return nil, err
	}
	if tier.IsFree() {
		return nil, shared.NewDomainError("INVALID_TIER", "Free tier cannot be purchased")
	}

	settlement, err := payment.NewSettlement(input.TxRef, input.BuyerID, input.AgentID, tier.ID, tier.Code, tier.PriceMoney())
	if err != nil {
		return nil, err
	}

	if err := s.settlementRepo.Create(ctx, settlement); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, ferr := s.settlementRepo.FindByTxRef(ctx, input.TxRef)
			if ferr != nil {
				return nil, ferr
			}
			if existing == nil {
				return nil, err
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create settlement: %w", err)
	}
	s.publishDomainEvents(ctx, settlement)

	s.logger.Info("Settlement opened",
		zap.String("tx_ref", settlement.TxRef),
		zap.String("buyer_id", settlement.BuyerID.String()),
		zap.String("tier_code", settlement.TierCode),
		zap.String("total", settlement.TotalAmount.String()))

	return settlement, nil
}

// Confirm commits the settlement and drives it through the provider.
// Duplicate confirms of the same reference are answered from the stored
// settlement, no second charge is submitted.
func (s *SettlementService) Confirm(ctx context.Context, input ConfirmInput) (*payment.Settlement, error) {
	if input.TxRef == "" {
		return nil, shared.NewDomainError("INVALID_TX_REF", "Transaction reference cannot be empty")
	}

	settlement, err := s.requireSettlement(ctx, input.TxRef)
	if err != nil {
		return nil, err
	}

	// fast path: a confirm already processed for this attempt answers
	// from the stored settlement. The key is scoped per attempt so a
	// retried settlement is not short-circuited by its failed run.
	if s.idempotency != nil {
		seen, err := s.idempotency.IsProcessed(ctx, confirmKey(input.TxRef, settlement.Attempt))
		if err != nil {
			s.logger.Warn("Idempotency lookup failed, falling back to settlement record", zap.Error(err))
		} else if seen {
			if err := s.ensureGranted(ctx, settlement); err != nil {
				return nil, err
			}
			return settlement, nil
		}
	}
	if settlement.Status != payment.SettlementStatusConfirm {
		// an earlier confirm already drove this settlement; repair the
		// grant if it was interrupted before the entitlement landed
		if err := s.ensureGranted(ctx, settlement); err != nil {
			return nil, err
		}
		return settlement, nil
	}

	currency := input.Currency
	if currency == "" {
		currency = settlement.Currency
	}
	committed, err := valueobject.NewMoneyFromString(input.Amount, valueobject.Currency(currency))
	if err != nil {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Committed amount is not a valid decimal")
	}

	if err := settlement.Connect(committed); err != nil {
		return nil, err
	}
	if err := s.settlementRepo.SaveWithLock(ctx, settlement); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			// a racing confirm won, surface its outcome
			return s.requireSettlement(ctx, input.TxRef)
		}
		return nil, err
	}

	settlement, err = s.submit(ctx, settlement)
	if err != nil {
		return nil, err
	}

	if s.idempotency != nil {
		if _, err := s.idempotency.MarkProcessed(ctx, confirmKey(input.TxRef, settlement.Attempt), s.config.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to mark confirmation processed", zap.Error(err))
		}
	}

	return settlement, nil
}

// submit hands the charge to the provider and advances the settlement
// according to the outcome
func (s *SettlementService) submit(ctx context.Context, settlement *payment.Settlement) (*payment.Settlement, error) {
	outcome, err := s.provider.SubmitCharge(ctx, settlement.TxRef, settlement.TotalMoney())
	switch {
	case err == nil:
		providerRef := ""
		if outcome != nil {
			providerRef = outcome.ProviderRef
		}
		if serr := settlement.MarkPending(providerRef); serr != nil {
			return nil, serr
		}
		if outcome != nil && outcome.Settled {
			if serr := settlement.Succeed(); serr != nil {
				return nil, serr
			}
		}

	case errors.Is(err, shared.ErrProviderRejected):
		if serr := settlement.Fail(shared.ErrProviderRejected.Code, err.Error()); serr != nil {
			return nil, serr
		}

	case errors.Is(err, shared.ErrProviderTimeout):
		// outcome unknown, park the settlement as pending and let
		// status polling resolve it
		if serr := settlement.MarkPending(""); serr != nil {
			return nil, serr
		}
		s.logger.Warn("Provider timed out, settlement left pending",
			zap.String("tx_ref", settlement.TxRef))

	default:
		return nil, fmt.Errorf("submit charge: %w", err)
	}

	if err := s.settlementRepo.SaveWithLock(ctx, settlement); err != nil {
		return nil, err
	}

	return s.finalize(ctx, settlement)
}

// StatusResult is a settlement status snapshot. Stale is set when the
// provider could not be reached and the stored status may be behind.
type StatusResult struct {
	Settlement *payment.Settlement
	Stale      bool
}

// Status returns the settlement for a reference, polling the provider
// first when the outcome is still pending
func (s *SettlementService) Status(ctx context.Context, txRef string) (*StatusResult, error) {
	settlement, err := s.requireSettlement(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if settlement.Status != payment.SettlementStatusPending {
		if err := s.ensureGranted(ctx, settlement); err != nil {
			return nil, err
		}
		return &StatusResult{Settlement: settlement}, nil
	}

	outcome, err := s.provider.ChargeStatus(ctx, txRef)
	switch {
	case err == nil:
		if outcome != nil && outcome.Settled {
			if serr := settlement.Succeed(); serr != nil {
				return nil, serr
			}
			if serr := s.settlementRepo.SaveWithLock(ctx, settlement); serr != nil {
				return nil, serr
			}
			settlement, serr := s.finalize(ctx, settlement)
			if serr != nil {
				return nil, serr
			}
			return &StatusResult{Settlement: settlement}, nil
		}
		return &StatusResult{Settlement: settlement}, nil

	case errors.Is(err, shared.ErrProviderRejected):
		if serr := settlement.Fail(shared.ErrProviderRejected.Code, err.Error()); serr != nil {
			return nil, serr
		}
		if serr := s.settlementRepo.SaveWithLock(ctx, settlement); serr != nil {
			return nil, serr
		}
		settlement, serr := s.finalize(ctx, settlement)
		if serr != nil {
			return nil, serr
		}
		return &StatusResult{Settlement: settlement}, nil

	case errors.Is(err, shared.ErrProviderTimeout):
		s.logger.Warn("Provider unreachable, returning stored settlement status",
			zap.String("tx_ref", txRef))
		return &StatusResult{Settlement: settlement, Stale: true}, nil

	default:
		return nil, fmt.Errorf("poll charge status: %w", err)
	}
}

// ListByBuyer returns a buyer's settlements, newest first
func (s *SettlementService) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]payment.Settlement, error) {
	return s.settlementRepo.FindByBuyer(ctx, buyerID)
}

// Cancel aborts a settlement before the provider holds the charge
func (s *SettlementService) Cancel(ctx context.Context, txRef, reason string) (*payment.Settlement, error) {
	settlement, err := s.requireSettlement(ctx, txRef)
	if err != nil {
		return nil, err
	}

	if settlement.Status == payment.SettlementStatusConnecting && !s.config.AllowConnectingCancel {
		return nil, shared.NewDomainError("INVALID_STATE", "Settlement is already contacting the provider")
	}

	if err := settlement.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.settlementRepo.SaveWithLock(ctx, settlement); err != nil {
		return nil, err
	}
	return s.finalize(ctx, settlement)
}

// Retry re-opens a failed settlement in CONFIRM with a fresh quote.
// The tier is re-priced, amounts from the failed attempt are not reused.
func (s *SettlementService) Retry(ctx context.Context, txRef string) (*payment.Settlement, error) {
	settlement, err := s.requireSettlement(ctx, txRef)
	if err != nil {
		return nil, err
	}

	tier, err := s.findTier(ctx, settlement.AgentID, settlement.TierCode)
	if err != nil {
		return nil, err
	}

	if err := settlement.Retry(tier.PriceMoney()); err != nil {
		return nil, err
	}
	if err := s.settlementRepo.SaveWithLock(ctx, settlement); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return s.requireSettlement(ctx, txRef)
		}
		return nil, err
	}

	s.logger.Info("Settlement reopened for retry",
		zap.String("tx_ref", settlement.TxRef),
		zap.Int("attempt", settlement.Attempt),
		zap.String("total", settlement.TotalAmount.String()))

	return settlement, nil
}

// finalize runs the side effects of a terminal settlement: granting the
// entitlement on success and publishing the outcome to the buyer's
// payment topic
func (s *SettlementService) finalize(ctx context.Context, settlement *payment.Settlement) (*payment.Settlement, error) {
	s.publishDomainEvents(ctx, settlement)

	switch settlement.Status {
	case payment.SettlementStatusSuccess:
		if err := s.grantEntitlement(ctx, settlement); err != nil {
			return nil, err
		}
		s.publishOutcome(ctx, settlement, stream.EventTypePaymentSettled)

	case payment.SettlementStatusError:
		s.publishOutcome(ctx, settlement, stream.EventTypePaymentFailed)
	}
	return settlement, nil
}

// ensureGranted repairs a settled purchase whose entitlement save was
// interrupted. The settlement row records SUCCESS before the grant, so
// any later observation of a SUCCESS settlement re-runs the idempotent
// grant until it sticks.
func (s *SettlementService) ensureGranted(ctx context.Context, settlement *payment.Settlement) error {
	if settlement.Status != payment.SettlementStatusSuccess {
		return nil
	}
	return s.grantEntitlement(ctx, settlement)
}

// grantEntitlement creates the access granted by a settled purchase,
// revoking any entitlement it replaces. A buyer holds at most one
// effective entitlement per agent. It is keyed on the settlement
// reference, re-running it is harmless.
func (s *SettlementService) grantEntitlement(ctx context.Context, settlement *payment.Settlement) error {
	existing, err := s.entitlementRepo.FindByTxRef(ctx, settlement.TxRef)
	if err != nil {
		return fmt.Errorf("lookup entitlement: %w", err)
	}
	if existing != nil {
		return nil
	}

	tier, err := s.tierRepo.FindByID(ctx, settlement.TierID)
	if err != nil {
		return fmt.Errorf("find purchased tier: %w", err)
	}
	if tier == nil {
		return shared.NewDomainError("TIER_NOT_FOUND", "Purchased tier no longer exists")
	}

	now := time.Now()

	// The new purchase replaces whatever grant is currently in force.
	replaced, err := s.entitlementRepo.FindEffective(ctx, settlement.BuyerID, settlement.AgentID, now)
	if err != nil {
		return fmt.Errorf("find replaced entitlements: %w", err)
	}
	for i := range replaced {
		old := &replaced[i]
		if err := old.Revoke(); err != nil {
			continue
		}
		if err := s.entitlementRepo.Save(ctx, old); err != nil {
			return fmt.Errorf("revoke replaced entitlement: %w", err)
		}
		s.publishDomainEvents(ctx, old)
		s.logger.Info("Entitlement replaced by new purchase",
			zap.String("buyer_id", settlement.BuyerID.String()),
			zap.String("old_tx_ref", old.TxRef),
			zap.String("new_tx_ref", settlement.TxRef))
	}

	var ent *access.Entitlement
	if tier.PriceModel == catalog.PriceModelSubscription {
		ent, err = access.NewSubscriptionEntitlement(settlement.BuyerID, settlement.AgentID, tier.ID, tier.Code, settlement.TxRef, now)
	} else {
		ent, err = access.NewEntitlement(settlement.BuyerID, settlement.AgentID, tier.ID, tier.Code, settlement.TxRef, now)
	}
	if err != nil {
		return err
	}

	if err := s.entitlementRepo.Save(ctx, ent); err != nil {
		// tx_ref is unique, a racing caller may have granted first
		if again, ferr := s.entitlementRepo.FindByTxRef(ctx, settlement.TxRef); ferr == nil && again != nil {
			return nil
		}
		return fmt.Errorf("save entitlement: %w", err)
	}
	s.publishDomainEvents(ctx, ent)

	s.logger.Info("Entitlement granted",
		zap.String("tx_ref", settlement.TxRef),
		zap.String("buyer_id", settlement.BuyerID.String()),
		zap.String("tier_code", tier.Code))

	return nil
}

// publishOutcome reports the settlement outcome on the buyer's payment
// topic. Publishing is best effort, the settlement record is the truth.
func (s *SettlementService) publishOutcome(ctx context.Context, settlement *payment.Settlement, eventType string) {
	if s.bus == nil {
		return
	}
	ev, err := stream.NewEvent(stream.PaymentTopic(settlement.BuyerID), eventType, map[string]any{
		"tx_ref":       settlement.TxRef,
		"agent_id":     settlement.AgentID,
		"tier_code":    settlement.TierCode,
		"status":       settlement.Status,
		"total_amount": settlement.TotalAmount.String(),
		"currency":     settlement.Currency,
		"failure_code": settlement.FailureCode,
	})
	if err != nil {
		s.logger.Error("Failed to build settlement outcome event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Error("Failed to publish settlement outcome",
			zap.String("tx_ref", settlement.TxRef),
			zap.Error(err))
	}
}

func (s *SettlementService) requireSettlement(ctx context.Context, txRef string) (*payment.Settlement, error) {
	settlement, err := s.settlementRepo.FindByTxRef(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, shared.NewDomainError("SETTLEMENT_NOT_FOUND", "No settlement for this transaction reference")
	}
	return settlement, nil
}

func (s *SettlementService) findTier(ctx context.Context, agentID uuid.UUID, tierCode string) (*catalog.Tier, error) {
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}
	if tierCode == "" {
		return nil, shared.NewDomainError("INVALID_TIER", "Tier code cannot be empty")
	}
	tier, err := s.tierRepo.FindActiveByAgentAndCode(ctx, agentID, tierCode)
	if err != nil {
		return nil, fmt.Errorf("find tier: %w", err)
	}
	if tier == nil {
		return nil, shared.NewDomainError("TIER_NOT_FOUND", "Tier not found")
	}
	return tier, nil
}

func confirmKey(txRef string, attempt int) string {
	return fmt.Sprintf("settlement:confirm:%s:%d", txRef, attempt)
}
