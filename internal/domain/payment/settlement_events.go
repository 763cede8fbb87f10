package payment

import (
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStartedEvent is raised when a quote is issued and the
// settlement enters CONFIRM
type SettlementStartedEvent struct {
	shared.BaseDomainEvent
	SettlementID uuid.UUID       `json:"settlement_id"`
	TxRef        string          `json:"tx_ref"`
	BuyerID      uuid.UUID       `json:"buyer_id"`
	AgentID      uuid.UUID       `json:"agent_id"`
	TierCode     string          `json:"tier_code"`
	BaseAmount   decimal.Decimal `json:"base_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
}

// EventType returns the event type name
func (e *SettlementStartedEvent) EventType() string {
	return "SettlementStarted"
}

// NewSettlementStartedEvent creates a new SettlementStartedEvent
func NewSettlementStartedEvent(s *Settlement) *SettlementStartedEvent {
	return &SettlementStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("SettlementStarted", "Settlement", s.ID),
		SettlementID:    s.ID,
		TxRef:           s.TxRef,
		BuyerID:         s.BuyerID,
		AgentID:         s.AgentID,
		TierCode:        s.TierCode,
		BaseAmount:      s.BaseAmount,
		TotalAmount:     s.TotalAmount,
		Currency:        s.Currency,
	}
}

// SettlementSucceededEvent is raised when the provider confirms the charge
type SettlementSucceededEvent struct {
	shared.BaseDomainEvent
	SettlementID uuid.UUID       `json:"settlement_id"`
	TxRef        string          `json:"tx_ref"`
	BuyerID      uuid.UUID       `json:"buyer_id"`
	AgentID      uuid.UUID       `json:"agent_id"`
	TierCode     string          `json:"tier_code"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	ProviderRef  string          `json:"provider_ref"`
	SettledAt    time.Time       `json:"settled_at"`
}

// EventType returns the event type name
func (e *SettlementSucceededEvent) EventType() string {
	return "SettlementSucceeded"
}

// NewSettlementSucceededEvent creates a new SettlementSucceededEvent
func NewSettlementSucceededEvent(s *Settlement) *SettlementSucceededEvent {
	settledAt := time.Now()
	if s.SettledAt != nil {
		settledAt = *s.SettledAt
	}
	return &SettlementSucceededEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("SettlementSucceeded", "Settlement", s.ID),
		SettlementID:    s.ID,
		TxRef:           s.TxRef,
		BuyerID:         s.BuyerID,
		AgentID:         s.AgentID,
		TierCode:        s.TierCode,
		TotalAmount:     s.TotalAmount,
		Currency:        s.Currency,
		ProviderRef:     s.ProviderRef,
		SettledAt:       settledAt,
	}
}

// SettlementFailedEvent is raised when a settlement ends in ERROR
type SettlementFailedEvent struct {
	shared.BaseDomainEvent
	SettlementID uuid.UUID `json:"settlement_id"`
	TxRef        string    `json:"tx_ref"`
	BuyerID      uuid.UUID `json:"buyer_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	FailureCode  string    `json:"failure_code"`
	FailureCause string    `json:"failure_cause,omitempty"`
}

// EventType returns the event type name
func (e *SettlementFailedEvent) EventType() string {
	return "SettlementFailed"
}

// NewSettlementFailedEvent creates a new SettlementFailedEvent
func NewSettlementFailedEvent(s *Settlement) *SettlementFailedEvent {
	return &SettlementFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("SettlementFailed", "Settlement", s.ID),
		SettlementID:    s.ID,
		TxRef:           s.TxRef,
		BuyerID:         s.BuyerID,
		AgentID:         s.AgentID,
		FailureCode:     s.FailureCode,
		FailureCause:    s.FailureCause,
	}
}
