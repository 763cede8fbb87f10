package payment

import (
	"fmt"
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus represents the state of a payment settlement
type SettlementStatus string

const (
	SettlementStatusConfirm    SettlementStatus = "CONFIRM"    // quote shown, waiting for the buyer to commit
	SettlementStatusConnecting SettlementStatus = "CONNECTING" // contacting the ledger provider
	SettlementStatusPending    SettlementStatus = "PENDING"    // submitted, provider outcome not yet known
	SettlementStatusSuccess    SettlementStatus = "SUCCESS"
	SettlementStatusError      SettlementStatus = "ERROR"
)

// IsValid checks if the status is a valid SettlementStatus
func (s SettlementStatus) IsValid() bool {
	switch s {
	case SettlementStatusConfirm, SettlementStatusConnecting, SettlementStatusPending,
		SettlementStatusSuccess, SettlementStatusError:
		return true
	}
	return false
}

// String returns the string representation of SettlementStatus
func (s SettlementStatus) String() string {
	return string(s)
}

// IsTerminal returns true for states that cannot change anymore.
// ERROR is not terminal, a failed settlement can be retried from CONFIRM.
func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementStatusSuccess
}

// CanTransitionTo checks if the status can transition to the target status
func (s SettlementStatus) CanTransitionTo(target SettlementStatus) bool {
	switch s {
	case SettlementStatusConfirm:
		return target == SettlementStatusConnecting || target == SettlementStatusError
	case SettlementStatusConnecting:
		return target == SettlementStatusPending || target == SettlementStatusError
	case SettlementStatusPending:
		return target == SettlementStatusSuccess || target == SettlementStatusError
	case SettlementStatusError:
		// the only back-edge: a failed attempt can be retried
		return target == SettlementStatusConfirm
	case SettlementStatusSuccess:
		return false
	}
	return false
}

// FailureCodeCancelled marks a settlement the buyer walked away from.
// Unlike provider failures a cancellation is final, it cannot be retried.
const FailureCodeCancelled = "CANCELLED"

// FeeRate is the marketplace surcharge applied on top of the tier price
var FeeRate = decimal.RequireFromString("1.025")

// ChargedAmount returns the total the buyer pays for a base price.
// The multiplication is exact, rounding is left to display code.
func ChargedAmount(base valueobject.Money) valueobject.Money {
	return base.Multiply(FeeRate)
}

// Settlement represents one payment attempt for a tier purchase.
// TxRef is the idempotency key: confirming the same reference twice
// must not produce a second charge.
type Settlement struct {
	shared.BaseAggregateRoot
	TxRef        string           `gorm:"type:varchar(100);not null;uniqueIndex"`
	BuyerID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	AgentID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	TierID       uuid.UUID        `gorm:"type:uuid;not null"`
	TierCode     string           `gorm:"type:varchar(50);not null"`
	BaseAmount   decimal.Decimal  `gorm:"type:decimal(18,6);not null"` // tier price before the surcharge
	TotalAmount  decimal.Decimal  `gorm:"type:decimal(18,6);not null"` // base x fee rate, charged to the buyer
	Currency     string           `gorm:"type:varchar(3);not null;default:'USD'"`
	Status       SettlementStatus `gorm:"type:varchar(20);not null;default:'CONFIRM';index"`
	Attempt      int              `gorm:"not null;default:1"` // bumped on every retry, scopes confirm idempotency
	ProviderRef  string           `gorm:"type:varchar(200)"`  // reference returned by the ledger provider
	FailureCode  string           `gorm:"type:varchar(50)"`
	FailureCause string           `gorm:"type:varchar(500)"`
	SubmittedAt  *time.Time
	SettledAt    *time.Time
}

// TableName returns the table name for GORM
func (Settlement) TableName() string {
	return "settlements"
}

// NewSettlement creates a settlement in CONFIRM state with the quote applied
func NewSettlement(txRef string, buyerID, agentID, tierID uuid.UUID, tierCode string, base valueobject.Money) (*Settlement, error) {
	if txRef == "" {
		return nil, shared.NewDomainError("INVALID_TX_REF", "Transaction reference cannot be empty")
	}
	if len(txRef) > 100 {
		return nil, shared.NewDomainError("INVALID_TX_REF", "Transaction reference cannot exceed 100 characters")
	}
	if buyerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer ID cannot be empty")
	}
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}
	if tierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TIER", "Tier ID cannot be empty")
	}
	if !base.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Base amount must be positive")
	}

	total := ChargedAmount(base)

	s := &Settlement{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TxRef:             txRef,
		BuyerID:           buyerID,
		AgentID:           agentID,
		TierID:            tierID,
		TierCode:          tierCode,
		BaseAmount:        base.Amount(),
		TotalAmount:       total.Amount(),
		Currency:          string(base.Currency()),
		Status:            SettlementStatusConfirm,
		Attempt:           1,
	}

	s.AddDomainEvent(NewSettlementStartedEvent(s))

	return s, nil
}

// Connect moves the settlement into CONNECTING once the buyer commits.
// The committed amount must match the quoted total exactly.
func (s *Settlement) Connect(committed valueobject.Money) error {
	if !s.Status.CanTransitionTo(SettlementStatusConnecting) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot commit settlement in %s status", s.Status))
	}
	if string(committed.Currency()) != s.Currency || !committed.Amount().Equal(s.TotalAmount) {
		return shared.NewDomainError("AMOUNT_MISMATCH",
			fmt.Sprintf("Committed amount %s does not match quoted total %s %s",
				committed.String(), s.TotalAmount.String(), s.Currency))
	}

	s.Status = SettlementStatusConnecting
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	return nil
}

// MarkPending records that the charge was handed to the ledger provider
func (s *Settlement) MarkPending(providerRef string) error {
	if !s.Status.CanTransitionTo(SettlementStatusPending) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot submit settlement in %s status", s.Status))
	}

	now := time.Now()
	s.Status = SettlementStatusPending
	s.ProviderRef = providerRef
	s.SubmittedAt = &now
	s.UpdatedAt = now
	s.IncrementVersion()

	return nil
}

// Succeed finalizes the settlement after the provider confirmed the charge
func (s *Settlement) Succeed() error {
	if !s.Status.CanTransitionTo(SettlementStatusSuccess) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot settle settlement in %s status", s.Status))
	}

	now := time.Now()
	s.Status = SettlementStatusSuccess
	s.SettledAt = &now
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewSettlementSucceededEvent(s))

	return nil
}

// Fail moves the settlement into ERROR with a failure code
func (s *Settlement) Fail(code, cause string) error {
	if !s.Status.CanTransitionTo(SettlementStatusError) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail settlement in %s status", s.Status))
	}
	if code == "" {
		return shared.NewDomainError("INVALID_FAILURE_CODE", "Failure code is required")
	}

	now := time.Now()
	s.Status = SettlementStatusError
	s.FailureCode = code
	s.FailureCause = cause
	s.SettledAt = &now
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewSettlementFailedEvent(s))

	return nil
}

// Cancel aborts a settlement the buyer walked away from. Only the
// pre-submission states can be cancelled; once the provider holds the
// charge the outcome is whatever the provider reports.
func (s *Settlement) Cancel(reason string) error {
	if s.Status != SettlementStatusConfirm && s.Status != SettlementStatusConnecting {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel settlement in %s status", s.Status))
	}
	return s.Fail(FailureCodeCancelled, reason)
}

// Retry re-opens a failed settlement for another attempt. The quote is
// taken fresh, price changes between attempts apply to the retry rather
// than carrying the old amounts over. Cancelled settlements stay final.
func (s *Settlement) Retry(base valueobject.Money) error {
	if !s.Status.CanTransitionTo(SettlementStatusConfirm) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot retry settlement in %s status", s.Status))
	}
	if s.FailureCode == FailureCodeCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cancelled settlements cannot be retried")
	}
	if !base.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Base amount must be positive")
	}

	total := ChargedAmount(base)

	s.Status = SettlementStatusConfirm
	s.Attempt++
	s.BaseAmount = base.Amount()
	s.TotalAmount = total.Amount()
	s.Currency = string(base.Currency())
	s.ProviderRef = ""
	s.FailureCode = ""
	s.FailureCause = ""
	s.SubmittedAt = nil
	s.SettledAt = nil
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	return nil
}

// IsSettled returns true once the charge went through
func (s *Settlement) IsSettled() bool {
	return s.Status == SettlementStatusSuccess
}

// BaseMoney returns the base amount as Money
func (s *Settlement) BaseMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(s.BaseAmount, valueobject.Currency(s.Currency))
	return m
}

// TotalMoney returns the charged total as Money
func (s *Settlement) TotalMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(s.TotalAmount, valueobject.Currency(s.Currency))
	return m
}
