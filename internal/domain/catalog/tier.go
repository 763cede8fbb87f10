package catalog

import (
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceModel represents how access to a tier is charged
type PriceModel string

const (
	PriceModelPerUnit      PriceModel = "PER_UNIT"     // each settled payment buys a batch of daily units
	PriceModelSubscription PriceModel = "SUBSCRIPTION" // time-boxed entitlement, renewed by payment
	PriceModelOneTime      PriceModel = "ONE_TIME"     // single payment, open-ended entitlement
)

// IsValid checks if the price model is valid
func (p PriceModel) IsValid() bool {
	switch p {
	case PriceModelPerUnit, PriceModelSubscription, PriceModelOneTime:
		return true
	}
	return false
}

// String returns the string representation of PriceModel
func (p PriceModel) String() string {
	return string(p)
}

// FreeTierCode is the reserved code of the implicit free tier
const FreeTierCode = "FREE"

// Tier represents a purchasable access level for an agent.
// Tier rows are immutable once referenced by entitlements: changes are
// made by deactivating the old row and inserting a successor, so that
// settled purchases keep the terms they were sold under.
type Tier struct {
	shared.BaseAggregateRoot
	AgentID     uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_tier_agent_code_rev,priority:1"`
	Code        string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_tier_agent_code_rev,priority:2"`
	Revision    int             `gorm:"not null;default:1;uniqueIndex:idx_tier_agent_code_rev,priority:3"`
	Name        string          `gorm:"type:varchar(200);not null"`
	PriceModel  PriceModel      `gorm:"type:varchar(20);not null"`
	Price       decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	Currency    string          `gorm:"type:varchar(3);not null;default:'USD'"`
	UnitsPerDay int64           `gorm:"not null;default:0"` // daily invocation allowance; ignored when Unlimited
	Unlimited   bool            `gorm:"not null;default:false"`
	Active      bool            `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (Tier) TableName() string {
	return "tiers"
}

// NewTier creates a new tier for an agent
func NewTier(agentID uuid.UUID, code, name string, priceModel PriceModel, price valueobject.Money, unitsPerDay int64, unlimited bool) (*Tier, error) {
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}
	if code == "" {
		return nil, shared.NewDomainError("INVALID_TIER_CODE", "Tier code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_TIER_NAME", "Tier name cannot be empty")
	}
	if !priceModel.IsValid() {
		return nil, shared.NewDomainError("INVALID_PRICE_MODEL", "Price model is not valid")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	if unitsPerDay < 0 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Units per day cannot be negative")
	}
	if code == FreeTierCode && price.IsPositive() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Free tier cannot carry a price")
	}

	t := &Tier{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AgentID:           agentID,
		Code:              code,
		Revision:          1,
		Name:              name,
		PriceModel:        priceModel,
		Price:             price.Amount(),
		Currency:          string(price.Currency()),
		UnitsPerDay:       unitsPerDay,
		Unlimited:         unlimited,
		Active:            true,
	}

	return t, nil
}

// Supersede deactivates this tier row and returns the successor carrying
// the updated terms. Entitlements already sold keep pointing at this row.
func (t *Tier) Supersede(name string, price valueobject.Money, unitsPerDay int64, unlimited bool) (*Tier, error) {
	if !t.Active {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot supersede an inactive tier")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Price cannot be negative")
	}
	if unitsPerDay < 0 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Units per day cannot be negative")
	}

	next := &Tier{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AgentID:           t.AgentID,
		Code:              t.Code,
		Revision:          t.Revision + 1,
		Name:              name,
		PriceModel:        t.PriceModel,
		Price:             price.Amount(),
		Currency:          string(price.Currency()),
		UnitsPerDay:       unitsPerDay,
		Unlimited:         unlimited,
		Active:            true,
	}

	t.Active = false
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	return next, nil
}

// Deactivate withdraws the tier from sale
func (t *Tier) Deactivate() error {
	if !t.Active {
		return shared.NewDomainError("INVALID_STATE", "Tier is already inactive")
	}
	t.Active = false
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
	return nil
}

// IsFree returns true if this is the free tier
func (t *Tier) IsFree() bool {
	return t.Code == FreeTierCode
}

// HasZeroLimit reports whether a paid tier grants no usable units at
// all. Such a tier is a configuration error, not a quota exhaustion.
func (t *Tier) HasZeroLimit() bool {
	return !t.Unlimited && t.UnitsPerDay == 0 && !t.IsFree()
}

// PriceMoney returns the tier price as Money
func (t *Tier) PriceMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(t.Price, valueobject.Currency(t.Currency))
	return m
}
