package access

import (
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// DayKeyLayout is the format of a usage day bucket key
const DayKeyLayout = "2006-01-02"

// DayKey returns the day bucket for an instant in the given location.
// Counters reset when the local calendar day rolls over, there is no
// sliding window.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayKeyLayout)
}

// UsageCounter counts settled invocations of one buyer against one
// agent within one local calendar day. One row per (buyer, agent, day).
type UsageCounter struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	BuyerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usage_buyer_agent_day,priority:1"`
	AgentID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usage_buyer_agent_day,priority:2"`
	Day       string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_usage_buyer_agent_day,priority:3"`
	Used      int64     `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (UsageCounter) TableName() string {
	return "usage_counters"
}

// NewUsageCounter creates a zeroed counter for a (buyer, agent, day) bucket
func NewUsageCounter(buyerID, agentID uuid.UUID, day string) (*UsageCounter, error) {
	if buyerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BUYER", "Buyer ID cannot be empty")
	}
	if agentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENT", "Agent ID cannot be empty")
	}
	if _, err := time.Parse(DayKeyLayout, day); err != nil {
		return nil, shared.NewDomainError("INVALID_DAY_KEY", "Day key must be formatted as YYYY-MM-DD")
	}
	now := time.Now()
	return &UsageCounter{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		AgentID:   agentID,
		Day:       day,
		Used:      0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Remaining returns how many units are left under the given limit,
// never negative
func (c *UsageCounter) Remaining(limit int64) int64 {
	if c.Used >= limit {
		return 0
	}
	return limit - c.Used
}

// Record consumes one unit. The caller checks the limit first; Record
// itself never rejects.
func (c *UsageCounter) Record() {
	c.Used++
	c.UpdatedAt = time.Now()
}
