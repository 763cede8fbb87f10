package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Well-known event types published on interaction topics
const (
	EventTypeInteraction       = "agent.interaction"
	EventTypePaymentSettled    = "payment.settled"
	EventTypePaymentFailed     = "payment.failed"
	EventTypeEntitlementChange = "entitlement.changed"
	EventTypeCatalogChange     = "catalog.changed"
)

// CatalogTopic carries agent listings and status changes for the whole
// marketplace. There is one shared topic, buyers filter client side.
const CatalogTopic = "catalog.agents"

// InteractionTopic returns the topic carrying invocation results for an
// agent. Matching is exact, there are no wildcard subscriptions.
func InteractionTopic(agentID uuid.UUID) string {
	return fmt.Sprintf("agents.%s.interactions", agentID)
}

// PaymentTopic returns the topic carrying settlement outcomes for a buyer
func PaymentTopic(buyerID uuid.UUID) string {
	return fmt.Sprintf("buyers.%s.payments", buyerID)
}

// Event is one message on a topic. Seq is assigned per topic at append
// time and strictly increases, it orders history and replay.
type Event struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Topic      string          `gorm:"type:varchar(200);not null;uniqueIndex:idx_stream_topic_seq,priority:1" json:"topic"`
	Seq        int64           `gorm:"not null;uniqueIndex:idx_stream_topic_seq,priority:2" json:"seq"`
	Type       string          `gorm:"type:varchar(100);not null" json:"type"`
	Payload    json.RawMessage `gorm:"type:jsonb" json:"payload"`
	OccurredAt time.Time       `gorm:"not null;index" json:"occurred_at"`
}

// TableName returns the table name for GORM
func (Event) TableName() string {
	return "stream_events"
}

// NewEvent creates an event for a topic. Seq is zero until the store
// assigns it on append.
func NewEvent(topic, eventType string, payload any) (*Event, error) {
	if topic == "" {
		return nil, shared.NewDomainError("INVALID_TOPIC", "Topic cannot be empty")
	}
	if eventType == "" {
		return nil, shared.NewDomainError("INVALID_EVENT_TYPE", "Event type cannot be empty")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	return &Event{
		ID:         uuid.New(),
		Topic:      topic,
		Type:       eventType,
		Payload:    raw,
		OccurredAt: time.Now(),
	}, nil
}

// InteractionPayload is the payload of an agent.interaction event
type InteractionPayload struct {
	BuyerID   uuid.UUID `json:"buyer_id"`
	AgentID   uuid.UUID `json:"agent_id"`
	TierCode  string    `json:"tier_code"`
	IsPaid    bool      `json:"is_paid"`
	Prompt    string    `json:"prompt"`
	Reply     string    `json:"reply"`
	Remaining int64     `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
}
