package event

import (
	"context"
	"encoding/json"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/agentmarket/backend/internal/domain/stream"
	"go.uber.org/zap"
)

// StreamRelay forwards catalog and access domain events onto the stream
// bus so connected buyers see marketplace changes without polling.
// Settlement outcomes are published by the settlement service itself and
// are not relayed here.
type StreamRelay struct {
	bus        stream.Bus
	serializer *EventSerializer
	logger     *zap.Logger
}

var _ shared.EventHandler = (*StreamRelay)(nil)

// NewStreamRelay creates a relay that republishes domain events as stream events
func NewStreamRelay(bus stream.Bus, serializer *EventSerializer, logger *zap.Logger) *StreamRelay {
	return &StreamRelay{
		bus:        bus,
		serializer: serializer,
		logger:     logger,
	}
}

// EventTypes returns the domain event types the relay forwards
func (r *StreamRelay) EventTypes() []string {
	return []string{
		"AgentListed",
		"AgentStatusChanged",
		"EntitlementGranted",
		"EntitlementRevoked",
	}
}

// Handle serializes the domain event and appends it to the matching topic
func (r *StreamRelay) Handle(ctx context.Context, ev shared.DomainEvent) error {
	topic, streamType := r.route(ev)
	if topic == "" {
		return nil
	}

	payload, err := r.serializer.Serialize(ev)
	if err != nil {
		return err
	}

	out, err := stream.NewEvent(topic, streamType, json.RawMessage(payload))
	if err != nil {
		return err
	}

	if err := r.bus.Publish(ctx, out); err != nil {
		r.logger.Error("failed to relay domain event to stream",
			zap.String("event_type", ev.EventType()),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *StreamRelay) route(ev shared.DomainEvent) (topic, streamType string) {
	switch e := ev.(type) {
	case *catalog.AgentListedEvent, *catalog.AgentStatusChangedEvent:
		return stream.CatalogTopic, stream.EventTypeCatalogChange
	case *access.EntitlementGrantedEvent:
		return stream.PaymentTopic(e.BuyerID), stream.EventTypeEntitlementChange
	case *access.EntitlementRevokedEvent:
		return stream.PaymentTopic(e.BuyerID), stream.EventTypeEntitlementChange
	}
	return "", ""
}
