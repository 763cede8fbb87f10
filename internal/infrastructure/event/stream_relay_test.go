package event

import (
	"context"
	"testing"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/stream"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureBus records published stream events
type captureBus struct {
	published []*stream.Event
}

func (b *captureBus) Publish(ctx context.Context, event *stream.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, topic string, afterSeq int64) (stream.Subscription, error) {
	return nil, nil
}

func (b *captureBus) History(ctx context.Context, topic string, afterSeq int64, limit int) ([]*stream.Event, error) {
	return nil, nil
}

func (b *captureBus) Close() error {
	return nil
}

func newRelayForTest() (*StreamRelay, *captureBus) {
	bus := &captureBus{}
	serializer := NewEventSerializer()
	RegisterAllEvents(serializer)
	return NewStreamRelay(bus, serializer, zap.NewNop()), bus
}

func TestStreamRelay_AgentListed_GoesToCatalogTopic(t *testing.T) {
	relay, bus := newRelayForTest()

	agent, err := catalog.NewAgent("translator", "Translates text", "language", "gpt-4o-mini", "You translate.")
	require.NoError(t, err)
	events := agent.GetDomainEvents()
	require.NotEmpty(t, events)

	err = relay.Handle(context.Background(), events[0])

	require.NoError(t, err)
	require.Len(t, bus.published, 1)
	assert.Equal(t, stream.CatalogTopic, bus.published[0].Topic)
	assert.Equal(t, stream.EventTypeCatalogChange, bus.published[0].Type)
	assert.Contains(t, string(bus.published[0].Payload), agent.ID.String())
}

func TestStreamRelay_EntitlementGranted_GoesToBuyerPaymentTopic(t *testing.T) {
	relay, bus := newRelayForTest()

	buyerID := uuid.New()
	ev := &access.EntitlementGrantedEvent{
		BaseDomainEvent: newTestEvent("EntitlementGranted").BaseDomainEvent,
		EntitlementID:   uuid.New(),
		BuyerID:         buyerID,
		AgentID:         uuid.New(),
		TierCode:        "PRO",
		TxRef:           "tx-1",
	}

	err := relay.Handle(context.Background(), ev)

	require.NoError(t, err)
	require.Len(t, bus.published, 1)
	assert.Equal(t, stream.PaymentTopic(buyerID), bus.published[0].Topic)
	assert.Equal(t, stream.EventTypeEntitlementChange, bus.published[0].Type)
}

func TestStreamRelay_UnroutedEvent_IsIgnored(t *testing.T) {
	relay, bus := newRelayForTest()

	err := relay.Handle(context.Background(), newTestEvent("SomethingElse"))

	require.NoError(t, err)
	assert.Empty(t, bus.published)
}

func TestStreamRelay_EventTypes(t *testing.T) {
	relay, _ := newRelayForTest()

	types := relay.EventTypes()

	assert.Contains(t, types, "AgentListed")
	assert.Contains(t, types, "EntitlementGranted")
	assert.NotContains(t, types, "SettlementSucceeded")
}
