package stream

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentmarket/backend/internal/domain/stream"
)

// memoryEventStore is an in-memory stream.EventStore for bus tests
type memoryEventStore struct {
	mu     sync.Mutex
	topics map[string][]*stream.Event
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{topics: make(map[string][]*stream.Event)}
}

func (s *memoryEventStore) Append(_ context.Context, event *stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Seq = int64(len(s.topics[event.Topic])) + 1
	s.topics[event.Topic] = append(s.topics[event.Topic], event)
	return nil
}

func (s *memoryEventStore) History(_ context.Context, topic string, afterSeq int64, limit int) ([]*stream.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*stream.Event
	for _, event := range s.topics[topic] {
		if event.Seq > afterSeq {
			out = append(out, event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryEventStore) LastSeq(_ context.Context, topic string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.topics[topic])), nil
}

func newTestBus(t *testing.T, config BusConfig) *StoreBackedBus {
	t.Helper()
	bus := NewStoreBackedBus(newMemoryEventStore(), config, zap.NewNop())
	t.Cleanup(func() { bus.Close() })
	return bus
}

func mustEvent(t *testing.T, topic string, payload any) *stream.Event {
	t.Helper()
	event, err := stream.NewEvent(topic, stream.EventTypeInteraction, payload)
	require.NoError(t, err)
	return event
}

func TestStoreBackedBus_PublishAssignsSequence(t *testing.T) {
	bus := newTestBus(t, BusConfig{})
	ctx := context.Background()

	first := mustEvent(t, "agents.a.interactions", map[string]string{"n": "1"})
	second := mustEvent(t, "agents.a.interactions", map[string]string{"n": "2"})

	require.NoError(t, bus.Publish(ctx, first))
	require.NoError(t, bus.Publish(ctx, second))

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
}

func TestStoreBackedBus_SubscribeReceivesLiveEvents(t *testing.T) {
	bus := newTestBus(t, BusConfig{})
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "agents.a.interactions", 0)
	require.NoError(t, err)
	defer sub.Close()

	event := mustEvent(t, "agents.a.interactions", map[string]string{"n": "1"})
	require.NoError(t, bus.Publish(ctx, event))

	got := <-sub.C()
	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, event.ID, got.ID)
}

func TestStoreBackedBus_SubscribeReplaysHistoryAfterSeq(t *testing.T) {
	bus := newTestBus(t, BusConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, mustEvent(t, "t", map[string]int{"n": i})))
	}

	sub, err := bus.Subscribe(ctx, "t", 1)
	require.NoError(t, err)
	defer sub.Close()

	got := <-sub.C()
	assert.Equal(t, int64(2), got.Seq)
	got = <-sub.C()
	assert.Equal(t, int64(3), got.Seq)

	// Live events continue after the replay.
	require.NoError(t, bus.Publish(ctx, mustEvent(t, "t", map[string]int{"n": 3})))
	got = <-sub.C()
	assert.Equal(t, int64(4), got.Seq)
}

func TestStoreBackedBus_TopicsAreIsolated(t *testing.T) {
	bus := newTestBus(t, BusConfig{})
	ctx := context.Background()

	subA, err := bus.Subscribe(ctx, "a", 0)
	require.NoError(t, err)
	defer subA.Close()

	require.NoError(t, bus.Publish(ctx, mustEvent(t, "b", nil)))
	require.NoError(t, bus.Publish(ctx, mustEvent(t, "a", nil)))

	got := <-subA.C()
	assert.Equal(t, "a", got.Topic)
	assert.Equal(t, int64(1), got.Seq)
}

func TestStoreBackedBus_SlowSubscriberIsDropped(t *testing.T) {
	bus := newTestBus(t, BusConfig{SubscriberQueue: 1})
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "t", 0)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, mustEvent(t, "t", nil)))
	// Queue is full now, the next publish sheds the subscriber.
	require.NoError(t, bus.Publish(ctx, mustEvent(t, "t", nil)))

	got, ok := <-sub.C()
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Seq)

	_, ok = <-sub.C()
	assert.False(t, ok, "channel should be closed after the drop")

	// Resubscribing after the last seen sequence recovers the missed event.
	sub2, err := bus.Subscribe(ctx, "t", got.Seq)
	require.NoError(t, err)
	defer sub2.Close()

	got = <-sub2.C()
	assert.Equal(t, int64(2), got.Seq)
}

func TestStoreBackedBus_History(t *testing.T) {
	bus := newTestBus(t, BusConfig{HistoryLimit: 10})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, mustEvent(t, "t", nil)))
	}

	events, err := bus.History(ctx, "t", 2, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].Seq)
	assert.Equal(t, int64(4), events[1].Seq)

	// A limit beyond the configured cap falls back to the cap.
	events, err = bus.History(ctx, "t", 0, 1000)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestStoreBackedBus_Close(t *testing.T) {
	bus := NewStoreBackedBus(newMemoryEventStore(), BusConfig{}, zap.NewNop())
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "t", 0)
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	_, ok := <-sub.C()
	assert.False(t, ok)

	err = bus.Publish(ctx, mustEvent(t, "t", nil))
	assert.Error(t, err)

	_, err = bus.Subscribe(ctx, "t", 0)
	assert.Error(t, err)
}
