// Package stream provides the topic pub/sub fabric and its websocket
// transport.
package stream

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmarket/backend/internal/domain/stream"
)

// BusConfig holds bus settings
type BusConfig struct {
	// SubscriberQueue is the per-subscriber buffer. A subscriber whose
	// queue is full when an event arrives is dropped and must resubscribe
	// with its last seen sequence.
	SubscriberQueue int

	// HistoryLimit caps the events replayed on subscribe and returned
	// by History
	HistoryLimit int
}

// StoreBackedBus is a stream.Bus whose topics are persisted through a
// stream.EventStore. Publishing appends to the store first, so replay
// after a crash or reconnect observes exactly the sequence a live
// subscriber saw.
type StoreBackedBus struct {
	store  stream.EventStore
	config BusConfig
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string][]*subscription
	closed bool
}

var _ stream.Bus = (*StoreBackedBus)(nil)

// NewStoreBackedBus creates a bus over the given event store
func NewStoreBackedBus(store stream.EventStore, config BusConfig, logger *zap.Logger) *StoreBackedBus {
	if config.SubscriberQueue <= 0 {
		config.SubscriberQueue = 256
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 200
	}
	return &StoreBackedBus{
		store:  store,
		config: config,
		logger: logger,
		topics: make(map[string][]*subscription),
	}
}

// Publish appends the event to its topic and fans it out. Subscribers
// that cannot keep up are dropped rather than blocking the publisher.
func (b *StoreBackedBus) Publish(ctx context.Context, event *stream.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("stream: bus is closed")
	}

	// Appending under the lock keeps fan-out in sequence order.
	if err := b.store.Append(ctx, event); err != nil {
		return err
	}

	subs := b.topics[event.Topic]
	kept := subs[:0]
	for _, sub := range subs {
		select {
		case sub.ch <- event:
			kept = append(kept, sub)
		default:
			b.logger.Warn("Dropping slow stream subscriber",
				zap.String("topic", event.Topic),
				zap.Int64("seq", event.Seq),
			)
			sub.drop()
		}
	}
	if len(kept) == 0 {
		delete(b.topics, event.Topic)
	} else {
		b.topics[event.Topic] = kept
	}

	return nil
}

// Subscribe opens a subscription on a topic, replaying retained events
// with Seq greater than afterSeq before going live
func (b *StoreBackedBus) Subscribe(ctx context.Context, topic string, afterSeq int64) (stream.Subscription, error) {
	if topic == "" {
		return nil, errors.New("stream: topic cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("stream: bus is closed")
	}

	// Replay happens under the lock so no publish can slip between the
	// history read and the registration.
	history, err := b.store.History(ctx, topic, afterSeq, b.config.HistoryLimit)
	if err != nil {
		return nil, err
	}

	queue := b.config.SubscriberQueue
	if len(history) >= queue {
		queue = len(history) + 1
	}

	sub := &subscription{
		bus:   b,
		topic: topic,
		ch:    make(chan *stream.Event, queue),
	}
	for _, event := range history {
		sub.ch <- event
	}

	b.topics[topic] = append(b.topics[topic], sub)
	return sub, nil
}

// History returns the retained events of a topic after the given sequence
func (b *StoreBackedBus) History(ctx context.Context, topic string, afterSeq int64, limit int) ([]*stream.Event, error) {
	if limit <= 0 || limit > b.config.HistoryLimit {
		limit = b.config.HistoryLimit
	}
	return b.store.History(ctx, topic, afterSeq, limit)
}

// Close shuts the bus down and closes every subscription
func (b *StoreBackedBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.drop()
		}
	}
	b.topics = make(map[string][]*subscription)
	return nil
}

// remove detaches a subscription, called from Close on the subscription
func (b *StoreBackedBus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[target.topic]
	for i, sub := range subs {
		if sub == target {
			b.topics[target.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[target.topic]) == 0 {
		delete(b.topics, target.topic)
	}
}

// subscription is one subscriber's bounded feed of a topic
type subscription struct {
	bus   *StoreBackedBus
	topic string
	ch    chan *stream.Event
	once  sync.Once
}

var _ stream.Subscription = (*subscription)(nil)

// C returns the event channel
func (s *subscription) C() <-chan *stream.Event {
	return s.ch
}

// Topic returns the subscribed topic
func (s *subscription) Topic() string {
	return s.topic
}

// Close cancels the subscription
func (s *subscription) Close() {
	s.bus.remove(s)
	s.once.Do(func() { close(s.ch) })
}

// drop closes the channel without reacquiring the bus lock, the caller
// already holds it and removes the entry
func (s *subscription) drop() {
	s.once.Do(func() { close(s.ch) })
}
