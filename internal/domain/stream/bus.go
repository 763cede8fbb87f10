package stream

import (
	"context"
)

// Subscription is a live feed of one topic. Events arrives on C in
// publish order. A subscriber that falls too far behind is dropped and
// sees C closed; it reconnects and replays from its last sequence.
type Subscription interface {
	// C returns the event channel. It is closed when the subscription ends.
	C() <-chan *Event

	// Topic returns the subscribed topic
	Topic() string

	// Close cancels the subscription and releases its queue
	Close()
}

// Bus is the topic pub/sub fabric. Topics are matched exactly.
type Bus interface {
	// Publish appends the event to its topic and fans it out to
	// subscribers. The assigned sequence is set on the event.
	Publish(ctx context.Context, event *Event) error

	// Subscribe opens a subscription on a topic. afterSeq replays the
	// retained history with Seq greater than the given value before
	// live events; pass 0 for live-only with full retained replay, or
	// the last seen sequence to resume after a reconnect.
	Subscribe(ctx context.Context, topic string, afterSeq int64) (Subscription, error)

	// History returns the retained events of a topic with Seq greater
	// than afterSeq, oldest first, capped at limit
	History(ctx context.Context, topic string, afterSeq int64, limit int) ([]*Event, error)

	// Close shuts the bus down and closes all subscriptions
	Close() error
}

// EventStore persists the append-only per-topic event log
type EventStore interface {
	// Append assigns the next sequence for the event's topic and
	// persists it. The assigned sequence is set on the event.
	Append(ctx context.Context, event *Event) error

	// History returns events of a topic with Seq greater than afterSeq,
	// oldest first, capped at limit
	History(ctx context.Context, topic string, afterSeq int64, limit int) ([]*Event, error)

	// LastSeq returns the highest sequence of a topic, zero if empty
	LastSeq(ctx context.Context, topic string) (int64, error)
}
