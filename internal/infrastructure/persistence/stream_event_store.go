package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentmarket/backend/internal/domain/stream"
	"gorm.io/gorm"
)

// appendRetries bounds how often a sequence collision is retried when
// concurrent publishers race on the same topic
const appendRetries = 5

// GormEventStore implements the stream EventStore on the append-only
// stream_events table. Sequences are per topic and start at 1; the
// unique index on (topic, seq) arbitrates concurrent appends.
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GormEventStore
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append assigns the next sequence for the event's topic and persists
// it. The assigned sequence is set on the event. On a sequence
// collision with a concurrent publisher the append is retried with a
// fresh sequence.
func (s *GormEventStore) Append(ctx context.Context, event *stream.Event) error {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		seq, err := s.LastSeq(ctx, event.Topic)
		if err != nil {
			return err
		}
		event.Seq = seq + 1

		err = s.db.WithContext(ctx).Create(event).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKeyError(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("failed to append event to topic %s after %d attempts: %w", event.Topic, appendRetries, lastErr)
}

// History returns events of a topic with Seq greater than afterSeq,
// oldest first, capped at limit
func (s *GormEventStore) History(ctx context.Context, topic string, afterSeq int64, limit int) ([]*stream.Event, error) {
	var events []*stream.Event
	query := s.db.WithContext(ctx).
		Where("topic = ? AND seq > ?", topic, afterSeq).
		Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// LastSeq returns the highest sequence of a topic, zero if empty
func (s *GormEventStore) LastSeq(ctx context.Context, topic string) (int64, error) {
	var seq int64
	err := s.db.WithContext(ctx).
		Model(&stream.Event{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("topic = ?", topic).
		Scan(&seq).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return seq, nil
}

// Ensure GormEventStore implements the interface
var _ stream.EventStore = (*GormEventStore)(nil)
