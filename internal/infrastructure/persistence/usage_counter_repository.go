package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUsageCounterRepository implements UsageCounterRepository using GORM
type GormUsageCounterRepository struct {
	db *gorm.DB
}

// NewGormUsageCounterRepository creates a new GormUsageCounterRepository
func NewGormUsageCounterRepository(db *gorm.DB) *GormUsageCounterRepository {
	return &GormUsageCounterRepository{db: db}
}

// Get finds the counter for a (buyer, agent, day) bucket, or nil
func (r *GormUsageCounterRepository) Get(ctx context.Context, buyerID, agentID uuid.UUID, day string) (*access.UsageCounter, error) {
	var counter access.UsageCounter
	if err := r.db.WithContext(ctx).
		First(&counter, "buyer_id = ? AND agent_id = ? AND day = ?", buyerID, agentID, day).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// Increment atomically adds one unit to the bucket, creating the row
// if absent, and returns the new used count. The unique index on
// (buyer_id, agent_id, day) turns concurrent first writes into updates.
func (r *GormUsageCounterRepository) Increment(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error) {
	counter, err := access.NewUsageCounter(buyerID, agentID, day)
	if err != nil {
		return 0, err
	}
	counter.Used = 1

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "buyer_id"}, {Name: "agent_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"used":       gorm.Expr("usage_counters.used + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(counter).Error; err != nil {
		return 0, err
	}

	return r.Used(ctx, buyerID, agentID, day)
}

// Used returns the used count for the bucket, zero if absent
func (r *GormUsageCounterRepository) Used(ctx context.Context, buyerID, agentID uuid.UUID, day string) (int64, error) {
	var used int64
	err := r.db.WithContext(ctx).
		Model(&access.UsageCounter{}).
		Select("COALESCE(MAX(used), 0)").
		Where("buyer_id = ? AND agent_id = ? AND day = ?", buyerID, agentID, day).
		Scan(&used).Error
	if err != nil {
		return 0, err
	}
	return used, nil
}

// Ensure GormUsageCounterRepository implements the interface
var _ access.UsageCounterRepository = (*GormUsageCounterRepository)(nil)
