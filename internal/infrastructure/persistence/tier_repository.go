package persistence

import (
	"context"
	"errors"

	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTierRepository implements TierRepository using GORM
type GormTierRepository struct {
	db *gorm.DB
}

// NewGormTierRepository creates a new GormTierRepository
func NewGormTierRepository(db *gorm.DB) *GormTierRepository {
	return &GormTierRepository{db: db}
}

// FindByID finds a tier row by ID
func (r *GormTierRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Tier, error) {
	var tier catalog.Tier
	if err := r.db.WithContext(ctx).
		First(&tier, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

// FindActiveByAgentAndCode finds the active revision of a tier
func (r *GormTierRepository) FindActiveByAgentAndCode(ctx context.Context, agentID uuid.UUID, code string) (*catalog.Tier, error) {
	var tier catalog.Tier
	if err := r.db.WithContext(ctx).
		Where("agent_id = ? AND code = ? AND active = ?", agentID, code, true).
		Order("revision DESC").
		First(&tier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

// FindByAgent finds all active tiers of an agent
func (r *GormTierRepository) FindByAgent(ctx context.Context, agentID uuid.UUID) ([]catalog.Tier, error) {
	var tiers []catalog.Tier
	if err := r.db.WithContext(ctx).
		Where("agent_id = ? AND active = ?", agentID, true).
		Order("code ASC, revision DESC").
		Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

// Save creates or updates a tier row
func (r *GormTierRepository) Save(ctx context.Context, tier *catalog.Tier) error {
	return r.db.WithContext(ctx).Save(tier).Error
}

// SaveAll persists multiple tier rows in one transaction,
// used when a revision supersedes its predecessor
func (r *GormTierRepository) SaveAll(ctx context.Context, tiers []*catalog.Tier) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tier := range tiers {
			if err := tx.Save(tier).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Ensure GormTierRepository implements the interface
var _ catalog.TierRepository = (*GormTierRepository)(nil)
