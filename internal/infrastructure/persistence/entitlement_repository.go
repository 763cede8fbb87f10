package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/agentmarket/backend/internal/domain/access"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormEntitlementRepository implements EntitlementRepository using GORM
type GormEntitlementRepository struct {
	db *gorm.DB
}

// NewGormEntitlementRepository creates a new GormEntitlementRepository
func NewGormEntitlementRepository(db *gorm.DB) *GormEntitlementRepository {
	return &GormEntitlementRepository{db: db}
}

// FindByID finds an entitlement by ID
func (r *GormEntitlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*access.Entitlement, error) {
	var entitlement access.Entitlement
	if err := r.db.WithContext(ctx).
		First(&entitlement, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entitlement, nil
}

// FindEffective finds the entitlements of a buyer for an agent that
// cover the given instant, newest first. The end bound is exclusive.
func (r *GormEntitlementRepository) FindEffective(ctx context.Context, buyerID, agentID uuid.UUID, at time.Time) ([]access.Entitlement, error) {
	var entitlements []access.Entitlement
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND agent_id = ? AND revoked = ?", buyerID, agentID, false).
		Where("start_at <= ?", at).
		Where("end_at IS NULL OR end_at > ?", at).
		Order("start_at DESC, created_at DESC").
		Find(&entitlements).Error; err != nil {
		return nil, err
	}
	return entitlements, nil
}

// FindByBuyer finds all entitlements of a buyer
func (r *GormEntitlementRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]access.Entitlement, error) {
	var entitlements []access.Entitlement
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&entitlements).Error; err != nil {
		return nil, err
	}
	return entitlements, nil
}

// FindByTxRef finds the entitlement granted by a settlement, or nil
func (r *GormEntitlementRepository) FindByTxRef(ctx context.Context, txRef string) (*access.Entitlement, error) {
	var entitlement access.Entitlement
	if err := r.db.WithContext(ctx).
		First(&entitlement, "tx_ref = ?", txRef).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entitlement, nil
}

// Save creates or updates an entitlement
func (r *GormEntitlementRepository) Save(ctx context.Context, entitlement *access.Entitlement) error {
	return r.db.WithContext(ctx).Save(entitlement).Error
}

// Ensure GormEntitlementRepository implements the interface
var _ access.EntitlementRepository = (*GormEntitlementRepository)(nil)
