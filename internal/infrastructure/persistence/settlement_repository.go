package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/agentmarket/backend/internal/domain/payment"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSettlementRepository implements SettlementRepository using GORM
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// FindByID finds a settlement by ID
func (r *GormSettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Settlement, error) {
	var settlement payment.Settlement
	if err := r.db.WithContext(ctx).
		First(&settlement, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// FindByTxRef finds a settlement by its transaction reference, or nil
func (r *GormSettlementRepository) FindByTxRef(ctx context.Context, txRef string) (*payment.Settlement, error) {
	var settlement payment.Settlement
	if err := r.db.WithContext(ctx).
		First(&settlement, "tx_ref = ?", txRef).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// FindByBuyer finds all settlements of a buyer, newest first
func (r *GormSettlementRepository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) ([]payment.Settlement, error) {
	var settlements []payment.Settlement
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}

// Create inserts a new settlement. The unique index on tx_ref is the
// idempotency barrier: inserting a duplicate reference returns
// shared.ErrAlreadyExists.
func (r *GormSettlementRepository) Create(ctx context.Context, settlement *payment.Settlement) error {
	if err := r.db.WithContext(ctx).Create(settlement).Error; err != nil {
		if isDuplicateKeyError(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormSettlementRepository) SaveWithLock(ctx context.Context, settlement *payment.Settlement) error {
	result := r.db.WithContext(ctx).
		Model(settlement).
		Where("id = ? AND version = ?", settlement.ID, settlement.Version-1).
		Updates(settlement)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// isDuplicateKeyError reports whether err is a unique constraint
// violation, covering both the GORM translated error and the raw
// driver messages of postgres and sqlite
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// Ensure GormSettlementRepository implements the interface
var _ payment.SettlementRepository = (*GormSettlementRepository)(nil)
