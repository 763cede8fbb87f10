package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentmarket/backend/internal/domain/catalog"
	"github.com/agentmarket/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAgentRepository implements AgentRepository using GORM
type GormAgentRepository struct {
	db *gorm.DB
}

// NewGormAgentRepository creates a new GormAgentRepository
func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

// FindByID finds an agent by ID
func (r *GormAgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Agent, error) {
	var agent catalog.Agent
	if err := r.db.WithContext(ctx).
		Preload("Tiers", "active = ?", true).
		First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

// FindByName finds an agent by its unique name
func (r *GormAgentRepository) FindByName(ctx context.Context, name string) (*catalog.Agent, error) {
	var agent catalog.Agent
	if err := r.db.WithContext(ctx).
		Preload("Tiers", "active = ?", true).
		First(&agent, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

// FindAll finds agents with filtering and pagination
func (r *GormAgentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Agent, error) {
	var agents []catalog.Agent
	if err := r.applyFilter(r.db.WithContext(ctx), filter).
		Preload("Tiers", "active = ?", true).
		Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// FindActive finds all active agents
func (r *GormAgentRepository) FindActive(ctx context.Context, filter shared.Filter) ([]catalog.Agent, error) {
	var agents []catalog.Agent
	if err := r.applyFilter(r.db.WithContext(ctx), filter).
		Where("status = ?", catalog.AgentStatusActive).
		Preload("Tiers", "active = ?", true).
		Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// Save creates or updates an agent
func (r *GormAgentRepository) Save(ctx context.Context, agent *catalog.Agent) error {
	return r.db.WithContext(ctx).Omit("Tiers").Save(agent).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormAgentRepository) SaveWithLock(ctx context.Context, agent *catalog.Agent) error {
	result := r.db.WithContext(ctx).
		Model(agent).
		Omit("Tiers").
		Where("id = ? AND version = ?", agent.ID, agent.Version-1).
		Updates(agent)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Delete deletes an agent
func (r *GormAgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&catalog.Agent{}, "id = ?", id).Error
}

// Count counts agents matching the filter
func (r *GormAgentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&catalog.Agent{})
	if filter.Search != "" {
		query = query.Where("name ILIKE ? OR description ILIKE ?", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies search, ordering, and pagination from the filter
func (r *GormAgentRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("name ILIKE ? OR description ILIKE ?", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	orderBy := ValidateSortField(filter.OrderBy, AgentSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", orderBy, orderDir))

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}
	return query
}

// Ensure GormAgentRepository implements the interface
var _ catalog.AgentRepository = (*GormAgentRepository)(nil)
