package repository

import (
	"context"
	"fmt"

	"tenant-service/internal/model"
	"tenant-service/pkg/database"
	"tenant-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BranchRepository persists branches
type BranchRepository struct {
	db *gorm.DB
}

// NewBranchRepository creates a branch repository
func NewBranchRepository(db *gorm.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// ListByTenant returns the tenant's branches ordered by creation
func (r *BranchRepository) ListByTenant(ctx context.Context, tenantID uint) ([]model.Branch, error) {
	defer prometheus.TrackDBOperation("query")()

	var branches []model.Branch
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id").Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return branches, nil
}

// FindByID loads a branch of tenantID
func (r *BranchRepository) FindByID(ctx context.Context, tenantID, id uint) (*model.Branch, error) {
	defer prometheus.TrackDBOperation("query")()

	var branch model.Branch
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&branch).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return &branch, nil
}

// Create inserts a branch
func (r *BranchRepository) Create(ctx context.Context, branch *model.Branch) error {
	defer prometheus.TrackDBOperation("insert")()

	if err := r.db.WithContext(ctx).Create(branch).Error; err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// Update saves the editable branch fields
func (r *BranchRepository) Update(ctx context.Context, branch *model.Branch) error {
	defer prometheus.TrackDBOperation("update")()

	err := r.db.WithContext(ctx).
		Model(&model.Branch{ID: branch.ID}).
		Where("tenant_id = ?", branch.TenantID).
		Select("name", "address", "city", "region", "postal_code", "phone").
		Updates(branch).Error
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// Delete removes a branch and returns what was deleted. The tenant row is
// locked so two concurrent deletes cannot remove the last two branches.
// A tenant's only branch, or one with staff or managers assigned, is a conflict.
func (r *BranchRepository) Delete(ctx context.Context, tenantID, id uint) (*model.Branch, error) {
	defer prometheus.TrackDBOperation("delete")()

	var branch model.Branch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant model.Tenant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&tenant, tenantID).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).First(&branch).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.Branch{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("%w: a tenant must keep at least one branch", model.ErrConflict)
		}

		var managers int64
		if err := tx.Model(&model.ManagerAssignment{}).Where("branch_id = ?", id).Count(&managers).Error; err != nil {
			return err
		}
		var staff int64
		if err := tx.Model(&model.Employee{}).Where("branch_id = ?", id).Count(&staff).Error; err != nil {
			return err
		}
		if managers > 0 || staff > 0 {
			return fmt.Errorf("%w: branch still has staff assigned", model.ErrConflict)
		}

		return tx.Delete(&branch).Error
	})
	switch {
	case err == nil:
		return &branch, nil
	case database.IsNotFound(err):
		return nil, model.ErrNotFound
	case isDomainError(err):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
}
