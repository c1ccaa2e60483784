package repository

import (
	"context"
	"errors"
	"fmt"

	"tenant-service/internal/model"
	"tenant-service/internal/provisioning"
	"tenant-service/pkg/database"
	"tenant-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantRepository persists tenants and runs provisioning transactions
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// ProvisionAttempt creates the tenant, owner role, owner actor, first branch and
// optional employee profile in one transaction under a.Slug.
func (r *TenantRepository) ProvisionAttempt(ctx context.Context, a provisioning.Attempt) (*provisioning.Result, error) {
	defer prometheus.TrackDBOperation("provision")()

	res := &provisioning.Result{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res.Tenant = model.Tenant{
			Slug:             a.Slug,
			Name:             a.Input.CompanyName,
			TaxID:            a.Input.TaxID,
			Country:          a.Input.Country,
			OnboardingStatus: model.OnboardingPending,
		}
		if err := tx.Create(&res.Tenant).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return model.ErrSlugTaken
			}
			return fmt.Errorf("insert tenant: %w", err)
		}

		if err := ensureRole(tx, model.RoleOwner); err != nil {
			return err
		}

		res.Actor = model.Actor{
			Username:     a.Input.Username,
			PasswordHash: a.PasswordHash,
			RoleCode:     model.RoleOwner,
			TenantID:     res.Tenant.ID,
			AccountClass: model.AccountCompany,
			Active:       true,
		}
		if err := tx.Create(&res.Actor).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: username already registered", model.ErrConflict)
			}
			return fmt.Errorf("insert owner: %w", err)
		}

		res.Branch = model.Branch{
			TenantID:   res.Tenant.ID,
			Name:       a.Input.BranchName,
			Address:    a.Input.Address,
			City:       a.Input.City,
			Region:     a.Input.Region,
			PostalCode: a.Input.PostalCode,
			Phone:      a.Input.Phone,
		}
		if err := tx.Create(&res.Branch).Error; err != nil {
			return fmt.Errorf("insert branch: %w", err)
		}

		if a.Input.DisplayName != "" {
			employee := &model.Employee{
				TenantID:    res.Tenant.ID,
				BranchID:    res.Branch.ID,
				ActorID:     &res.Actor.ID,
				DisplayName: a.Input.DisplayName,
			}
			if err := tx.Create(employee).Error; err != nil {
				return fmt.Errorf("insert employee: %w", err)
			}
			res.Employee = employee
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ensureRole upserts a default role record; concurrent callers never conflict
func ensureRole(tx *gorm.DB, code string) error {
	role := model.DefaultRoles[code]
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&role).Error
	if err != nil {
		return fmt.Errorf("upsert role %s: %w", code, err)
	}
	return nil
}

// FindByID loads a tenant
func (r *TenantRepository) FindByID(ctx context.Context, id uint) (*model.Tenant, error) {
	defer prometheus.TrackDBOperation("query")()

	var tenant model.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return &tenant, nil
}

// Update saves the mutable tenant fields; the slug is never written
func (r *TenantRepository) Update(ctx context.Context, tenant *model.Tenant) error {
	defer prometheus.TrackDBOperation("update")()

	err := r.db.WithContext(ctx).
		Model(&model.Tenant{ID: tenant.ID}).
		Select("name", "tax_id", "country", "onboarding_status").
		Updates(tenant).Error
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}

// CompleteOnboarding stores the onboarding fields and, when displayName is set,
// names the owner's employee profile on the tenant's first branch.
func (r *TenantRepository) CompleteOnboarding(ctx context.Context, tenant *model.Tenant, ownerID uint, displayName string) error {
	defer prometheus.TrackDBOperation("update")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Tenant{ID: tenant.ID}).
			Select("tax_id", "country", "onboarding_status").
			Updates(tenant).Error; err != nil {
			return err
		}
		if displayName == "" {
			return nil
		}

		var employee model.Employee
		err := tx.Where("tenant_id = ? AND actor_id = ?", tenant.ID, ownerID).First(&employee).Error
		switch {
		case err == nil:
			return tx.Model(&employee).Update("display_name", displayName).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var first model.Branch
		if err := tx.Where("tenant_id = ?", tenant.ID).Order("id").First(&first).Error; err != nil {
			return err
		}
		return tx.Create(&model.Employee{
			TenantID:    tenant.ID,
			BranchID:    first.ID,
			ActorID:     &ownerID,
			DisplayName: displayName,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return nil
}
