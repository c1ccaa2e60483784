package repository

import (
	"context"
	"fmt"

	"tenant-service/internal/credential"
	"tenant-service/internal/model"
	"tenant-service/pkg/database"
	"tenant-service/prometheus"

	"gorm.io/gorm"
)

// ActorRepository persists actors and their manager assignments
type ActorRepository struct {
	db *gorm.DB
}

// NewActorRepository creates an actor repository
func NewActorRepository(db *gorm.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

// FindLoginRecord loads an actor of class by username together with its tenant.
// Manager actors without a branch assignment are not found.
func (r *ActorRepository) FindLoginRecord(ctx context.Context, class model.AccountClass, username string) (*credential.Record, error) {
	defer prometheus.TrackDBOperation("query")()

	db := r.db.WithContext(ctx)

	var actor model.Actor
	err := db.Preload("Tenant").
		Where("username = ? AND account_class = ?", username, class).
		First(&actor).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	rec := &credential.Record{Actor: actor, Tenant: actor.Tenant}
	if class != model.AccountManager {
		return rec, nil
	}

	var assignment model.ManagerAssignment
	err = db.Where("actor_id = ? AND tenant_id = ?", actor.ID, actor.TenantID).First(&assignment).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	rec.BranchID = &assignment.BranchID
	return rec, nil
}

// CreateManager inserts a branch-manager actor and its assignment to branchID atomically
func (r *ActorRepository) CreateManager(ctx context.Context, actor *model.Actor, branchID uint) error {
	defer prometheus.TrackDBOperation("insert")()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch model.Branch
		if err := tx.Where("id = ? AND tenant_id = ?", branchID, actor.TenantID).First(&branch).Error; err != nil {
			if database.IsNotFound(err) {
				return model.ErrNotFound
			}
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}

		if err := ensureRole(tx, model.RoleBranchManager); err != nil {
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}

		if err := tx.Create(actor).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: username already registered", model.ErrConflict)
			}
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}

		assignment := &model.ManagerAssignment{
			ActorID:  actor.ID,
			BranchID: branch.ID,
			TenantID: actor.TenantID,
		}
		if err := tx.Create(assignment).Error; err != nil {
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}
		return nil
	})
}
