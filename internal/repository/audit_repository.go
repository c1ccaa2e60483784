package repository

import (
	"context"

	"tenant-service/internal/model"
	"tenant-service/prometheus"

	"gorm.io/gorm"
)

// AuditRepository appends audit rows. It has no update or delete paths.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts one audit row
func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	defer prometheus.TrackDBOperation("insert")()

	return r.db.WithContext(ctx).Create(entry).Error
}
