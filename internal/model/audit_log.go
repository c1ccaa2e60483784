package model

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Audited entity types
const (
	EntityTenant = "tenant"
	EntityBranch = "branch"
	EntityActor  = "actor"
)

// AuditLog is a write-once record of a privileged mutation.
// The change reason, when given, lives inside NewValues.
type AuditLog struct {
	ID         uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	EntityType string         `json:"entity_type" gorm:"type:varchar(50);index:idx_audit_entity;not null"`
	EntityID   string         `json:"entity_id" gorm:"type:varchar(64);index:idx_audit_entity;not null"`
	Action     string         `json:"action" gorm:"type:varchar(10);not null"`
	OldValues  datatypes.JSON `json:"old_values,omitempty" gorm:"type:jsonb"`
	NewValues  datatypes.JSON `json:"new_values,omitempty" gorm:"type:jsonb"`
	ActorID    *uint          `json:"actor_id,omitempty" gorm:"index"`
	TenantID   *uint          `json:"tenant_id,omitempty" gorm:"index"`
	IP         string         `json:"ip" gorm:"type:varchar(64)"`
	UserAgent  string         `json:"user_agent" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime;<-:create"`
}
