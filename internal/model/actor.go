package model

import (
	"time"

	"tenant-service/pkg/jwtutil"
)

// AccountClass distinguishes the two login surfaces
type AccountClass = jwtutil.AccountClass

const (
	AccountCompany = jwtutil.AccountCompany
	AccountManager = jwtutil.AccountManager
)

// Role codes
const (
	RoleOwner         = "OWNER"
	RoleBranchManager = "BRANCH_MANAGER"
)

// Role is a global role/privilege record, upserted on demand
type Role struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"type:varchar(50);uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Privilege int       `json:"privilege" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultRoles are the role records the service relies on
var DefaultRoles = map[string]Role{
	RoleOwner:         {Code: RoleOwner, Name: "Owner", Privilege: 100},
	RoleBranchManager: {Code: RoleBranchManager, Name: "Branch manager", Privilege: 50},
}

// Actor is an authenticated principal bound to exactly one tenant
type Actor struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	Username     string       `json:"username" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string       `json:"-" gorm:"type:varchar(255);not null"`
	RoleCode     string       `json:"role" gorm:"type:varchar(50);not null"`
	TenantID     uint         `json:"tenant_id" gorm:"index;not null"`
	AccountClass AccountClass `json:"account_class" gorm:"type:varchar(20);index;not null"`
	Active       bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID"`
}

// Snapshot is the audit representation of an actor; the password hash is never included
func (a *Actor) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"username":      a.Username,
		"role":          a.RoleCode,
		"tenant_id":     a.TenantID,
		"account_class": string(a.AccountClass),
		"active":        a.Active,
	}
}

// ManagerAssignment binds a manager actor to the branch it runs
type ManagerAssignment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ActorID   uint      `json:"actor_id" gorm:"uniqueIndex;not null"`
	BranchID  uint      `json:"branch_id" gorm:"index;not null"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`

	Actor  Actor  `json:"-" gorm:"foreignKey:ActorID"`
	Branch Branch `json:"-" gorm:"foreignKey:BranchID"`
}

// Employee is the staff profile linking an actor to a branch
type Employee struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TenantID    uint      `json:"tenant_id" gorm:"index;not null"`
	BranchID    uint      `json:"branch_id" gorm:"index;not null"`
	ActorID     *uint     `json:"actor_id,omitempty" gorm:"index"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(200);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
