package model

import "time"

// Branch is a physical location of a tenant
type Branch struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   uint      `json:"tenant_id" gorm:"index;not null"`
	Name       string    `json:"name" gorm:"type:varchar(200);not null"`
	Address    string    `json:"address" gorm:"type:varchar(255)"`
	City       string    `json:"city" gorm:"type:varchar(100)"`
	Region     string    `json:"region" gorm:"type:varchar(100)"`
	PostalCode string    `json:"postal_code" gorm:"type:varchar(20)"`
	Phone      string    `json:"phone" gorm:"type:varchar(40)"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID"`
}

// Snapshot is the audit representation of a branch
func (b *Branch) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":   b.TenantID,
		"name":        b.Name,
		"address":     b.Address,
		"city":        b.City,
		"region":      b.Region,
		"postal_code": b.PostalCode,
		"phone":       b.Phone,
	}
}
