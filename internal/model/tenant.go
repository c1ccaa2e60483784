package model

import "time"

// Onboarding states of a tenant
const (
	OnboardingPending  = "pending"
	OnboardingComplete = "complete"
)

// OnboardingTenant is the tenant key carried by sessions of tenants that have
// not finished onboarding. It cannot collide with a slug: slugs never contain '_'.
const OnboardingTenant = "_onboarding"

// Tenant represents a customer company. Slug is assigned once at provisioning
// and never updated.
type Tenant struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Slug             string    `json:"slug" gorm:"type:varchar(120);uniqueIndex;not null;<-:create"`
	Name             string    `json:"name" gorm:"type:varchar(200);not null"`
	TaxID            *string   `json:"tax_id,omitempty" gorm:"type:varchar(50)"`
	Country          string    `json:"country" gorm:"type:varchar(2);not null"`
	OnboardingStatus string    `json:"onboarding_status" gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SessionKey returns the tenant key a session for this tenant is bound to
func (t *Tenant) SessionKey() string {
	if t.OnboardingStatus != OnboardingComplete {
		return OnboardingTenant
	}
	return t.Slug
}

// Snapshot is the audit representation of a tenant
func (t *Tenant) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"slug":              t.Slug,
		"name":              t.Name,
		"country":           t.Country,
		"onboarding_status": t.OnboardingStatus,
		"tax_id":            nil,
	}
	if t.TaxID != nil {
		snap["tax_id"] = *t.TaxID
	}
	return snap
}
