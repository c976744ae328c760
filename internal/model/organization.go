package model

import (
	"time"
)

// Organization is the tenant: the billing and data-isolation unit.
type Organization struct {
	ID               string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name             string    `json:"name" gorm:"type:varchar(100)"`
	OwnerID          string    `json:"owner_id" gorm:"type:varchar(64);index"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty" gorm:"type:varchar(255);index"`
	PlanID           *string   `json:"plan_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CustomerID returns the external customer id or "" when the tenant never checked out.
func (o *Organization) CustomerID() string {
	if o == nil || o.StripeCustomerID == nil {
		return ""
	}
	return *o.StripeCustomerID
}

// User belongs to at most one organization.
type User struct {
	ID             string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Email          string    `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	OrganizationID *string   `json:"organization_id,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
