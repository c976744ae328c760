package model

import (
	"time"
)

// Subscription statuses as reported by the payment provider.
const (
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusTrialing          = "trialing"
	StatusActive            = "active"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusUnpaid            = "unpaid"
	StatusPaused            = "paused"
)

// Subscription is the single billing agreement row of an organization.
// OrganizationID is unique so checkout upserts replace instead of duplicating.
type Subscription struct {
	ID                   string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	OrganizationID       string     `json:"organization_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	StripeSubscriptionID string     `json:"stripe_subscription_id" gorm:"type:varchar(255);index"`
	PlanID               string     `json:"plan_id" gorm:"type:varchar(64)"`
	Status               string     `json:"status" gorm:"type:varchar(32);not null"`
	PeriodEnd            *time.Time `json:"period_end,omitempty"`
	MonthlyLabelCount    int        `json:"monthly_label_count" gorm:"not null;default:0"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the provider will never move this status again.
func IsTerminal(status string) bool {
	return status == StatusCanceled || status == StatusIncompleteExpired
}
