package model

import (
	"time"

	"github.com/lib/pq"
)

// Plan is reference data mapping a provider price to an internal tier.
// Rows are written only by administrative seeding.
type Plan struct {
	ID            string         `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name          string         `json:"name" gorm:"type:varchar(100);not null"`
	Price         float64        `json:"price" gorm:"not null;default:0"`
	Features      pq.StringArray `json:"features" gorm:"type:text[]"`
	StripePriceID string         `json:"stripe_price_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
