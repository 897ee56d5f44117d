package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServicePlan defines the model for the 'service_plans' table.
type ServicePlan struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	Price        decimal.Decimal `json:"price" db:"price"`
	DurationDays int             `json:"durationDays" db:"duration_days"`
	MaxListings  *int            `json:"maxListings,omitempty" db:"max_listings"`
	IsPublic     bool            `json:"isPublic" db:"is_public"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// Unlimited reports whether the plan has no listing cap (NULL or 0).
func (p ServicePlan) Unlimited() bool {
	return p.MaxListings == nil || *p.MaxListings <= 0
}

// AllowsListing reports whether an agent that already owns current listings
// may create one more.
func (p ServicePlan) AllowsListing(current int) bool {
	return p.Unlimited() || current < *p.MaxListings
}
