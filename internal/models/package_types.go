package models

import "time"

// UserServicePackage defines the model for the 'user_service_packages' table.
// A package is created inactive at checkout and activated by a confirmed
// payment. EndDate is nil until the package is activated.
type UserServicePackage struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"userId" db:"user_id"`
	PlanID    int64      `json:"planId" db:"plan_id"`
	StartDate time.Time  `json:"startDate" db:"start_date"`
	EndDate   *time.Time `json:"endDate,omitempty" db:"end_date"`
	IsActive  bool       `json:"isActive" db:"is_active"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`

	PlanName string `json:"planName,omitempty" db:"-"`
}

// ExpiredAt reports whether the package is active and its end date is at or
// before now.
func (p UserServicePackage) ExpiredAt(now time.Time) bool {
	return p.IsActive && p.EndDate != nil && !p.EndDate.After(now)
}
