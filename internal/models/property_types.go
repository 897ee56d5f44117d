package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property status values.
const (
	PropertyStatusPublished = "published"
	PropertyStatusDraft     = "draft"
)

// Property is the model for the 'properties' table.
// Optional columns use pointers for clean JSON serialization.
type Property struct {
	ID          int64           `json:"id" db:"id"`
	AgentID     int64           `json:"agentId" db:"agent_id"`
	Title       string          `json:"title" db:"title"`
	Slug        string          `json:"slug" db:"slug"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	AreaSqm     *float64        `json:"areaSqm,omitempty" db:"area_sqm"`
	Bedrooms    int             `json:"bedrooms" db:"bedrooms"`
	Bathrooms   int             `json:"bathrooms" db:"bathrooms"`
	Address     string          `json:"address" db:"address"`
	City        string          `json:"city" db:"city"`
	Latitude    *float64        `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64        `json:"longitude,omitempty" db:"longitude"`
	Geohash     *string         `json:"geohash,omitempty" db:"geohash"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`

	// Joins (not in the table, populated manually)
	Photos        []PropertyPhoto   `json:"photos,omitempty" db:"-"`
	Features      []PropertyFeature `json:"features,omitempty" db:"-"`
	AmenityIDs    []int64           `json:"amenityIds,omitempty" db:"-"`
	AverageRating *float64          `json:"averageRating,omitempty" db:"-"`
	AgentName     string            `json:"agentName,omitempty" db:"-"`
}

// PropertyPhoto is the model for the 'property_photos' table.
type PropertyPhoto struct {
	ID           int64     `json:"id" db:"id"`
	PropertyID   int64     `json:"propertyId" db:"property_id"`
	URL          string    `json:"url" db:"url"`
	ThumbnailURL *string   `json:"thumbnailUrl,omitempty" db:"thumbnail_url"`
	StorageKey   string    `json:"-" db:"storage_key"`
	SortOrder    int       `json:"sortOrder" db:"sort_order"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// PropertyFeature is a free-form name/value pair, e.g. "Direction": "South".
type PropertyFeature struct {
	ID         int64  `json:"id" db:"id"`
	PropertyID int64  `json:"propertyId" db:"property_id"`
	Name       string `json:"name" db:"name"`
	Value      string `json:"value" db:"value"`
}

// Review is the model for the 'reviews' table.
type Review struct {
	ID         int64     `json:"id" db:"id"`
	PropertyID int64     `json:"propertyId" db:"property_id"`
	UserID     int64     `json:"userId" db:"user_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Inquiry is a contact request about a property. Visitors may send one
// without an account, so UserID is optional.
type Inquiry struct {
	ID         int64     `json:"id" db:"id"`
	PropertyID int64     `json:"propertyId" db:"property_id"`
	UserID     *int64    `json:"userId,omitempty" db:"user_id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	Message    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
