// Package listings manages property listings: search, detail pages,
// creation against the owner's plan limit, deletion, and the visitor
// interactions on a listing (favorites, inquiries, reviews, photos).
package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/mmcloughlin/geohash"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/lock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/media"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/plans"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("property not found")
	ErrForbidden       = errors.New("property belongs to another agent")
	ErrNotAgent        = errors.New("user is not an agent")
	ErrListingLimit    = errors.New("listing limit of the current plan reached")
	ErrInvalidListing  = errors.New("invalid listing")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrAlreadyReviewed = errors.New("property already reviewed by this user")
	ErrInvalidInquiry  = errors.New("invalid inquiry")
)

// storedGeohashPrecision is long enough for any Near precision.
const storedGeohashPrecision = 9

const propertyColumns = `p.id, p.agent_id, p.title, p.slug, p.description, p.price, p.area_sqm,
	p.bedrooms, p.bathrooms, p.address, p.city, p.latitude, p.longitude, p.geohash,
	p.status, p.created_at, p.updated_at`

type Service struct {
	db      *sql.DB
	read    *sql.DB
	storage media.Storage
	locker  lock.Locker
	log     *slog.Logger
	now     func() time.Time
}

// NewService wires the listing service. read may be a read-only replica used
// for searches; it defaults to db.
func NewService(db, read *sql.DB, storage media.Storage, locker lock.Locker, log *slog.Logger) *Service {
	if read == nil {
		read = db
	}
	return &Service{
		db:      db,
		read:    read,
		storage: storage,
		locker:  locker,
		log:     log.With("component", "Listings"),
		now:     time.Now,
	}
}

func scanProperty(row interface{ Scan(...any) error }, withAgent bool) (*models.Property, error) {
	var p models.Property
	dest := []any{
		&p.ID, &p.AgentID, &p.Title, &p.Slug, &p.Description, &p.Price, &p.AreaSqm,
		&p.Bedrooms, &p.Bathrooms, &p.Address, &p.City, &p.Latitude, &p.Longitude, &p.Geohash,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	}
	if withAgent {
		dest = append(dest, &p.AgentName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) coverPhoto(ctx context.Context, propertyID int64) (*models.PropertyPhoto, error) {
	photos, err := s.photos(ctx, s.read, propertyID, 1)
	if err != nil || len(photos) == 0 {
		return nil, err
	}
	return &photos[0], nil
}

func (s *Service) photos(ctx context.Context, q database.Querier, propertyID int64, limit int) ([]models.PropertyPhoto, error) {
	query := `
		SELECT id, property_id, url, thumbnail_url, storage_key, sort_order, created_at
		FROM property_photos
		WHERE property_id = ?
		ORDER BY sort_order, id
		LIMIT ?`
	rows, err := q.QueryContext(ctx, query, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	list := []models.PropertyPhoto{}
	for rows.Next() {
		var ph models.PropertyPhoto
		if err := rows.Scan(&ph.ID, &ph.PropertyID, &ph.URL, &ph.ThumbnailURL, &ph.StorageKey, &ph.SortOrder, &ph.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		list = append(list, ph)
	}
	return list, rows.Err()
}

// GetBySlug loads a published listing with photos, features, amenities and
// its average rating.
func (s *Service) GetBySlug(ctx context.Context, propertySlug string) (*models.Property, error) {
	query := "SELECT " + propertyColumns + ", COALESCE(a.display_name, '')" + `
		FROM properties p
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE p.slug = ? AND p.status = ?`
	p, err := scanProperty(s.read.QueryRowContext(ctx, query, propertySlug, models.PropertyStatusPublished), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch property: %w", err)
	}

	if p.Photos, err = s.photos(ctx, s.read, p.ID, 100); err != nil {
		return nil, err
	}

	rows, err := s.read.QueryContext(ctx, "SELECT id, property_id, name, value FROM property_features WHERE property_id = ? ORDER BY id", p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f models.PropertyFeature
		if err := rows.Scan(&f.ID, &f.PropertyID, &f.Name, &f.Value); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		p.Features = append(p.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	amenities, err := s.read.QueryContext(ctx, "SELECT amenity_id FROM property_amenities WHERE property_id = ? ORDER BY amenity_id", p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query amenities: %w", err)
	}
	defer amenities.Close()
	for amenities.Next() {
		var id int64
		if err := amenities.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan amenity: %w", err)
		}
		p.AmenityIDs = append(p.AmenityIDs, id)
	}
	if err := amenities.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.read.QueryRowContext(ctx, "SELECT AVG(rating) FROM reviews WHERE property_id = ?", p.ID).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to fetch rating: %w", err)
	}
	if avg.Valid {
		p.AverageRating = &avg.Float64
	}
	return p, nil
}

// CreateInput is a new listing as submitted by an agent.
type CreateInput struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	AreaSqm     *float64        `json:"areaSqm"`
	Bedrooms    int             `json:"bedrooms" binding:"gte=0"`
	Bathrooms   int             `json:"bathrooms" binding:"gte=0"`
	Address     string          `json:"address" binding:"required"`
	City        string          `json:"city" binding:"required"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Features    []FeatureInput  `json:"features"`
	AmenityIDs  []int64         `json:"amenityIds"`
	Draft       bool            `json:"draft"`
}

type FeatureInput struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if !in.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude go together", ErrInvalidListing)
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90 || *in.Longitude < -180 || *in.Longitude > 180) {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidListing)
	}
	return nil
}

// MakeSlug turns a title into a URL slug with a short random suffix so two
// listings with the same title never collide.
func MakeSlug(title string) string {
	base := slug.Make(title)
	if len(base) > 80 {
		base = strings.Trim(base[:80], "-")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// Create adds a listing for the user's agent record. The user needs an
// active package whose plan still has room.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*models.Property, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	// Serialized with expiration and payment settlement for this user.
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	p := &models.Property{
		Title:       strings.TrimSpace(in.Title),
		Slug:        MakeSlug(in.Title),
		Description: in.Description,
		Price:       in.Price,
		AreaSqm:     in.AreaSqm,
		Bedrooms:    in.Bedrooms,
		Bathrooms:   in.Bathrooms,
		Address:     in.Address,
		City:        strings.TrimSpace(in.City),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      models.PropertyStatusPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Draft {
		p.Status = models.PropertyStatusDraft
	}
	if in.Latitude != nil {
		h := geohash.EncodeWithPrecision(*in.Latitude, *in.Longitude, storedGeohashPrecision)
		p.Geohash = &h
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := users.LockUserRow(ctx, tx, userID); err != nil {
			return err
		}
		agentID, found, err := users.AgentIDForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotAgent
		}

		plan, err := plans.ActiveForUser(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		count, err := CountForAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		if !plan.AllowsListing(count) {
			return ErrListingLimit
		}

		p.AgentID = agentID
		query := `
			INSERT INTO properties
			(agent_id, title, slug, description, price, area_sqm, bedrooms, bathrooms,
			 address, city, latitude, longitude, geohash, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query,
			p.AgentID, p.Title, p.Slug, p.Description, p.Price, p.AreaSqm, p.Bedrooms, p.Bathrooms,
			p.Address, p.City, p.Latitude, p.Longitude, p.Geohash, p.Status, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert property: %w", err)
		}
		if p.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get new property ID: %w", err)
		}

		for _, f := range in.Features {
			res, err := tx.ExecContext(ctx, "INSERT INTO property_features (property_id, name, value) VALUES (?, ?, ?)", p.ID, f.Name, f.Value)
			if err != nil {
				return fmt.Errorf("failed to insert feature: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get new feature ID: %w", err)
			}
			p.Features = append(p.Features, models.PropertyFeature{ID: id, PropertyID: p.ID, Name: f.Name, Value: f.Value})
		}
		for _, amenityID := range in.AmenityIDs {
			if _, err := tx.ExecContext(ctx, "INSERT INTO property_amenities (property_id, amenity_id) VALUES (?, ?)", p.ID, amenityID); err != nil {
				return fmt.Errorf("failed to insert amenity: %w", err)
			}
		}
		p.AmenityIDs = in.AmenityIDs
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Property created", "userID", userID, "propertyID", p.ID, "slug", p.Slug)
	return p, nil
}

// ownedProperty locks the property row and checks it belongs to the user's
// agent record.
func ownedProperty(ctx context.Context, tx *sql.Tx, userID, propertyID int64) error {
	var ownerAgentID int64
	err := tx.QueryRowContext(ctx, "SELECT agent_id FROM properties WHERE id = ? FOR UPDATE", propertyID).Scan(&ownerAgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch property: %w", err)
	}

	agentID, found, err := users.AgentIDForUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if !found || agentID != ownerAgentID {
		return ErrForbidden
	}
	return nil
}

// Delete removes one of the user's listings with every dependent row, then
// its photo files.
func (s *Service) Delete(ctx context.Context, userID, propertyID int64) error {
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	var keys []string
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ownedProperty(ctx, tx, userID, propertyID); err != nil {
			return err
		}
		var err error
		keys, err = DeletePropertyCascade(ctx, tx, propertyID)
		return err
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.log.Warn("Failed to remove photo object", "propertyID", propertyID, "key", key, "error", err)
		}
	}
	s.log.Info("Property deleted", "userID", userID, "propertyID", propertyID)
	return nil
}
