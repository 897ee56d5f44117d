package listings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/media"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

// AddPhoto stores an uploaded image for one of the user's listings and
// appends it to the listing's gallery.
func (s *Service) AddPhoto(ctx context.Context, userID, propertyID int64, name, contentType string, data []byte) (*models.PropertyPhoto, error) {
	if err := media.Validate(contentType, len(data)); err != nil {
		return nil, err
	}

	obj, err := s.storage.Save(ctx, name, contentType, data)
	if err != nil {
		return nil, err
	}

	photo := &models.PropertyPhoto{
		PropertyID: propertyID,
		URL:        obj.URL,
		StorageKey: obj.Key,
		CreatedAt:  s.now(),
	}
	if obj.ThumbnailURL != "" {
		photo.ThumbnailURL = &obj.ThumbnailURL
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ownedProperty(ctx, tx, userID, propertyID); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(sort_order), -1) + 1 FROM property_photos WHERE property_id = ?", propertyID).Scan(&photo.SortOrder)
		if err != nil {
			return fmt.Errorf("failed to compute photo order: %w", err)
		}

		query := `
			INSERT INTO property_photos (property_id, url, thumbnail_url, storage_key, sort_order, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query, photo.PropertyID, photo.URL, photo.ThumbnailURL, photo.StorageKey, photo.SortOrder, photo.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert photo: %w", err)
		}
		photo.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		// The row was never written, so the file is orphaned.
		if delErr := s.storage.Delete(ctx, obj.Key); delErr != nil {
			s.log.Warn("Failed to remove orphaned upload", "key", obj.Key, "error", delErr)
		}
		return nil, err
	}
	return photo, nil
}

// ListForAgent returns every listing of the user's agent record, drafts
// included, for the seller dashboard.
func (s *Service) ListForAgent(ctx context.Context, userID int64) ([]models.Property, error) {
	query := "SELECT " + propertyColumns + `
		FROM properties p
		JOIN agents a ON a.id = p.agent_id
		WHERE a.user_id = ?
		ORDER BY p.created_at DESC`
	rows, err := s.read.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent properties: %w", err)
	}
	defer rows.Close()

	list := []models.Property{}
	for rows.Next() {
		p, err := scanProperty(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}
