package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

func (s *Service) propertyExists(ctx context.Context, propertyID int64) error {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM properties WHERE id = ?", propertyID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch property: %w", err)
	}
	return nil
}

// ToggleFavorite adds the property to the user's favorites, or removes it
// when it is already there. It reports whether the property is now a
// favorite.
func (s *Service) ToggleFavorite(ctx context.Context, userID, propertyID int64) (bool, error) {
	if err := s.propertyExists(ctx, propertyID); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM favorites WHERE user_id = ? AND property_id = ?", userID, propertyID)
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO favorites (user_id, property_id, created_at) VALUES (?, ?, ?)", userID, propertyID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

// ListFavorites returns the user's favorite listings, most recently saved
// first.
func (s *Service) ListFavorites(ctx context.Context, userID int64) ([]models.Property, error) {
	query := "SELECT " + propertyColumns + ", COALESCE(a.display_name, '')" + `
		FROM favorites f
		JOIN properties p ON p.id = f.property_id
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE f.user_id = ?
		ORDER BY f.created_at DESC`
	rows, err := s.read.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	list := []models.Property{}
	for rows.Next() {
		p, err := scanProperty(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// AddInquiry records a contact request. Visitors without an account may
// send one, so in.UserID may be nil.
func (s *Service) AddInquiry(ctx context.Context, in *models.Inquiry) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Message = strings.TrimSpace(in.Message)
	if in.Name == "" || in.Message == "" {
		return fmt.Errorf("%w: name and message are required", ErrInvalidInquiry)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidInquiry)
	}
	if err := s.propertyExists(ctx, in.PropertyID); err != nil {
		return err
	}

	in.CreatedAt = s.now()
	query := `
		INSERT INTO inquiries (property_id, user_id, name, email, phone, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, in.PropertyID, in.UserID, in.Name, in.Email, in.Phone, in.Message, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert inquiry: %w", err)
	}
	in.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get new inquiry ID: %w", err)
	}
	return nil
}

// AddReview records a 1 to 5 star review. Each user reviews a property once.
func (s *Service) AddReview(ctx context.Context, r *models.Review) error {
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	if err := s.propertyExists(ctx, r.PropertyID); err != nil {
		return err
	}

	var existing int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews WHERE property_id = ? AND user_id = ?", r.PropertyID, r.UserID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check existing review: %w", err)
	}
	if existing > 0 {
		return ErrAlreadyReviewed
	}

	r.CreatedAt = s.now()
	query := `
		INSERT INTO reviews (property_id, user_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, r.PropertyID, r.UserID, r.Rating, strings.TrimSpace(r.Comment), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	r.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get new review ID: %w", err)
	}
	return nil
}

// ListReviews returns a property's reviews, newest first.
func (s *Service) ListReviews(ctx context.Context, propertyID int64) ([]models.Review, error) {
	query := `
		SELECT id, property_id, user_id, rating, comment, created_at
		FROM reviews
		WHERE property_id = ?
		ORDER BY created_at DESC`
	rows, err := s.read.QueryContext(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	list := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.PropertyID, &r.UserID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}
