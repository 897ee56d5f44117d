// Package plans reads the service plan catalogue and a user's current plan.
package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

var (
	ErrPlanNotFound    = errors.New("service plan not found")
	ErrNoActivePackage = errors.New("no active service package")
)

const planColumns = "sp.id, sp.name, sp.description, sp.price, sp.duration_days, sp.max_listings, sp.is_public, sp.created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.ServicePlan, error) {
	var p models.ServicePlan
	var maxListings sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.DurationDays, &maxListings, &p.IsPublic, &p.CreatedAt); err != nil {
		return nil, err
	}
	if maxListings.Valid {
		n := int(maxListings.Int64)
		p.MaxListings = &n
	}
	return &p, nil
}

// Get loads a single plan.
func Get(ctx context.Context, q database.Querier, planID int64) (*models.ServicePlan, error) {
	query := "SELECT " + planColumns + " FROM service_plans sp WHERE sp.id = ?"
	p, err := scanPlan(q.QueryRowContext(ctx, query, planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to fetch plan: %w", err)
	}
	return p, nil
}

// ListPublic returns the plans offered on the pricing page, cheapest first.
func ListPublic(ctx context.Context, q database.Querier) ([]models.ServicePlan, error) {
	query := "SELECT " + planColumns + " FROM service_plans sp WHERE sp.is_public = 1 ORDER BY sp.price ASC, sp.id ASC"
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	list := []models.ServicePlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// ActiveForUser returns the plan behind the user's newest package that is
// active and not yet past its end date.
func ActiveForUser(ctx context.Context, q database.Querier, userID int64, now time.Time) (*models.ServicePlan, error) {
	query := "SELECT " + planColumns + `
		FROM user_service_packages usp
		JOIN service_plans sp ON sp.id = usp.plan_id
		WHERE usp.user_id = ? AND usp.is_active = 1 AND (usp.end_date IS NULL OR usp.end_date > ?)
		ORDER BY usp.end_date DESC
		LIMIT 1`
	p, err := scanPlan(q.QueryRowContext(ctx, query, userID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActivePackage
		}
		return nil, fmt.Errorf("failed to fetch active plan: %w", err)
	}
	return p, nil
}
