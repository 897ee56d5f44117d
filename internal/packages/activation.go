package packages

import (
	"context"
	"fmt"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

// CreatePending inserts the inactive package a checkout pays for.
func CreatePending(ctx context.Context, q database.Querier, userID, planID int64, now time.Time) (int64, error) {
	query := `
		INSERT INTO user_service_packages (user_id, plan_id, start_date, end_date, is_active, created_at)
		VALUES (?, ?, ?, NULL, 0, ?)`
	result, err := q.ExecContext(ctx, query, userID, planID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create package: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get new package ID: %w", err)
	}
	return id, nil
}

// Get loads one package without locking it.
func Get(ctx context.Context, q database.Querier, packageID int64) (models.UserServicePackage, error) {
	query := "SELECT " + packageColumns + " FROM user_service_packages WHERE id = ?"
	p, err := scanPackage(q.QueryRowContext(ctx, query, packageID))
	if err != nil {
		return p, fmt.Errorf("failed to fetch package %d: %w", packageID, err)
	}
	return p, nil
}

// Activate closes every other active package of the user at start and makes
// packageID the user's only active package, running from start to end.
func Activate(ctx context.Context, q database.Querier, userID, packageID int64, start, end time.Time) error {
	query := `
		UPDATE user_service_packages
		SET is_active = 0, end_date = ?
		WHERE user_id = ? AND is_active = 1 AND id <> ?`
	if _, err := q.ExecContext(ctx, query, start, userID, packageID); err != nil {
		return fmt.Errorf("failed to close previous packages: %w", err)
	}

	query = `
		UPDATE user_service_packages
		SET is_active = 1, start_date = ?, end_date = ?
		WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, start, end, packageID); err != nil {
		return fmt.Errorf("failed to activate package %d: %w", packageID, err)
	}
	return nil
}

// ListForUser returns the user's packages with plan names, newest first.
func ListForUser(ctx context.Context, q database.Querier, userID int64) ([]models.UserServicePackage, error) {
	query := `
		SELECT usp.id, usp.user_id, usp.plan_id, usp.start_date, usp.end_date, usp.is_active, usp.created_at, sp.name
		FROM user_service_packages usp
		JOIN service_plans sp ON sp.id = usp.plan_id
		WHERE usp.user_id = ?
		ORDER BY usp.created_at DESC, usp.id DESC`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	list := []models.UserServicePackage{}
	for rows.Next() {
		var p models.UserServicePackage
		var end *time.Time
		if err := rows.Scan(&p.ID, &p.UserID, &p.PlanID, &p.StartDate, &end, &p.IsActive, &p.CreatedAt, &p.PlanName); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		p.EndDate = end
		list = append(list, p)
	}
	return list, rows.Err()
}
