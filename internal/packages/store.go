package packages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/listings"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/notifications"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/users"
)

var ErrPackageNotFound = errors.New("service package not found")

// Store is the persistence the expiration service needs.
type Store interface {
	FindExpired(ctx context.Context, now time.Time, userID *int64) ([]models.UserServicePackage, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx groups the operations that must commit or roll back together when a
// user's packages expire.
type Tx interface {
	LockUser(ctx context.Context, userID int64) error
	ReloadPackage(ctx context.Context, packageID int64) (models.UserServicePackage, error)
	DeactivatePackage(ctx context.Context, packageID int64) error
	ReplaceRoles(ctx context.Context, userID int64, roleName string) error
	AgentIDForUser(ctx context.Context, userID int64) (int64, bool, error)
	PropertyIDsForAgent(ctx context.Context, agentID int64) ([]int64, error)
	DeletePropertyCascade(ctx context.Context, propertyID int64) ([]string, error)
	Notify(ctx context.Context, userID int64, message, link string) error
}

const packageColumns = "id, user_id, plan_id, start_date, end_date, is_active, created_at"

func scanPackage(row interface{ Scan(...any) error }) (models.UserServicePackage, error) {
	var p models.UserServicePackage
	var end sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.StartDate, &end, &p.IsActive, &p.CreatedAt); err != nil {
		return p, err
	}
	if end.Valid {
		t := end.Time
		p.EndDate = &t
	}
	return p, nil
}

// MySQLStore implements Store on the primary connection.
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db}
}

func (s *MySQLStore) FindExpired(ctx context.Context, now time.Time, userID *int64) ([]models.UserServicePackage, error) {
	var b strings.Builder
	b.WriteString("SELECT " + packageColumns + `
		FROM user_service_packages
		WHERE is_active = 1 AND end_date IS NOT NULL AND end_date <= ?`)
	args := []any{now}
	if userID != nil {
		b.WriteString(" AND user_id = ?")
		args = append(args, *userID)
	}
	b.WriteString(" ORDER BY user_id, id")

	rows, err := s.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired packages: %w", err)
	}
	defer rows.Close()

	var list []models.UserServicePackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *MySQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return fn(&mysqlTx{tx: tx})
	})
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) LockUser(ctx context.Context, userID int64) error {
	return users.LockUserRow(ctx, t.tx, userID)
}

func (t *mysqlTx) ReloadPackage(ctx context.Context, packageID int64) (models.UserServicePackage, error) {
	query := "SELECT " + packageColumns + " FROM user_service_packages WHERE id = ? FOR UPDATE"
	p, err := scanPackage(t.tx.QueryRowContext(ctx, query, packageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrPackageNotFound
		}
		return p, fmt.Errorf("failed to reload package %d: %w", packageID, err)
	}
	return p, nil
}

func (t *mysqlTx) DeactivatePackage(ctx context.Context, packageID int64) error {
	if _, err := t.tx.ExecContext(ctx, "UPDATE user_service_packages SET is_active = 0 WHERE id = ?", packageID); err != nil {
		return fmt.Errorf("failed to deactivate package %d: %w", packageID, err)
	}
	return nil
}

func (t *mysqlTx) ReplaceRoles(ctx context.Context, userID int64, roleName string) error {
	return users.ReplaceRoles(ctx, t.tx, userID, roleName)
}

func (t *mysqlTx) AgentIDForUser(ctx context.Context, userID int64) (int64, bool, error) {
	return users.AgentIDForUser(ctx, t.tx, userID)
}

func (t *mysqlTx) PropertyIDsForAgent(ctx context.Context, agentID int64) ([]int64, error) {
	return listings.PropertyIDsForAgent(ctx, t.tx, agentID)
}

func (t *mysqlTx) DeletePropertyCascade(ctx context.Context, propertyID int64) ([]string, error) {
	return listings.DeletePropertyCascade(ctx, t.tx, propertyID)
}

func (t *mysqlTx) Notify(ctx context.Context, userID int64, message, link string) error {
	return notifications.Add(ctx, t.tx, userID, message, link)
}
