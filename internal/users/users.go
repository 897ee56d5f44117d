package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email is already registered")
	ErrRoleNotFound = errors.New("role not found")
)

// mysqlDuplicateEntry is MySQL's ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Store handles accounts and their role links.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Create inserts a user and links it to roleName in one transaction.
func (s *Store) Create(ctx context.Context, user *models.User, roleName string) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := time.Now()
		query := `
			INSERT INTO users (email, password_hash, full_name, phone_number, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query, user.Email, user.PasswordHash, user.FullName, user.PhoneNumber, now, now)
		if err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
				return ErrEmailTaken
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get new user ID: %w", err)
		}
		if err := AddRole(ctx, tx, id, roleName); err != nil {
			return err
		}
		user.ID = id
		user.CreatedAt = now
		user.UpdatedAt = now
		user.Roles = []string{roleName}
		return nil
	})
}

// GetByEmail loads a user and their role names.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	query := `
		SELECT id, email, password_hash, full_name, phone_number, created_at, updated_at
		FROM users
		WHERE email = ?`
	err := s.DB.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	u.Roles, err = RolesForUser(ctx, s.DB, u.ID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// LockUserRow takes the row lock on the user inside q's transaction. Every
// transaction that changes a user's packages, roles or listings takes it
// first, so they serialize in the database even without the app-level lock.
// A user row that no longer exists is not an error.
func LockUserRow(ctx context.Context, q database.Querier, userID int64) error {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM users WHERE id = ? FOR UPDATE", userID).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	return nil
}

// RolesForUser returns the names of every role linked to the user.
func RolesForUser(ctx context.Context, q database.Querier, userID int64) ([]string, error) {
	query := `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY r.name`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// AddRole links the user to roleName. Linking an existing role is a no-op.
func AddRole(ctx context.Context, q database.Querier, userID int64, roleName string) error {
	var roleID int64
	err := q.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = ?", roleName).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
		}
		return fmt.Errorf("failed to look up role: %w", err)
	}

	_, err = q.ExecContext(ctx, "INSERT IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to add role link: %w", err)
	}
	return nil
}

// ReplaceRoles deletes every role link of the user and inserts a single link
// to roleName. It is a replace, not a merge.
func ReplaceRoles(ctx context.Context, q database.Querier, userID int64, roleName string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete role links: %w", err)
	}
	return AddRole(ctx, q, userID, roleName)
}

// AgentIDForUser returns the user's agent record id, if there is one.
func AgentIDForUser(ctx context.Context, q database.Querier, userID int64) (int64, bool, error) {
	var agentID int64
	err := q.QueryRowContext(ctx, "SELECT id FROM agents WHERE user_id = ?", userID).Scan(&agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up agent: %w", err)
	}
	return agentID, true, nil
}

// EnsureAgent creates the user's agent record from their profile when it
// does not exist yet and returns its id.
func EnsureAgent(ctx context.Context, q database.Querier, userID int64) (int64, error) {
	if id, found, err := AgentIDForUser(ctx, q, userID); err != nil || found {
		return id, err
	}

	query := `
		INSERT INTO agents (user_id, display_name, phone_number, created_at)
		SELECT id, full_name, phone_number, ?
		FROM users
		WHERE id = ?`
	result, err := q.ExecContext(ctx, query, time.Now(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to create agent: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get new agent ID: %w", err)
	}
	return id, nil
}
