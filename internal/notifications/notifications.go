// Package notifications stores the in-app messages users see in their inbox.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

// ErrNotFound means the notification does not exist or belongs to someone else.
var ErrNotFound = errors.New("notification not found")

// listLimit caps how many notifications one inbox request returns.
const listLimit = 50

// Add inserts an unread notification. An empty link is stored as NULL.
// Callers usually pass the *sql.Tx of the change being announced.
func Add(ctx context.Context, q database.Querier, userID int64, message, link string) error {
	var linkArg any
	if link != "" {
		linkArg = link
	}

	query := `
		INSERT INTO notifications
		(user_id, message, link, is_read, created_at)
		VALUES (?, ?, ?, 0, ?)`
	if _, err := q.ExecContext(ctx, query, userID, message, linkArg, time.Now()); err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, unread and newest first.
func ListForUser(ctx context.Context, q database.Querier, userID int64) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY is_read ASC, created_at DESC
		LIMIT ?`
	rows, err := q.QueryContext(ctx, query, userID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	list := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkRead flags one of the user's notifications as read.
func MarkRead(ctx context.Context, q database.Querier, userID, notificationID int64) error {
	result, err := q.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?", notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadCount returns how many of the user's notifications are unread.
func UnreadCount(ctx context.Context, q database.Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}
