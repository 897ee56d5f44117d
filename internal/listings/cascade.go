package listings

import (
	"context"
	"fmt"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/database"
)

// dependentTables are the tables keyed by property_id, in delete order.
// The property row itself goes last.
var dependentTables = []string{
	"property_photos",
	"property_features",
	"property_amenities",
	"reviews",
	"favorites",
	"inquiries",
}

// PropertyIDsForAgent lists every property owned by the agent. Inside a
// transaction the rows stay locked until it ends.
func PropertyIDsForAgent(ctx context.Context, q database.Querier, agentID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM properties WHERE agent_id = ? ORDER BY id FOR UPDATE", agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent properties: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan property id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountForAgent returns how many listings the agent currently owns.
func CountForAgent(ctx context.Context, q database.Querier, agentID int64) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties WHERE agent_id = ?", agentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count agent properties: %w", err)
	}
	return n, nil
}

// DeletePropertyCascade removes a property and every row that references it.
// It returns the storage keys of the deleted photos so the caller can remove
// the files once the transaction has committed.
func DeletePropertyCascade(ctx context.Context, q database.Querier, propertyID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT storage_key FROM property_photos WHERE property_id = ?", propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query property photos: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan photo key: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read property photos: %w", err)
	}

	for _, table := range dependentTables {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE property_id = ?", propertyID); err != nil {
			return nil, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM properties WHERE id = ?", propertyID); err != nil {
		return nil, fmt.Errorf("failed to delete property: %w", err)
	}
	return keys, nil
}
