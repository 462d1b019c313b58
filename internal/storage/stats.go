package storage

import (
	"context"

	"task-manager/internal/models"
)

// TaskStats counts the user's non-deleted tasks by status and by priority.
func (db *DB) TaskStats(ctx context.Context, userID int64) (*models.TaskStats, error) {
	if userID == 0 {
		return nil, models.ErrUnauthenticated
	}

	byStatus, err := db.countBy(ctx, "completed", userID)
	if err != nil {
		return nil, err
	}
	byPriority, err := db.countBy(ctx, "priority", userID)
	if err != nil {
		return nil, err
	}

	var total int
	for _, n := range byStatus {
		total += n
	}

	stats := &models.TaskStats{Total: total}
	for _, s := range []models.Status{models.StatusPending, models.StatusCompleted} {
		stats.ByStatus = append(stats.ByStatus, bucket(string(s), byStatus[string(s)], total))
	}
	for _, p := range models.Priorities {
		stats.ByPriority = append(stats.ByPriority, bucket(string(p), byPriority[string(p)], total))
	}
	return stats, nil
}

// countBy groups the user's non-deleted tasks by column, which must be a
// trusted column name.
func (db *DB) countBy(ctx context.Context, column string, userID int64) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(
		"SELECT "+column+", COUNT(*) FROM tasks WHERE user_id = ? AND completed != ? GROUP BY "+column),
		userID, models.StatusDeleted,
	)
	if err != nil {
		return nil, translate(err, "task stats")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, translate(err, "task stats")
		}
		counts[key] = n
	}
	return counts, translate(rows.Err(), "task stats")
}

func bucket(key string, count, total int) models.StatCount {
	percentage := 0.0
	if total > 0 {
		percentage = (float64(count) / float64(total)) * 100
	}
	return models.StatCount{Key: key, Count: count, Percentage: percentage}
}
