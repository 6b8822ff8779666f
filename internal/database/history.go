package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"unibox/internal/models"
)

// History operations. The audit log stores plaintext on purpose: entries
// describe operator actions, not message content, and operators read them
// directly.

func (d *Database) InsertHistoryEntry(ctx context.Context, entry *models.HistoryEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	} else {
		createdAt = createdAt.UTC()
	}

	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, InsertHistoryQuery,
			entry.User,
			entry.Action,
			entry.ActionType,
			entry.Details,
			entry.Endpoint,
			entry.Method,
			entry.ClientIP,
			createdAt,
		)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		entry.ID = id
		entry.CreatedAt = createdAt
		return nil
	}, "insert history entry")
}

// ListHistoryEntries returns audit entries newest first, optionally filtered
// by user and action type.
func (d *Database) ListHistoryEntries(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	var clauses []string
	var args []interface{}

	if filter.User != "" {
		clauses = append(clauses, "user = ?")
		args = append(args, filter.User)
	}
	if filter.ActionType != "" {
		clauses = append(clauses, "action_type = ?")
		args = append(args, filter.ActionType)
	}

	query := SelectHistoryBaseQuery
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.User,
			&entry.Action,
			&entry.ActionType,
			&entry.Details,
			&entry.Endpoint,
			&entry.Method,
			&entry.ClientIP,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history entries: %w", err)
	}
	return entries, nil
}

func (d *Database) GetHistoryStats(ctx context.Context) (*models.HistoryStats, error) {
	stats := &models.HistoryStats{
		ByActionType: make(map[string]int64),
		ByUser:       make(map[string]int64),
	}

	if err := d.db.QueryRowContext(ctx, CountHistoryQuery).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count history entries: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, SelectHistoryByActionTypeStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to group history by action type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var actionType string
		var count int64
		if err := rows.Scan(&actionType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan action type stats: %w", err)
		}
		stats.ByActionType[actionType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action type stats: %w", err)
	}

	userRows, err := d.db.QueryContext(ctx, SelectHistoryByUserStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to group history by user: %w", err)
	}
	defer func() { _ = userRows.Close() }()
	for userRows.Next() {
		var user string
		var count int64
		if err := userRows.Scan(&user, &count); err != nil {
			return nil, fmt.Errorf("failed to scan user stats: %w", err)
		}
		stats.ByUser[user] = count
	}
	if err := userRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user stats: %w", err)
	}

	return stats, nil
}

// CleanupOldHistory deletes audit entries older than the retention window.
// Conversations and messages are never deleted; retention only applies here.
func (d *Database) CleanupOldHistory(retentionDays int) error {
	_, err := d.db.Exec(DeleteOldHistoryQuery, retentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup old history entries: %w", err)
	}
	return nil
}
