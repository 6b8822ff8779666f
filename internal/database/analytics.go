package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"unibox/internal/models"
)

// Aggregations run in SQL because they only touch timestamps, directions and
// foreign keys, none of which are stored encrypted. Results that come out of
// aggregate expressions lose their column type, so timestamps are scanned as
// text and parsed here.

// sqliteTimestampFormats mirrors the formats the sqlite3 driver itself
// accepts when parsing DATETIME text.
var sqliteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseSQLiteTime(value string) (time.Time, error) {
	for _, format := range sqliteTimestampFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// CountConversationsStarted counts conversations created inside [start, end),
// optionally restricted to one channel by name.
func (d *Database) CountConversationsStarted(ctx context.Context, start, end time.Time, channel string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM conversations c
		JOIN channels ch ON ch.id = c.channel_id
		WHERE c.created_at >= ? AND c.created_at < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if channel != "" {
		query += " AND ch.name = ?"
		args = append(args, channel)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// CountMessagesByDirection breaks message volume inside [start, end) down by
// direction.
func (d *Database) CountMessagesByDirection(ctx context.Context, start, end time.Time, channel string) (map[models.Direction]int64, error) {
	query := `
		SELECT m.direction, COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN channels ch ON ch.id = c.channel_id
		WHERE m.timestamp >= ? AND m.timestamp < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if channel != "" {
		query += " AND ch.name = ?"
		args = append(args, channel)
	}
	query += " GROUP BY m.direction"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by direction: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.Direction]int64)
	for rows.Next() {
		var direction string
		var count int64
		if err := rows.Scan(&direction, &count); err != nil {
			return nil, fmt.Errorf("failed to scan direction count: %w", err)
		}
		counts[models.Direction(direction)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate direction counts: %w", err)
	}
	return counts, nil
}

// CountMessagesByChannel breaks message volume inside [start, end) down by
// channel name.
func (d *Database) CountMessagesByChannel(ctx context.Context, start, end time.Time, channel string) (map[string]int64, error) {
	query := `
		SELECT ch.name, COUNT(m.id)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN channels ch ON ch.id = c.channel_id
		WHERE m.timestamp >= ? AND m.timestamp < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if channel != "" {
		query += " AND ch.name = ?"
		args = append(args, channel)
	}
	query += " GROUP BY ch.name"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by channel: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan channel count: %w", err)
		}
		counts[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel counts: %w", err)
	}
	return counts, nil
}

// CountMessagesByDay breaks message volume inside [start, end) down by UTC
// calendar day, keyed as YYYY-MM-DD.
func (d *Database) CountMessagesByDay(ctx context.Context, start, end time.Time, channel string) (map[string]int64, error) {
	query := `
		SELECT date(m.timestamp), COUNT(m.id)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN channels ch ON ch.id = c.channel_id
		WHERE m.timestamp >= ? AND m.timestamp < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if channel != "" {
		query += " AND ch.name = ?"
		args = append(args, channel)
	}
	query += " GROUP BY date(m.timestamp)"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by day: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		counts[day] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate day counts: %w", err)
	}
	return counts, nil
}

// CountMessagesInWindow counts all messages inside [start, end).
func (d *Database) CountMessagesInWindow(ctx context.Context, start, end time.Time, channel string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN channels ch ON ch.id = c.channel_id
		WHERE m.timestamp >= ? AND m.timestamp < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if channel != "" {
		query += " AND ch.name = ?"
		args = append(args, channel)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetConversationResponseTimes returns, for every conversation created inside
// [start, end), the timestamps of its first incoming and first outgoing
// message. Either side can be missing for one-sided conversations.
func (d *Database) GetConversationResponseTimes(ctx context.Context, start, end time.Time, channel string) ([]models.ConversationResponse, error) {
	query := `
		SELECT c.id,
		       MIN(CASE WHEN m.direction = 'incoming' THEN m.timestamp END),
		       MIN(CASE WHEN m.direction = 'outgoing' THEN m.timestamp END)
		FROM conversations c
		JOIN channels ch ON ch.id = c.channel_id
		JOIN messages m ON m.conversation_id = c.id
		WHERE c.created_at >= ? AND c.created_at < ?
	`
	args := []interface{}{start.UTC(), end.UTC()}
	if channel != "" {
		query += " AND ch.name = ?"
		args = append(args, channel)
	}
	query += " GROUP BY c.id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query response times: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var responses []models.ConversationResponse
	for rows.Next() {
		var resp models.ConversationResponse
		var firstIncoming, firstOutgoing sql.NullString
		if err := rows.Scan(&resp.ConversationID, &firstIncoming, &firstOutgoing); err != nil {
			return nil, fmt.Errorf("failed to scan response times: %w", err)
		}
		if firstIncoming.Valid {
			t, err := parseSQLiteTime(firstIncoming.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse first incoming time: %w", err)
			}
			resp.FirstIncoming = &t
		}
		if firstOutgoing.Valid {
			t, err := parseSQLiteTime(firstOutgoing.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse first outgoing time: %w", err)
			}
			resp.FirstOutgoing = &t
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response times: %w", err)
	}
	return responses, nil
}
