package database

// Channel queries
const (
	InsertChannelQuery = `
		INSERT INTO channels (name, display_name, is_active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`

	SelectChannelByNameQuery = `
		SELECT id, name, display_name, is_active, created_at
		FROM channels
		WHERE name = ?
	`

	SelectChannelByIDQuery = `
		SELECT id, name, display_name, is_active, created_at
		FROM channels
		WHERE id = ?
	`

	SelectChannelsQuery = `
		SELECT id, name, display_name, is_active, created_at
		FROM channels
		ORDER BY name ASC
	`

	UpdateChannelActiveQuery = `
		UPDATE channels
		SET is_active = ?
		WHERE name = ?
	`
)

// Conversation queries
const (
	InsertConversationQuery = `
		INSERT INTO conversations (
			channel_id, external_id, participant_identifier, participant_name,
			is_active, category, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, external_id) DO NOTHING
	`

	SelectConversationByChannelExternalQuery = `
		SELECT id, channel_id, external_id, participant_identifier, participant_name,
		       is_active, category, created_at, updated_at
		FROM conversations
		WHERE channel_id = ? AND external_id = ?
	`

	SelectConversationByIDQuery = `
		SELECT id, channel_id, external_id, participant_identifier, participant_name,
		       is_active, category, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	SelectConversationUpdatedAtQuery = `
		SELECT updated_at
		FROM conversations
		WHERE id = ?
	`

	UpdateConversationUpdatedAtQuery = `
		UPDATE conversations
		SET updated_at = ?
		WHERE id = ?
	`

	UpdateConversationCategoryQuery = `
		UPDATE conversations
		SET category = ?
		WHERE id = ?
	`

	SelectConversationsBaseQuery = `
		SELECT id, channel_id, external_id, participant_identifier, participant_name,
		       is_active, category, created_at, updated_at
		FROM conversations
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			conversation_id, external_message_id, content, message_type, direction,
			sender_identifier, sender_name, timestamp, is_read, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectMessageByIDQuery = `
		SELECT id, conversation_id, external_message_id, content, message_type, direction,
		       sender_identifier, sender_name, timestamp, is_read, metadata, created_at
		FROM messages
		WHERE id = ?
	`

	SelectMessageByConversationExternalQuery = `
		SELECT id, conversation_id, external_message_id, content, message_type, direction,
		       sender_identifier, sender_name, timestamp, is_read, metadata, created_at
		FROM messages
		WHERE conversation_id = ? AND external_message_id = ?
	`

	SelectMessagesByConversationQuery = `
		SELECT id, conversation_id, external_message_id, content, message_type, direction,
		       sender_identifier, sender_name, timestamp, is_read, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`

	UpdateMessageReadQuery = `
		UPDATE messages
		SET is_read = TRUE
		WHERE id = ?
	`

	CountUnreadByConversationQuery = `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = ? AND is_read = FALSE
	`

	CountUnreadTotalQuery = `
		SELECT COUNT(*)
		FROM messages
		WHERE is_read = FALSE
	`
)

// History queries
const (
	InsertHistoryQuery = `
		INSERT INTO history_entries (
			user, action, action_type, details, endpoint, method, client_ip, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectHistoryBaseQuery = `
		SELECT id, user, action, action_type, details, endpoint, method, client_ip, created_at
		FROM history_entries
	`

	CountHistoryQuery = `
		SELECT COUNT(*)
		FROM history_entries
	`

	SelectHistoryByActionTypeStatsQuery = `
		SELECT action_type, COUNT(*)
		FROM history_entries
		GROUP BY action_type
	`

	SelectHistoryByUserStatsQuery = `
		SELECT user, COUNT(*)
		FROM history_entries
		GROUP BY user
	`

	DeleteOldHistoryQuery = `
		DELETE FROM history_entries
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)
