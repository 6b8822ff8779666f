package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"unibox/internal/migrations"
	"unibox/internal/models"
	"unibox/internal/security"
)

var (
	// ErrConversationNotFound is returned when an operation references a
	// conversation id that does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned when an operation references a message
	// id that does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrChannelNotFound is returned when an operation references a channel
	// that does not exist.
	ErrChannelNotFound = errors.New("channel not found")
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	d := &Database{db: db, encryptor: encryptor}

	if err := d.SeedChannels(context.Background(), models.DefaultSeedChannels); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to seed channels: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to seed channels: %w", err)
	}

	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Channel operations

// SeedChannels inserts the given channels if they are not present. Existing
// rows are left untouched, so re-seeding on startup is safe.
func (d *Database) SeedChannels(ctx context.Context, seeds []models.SeedChannel) error {
	for _, seed := range seeds {
		err := retryableDBOperation(ctx, func() error {
			_, err := d.db.ExecContext(ctx, InsertChannelQuery,
				seed.Name, seed.DisplayName, true, time.Now().UTC())
			return err
		}, "seed channel")
		if err != nil {
			return fmt.Errorf("failed to seed channel %s: %w", seed.Name, err)
		}
	}
	return nil
}

func (d *Database) GetChannelByName(ctx context.Context, name string) (*models.Channel, error) {
	channel := &models.Channel{}
	err := d.db.QueryRowContext(ctx, SelectChannelByNameQuery, name).Scan(
		&channel.ID,
		&channel.Name,
		&channel.DisplayName,
		&channel.IsActive,
		&channel.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

func (d *Database) GetChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	channel := &models.Channel{}
	err := d.db.QueryRowContext(ctx, SelectChannelByIDQuery, id).Scan(
		&channel.ID,
		&channel.Name,
		&channel.DisplayName,
		&channel.IsActive,
		&channel.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

func (d *Database) ListChannels(ctx context.Context) ([]models.Channel, error) {
	rows, err := d.db.QueryContext(ctx, SelectChannelsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []models.Channel
	for rows.Next() {
		var channel models.Channel
		if err := rows.Scan(
			&channel.ID,
			&channel.Name,
			&channel.DisplayName,
			&channel.IsActive,
			&channel.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return channels, nil
}

func (d *Database) SetChannelActive(ctx context.Context, name string, active bool) error {
	result, err := d.db.ExecContext(ctx, UpdateChannelActiveQuery, active, name)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	return nil
}

// Conversation operations

// GetOrCreateConversation inserts the conversation keyed by
// (channel_id, external_id), or returns the existing row when one is already
// present. The insert uses ON CONFLICT DO NOTHING, so racing callers converge
// on a single row and the first writer's participant fields win. The bool
// result reports whether this call created the row.
func (d *Database) GetOrCreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	encryptedExternalID, err := d.encryptor.EncryptForLookupIfEnabled(conv.ExternalID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt external ID: %w", err)
	}

	encryptedParticipant, err := d.encryptor.EncryptIfEnabled(conv.ParticipantIdentifier)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt participant identifier: %w", err)
	}

	encryptedName, err := d.encryptOptional(conv.ParticipantName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt participant name: %w", err)
	}

	category := conv.Category
	if category == "" {
		category = models.CategorySinCategoria
	}
	createdAt := ensureUTC(conv.CreatedAt)
	updatedAt := conv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	} else {
		updatedAt = updatedAt.UTC()
	}

	var created bool
	var insertedID int64
	err = retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, InsertConversationQuery,
			conv.ChannelID,
			encryptedExternalID,
			encryptedParticipant,
			encryptedName,
			true,
			category,
			createdAt,
			updatedAt,
		)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows > 0 {
			created = true
			insertedID, err = result.LastInsertId()
			return err
		}
		created = false
		return nil
	}, "insert conversation")
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	if created {
		out := *conv
		out.ID = insertedID
		out.IsActive = true
		out.Category = category
		out.CreatedAt = createdAt
		out.UpdatedAt = updatedAt
		return &out, true, nil
	}

	existing, err := d.getConversationByEncryptedExternal(ctx, conv.ChannelID, encryptedExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("conversation disappeared after conflict on channel %d", conv.ChannelID)
	}
	return existing, false, nil
}

func (d *Database) GetConversationByID(ctx context.Context, id int64) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, SelectConversationByIDQuery, id)
	conv, err := d.scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// GetConversationByChannelExternal resolves a conversation by its provider
// thread key. Returns nil without error when no conversation exists.
func (d *Database) GetConversationByChannelExternal(ctx context.Context, channelID int64, externalID string) (*models.Conversation, error) {
	encryptedExternalID, err := d.encryptor.EncryptForLookupIfEnabled(externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt external ID: %w", err)
	}
	return d.getConversationByEncryptedExternal(ctx, channelID, encryptedExternalID)
}

func (d *Database) getConversationByEncryptedExternal(ctx context.Context, channelID int64, encryptedExternalID string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, SelectConversationByChannelExternalQuery, channelID, encryptedExternalID)
	conv, err := d.scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// UpdateConversationCategory reclassifies a conversation. The row's
// updated_at column is deliberately left alone; only message ingestion moves
// conversation recency.
func (d *Database) UpdateConversationCategory(ctx context.Context, id int64, category models.Category) error {
	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, UpdateConversationCategoryQuery, category, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: %d", ErrConversationNotFound, id)
		}
		return nil
	}, "update conversation category")
}

// ListConversations returns conversations ordered by recency, most recently
// updated first.
func (d *Database) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	var clauses []string
	var args []interface{}

	if filter.ChannelID != nil {
		clauses = append(clauses, "channel_id = ?")
		args = append(args, *filter.ChannelID)
	}
	if filter.Category != nil {
		clauses = append(clauses, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.IsActive != nil {
		clauses = append(clauses, "is_active = ?")
		args = append(args, *filter.IsActive)
	}

	query := SelectConversationsBaseQuery
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := d.scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, nil
}

// Message operations

// InsertMessage appends a message to its conversation and advances the
// conversation's updated_at to the message timestamp when that timestamp is
// newer. Both writes happen in one transaction.
//
// When the message carries an external id that is already present in the
// conversation, nothing is written and the stored message is returned with
// created=false. A vanished conversation id surfaces as
// ErrConversationNotFound.
func (d *Database) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	encryptedContent, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt content: %w", err)
	}

	encryptedSender, err := d.encryptor.EncryptIfEnabled(msg.SenderIdentifier)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt sender identifier: %w", err)
	}

	encryptedSenderName, err := d.encryptOptional(msg.SenderName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt sender name: %w", err)
	}

	encryptedMetadata, err := d.encryptOptional(msg.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt metadata: %w", err)
	}

	var encryptedExternalID *string
	if msg.ExternalMessageID != nil {
		enc, err := d.encryptor.EncryptForLookupIfEnabled(*msg.ExternalMessageID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to encrypt external message ID: %w", err)
		}
		encryptedExternalID = &enc
	}

	messageType := msg.MessageType
	if messageType == "" {
		messageType = models.DefaultMessageType
	}
	timestamp := ensureUTC(msg.Timestamp)
	createdAt := time.Now().UTC()

	var stored *models.Message
	var created bool

	err = retryableDBOperation(ctx, func() error {
		stored = nil
		created = false

		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		var conversationUpdatedAt time.Time
		err = tx.QueryRowContext(ctx, SelectConversationUpdatedAtQuery, msg.ConversationID).Scan(&conversationUpdatedAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %d", ErrConversationNotFound, msg.ConversationID)
		}
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}

		if encryptedExternalID != nil {
			row := tx.QueryRowContext(ctx, SelectMessageByConversationExternalQuery, msg.ConversationID, *encryptedExternalID)
			existing, err := d.scanMessage(row)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("failed to check for duplicate: %w", err)
			}
			if err == nil {
				stored = existing
				return nil
			}
		}

		result, err := tx.ExecContext(ctx, InsertMessageQuery,
			msg.ConversationID,
			encryptedExternalID,
			encryptedContent,
			messageType,
			msg.Direction,
			encryptedSender,
			encryptedSenderName,
			timestamp,
			msg.IsRead,
			encryptedMetadata,
			createdAt,
		)
		if err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("%w: %d", ErrConversationNotFound, msg.ConversationID)
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}

		messageID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted message id: %w", err)
		}

		if timestamp.After(conversationUpdatedAt) {
			if _, err := tx.ExecContext(ctx, UpdateConversationUpdatedAtQuery, timestamp, msg.ConversationID); err != nil {
				return fmt.Errorf("failed to advance conversation: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message: %w", err)
		}
		committed = true

		out := *msg
		out.ID = messageID
		out.MessageType = messageType
		out.Timestamp = timestamp
		out.CreatedAt = createdAt
		stored = &out
		created = true
		return nil
	}, "insert message")

	if err != nil {
		// A unique violation means another writer inserted the same external
		// id first; hand back that row as the duplicate.
		if isUniqueConstraintError(err) && encryptedExternalID != nil {
			row := d.db.QueryRowContext(ctx, SelectMessageByConversationExternalQuery, msg.ConversationID, *encryptedExternalID)
			existing, scanErr := d.scanMessage(row)
			if scanErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	return stored, created, nil
}

func (d *Database) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	row := d.db.QueryRowContext(ctx, SelectMessageByIDQuery, id)
	msg, err := d.scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessageByConversationExternal looks up a message by its provider id
// within one conversation. Returns nil without error when absent.
func (d *Database) GetMessageByConversationExternal(ctx context.Context, conversationID int64, externalMessageID string) (*models.Message, error) {
	encryptedExternalID, err := d.encryptor.EncryptForLookupIfEnabled(externalMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt external message ID: %w", err)
	}

	row := d.db.QueryRowContext(ctx, SelectMessageByConversationExternalQuery, conversationID, encryptedExternalID)
	msg, err := d.scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in chronological order,
// oldest first, ties broken by insertion order.
func (d *Database) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, SelectMessagesByConversationQuery, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// MarkMessageRead flags a message as read. Marking an already-read message
// is a no-op that still succeeds.
func (d *Database) MarkMessageRead(ctx context.Context, id int64) error {
	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, UpdateMessageReadQuery, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: %d", ErrMessageNotFound, id)
		}
		return nil
	}, "mark message read")
}

func (d *Database) CountUnreadMessages(ctx context.Context, conversationID int64) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, CountUnreadByConversationQuery, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (d *Database) CountTotalUnreadMessages(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, CountUnreadTotalQuery).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// Scan and crypto helpers

func (d *Database) scanConversation(row rowScanner) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var encryptedExternalID, encryptedParticipant string
	var encryptedName *string

	err := row.Scan(
		&conv.ID,
		&conv.ChannelID,
		&encryptedExternalID,
		&encryptedParticipant,
		&encryptedName,
		&conv.IsActive,
		&conv.Category,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.ExternalID, err = d.encryptor.DecryptIfEnabled(encryptedExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt external ID: %w", err)
	}
	conv.ParticipantIdentifier, err = d.encryptor.DecryptIfEnabled(encryptedParticipant)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt participant identifier: %w", err)
	}
	conv.ParticipantName, err = d.decryptOptional(encryptedName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt participant name: %w", err)
	}

	return conv, nil
}

func (d *Database) scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var encryptedContent, encryptedSender string
	var encryptedExternalID, encryptedSenderName, encryptedMetadata *string

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&encryptedExternalID,
		&encryptedContent,
		&msg.MessageType,
		&msg.Direction,
		&encryptedSender,
		&encryptedSenderName,
		&msg.Timestamp,
		&msg.IsRead,
		&encryptedMetadata,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.ExternalMessageID, err = d.decryptOptional(encryptedExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt external message ID: %w", err)
	}
	msg.Content, err = d.encryptor.DecryptIfEnabled(encryptedContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	msg.SenderIdentifier, err = d.encryptor.DecryptIfEnabled(encryptedSender)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt sender identifier: %w", err)
	}
	msg.SenderName, err = d.decryptOptional(encryptedSenderName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt sender name: %w", err)
	}
	msg.Metadata, err = d.decryptOptional(encryptedMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt metadata: %w", err)
	}

	return msg, nil
}

func (d *Database) encryptOptional(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	encrypted, err := d.encryptor.EncryptIfEnabled(*value)
	if err != nil {
		return nil, err
	}
	return &encrypted, nil
}

func (d *Database) decryptOptional(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	decrypted, err := d.encryptor.DecryptIfEnabled(*value)
	if err != nil {
		return nil, err
	}
	return &decrypted, nil
}

// ensureUTC normalizes timestamps before storage so that SQLite's text
// comparison of DATETIME values stays consistent across rows.
func ensureUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
