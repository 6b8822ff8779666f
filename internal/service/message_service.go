package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"unibox/internal/constants"
	"unibox/internal/database"
	apperrors "unibox/internal/errors"
	"unibox/internal/metrics"
	"unibox/internal/models"
	"unibox/internal/validation"

	"github.com/sirupsen/logrus"
)

// Database is the storage surface the message service consumes.
type Database interface {
	GetOrCreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error)
	GetConversationByID(ctx context.Context, id int64) (*models.Conversation, error)
	GetConversationByChannelExternal(ctx context.Context, channelID int64, externalID string) (*models.Conversation, error)
	UpdateConversationCategory(ctx context.Context, id int64, category models.Category) error
	ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error)
	InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error)
	GetMessageByID(ctx context.Context, id int64) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, id int64) error
	CountUnreadMessages(ctx context.Context, conversationID int64) (int64, error)
	CountTotalUnreadMessages(ctx context.Context) (int64, error)
}

// EventPublisher receives domain events after successful mutations.
// A nil publisher disables eventing.
type EventPublisher interface {
	MessageIngested(msg *models.Message, channelName string)
	ConversationCategorized(conversationID int64, category models.Category)
}

// MessageService is the ingestion and conversation core. SubmitMessage is
// the single entry point every channel adapter feeds; RecordOutgoing routes
// operator replies through the same path so both directions share dedup and
// conversation resolution.
type MessageService interface {
	SubmitMessage(ctx context.Context, event *models.MessageEvent) (*models.Message, bool, error)
	RecordOutgoing(ctx context.Context, conversationID int64, content, messageType string, externalMessageID *string) (*models.Message, bool, error)
	SetCategory(ctx context.Context, conversationID int64, category string) (*models.Conversation, error)
	MarkRead(ctx context.Context, messageID int64) error
	UnreadCount(ctx context.Context, conversationID int64) (int64, error)
	TotalUnreadCount(ctx context.Context) (int64, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListConversations(ctx context.Context, channelName, category string, limit, offset int) ([]models.Conversation, error)
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error)
	Channels() []models.Channel
}

type messageService struct {
	db               Database
	registry         *ChannelRegistry
	events           EventPublisher
	locks            *conversationLocks
	operatorIdentity string
	logger           *logrus.Logger
	now              func() time.Time
}

// NewMessageService wires the ingestion core. operatorIdentity is the
// sender recorded on operator replies; empty selects the default.
func NewMessageService(db Database, registry *ChannelRegistry, events EventPublisher, operatorIdentity string, logger *logrus.Logger) MessageService {
	if operatorIdentity == "" {
		operatorIdentity = constants.DefaultOperatorIdentity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &messageService{
		db:               db,
		registry:         registry,
		events:           events,
		locks:            newConversationLocks(),
		operatorIdentity: operatorIdentity,
		logger:           logger,
		now:              time.Now,
	}
}

// SubmitMessage resolves the event to a conversation, creating one on first
// contact, and stores the message. The bool result reports whether a new
// message row was written; false means the event was a duplicate and the
// previously stored message is returned.
func (s *messageService) SubmitMessage(ctx context.Context, event *models.MessageEvent) (*models.Message, bool, error) {
	start := s.now()

	if err := validation.ValidateMessageEvent(event); err != nil {
		return nil, false, err
	}

	channel, err := s.registry.Resolve(event.ChannelName)
	if err != nil {
		return nil, false, err
	}

	// Serialize per thread so concurrent first messages agree on one
	// conversation row without hammering the unique constraint.
	unlock := s.locks.acquire(conversationKey(channel.ID, event.ExternalConversationID))
	defer unlock()

	conv, err := s.db.GetConversationByChannelExternal(ctx, channel.ID, event.ExternalConversationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up conversation: %w", err)
	}

	createdConv := false
	if conv == nil {
		if !channel.IsActive {
			return nil, false, apperrors.NewUnknownChannelError(event.ChannelName).
				WithContext("reason", "channel is not accepting new conversations")
		}

		conv, createdConv, err = s.db.GetOrCreateConversation(ctx, &models.Conversation{
			ChannelID:             channel.ID,
			ExternalID:            event.ExternalConversationID,
			ParticipantIdentifier: event.ParticipantIdentifier,
			ParticipantName:       event.ParticipantName,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	stored, created, err := s.db.InsertMessage(ctx, &models.Message{
		ConversationID:    conv.ID,
		ExternalMessageID: event.ExternalMessageID,
		Content:           event.Content,
		MessageType:       event.MessageType,
		Direction:         event.Direction,
		SenderIdentifier:  event.SenderIdentifier,
		SenderName:        event.SenderName,
		Timestamp:         event.Timestamp,
		IsRead:            event.Direction == models.DirectionOutgoing,
		Metadata:          event.Metadata,
	})
	if err != nil {
		if errors.Is(err, database.ErrConversationNotFound) {
			return nil, false, apperrors.NewOrphanConversationError(conv.ID)
		}
		return nil, false, fmt.Errorf("failed to store message: %w", err)
	}

	metrics.RecordTimer("ingest_duration", time.Since(start),
		map[string]string{LogFieldChannel: channel.Name}, "Time to process one submitted message")

	if !created {
		metrics.IncrementCounter("messages_duplicate_total",
			map[string]string{LogFieldChannel: channel.Name}, "Submitted messages dropped as duplicates")
		LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
			LogFieldComponent:      "message_service",
			LogFieldOperation:      "submit_message",
			LogFieldChannel:        channel.Name,
			LogFieldConversationID: conv.ID,
			LogFieldMessageID:      stored.ID,
		}).Debug("Duplicate message ignored")
		return stored, false, nil
	}

	if createdConv {
		metrics.IncrementCounter("conversations_created_total",
			map[string]string{LogFieldChannel: channel.Name}, "Conversations created by first contact")
	}
	metrics.IncrementCounter("messages_ingested_total",
		map[string]string{LogFieldChannel: channel.Name, LogFieldDirection: string(event.Direction)},
		"Messages stored by the ingestion core")

	LogMessageIngestion(ctx, s.logger, channel.Name, event.ExternalConversationID, event.ParticipantIdentifier, createdConv)

	if s.events != nil {
		s.events.MessageIngested(stored, channel.Name)
	}

	return stored, true, nil
}

// RecordOutgoing stores an operator reply in an existing conversation. The
// message is attributed to the configured operator identity, stamped with
// the current time, and marked read.
func (s *messageService) RecordOutgoing(ctx context.Context, conversationID int64, content, messageType string, externalMessageID *string) (*models.Message, bool, error) {
	if err := validation.ValidateContent(content); err != nil {
		return nil, false, err
	}
	if messageType != "" {
		if err := validation.ValidateMessageType(messageType); err != nil {
			return nil, false, err
		}
	}
	if externalMessageID != nil {
		if err := validation.ValidateExternalMessageID(*externalMessageID); err != nil {
			return nil, false, err
		}
	}

	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil {
		return nil, false, apperrors.NewOrphanConversationError(conversationID)
	}

	unlock := s.locks.acquire(conversationKey(conv.ChannelID, conv.ExternalID))
	defer unlock()

	stored, created, err := s.db.InsertMessage(ctx, &models.Message{
		ConversationID:    conv.ID,
		ExternalMessageID: externalMessageID,
		Content:           content,
		MessageType:       messageType,
		Direction:         models.DirectionOutgoing,
		SenderIdentifier:  s.operatorIdentity,
		Timestamp:         s.now().UTC(),
		IsRead:            true,
	})
	if err != nil {
		if errors.Is(err, database.ErrConversationNotFound) {
			return nil, false, apperrors.NewOrphanConversationError(conversationID)
		}
		return nil, false, fmt.Errorf("failed to store outgoing message: %w", err)
	}

	channelName := s.registry.NameByID(conv.ChannelID)

	if created {
		metrics.IncrementCounter("messages_ingested_total",
			map[string]string{LogFieldChannel: channelName, LogFieldDirection: string(models.DirectionOutgoing)},
			"Messages stored by the ingestion core")
		LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
			LogFieldComponent:      "message_service",
			LogFieldOperation:      "record_outgoing",
			LogFieldChannel:        channelName,
			LogFieldConversationID: conv.ID,
			LogFieldMessageID:      stored.ID,
		}).Info("Outgoing message recorded")

		if s.events != nil {
			s.events.MessageIngested(stored, channelName)
		}
	}

	return stored, created, nil
}

// SetCategory validates the category before any mutation and applies it.
// The conversation's updated_at is untouched so manual triage does not
// reorder the inbox.
func (s *messageService) SetCategory(ctx context.Context, conversationID int64, category string) (*models.Conversation, error) {
	if err := validation.ValidateCategory(category); err != nil {
		return nil, err
	}

	if err := s.db.UpdateConversationCategory(ctx, conversationID, models.Category(category)); err != nil {
		if errors.Is(err, database.ErrConversationNotFound) {
			return nil, apperrors.NewOrphanConversationError(conversationID)
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}

	metrics.IncrementCounter("category_changes_total",
		map[string]string{LogFieldCategory: category}, "Conversation category assignments")

	LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldComponent:      "message_service",
		LogFieldOperation:      "set_category",
		LogFieldConversationID: conversationID,
		LogFieldCategory:       category,
	}).Info("Conversation categorized")

	if s.events != nil {
		s.events.ConversationCategorized(conversationID, models.Category(category))
	}

	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload conversation: %w", err)
	}
	return conv, nil
}

// MarkRead flags a single message as read.
func (s *messageService) MarkRead(ctx context.Context, messageID int64) error {
	if err := s.db.MarkMessageRead(ctx, messageID); err != nil {
		if errors.Is(err, database.ErrMessageNotFound) {
			return apperrors.NewNotFoundError("message", strconv.FormatInt(messageID, 10))
		}
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// UnreadCount reports unread incoming messages in one conversation.
func (s *messageService) UnreadCount(ctx context.Context, conversationID int64) (int64, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil {
		return 0, apperrors.NewNotFoundError("conversation", strconv.FormatInt(conversationID, 10))
	}
	return s.db.CountUnreadMessages(ctx, conversationID)
}

// TotalUnreadCount reports unread incoming messages across all conversations.
func (s *messageService) TotalUnreadCount(ctx context.Context) (int64, error) {
	return s.db.CountTotalUnreadMessages(ctx)
}

// GetConversation fetches one conversation by id.
func (s *messageService) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	conv, err := s.db.GetConversationByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil {
		return nil, apperrors.NewNotFoundError("conversation", strconv.FormatInt(id, 10))
	}
	return conv, nil
}

// ListConversations returns the inbox ordered by recent activity. Unknown
// channel or category filters fail instead of silently matching nothing.
func (s *messageService) ListConversations(ctx context.Context, channelName, category string, limit, offset int) ([]models.Conversation, error) {
	filter := models.ConversationFilter{
		Limit:  clampLimit(limit),
		Offset: clampOffset(offset),
	}

	if channelName != "" {
		channel, err := s.registry.Resolve(channelName)
		if err != nil {
			return nil, err
		}
		filter.ChannelID = &channel.ID
	}

	if category != "" {
		if err := validation.ValidateCategory(category); err != nil {
			return nil, err
		}
		cat := models.Category(category)
		filter.Category = &cat
	}

	conversations, err := s.db.ListConversations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// GetMessage fetches one message by id.
func (s *messageService) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.db.GetMessageByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}
	if msg == nil {
		return nil, apperrors.NewNotFoundError("message", strconv.FormatInt(id, 10))
	}
	return msg, nil
}

// ListMessages returns one conversation's messages in timeline order.
func (s *messageService) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if conv == nil {
		return nil, apperrors.NewNotFoundError("conversation", strconv.FormatInt(conversationID, 10))
	}

	messages, err := s.db.ListMessages(ctx, conversationID, clampLimit(limit), clampOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Channels returns the channel catalog from the in-memory registry.
func (s *messageService) Channels() []models.Channel {
	return s.registry.List()
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return constants.DefaultPageLimit
	case limit < 0:
		return 1
	case limit > constants.MaxPageLimit:
		return constants.MaxPageLimit
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
