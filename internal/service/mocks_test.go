package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"unibox/internal/database"
	"unibox/internal/models"

	"github.com/sirupsen/logrus"
)

// fakeDatabase is an in-memory stand-in for the storage layer. It mirrors
// the real semantics the service depends on: get-or-create resolution,
// external-id dedup, and updated_at advancement.
type fakeDatabase struct {
	mu            sync.Mutex
	conversations map[int64]*models.Conversation
	byThread      map[string]int64
	messages      map[int64]*models.Message
	byExternalMsg map[string]int64
	nextConvID    int64
	nextMsgID     int64

	lastConvFilter    *models.ConversationFilter
	lastListLimit     int
	lastListOffset    int
	categoryUpdates   int
	insertedHistory   []models.HistoryEntry
	historyListFilter *models.HistoryFilter

	getConvErr    error
	createConvErr error
	insertMsgErr  error
	updateCatErr  error
	listConvErr   error
	markReadErr   error
	historyErr    error
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		conversations: make(map[int64]*models.Conversation),
		byThread:      make(map[string]int64),
		messages:      make(map[int64]*models.Message),
		byExternalMsg: make(map[string]int64),
	}
}

func threadKey(channelID int64, externalID string) string {
	return fmt.Sprintf("%d:%s", channelID, externalID)
}

func externalMsgKey(conversationID int64, externalMessageID string) string {
	return fmt.Sprintf("%d:%s", conversationID, externalMessageID)
}

func copyConversation(c *models.Conversation) *models.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func copyMessage(m *models.Message) *models.Message {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

func (f *fakeDatabase) GetOrCreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createConvErr != nil {
		return nil, false, f.createConvErr
	}

	key := threadKey(conv.ChannelID, conv.ExternalID)
	if id, ok := f.byThread[key]; ok {
		return copyConversation(f.conversations[id]), false, nil
	}

	f.nextConvID++
	now := time.Now().UTC()
	stored := &models.Conversation{
		ID:                    f.nextConvID,
		ChannelID:             conv.ChannelID,
		ExternalID:            conv.ExternalID,
		ParticipantIdentifier: conv.ParticipantIdentifier,
		ParticipantName:       conv.ParticipantName,
		IsActive:              true,
		Category:              models.CategorySinCategoria,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	f.conversations[stored.ID] = stored
	f.byThread[key] = stored.ID
	return copyConversation(stored), true, nil
}

func (f *fakeDatabase) GetConversationByID(ctx context.Context, id int64) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getConvErr != nil {
		return nil, f.getConvErr
	}
	return copyConversation(f.conversations[id]), nil
}

func (f *fakeDatabase) GetConversationByChannelExternal(ctx context.Context, channelID int64, externalID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getConvErr != nil {
		return nil, f.getConvErr
	}
	id, ok := f.byThread[threadKey(channelID, externalID)]
	if !ok {
		return nil, nil
	}
	return copyConversation(f.conversations[id]), nil
}

func (f *fakeDatabase) UpdateConversationCategory(ctx context.Context, id int64, category models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateCatErr != nil {
		return f.updateCatErr
	}
	conv, ok := f.conversations[id]
	if !ok {
		return fmt.Errorf("failed to update category: %w", database.ErrConversationNotFound)
	}
	conv.Category = category
	f.categoryUpdates++
	return nil
}

func (f *fakeDatabase) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listConvErr != nil {
		return nil, f.listConvErr
	}
	f.lastConvFilter = &filter

	var out []models.Conversation
	for _, conv := range f.conversations {
		if filter.ChannelID != nil && conv.ChannelID != *filter.ChannelID {
			continue
		}
		if filter.Category != nil && conv.Category != *filter.Category {
			continue
		}
		out = append(out, *conv)
	}
	return out, nil
}

func (f *fakeDatabase) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertMsgErr != nil {
		return nil, false, f.insertMsgErr
	}

	conv, ok := f.conversations[msg.ConversationID]
	if !ok {
		return nil, false, fmt.Errorf("failed to load conversation: %w", database.ErrConversationNotFound)
	}

	if msg.ExternalMessageID != nil {
		if id, dup := f.byExternalMsg[externalMsgKey(msg.ConversationID, *msg.ExternalMessageID)]; dup {
			return copyMessage(f.messages[id]), false, nil
		}
	}

	f.nextMsgID++
	stored := copyMessage(msg)
	stored.ID = f.nextMsgID
	if stored.MessageType == "" {
		stored.MessageType = models.DefaultMessageType
	}
	stored.Timestamp = stored.Timestamp.UTC()
	stored.CreatedAt = time.Now().UTC()

	f.messages[stored.ID] = stored
	if stored.ExternalMessageID != nil {
		f.byExternalMsg[externalMsgKey(stored.ConversationID, *stored.ExternalMessageID)] = stored.ID
	}

	if stored.Timestamp.After(conv.UpdatedAt) {
		conv.UpdatedAt = stored.Timestamp
	}

	return copyMessage(stored), true, nil
}

func (f *fakeDatabase) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyMessage(f.messages[id]), nil
}

func (f *fakeDatabase) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastListLimit = limit
	f.lastListOffset = offset

	var out []models.Message
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (f *fakeDatabase) MarkMessageRead(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markReadErr != nil {
		return f.markReadErr
	}
	msg, ok := f.messages[id]
	if !ok {
		return fmt.Errorf("failed to mark message read: %w", database.ErrMessageNotFound)
	}
	msg.IsRead = true
	return nil
}

func (f *fakeDatabase) CountUnreadMessages(ctx context.Context, conversationID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID && msg.Direction == models.DirectionIncoming && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeDatabase) CountTotalUnreadMessages(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, msg := range f.messages {
		if msg.Direction == models.DirectionIncoming && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeDatabase) conversationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

func (f *fakeDatabase) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// fakeHistoryStore collects audit writes for assertions.
type fakeHistoryStore struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	filter  *models.HistoryFilter

	insertErr error
	listErr   error
	statsErr  error
}

func (f *fakeHistoryStore) InsertHistoryEntry(ctx context.Context, entry *models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeHistoryStore) ListHistoryEntries(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	f.filter = &filter
	out := make([]models.HistoryEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeHistoryStore) GetHistoryStats(ctx context.Context) (*models.HistoryStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statsErr != nil {
		return nil, f.statsErr
	}
	stats := &models.HistoryStats{
		Total:        int64(len(f.entries)),
		ByActionType: make(map[string]int64),
		ByUser:       make(map[string]int64),
	}
	for _, e := range f.entries {
		stats.ByActionType[e.ActionType]++
		stats.ByUser[e.User]++
	}
	return stats, nil
}

func (f *fakeHistoryStore) recorded() []models.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.HistoryEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// fakeChannelStore serves a canned channel catalog.
type fakeChannelStore struct {
	mu       sync.Mutex
	channels []models.Channel
	err      error
}

func (f *fakeChannelStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Channel, len(f.channels))
	copy(out, f.channels)
	return out, nil
}

func (f *fakeChannelStore) setChannels(channels []models.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = channels
}

// fakeEvents records published domain events.
type fakeEvents struct {
	mu          sync.Mutex
	ingested    []ingestedEvent
	categorized []categorizedEvent
}

type ingestedEvent struct {
	message *models.Message
	channel string
}

type categorizedEvent struct {
	conversationID int64
	category       models.Category
}

func (f *fakeEvents) MessageIngested(msg *models.Message, channelName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, ingestedEvent{message: msg, channel: channelName})
}

func (f *fakeEvents) ConversationCategorized(conversationID int64, category models.Category) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categorized = append(f.categorized, categorizedEvent{conversationID: conversationID, category: category})
}

func (f *fakeEvents) ingestedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingested)
}

func (f *fakeEvents) categorizedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.categorized)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testChannels() []models.Channel {
	now := time.Now().UTC()
	return []models.Channel{
		{ID: 1, Name: "whatsapp", DisplayName: "WhatsApp", IsActive: true, CreatedAt: now},
		{ID: 2, Name: "gmail", DisplayName: "Gmail", IsActive: true, CreatedAt: now},
		{ID: 3, Name: "instagram", DisplayName: "Instagram", IsActive: true, CreatedAt: now},
		{ID: 4, Name: "legacy_chat", DisplayName: "Legacy Chat", IsActive: false, CreatedAt: now},
	}
}

type serviceFixture struct {
	db       *fakeDatabase
	registry *ChannelRegistry
	events   *fakeEvents
	service  MessageService
}

func newServiceFixture(t interface {
	Fatalf(format string, args ...interface{})
}) *serviceFixture {
	db := newFakeDatabase()
	store := &fakeChannelStore{channels: testChannels()}
	registry := NewChannelRegistry(store, testLogger())
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	events := &fakeEvents{}
	return &serviceFixture{
		db:       db,
		registry: registry,
		events:   events,
		service:  NewMessageService(db, registry, events, "", testLogger()),
	}
}

func validEvent() *models.MessageEvent {
	return &models.MessageEvent{
		ChannelName:            "whatsapp",
		ExternalConversationID: "5491155550000@c.us",
		ParticipantIdentifier:  "+5491155550000",
		Content:                "Hola, quiero hacer un pedido",
		Direction:              models.DirectionIncoming,
		SenderIdentifier:       "+5491155550000",
		Timestamp:              time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
	}
}

func strPtr(s string) *string {
	return &s
}
