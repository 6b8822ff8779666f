package integration_test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"unibox/internal/database"
	"unibox/internal/events"
	"unibox/internal/models"
	"unibox/internal/service"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EnvironmentOptions configures a test environment.
type EnvironmentOptions struct {
	// EncryptionSecret enables at-rest encryption when non-empty.
	EncryptionSecret string
	// HistoryEnabled wires the audit log in recording mode.
	HistoryEnabled bool
	// OperatorIdentity overrides the sender recorded on operator replies.
	OperatorIdentity string
	// EventStream starts the WebSocket fanout hub behind an HTTP test server.
	EventStream bool
	// SeedChannels provisions channels beyond the default catalog.
	SeedChannels []models.SeedChannel
}

// TestEnvironment wires the real storage and service layers together the way
// the server binary does, against a throwaway SQLite file. Tests drive the
// service interfaces directly; there are no mocks anywhere in the stack.
type TestEnvironment struct {
	t    *testing.T
	name string

	dbPath    string
	db        *database.Database
	registry  *service.ChannelRegistry
	messages  service.MessageService
	analytics service.AnalyticsService
	history   service.HistoryService

	hub       *events.Hub
	hubServer *httptest.Server
	hubCancel context.CancelFunc

	logger   *logrus.Logger
	fixtures *TestFixtures

	cleanups []func()
}

// NewTestEnvironment creates an environment with history recording on and no
// encryption or event stream.
func NewTestEnvironment(t *testing.T, name string) *TestEnvironment {
	return NewTestEnvironmentWithOptions(t, name, &EnvironmentOptions{
		HistoryEnabled: true,
	})
}

// NewTestEnvironmentWithOptions creates a fully wired environment. Callers
// must defer Cleanup.
func NewTestEnvironmentWithOptions(t *testing.T, name string, opts *EnvironmentOptions) *TestEnvironment {
	t.Helper()

	if opts == nil {
		opts = &EnvironmentOptions{HistoryEnabled: true}
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &TestEnvironment{
		t:        t,
		name:     fmt.Sprintf("%s_%d", name, time.Now().UnixNano()),
		logger:   logger,
		fixtures: NewTestFixtures(),
	}

	env.dbPath = filepath.Join(t.TempDir(), "unibox-integration.db")
	db, dbCleanup := NewTestDatabase(t, &TestDatabaseOptions{
		Path:             env.dbPath,
		EncryptionSecret: opts.EncryptionSecret,
		SeedChannels:     opts.SeedChannels,
	})
	env.db = db
	env.cleanups = append(env.cleanups, dbCleanup)

	env.registry = service.NewChannelRegistry(db, logger)
	if err := env.registry.Load(context.Background()); err != nil {
		env.Cleanup()
		t.Fatalf("Failed to load channel catalog: %v", err)
	}

	var publisher service.EventPublisher
	if opts.EventStream {
		env.hub = events.NewHub(16, logger)
		hubCtx, cancel := context.WithCancel(context.Background())
		env.hubCancel = cancel
		go env.hub.Run(hubCtx)
		env.hubServer = httptest.NewServer(env.hub)
		env.cleanups = append(env.cleanups, func() {
			env.hubServer.Close()
			cancel()
		})
		publisher = env.hub
	}

	env.messages = service.NewMessageService(db, env.registry, publisher, opts.OperatorIdentity, logger)
	env.analytics = service.NewAnalyticsService(db, logger)
	env.history = service.NewHistoryService(db, opts.HistoryEnabled, logger)

	return env
}

// Cleanup tears the environment down in reverse construction order.
func (env *TestEnvironment) Cleanup() {
	for i := len(env.cleanups) - 1; i >= 0; i-- {
		env.cleanups[i]()
	}
	env.cleanups = nil
}

// MustIngest submits an event and fails the test unless it stores a new
// message.
func (env *TestEnvironment) MustIngest(event models.MessageEvent) *models.Message {
	env.t.Helper()

	msg, created, err := env.messages.SubmitMessage(context.Background(), &event)
	if err != nil {
		env.t.Fatalf("Failed to ingest event for %s/%s: %v", event.ChannelName, event.ExternalConversationID, err)
	}
	if !created {
		env.t.Fatalf("Event for %s/%s was deduplicated, expected a new message", event.ChannelName, event.ExternalConversationID)
	}
	return msg
}

// PopulateWithFixtures ingests every fixture event and returns the stored
// messages keyed by fixture name.
func (env *TestEnvironment) PopulateWithFixtures() map[string]*models.Message {
	env.t.Helper()

	stored := make(map[string]*models.Message)
	for name, event := range env.fixtures.Events() {
		stored[name] = env.MustIngest(event)
	}
	return stored
}

// DialEventStream connects a WebSocket client to the fanout hub and waits for
// the hub to register it, so frames published afterwards are guaranteed to
// reach the connection.
func (env *TestEnvironment) DialEventStream() (*websocket.Conn, func()) {
	env.t.Helper()

	if env.hubServer == nil {
		env.t.Fatal("Event stream is not enabled for this environment")
	}

	before := env.hub.ClientCount()
	wsURL := "ws" + strings.TrimPrefix(env.hubServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		env.t.Fatalf("Failed to dial event stream: %v", err)
	}

	if !env.WaitForCondition(func() bool {
		return env.hub.ClientCount() > before
	}, 2*time.Second) {
		conn.Close()
		env.t.Fatal("Event stream client was not registered in time")
	}

	return conn, func() { conn.Close() }
}

// WaitForCondition polls until the condition holds or the timeout elapses.
func (env *TestEnvironment) WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}
