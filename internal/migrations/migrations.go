package migrations

import (
	"os"
	"path/filepath"
)

var (
	// MigrationsDir can be overridden in tests or by the application
	MigrationsDir = "scripts/migrations"
)

// initialSchema mirrors scripts/migrations/001_initial_schema.sql so that a
// fresh database can be provisioned even when the migration files are not
// shipped alongside the binary.
const initialSchema = `CREATE TABLE IF NOT EXISTS channels (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    channel_id INTEGER NOT NULL REFERENCES channels(id),
    external_id TEXT NOT NULL,
    participant_identifier TEXT NOT NULL,
    participant_name TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    category TEXT NOT NULL DEFAULT 'sin_categoria'
        CHECK (category IN ('consulta', 'pedido', 'reclamo', 'sin_categoria')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(channel_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
CREATE INDEX IF NOT EXISTS idx_conversations_category ON conversations(category);
CREATE INDEX IF NOT EXISTS idx_conversations_channel ON conversations(channel_id);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL REFERENCES conversations(id),
    external_message_id TEXT,
    content TEXT NOT NULL,
    message_type TEXT NOT NULL DEFAULT 'text',
    direction TEXT NOT NULL CHECK (direction IN ('incoming', 'outgoing')),
    sender_identifier TEXT NOT NULL,
    sender_name TEXT,
    timestamp DATETIME NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    metadata TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_external
    ON messages(conversation_id, external_message_id)
    WHERE external_message_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_messages_conversation_time ON messages(conversation_id, timestamp, id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_unread ON messages(conversation_id, is_read);

CREATE TABLE IF NOT EXISTS history_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user TEXT NOT NULL,
    action TEXT NOT NULL,
    action_type TEXT NOT NULL,
    details TEXT,
    endpoint TEXT NOT NULL,
    method TEXT NOT NULL,
    client_ip TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_history_created_at ON history_entries(created_at);
CREATE INDEX IF NOT EXISTS idx_history_action_type ON history_entries(action_type);
CREATE INDEX IF NOT EXISTS idx_history_user ON history_entries(user);
`

// GetInitialSchema returns the initial database schema. The migration file on
// disk wins when present so that operators can patch it without rebuilding;
// otherwise the embedded copy is used.
func GetInitialSchema() (string, error) {
	searchPaths := []string{
		filepath.Join(MigrationsDir, "001_initial_schema.sql"),
		filepath.Join("..", "..", MigrationsDir, "001_initial_schema.sql"),
		filepath.Join("..", MigrationsDir, "001_initial_schema.sql"),
	}

	for _, path := range searchPaths {
		schemaContent, err := os.ReadFile(path)
		if err == nil {
			return string(schemaContent), nil
		}
	}

	return initialSchema, nil
}
