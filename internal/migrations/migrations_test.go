package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diskSchema is deliberately distinct from the embedded fallback so tests
// can tell which copy was loaded.
const diskSchema = `CREATE TABLE IF NOT EXISTS channels_from_disk (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);`

func writeDiskSchema(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "migrations")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_initial_schema.sql"), []byte(diskSchema), 0644))
	return dir
}

func overrideMigrationsDir(t *testing.T, dir string) {
	t.Helper()
	old := MigrationsDir
	MigrationsDir = dir
	t.Cleanup(func() { MigrationsDir = old })
}

// chdir moves into dir until the test ends, mirroring testing.T.Chdir
// from newer toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestGetInitialSchema_PrefersDiskCopy(t *testing.T) {
	overrideMigrationsDir(t, writeDiskSchema(t))

	schema, err := GetInitialSchema()
	require.NoError(t, err)
	assert.Contains(t, schema, "channels_from_disk")
}

func TestGetInitialSchema_FallsBackToEmbedded(t *testing.T) {
	overrideMigrationsDir(t, "nonexistent/path")

	schema, err := GetInitialSchema()
	require.NoError(t, err)
	for _, table := range []string{"channels", "conversations", "messages", "history_entries"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestGetInitialSchema_RelativeDir(t *testing.T) {
	dir := writeDiskSchema(t)
	chdir(t, filepath.Dir(dir))
	overrideMigrationsDir(t, "migrations")

	schema, err := GetInitialSchema()
	require.NoError(t, err)
	assert.Contains(t, schema, "channels_from_disk")
}

func TestGetInitialSchema_SearchesParentDirs(t *testing.T) {
	dir := writeDiskSchema(t)
	deep := filepath.Join(filepath.Dir(dir), "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0755))
	chdir(t, deep)
	overrideMigrationsDir(t, "migrations")

	schema, err := GetInitialSchema()
	require.NoError(t, err)
	assert.Contains(t, schema, "channels_from_disk")
}

func TestEmbeddedSchemaContent(t *testing.T) {
	overrideMigrationsDir(t, "nonexistent/path")

	schema, err := GetInitialSchema()
	require.NoError(t, err)

	// Core tables and relations
	assert.Contains(t, schema, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, schema, "channel_id INTEGER NOT NULL REFERENCES channels(id)")
	assert.Contains(t, schema, "conversation_id INTEGER NOT NULL REFERENCES conversations(id)")
	assert.Contains(t, schema, "UNIQUE(channel_id, external_id)")

	// Conversations carry a constrained category and default to uncategorized
	assert.Contains(t, schema, "category TEXT NOT NULL DEFAULT 'sin_categoria'")
	assert.Contains(t, schema, "CHECK (category IN ('consulta', 'pedido', 'reclamo', 'sin_categoria'))")

	// Messages carry direction, read state and provider metadata
	assert.Contains(t, schema, "direction TEXT NOT NULL CHECK (direction IN ('incoming', 'outgoing'))")
	assert.Contains(t, schema, "is_read BOOLEAN NOT NULL DEFAULT FALSE")

	// Dedup index only applies when a provider message id is present
	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_external")
	assert.Contains(t, schema, "WHERE external_message_id IS NOT NULL")

	// Listing and unread indexes
	assert.Contains(t, schema, "idx_messages_conversation_time ON messages(conversation_id, timestamp, id)")
	assert.Contains(t, schema, "idx_messages_conversation_unread ON messages(conversation_id, is_read)")
	assert.Contains(t, schema, "idx_conversations_updated_at ON conversations(updated_at)")

	// Audit log indexes
	assert.Contains(t, schema, "idx_history_created_at ON history_entries(created_at)")
	assert.Contains(t, schema, "idx_history_action_type ON history_entries(action_type)")
}
