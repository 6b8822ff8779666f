package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"unibox/internal/database"
	"unibox/internal/models"
)

// TestDatabaseOptions configures test database creation
type TestDatabaseOptions struct {
	Path             string
	EncryptionSecret string
	SeedChannels     []models.SeedChannel
}

// NewTestDatabase creates a file-backed SQLite database for testing. The
// schema comes from migrations.GetInitialSchema, which falls back to the
// embedded copy when the test binary does not run from the repository root,
// so no migration path juggling is needed here.
//
// When EncryptionSecret is set, at-rest encryption is enabled for the whole
// lifetime of the database. The encryption switch is read from the
// environment on every query, not just at open time, so the variables stay
// set until the returned cleanup runs.
func NewTestDatabase(t *testing.T, opts *TestDatabaseOptions) (*database.Database, func()) {
	t.Helper()

	if opts == nil {
		opts = &TestDatabaseOptions{}
	}

	dbPath := opts.Path
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "unibox-test.db")
	}

	var restoreEnv func()
	if opts.EncryptionSecret != "" {
		restoreEnv = setEncryptionEnv(opts.EncryptionSecret)
	}

	db, err := database.New(dbPath)
	if err != nil {
		if restoreEnv != nil {
			restoreEnv()
		}
		t.Fatalf("Failed to create test database: %v", err)
	}

	if len(opts.SeedChannels) > 0 {
		if err := db.SeedChannels(context.Background(), opts.SeedChannels); err != nil {
			t.Fatalf("Failed to seed extra channels: %v", err)
		}
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
		if restoreEnv != nil {
			restoreEnv()
		}
	}

	return db, cleanup
}

// setEncryptionEnv turns on at-rest encryption and returns a function that
// restores the previous environment.
func setEncryptionEnv(secret string) func() {
	oldEnabled, hadEnabled := os.LookupEnv("UNIBOX_ENABLE_ENCRYPTION")
	oldSecret, hadSecret := os.LookupEnv("UNIBOX_ENCRYPTION_SECRET")

	_ = os.Setenv("UNIBOX_ENABLE_ENCRYPTION", "true")
	_ = os.Setenv("UNIBOX_ENCRYPTION_SECRET", secret)

	return func() {
		if hadEnabled {
			_ = os.Setenv("UNIBOX_ENABLE_ENCRYPTION", oldEnabled)
		} else {
			_ = os.Unsetenv("UNIBOX_ENABLE_ENCRYPTION")
		}
		if hadSecret {
			_ = os.Setenv("UNIBOX_ENCRYPTION_SECRET", oldSecret)
		} else {
			_ = os.Unsetenv("UNIBOX_ENCRYPTION_SECRET")
		}
	}
}

// OpenRawDatabase opens a second connection to a test database file, outside
// the storage layer, so tests can inspect stored bytes or plant rows the
// public API cannot produce.
func OpenRawDatabase(t *testing.T, dbPath string) *sql.DB {
	t.Helper()

	raw, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("Failed to open raw database connection: %v", err)
	}
	if err := raw.Ping(); err != nil {
		t.Fatalf("Failed to ping raw database connection: %v", err)
	}
	return raw
}
