// Command migrate upgrades the schema of an existing database. Fresh
// installs provision the full schema at startup and never need it.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"unibox/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// A schemaUpgrade runs once per database, tracked by version in the
// schema_migrations table.
type schemaUpgrade struct {
	version    int
	title      string
	statements []string
}

// Databases provisioned before the categorization feature lack the category
// column. Fresh installs get it from the initial schema.
var upgrades = []schemaUpgrade{
	{
		version: 2,
		title:   "add conversation categories",
		statements: []string{
			`ALTER TABLE conversations ADD COLUMN category TEXT NOT NULL DEFAULT 'sin_categoria'
				CHECK (category IN ('consulta', 'pedido', 'reclamo', 'sin_categoria'))`,
			"CREATE INDEX IF NOT EXISTS idx_conversations_category ON conversations(category)",
		},
	},
}

func main() {
	dbPath := flag.String("db", "./unibox.db", "Path to the database file")
	flag.Parse()

	if err := run(*dbPath); err != nil {
		log.Fatal(err)
	}
}

func run(dbPath string) error {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, up := range upgrades {
		if err := apply(db, up); err != nil {
			return err
		}
	}

	fmt.Println("Database schema is up to date. You can now restart unibox.")
	return nil
}

func apply(db *sql.DB, up schemaUpgrade) error {
	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", up.version).Scan(&applied); err != nil {
		return fmt.Errorf("failed to check migration %d: %w", up.version, err)
	}
	if applied > 0 {
		fmt.Printf("Migration %d already applied, skipping\n", up.version)
		return nil
	}

	fmt.Printf("Applying migration %d: %s\n", up.version, up.title)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", up.version, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range up.statements {
		fmt.Printf("  step %d/%d\n", i+1, len(up.statements))
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d step %d failed: %w", up.version, i+1, err)
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", up.version); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", up.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", up.version, err)
	}
	committed = true
	fmt.Printf("Migration %d applied successfully\n", up.version)
	return nil
}
