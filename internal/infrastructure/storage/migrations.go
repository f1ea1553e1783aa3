package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_code_links_table",
		Up:      migration002AddCodeLinksTable,
	},
	{
		Version: 3,
		Name:    "add_processing_runs_table",
		Up:      migration003AddProcessingRunsTable,
	},
	{
		Version: 4,
		Name:    "add_run_documents_table",
		Up:      migration004AddRunDocumentsTable,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	// Ensure migrations table exists
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// Run pending migrations
	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue // Already applied
		}

		s.logger.Info("Running migration", "version", migration.Version, "name", migration.Name)

		// Run migration in transaction
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		// Execute migration
		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		// Record migration
		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		// Commit
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		s.logger.Debug("Migration complete", "version", migration.Version)
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

// migration001InitialSchema creates the submission and price tables.
// Amounts are stored as decimal strings so they round-trip exactly.
func migration001InitialSchema(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS invoice_submissions (
			fingerprint TEXT PRIMARY KEY,
			supplier_id TEXT NOT NULL DEFAULT '',
			supplier_name TEXT NOT NULL DEFAULT '',
			invoice_number TEXT NOT NULL DEFAULT '',
			invoice_date TIMESTAMP,
			currency TEXT NOT NULL DEFAULT 'EUR',
			declared_net TEXT NOT NULL,
			line_count INTEGER NOT NULL DEFAULT 0,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			duplicate_count INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_invoice_submissions_supplier
		 ON invoice_submissions(supplier_id, invoice_number)`,

		`CREATE INDEX IF NOT EXISTS idx_invoice_submissions_last_seen
		 ON invoice_submissions(last_seen_at DESC)`,

		`CREATE TABLE IF NOT EXISTS price_observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			code TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			supplier_id TEXT NOT NULL DEFAULT '',
			line_position INTEGER NOT NULL,
			quantity TEXT NOT NULL,
			unit_price TEXT NOT NULL,
			price TEXT NOT NULL,
			price_unit TEXT NOT NULL,
			observed_at TIMESTAMP NOT NULL,
			FOREIGN KEY (fingerprint) REFERENCES invoice_submissions(fingerprint)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_price_observations_code
		 ON price_observations(code, price_unit, observed_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_price_observations_fingerprint
		 ON price_observations(fingerprint)`,
	})
}

// migration002AddCodeLinksTable creates the confirmed link history the
// keyword index is rebuilt from.
func migration002AddCodeLinksTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS code_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			supplier_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			code TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'api',
			confirmed_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_code_links_code
		 ON code_links(code)`,
	})
}

// migration003AddProcessingRunsTable creates the processing_runs table
func migration003AddProcessingRunsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS processing_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			documents INTEGER DEFAULT 0,
			recorded INTEGER DEFAULT 0,
			duplicates INTEGER DEFAULT 0,
			unbalanced INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			status TEXT DEFAULT 'running'
		)`,

		`CREATE INDEX IF NOT EXISTS idx_processing_runs_started
		 ON processing_runs(started_at DESC)`,
	})
}

// migration004AddRunDocumentsTable creates the per-document outcome log
func migration004AddRunDocumentsTable(tx *sql.Tx) error {
	return execAll(tx, []string{
		`CREATE TABLE IF NOT EXISTS run_documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			fingerprint TEXT,
			status TEXT NOT NULL,
			error TEXT,
			duration_ms INTEGER,
			timestamp TIMESTAMP NOT NULL,
			FOREIGN KEY (run_id) REFERENCES processing_runs(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_run_documents_run_id
		 ON run_documents(run_id)`,
	})
}
