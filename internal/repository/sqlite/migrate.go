package sqlite

import (
	"context"
	"fmt"
	"time"
)

// migration is one ordered schema step. up must be idempotent: it checks the
// live schema before changing it.
type migration struct {
	version int
	name    string
	up      func(ctx context.Context, q querier) error
}

// migrations are applied in order; never reorder or renumber them
var migrations = []migration{
	{version: 1, name: "devices and scans", up: migrateBaseTables},
	{version: 2, name: "device notes", up: migrateNotesColumn},
	{version: 3, name: "online streak", up: migrateConsecutiveOnline},
	{version: 4, name: "categorization log", up: migrateCategorizationLog},
}

// migrate applies every migration newer than the recorded schema version
func (r *Repository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := r.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := r.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (r *Repository) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (r *Repository) applyMigration(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)
	`, m.version, m.name, formatTime(time.Now())); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// ============================================================================
// Steps
// ============================================================================

func migrateBaseTables(ctx context.Context, q querier) error {
	if err := createTableIfNotExists(ctx, q, "devices", `
	CREATE TABLE devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT UNIQUE NOT NULL,
		hardware_id TEXT NOT NULL,
		label TEXT,
		first_seen TEXT NOT NULL,
		last_seen TEXT NOT NULL,
		last_seen_online TEXT,
		total_scans INTEGER NOT NULL DEFAULT 0,
		scans_seen_online INTEGER NOT NULL DEFAULT 0,
		scans_seen_offline INTEGER NOT NULL DEFAULT 0,
		consecutive_offline INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return err
	}

	if err := createTableIfNotExists(ctx, q, "scans", `
	CREATE TABLE scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_time TEXT NOT NULL,
		devices_found INTEGER NOT NULL DEFAULT 0,
		scan_method TEXT
	)`); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_devices_address ON devices(address)`)
	return err
}

func migrateNotesColumn(ctx context.Context, q querier) error {
	return addColumnIfNotExists(ctx, q, "devices", "notes", "TEXT DEFAULT ''")
}

func migrateConsecutiveOnline(ctx context.Context, q querier) error {
	return addColumnIfNotExists(ctx, q, "devices", "consecutive_online", "INTEGER NOT NULL DEFAULT 0")
}

func migrateCategorizationLog(ctx context.Context, q querier) error {
	if err := createTableIfNotExists(ctx, q, "categorization_log", `
	CREATE TABLE categorization_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		total_scans INTEGER NOT NULL,
		scans_seen_online INTEGER NOT NULL,
		scans_seen_offline INTEGER NOT NULL,
		consecutive_online INTEGER NOT NULL,
		consecutive_offline INTEGER NOT NULL,
		appearance_rate REAL NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (scan_id) REFERENCES scans(id)
	)`); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
	CREATE INDEX IF NOT EXISTS idx_categorization_log_scan ON categorization_log(scan_id);
	CREATE INDEX IF NOT EXISTS idx_categorization_log_address ON categorization_log(address);
	`)
	return err
}

// ============================================================================
// Schema Introspection
// ============================================================================

// columnExists reports whether table has a column with the given name
func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	return found, rows.Err()
}

// tableExists reports whether a table is present in sqlite_master
func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?
	`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

// createTableIfNotExists runs ddl only when table is missing from sqlite_master
func createTableIfNotExists(ctx context.Context, q querier, table, ddl string) error {
	exists, err := tableExists(ctx, q, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// addColumnIfNotExists alters table only when the column is missing
func addColumnIfNotExists(ctx context.Context, q querier, table, column, definition string) error {
	exists, err := columnExists(ctx, q, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
