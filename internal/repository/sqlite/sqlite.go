package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lanwatch/internal/domain"
	"lanwatch/internal/repository"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements repository.HistoryStore using SQLite
type Repository struct {
	writer
	db *sql.DB
}

var _ repository.HistoryStore = (*Repository)(nil)

// New opens (or creates) the database at dbPath and applies pending migrations.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{writer: writer{q: db}, db: db}
	if err := repo.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(5000)"
	}
	return "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// InCycle runs fn in one transaction and commits only if fn succeeds
func (r *Repository) InCycle(ctx context.Context, fn func(w repository.HistoryWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&writer{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle: %w", err)
	}
	return nil
}

// Close releases the database handle
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpdateNotes replaces the free-text notes of a device
func (r *Repository) UpdateNotes(ctx context.Context, address, notes string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET notes = ?, updated_at = ? WHERE address = ?
	`, notes, formatTime(time.Now()), address)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrDeviceNotFound, address)
	}
	return nil
}

// ListDevices returns every known device, most recently seen first
func (r *Repository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY last_seen DESC, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []domain.Device{}
	for rows.Next() {
		var row deviceRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// Stats returns aggregate counts. Active devices are those seen online in
// the 24 hours before now.
func (r *Repository) Stats(ctx context.Context, now time.Time) (*domain.Stats, error) {
	stats := &domain.Stats{}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&stats.TotalDevices); err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&stats.TotalScans); err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	cutoff := formatTime(now.Add(-24 * time.Hour))
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM devices WHERE last_seen_online IS NOT NULL AND last_seen_online > ?
	`, cutoff).Scan(&stats.Active24h); err != nil {
		return nil, fmt.Errorf("failed to count active devices: %w", err)
	}

	return stats, nil
}

// ListCategorizationLog returns up to limit audit entries, newest first
func (r *Repository) ListCategorizationLog(ctx context.Context, limit int) ([]domain.CategorizationLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+logColumns+` FROM categorization_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query categorization log: %w", err)
	}
	defer rows.Close()

	entries := []domain.CategorizationLogEntry{}
	for rows.Next() {
		var row logRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categorization log: %w", err)
	}
	return entries, nil
}

// ListScanEvents returns up to limit scan events, newest first
func (r *Repository) ListScanEvents(ctx context.Context, limit int) ([]domain.ScanEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scan_time, devices_found, scan_method FROM scans ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	events := []domain.ScanEvent{}
	for rows.Next() {
		var (
			ev       domain.ScanEvent
			scanTime string
			method   sql.NullString
		)
		if err := rows.Scan(&ev.ID, &scanTime, &ev.DevicesFound, &method); err != nil {
			return nil, fmt.Errorf("failed to scan scan event: %w", err)
		}
		if ev.ScanTime, err = parseTime(scanTime); err != nil {
			return nil, fmt.Errorf("parse scan_time: %w", err)
		}
		ev.Method = nullToString(method)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}
	return events, nil
}

// ============================================================================
// Cycle writer
// ============================================================================

// writer implements repository.HistoryWriter against either the database or
// an open cycle transaction.
type writer struct {
	q querier
}

// GetDevice returns nil, nil when the address is unknown
func (w *writer) GetDevice(ctx context.Context, address string) (*domain.Device, error) {
	var row deviceRow
	err := w.q.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE address = ?`, address).
		Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device %s: %w", address, err)
	}
	return row.toDomain()
}

// BumpTotalScans advances the denominator of every known device
func (w *writer) BumpTotalScans(ctx context.Context) error {
	if _, err := w.q.ExecContext(ctx, `UPDATE devices SET total_scans = total_scans + 1`); err != nil {
		return fmt.Errorf("failed to bump total scans: %w", err)
	}
	return nil
}

// RecordOnlineObservation updates an existing device as seen, or inserts it
// with a single online scan.
func (w *writer) RecordOnlineObservation(ctx context.Context, obs domain.Observation, now time.Time) error {
	ts := formatTime(now)
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO devices (
			address, hardware_id, label, first_seen, last_seen, last_seen_online,
			total_scans, scans_seen_online, scans_seen_offline,
			consecutive_online, consecutive_offline, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, 1, 0, 1, 0, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			hardware_id = excluded.hardware_id,
			label = excluded.label,
			last_seen = excluded.last_seen,
			last_seen_online = excluded.last_seen_online,
			scans_seen_online = scans_seen_online + 1,
			consecutive_online = consecutive_online + 1,
			consecutive_offline = 0,
			updated_at = excluded.updated_at
	`, obs.Address, obs.HardwareID, labelOrUnknown(obs.Label), ts, ts, ts, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to record online observation for %s: %w", obs.Address, err)
	}
	return nil
}

// RecordOfflineObservation marks a device as missed this cycle. An unknown
// address is inserted with a single offline scan so its counters still add up.
func (w *writer) RecordOfflineObservation(ctx context.Context, obs domain.Observation, now time.Time) error {
	ts := formatTime(now)
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO devices (
			address, hardware_id, label, first_seen, last_seen, last_seen_online,
			total_scans, scans_seen_online, scans_seen_offline,
			consecutive_online, consecutive_offline, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, NULL, 1, 0, 1, 0, 1, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			last_seen = excluded.last_seen,
			scans_seen_offline = scans_seen_offline + 1,
			consecutive_offline = consecutive_offline + 1,
			consecutive_online = 0,
			updated_at = excluded.updated_at
	`, obs.Address, obs.HardwareID, labelOrUnknown(obs.Label), ts, ts, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to record offline observation for %s: %w", obs.Address, err)
	}
	return nil
}

// RecordOfflineForUnobserved records an offline scan for every known device
// whose address is not in observed.
func (w *writer) RecordOfflineForUnobserved(ctx context.Context, observed []string, now time.Time) error {
	ts := formatTime(now)
	query := `
		UPDATE devices SET
			last_seen = ?,
			scans_seen_offline = scans_seen_offline + 1,
			consecutive_offline = consecutive_offline + 1,
			consecutive_online = 0,
			updated_at = ?`
	args := []any{ts, ts}

	if len(observed) > 0 {
		query += ` WHERE address NOT IN (` + placeholders(len(observed)) + `)`
		for _, addr := range observed {
			args = append(args, addr)
		}
	}

	if _, err := w.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record unobserved devices: %w", err)
	}
	return nil
}

// AppendScanEvent records one cycle and returns its id
func (w *writer) AppendScanEvent(ctx context.Context, devicesFound int, method string, now time.Time) (int64, error) {
	res, err := w.q.ExecContext(ctx, `
		INSERT INTO scans (scan_time, devices_found, scan_method) VALUES (?, ?, ?)
	`, formatTime(now), devicesFound, stringToNull(method))
	if err != nil {
		return 0, fmt.Errorf("failed to record scan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read scan id: %w", err)
	}
	return id, nil
}

// AppendCategorizationLog appends one audit row
func (w *writer) AppendCategorizationLog(ctx context.Context, entry *domain.CategorizationLogEntry) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO categorization_log (`+logInsertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, logInsertArgs(entry)...)
	if err != nil {
		return fmt.Errorf("failed to append categorization log for %s: %w", entry.Address, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func labelOrUnknown(label string) string {
	if label == "" {
		return domain.UnknownLabel
	}
	return label
}
