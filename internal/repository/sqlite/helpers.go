package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"lanwatch/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ============================================================================
// Timestamp Helpers
// ============================================================================

// timeLayout is fixed-width UTC so stored timestamps sort and compare as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// nullToTimePtr parses a nullable timestamp column
func nullToTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the devices table:
// 1. Add a migration step in migrate.go using addColumnIfNotExists()
// 2. Add field to deviceRow struct (below)
// 3. Update scanArgs() - APPEND to end to match column order
// 4. Update deviceColumns constant - APPEND to end
// 5. Update toDomain() to map new field to domain.Device
// 6. Update relevant tests
//
// CRITICAL: Column order must match between:
// - deviceColumns constant
// - scanArgs() return slice
//
// Same pattern applies to the categorization log.

// ============================================================================
// Device Row Scanner
// ============================================================================

// deviceRow holds all columns from a device query for scanning
type deviceRow struct {
	Address            string
	HardwareID         string
	Label              sql.NullString
	Notes              sql.NullString
	FirstSeen          string
	LastSeen           string
	LastSeenOnline     sql.NullString
	TotalScans         int
	ScansSeenOnline    int
	ScansSeenOffline   int
	ConsecutiveOffline int
	ConsecutiveOnline  int
	CreatedAt          string
	UpdatedAt          string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match deviceColumns order exactly
func (r *deviceRow) scanArgs() []any {
	return []any{
		&r.Address,            // 1
		&r.HardwareID,         // 2
		&r.Label,              // 3
		&r.Notes,              // 4
		&r.FirstSeen,          // 5
		&r.LastSeen,           // 6
		&r.LastSeenOnline,     // 7
		&r.TotalScans,         // 8
		&r.ScansSeenOnline,    // 9
		&r.ScansSeenOffline,   // 10
		&r.ConsecutiveOffline, // 11
		&r.ConsecutiveOnline,  // 12
		&r.CreatedAt,          // 13
		&r.UpdatedAt,          // 14
	}
}

// toDomain converts the scanned row to a domain.Device
func (r *deviceRow) toDomain() (*domain.Device, error) {
	d := &domain.Device{
		Address:            r.Address,
		HardwareID:         r.HardwareID,
		Label:              nullToString(r.Label),
		Notes:              nullToString(r.Notes),
		TotalScans:         r.TotalScans,
		ScansSeenOnline:    r.ScansSeenOnline,
		ScansSeenOffline:   r.ScansSeenOffline,
		ConsecutiveOffline: r.ConsecutiveOffline,
		ConsecutiveOnline:  r.ConsecutiveOnline,
	}

	var err error
	if d.FirstSeen, err = parseTime(r.FirstSeen); err != nil {
		return nil, fmt.Errorf("parse first_seen: %w", err)
	}
	if d.LastSeen, err = parseTime(r.LastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	if d.LastSeenOnline, err = nullToTimePtr(r.LastSeenOnline); err != nil {
		return nil, fmt.Errorf("parse last_seen_online: %w", err)
	}
	if d.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return d, nil
}

// deviceColumns is the SELECT column list for device queries
const deviceColumns = `address, hardware_id, label, notes, first_seen, last_seen,
	last_seen_online, total_scans, scans_seen_online, scans_seen_offline,
	consecutive_offline, consecutive_online, created_at, updated_at`

// ============================================================================
// Categorization Log Row Scanner
// ============================================================================

// logRow holds all columns from a categorization_log query for scanning
type logRow struct {
	ID                 int64
	ScanID             int64
	Address            string
	TotalScans         int
	ScansSeenOnline    int
	ScansSeenOffline   int
	ConsecutiveOnline  int
	ConsecutiveOffline int
	AppearanceRate     float64
	Category           string
	Status             string
	Reason             sql.NullString
	CreatedAt          string
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match logColumns order exactly
func (r *logRow) scanArgs() []any {
	return []any{
		&r.ID,                 // 1
		&r.ScanID,             // 2
		&r.Address,            // 3
		&r.TotalScans,         // 4
		&r.ScansSeenOnline,    // 5
		&r.ScansSeenOffline,   // 6
		&r.ConsecutiveOnline,  // 7
		&r.ConsecutiveOffline, // 8
		&r.AppearanceRate,     // 9
		&r.Category,           // 10
		&r.Status,             // 11
		&r.Reason,             // 12
		&r.CreatedAt,          // 13
	}
}

// toDomain converts the scanned row to a domain.CategorizationLogEntry
func (r *logRow) toDomain() (*domain.CategorizationLogEntry, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &domain.CategorizationLogEntry{
		ID:                 r.ID,
		ScanID:             r.ScanID,
		Address:            r.Address,
		TotalScans:         r.TotalScans,
		ScansSeenOnline:    r.ScansSeenOnline,
		ScansSeenOffline:   r.ScansSeenOffline,
		ConsecutiveOnline:  r.ConsecutiveOnline,
		ConsecutiveOffline: r.ConsecutiveOffline,
		AppearanceRate:     r.AppearanceRate,
		Category:           domain.Category(r.Category),
		Status:             domain.PresenceStatus(r.Status),
		Reason:             nullToString(r.Reason),
		CreatedAt:          createdAt,
	}, nil
}

// logColumns is the SELECT column list for categorization log queries
const logColumns = `id, scan_id, address, total_scans, scans_seen_online, scans_seen_offline,
	consecutive_online, consecutive_offline, appearance_rate, category, status, reason, created_at`

// logInsertColumns is logColumns without the generated id
const logInsertColumns = `scan_id, address, total_scans, scans_seen_online, scans_seen_offline,
	consecutive_online, consecutive_offline, appearance_rate, category, status, reason, created_at`

// ============================================================================
// Write Helpers
// ============================================================================

// logInsertArgs prepares arguments for a categorization_log INSERT
// MUST match logInsertColumns order exactly
func logInsertArgs(e *domain.CategorizationLogEntry) []any {
	return []any{
		e.ScanID,
		e.Address,
		e.TotalScans,
		e.ScansSeenOnline,
		e.ScansSeenOffline,
		e.ConsecutiveOnline,
		e.ConsecutiveOffline,
		e.AppearanceRate,
		string(e.Category),
		string(e.Status),
		stringToNull(e.Reason),
		formatTime(e.CreatedAt),
	}
}
