package domain

import "time"

// ScanEvent is the immutable record of one reconciliation cycle
type ScanEvent struct {
	ID           int64     `json:"id"`
	ScanTime     time.Time `json:"scan_time"`
	DevicesFound int       `json:"devices_found"`
	Method       string    `json:"scan_method"`
}

// CategorizationLogEntry is an append-only audit record explaining why a
// device received its category in a given cycle.
type CategorizationLogEntry struct {
	ID                 int64          `json:"id"`
	ScanID             int64          `json:"scan_id"`
	Address            string         `json:"address"`
	TotalScans         int            `json:"total_scans"`
	ScansSeenOnline    int            `json:"scans_seen_online"`
	ScansSeenOffline   int            `json:"scans_seen_offline"`
	ConsecutiveOnline  int            `json:"consecutive_online"`
	ConsecutiveOffline int            `json:"consecutive_offline"`
	AppearanceRate     float64        `json:"appearance_rate"`
	Category           Category       `json:"category"`
	Status             PresenceStatus `json:"status"`
	Reason             string         `json:"reason"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewLogEntry snapshots a device's counters at decision time
func NewLogEntry(scanID int64, d *Device, status PresenceStatus, category Category, reason string, now time.Time) *CategorizationLogEntry {
	return &CategorizationLogEntry{
		ScanID:             scanID,
		Address:            d.Address,
		TotalScans:         d.TotalScans,
		ScansSeenOnline:    d.ScansSeenOnline,
		ScansSeenOffline:   d.ScansSeenOffline,
		ConsecutiveOnline:  d.ConsecutiveOnline,
		ConsecutiveOffline: d.ConsecutiveOffline,
		AppearanceRate:     d.AppearanceRate(),
		Category:           category,
		Status:             status,
		Reason:             reason,
		CreatedAt:          now,
	}
}

// Stats summarizes the stored history
type Stats struct {
	TotalDevices int `json:"total_devices"`
	TotalScans   int `json:"total_scans"`
	Active24h    int `json:"active_24h"`
}
