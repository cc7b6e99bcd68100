package repository

import (
	"context"
	"errors"
	"time"

	"lanwatch/internal/domain"
)

// ErrDeviceNotFound is returned when an operation targets an unknown address
var ErrDeviceNotFound = errors.New("device not found")

// HistoryWriter defines the per-cycle operations used by reconciliation.
// Every call is atomic on its own; InCycle groups a whole cycle.
type HistoryWriter interface {
	// GetDevice returns nil, nil when the address has no history
	GetDevice(ctx context.Context, address string) (*domain.Device, error)

	// Counter maintenance
	BumpTotalScans(ctx context.Context) error
	RecordOnlineObservation(ctx context.Context, obs domain.Observation, now time.Time) error
	RecordOfflineObservation(ctx context.Context, obs domain.Observation, now time.Time) error
	RecordOfflineForUnobserved(ctx context.Context, observed []string, now time.Time) error

	// Audit trail
	AppendScanEvent(ctx context.Context, devicesFound int, method string, now time.Time) (int64, error)
	AppendCategorizationLog(ctx context.Context, entry *domain.CategorizationLogEntry) error
}

// HistoryStore defines the full durable device history
type HistoryStore interface {
	HistoryWriter

	// InCycle runs fn inside a single transaction. If fn returns an error
	// nothing it wrote is kept.
	InCycle(ctx context.Context, fn func(w HistoryWriter) error) error

	// User-facing path, never touched by reconciliation
	UpdateNotes(ctx context.Context, address, notes string) error

	// Read operations
	ListDevices(ctx context.Context) ([]domain.Device, error)
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
	ListCategorizationLog(ctx context.Context, limit int) ([]domain.CategorizationLogEntry, error)
	ListScanEvents(ctx context.Context, limit int) ([]domain.ScanEvent, error)

	// Close releases resources
	Close() error
}
