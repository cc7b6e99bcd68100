package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"lanwatch/internal/domain"
	"lanwatch/internal/repository"
)

// Categorization log paging
const (
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

// StateReader exposes the orchestrator's shared state
type StateReader interface {
	Snapshot() Snapshot
}

// DevicesView is the current tracked device list
type DevicesView struct {
	Devices  []domain.TrackedDevice `json:"devices"`
	Count    int                    `json:"count"`
	LastScan *time.Time             `json:"last_scan"`
	Scanning bool                   `json:"scanning"`
}

// KnownDevice is one stored device as reported by Stats
type KnownDevice struct {
	Address         string          `json:"address"`
	Label           string          `json:"label"`
	TotalScans      int             `json:"total_scans"`
	ScansSeenOnline int             `json:"scans_seen_online"`
	AppearanceRate  float64         `json:"appearance_rate"` // percent, one decimal
	Category        domain.Category `json:"category"`
	Reason          string          `json:"reason"`
	Notes           string          `json:"notes"`
}

// StatsView is the aggregate history plus every known device
type StatsView struct {
	domain.Stats
	Devices []KnownDevice `json:"devices"`
}

// NotesResult reports the outcome of a notes update
type NotesResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// QueryService answers read requests and handles notes edits. It never
// runs reconciliation.
type QueryService struct {
	store      repository.HistoryStore
	state      StateReader
	graceScans int
	logger     zerolog.Logger
	now        func() time.Time
}

// NewQueryService creates a query service. graceScans must match the
// engine's so stats only call a device offline once the engine does; below
// 1 it falls back to DefaultGraceScans.
func NewQueryService(store repository.HistoryStore, state StateReader, graceScans int, logger zerolog.Logger) *QueryService {
	if graceScans < 1 {
		graceScans = DefaultGraceScans
	}
	return &QueryService{
		store:      store,
		state:      state,
		graceScans: graceScans,
		logger:     logger.With().Str("component", "query").Logger(),
		now:        time.Now,
	}
}

// Devices returns the current device list and scanning flag
func (s *QueryService) Devices() DevicesView {
	snap := s.state.Snapshot()
	return DevicesView{
		Devices:  snap.Devices,
		Count:    len(snap.Devices),
		LastScan: snap.LastScan,
		Scanning: snap.Scanning,
	}
}

// Stats returns aggregate counts and a per-device summary
func (s *QueryService) Stats(ctx context.Context) (*StatsView, error) {
	stats, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return nil, err
	}

	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	view := &StatsView{Stats: *stats, Devices: make([]KnownDevice, 0, len(devices))}
	for i := range devices {
		d := &devices[i]
		// Misses inside the grace period still count as present
		category, reason := domain.ClassifyDevice(d, d.ConsecutiveOffline < s.graceScans)

		rate := 0.0
		if d.TotalScans > 0 {
			rate = math.Round(d.AppearanceRate()*1000) / 10
		}

		view.Devices = append(view.Devices, KnownDevice{
			Address:         d.Address,
			Label:           d.Label,
			TotalScans:      d.TotalScans,
			ScansSeenOnline: d.ScansSeenOnline,
			AppearanceRate:  rate,
			Category:        category,
			Reason:          reason,
			Notes:           d.Notes,
		})
	}
	return view, nil
}

// KnownDevices returns every stored device, newest sighting first
func (s *QueryService) KnownDevices(ctx context.Context) ([]domain.Device, error) {
	return s.store.ListDevices(ctx)
}

// CategorizationLog returns the newest audit entries. A non-positive limit
// means DefaultLogLimit; anything above MaxLogLimit is capped.
func (s *QueryService) CategorizationLog(ctx context.Context, limit int) ([]domain.CategorizationLogEntry, error) {
	return s.store.ListCategorizationLog(ctx, ClampLogLimit(limit))
}

// ScanHistory returns the newest scan events
func (s *QueryService) ScanHistory(ctx context.Context, limit int) ([]domain.ScanEvent, error) {
	return s.store.ListScanEvents(ctx, ClampLogLimit(limit))
}

// UpdateNotes stores free-text notes for an address. Failures are reported
// in the result, never returned.
func (s *QueryService) UpdateNotes(ctx context.Context, address, notes string) NotesResult {
	if err := s.store.UpdateNotes(ctx, address, notes); err != nil {
		if !errors.Is(err, repository.ErrDeviceNotFound) {
			s.logger.Error().Err(err).Str("address", address).Msg("Error updating notes")
		}
		return NotesResult{Success: false, Message: err.Error()}
	}
	return NotesResult{Success: true, Message: "Notes updated"}
}

// ClampLogLimit applies the default and maximum page sizes
func ClampLogLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLogLimit
	case limit > MaxLogLimit:
		return MaxLogLimit
	default:
		return limit
	}
}
