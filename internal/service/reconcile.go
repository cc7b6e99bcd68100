package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lanwatch/internal/domain"
	"lanwatch/internal/repository"
)

// DefaultGraceScans is how many consecutive misses are tolerated before a
// device is reported offline
const DefaultGraceScans = 3

// ReconcileResult is the outcome of one reconciliation cycle
type ReconcileResult struct {
	ScanID       int64
	Devices      []domain.TrackedDevice
	OnlineCount  int
	NewCount     int
	OfflineCount int
}

// ReconcileEngine merges a discovery snapshot into the stored history and
// the previously tracked device set.
type ReconcileEngine struct {
	store      repository.HistoryStore
	graceScans int
	logger     zerolog.Logger
}

// NewReconcileEngine creates a reconcile engine. A graceScans below 1 falls
// back to DefaultGraceScans.
func NewReconcileEngine(store repository.HistoryStore, graceScans int, logger zerolog.Logger) *ReconcileEngine {
	if graceScans < 1 {
		graceScans = DefaultGraceScans
	}
	return &ReconcileEngine{
		store:      store,
		graceScans: graceScans,
		logger:     logger.With().Str("component", "reconcile").Logger(),
	}
}

// GraceScans returns the configured grace period
func (e *ReconcileEngine) GraceScans() int {
	return e.graceScans
}

// Reconcile runs one cycle. previous must be the Devices of the prior
// cycle's result; offline and grace-period devices are carried there. All
// store writes happen in one transaction, so on error nothing is persisted
// and the caller keeps its old snapshot.
func (e *ReconcileEngine) Reconcile(ctx context.Context, discovery *domain.Discovery, previous []domain.TrackedDevice, now time.Time) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := e.store.InCycle(ctx, func(w repository.HistoryWriter) error {
		var err error
		result, err = e.reconcile(ctx, w, discovery, previous, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Int64("scan_id", result.ScanID).
		Int("online", result.OnlineCount).
		Int("new", result.NewCount).
		Int("offline", result.OfflineCount).
		Int("tracked", len(result.Devices)).
		Msg("Reconciled scan")

	return result, nil
}

func (e *ReconcileEngine) reconcile(ctx context.Context, w repository.HistoryWriter, discovery *domain.Discovery, previous []domain.TrackedDevice, now time.Time) (*ReconcileResult, error) {
	current := dedupeObservations(discovery.Devices)

	scanID, err := w.AppendScanEvent(ctx, len(current), discovery.Method, now)
	if err != nil {
		return nil, err
	}

	// Every known device's denominator advances, seen or not
	if err := w.BumpTotalScans(ctx); err != nil {
		return nil, err
	}

	prevByAddr := make(map[string]domain.TrackedDevice, len(previous))
	for _, p := range previous {
		if _, dup := prevByAddr[p.Address]; !dup {
			prevByAddr[p.Address] = p
		}
	}

	result := &ReconcileResult{
		ScanID:  scanID,
		Devices: make([]domain.TrackedDevice, 0, len(current)+len(previous)),
	}
	observed := make([]string, 0, len(current)+len(prevByAddr))
	seen := make(map[string]struct{}, len(current))

	for _, obs := range current {
		tracked, err := e.reconcileOnline(ctx, w, scanID, obs, prevByAddr, now)
		if err != nil {
			return nil, err
		}
		result.Devices = append(result.Devices, tracked)
		observed = append(observed, obs.Address)
		seen[obs.Address] = struct{}{}
	}

	for _, p := range previous {
		if _, ok := seen[p.Address]; ok {
			continue
		}
		seen[p.Address] = struct{}{}

		tracked, err := e.reconcileMissing(ctx, w, scanID, prevByAddr[p.Address], now)
		if err != nil {
			return nil, err
		}
		result.Devices = append(result.Devices, tracked)
		observed = append(observed, p.Address)
	}

	// Devices known to the store but absent from both lists still count a miss
	if err := w.RecordOfflineForUnobserved(ctx, observed, now); err != nil {
		return nil, err
	}

	result.OnlineCount = len(current)
	result.NewCount = domain.CountByStatus(result.Devices, domain.DeviceStatusNew)
	result.OfflineCount = domain.CountByStatus(result.Devices, domain.DeviceStatusOffline)
	return result, nil
}

func (e *ReconcileEngine) reconcileOnline(ctx context.Context, w repository.HistoryWriter, scanID int64, obs domain.Observation, prev map[string]domain.TrackedDevice, now time.Time) (domain.TrackedDevice, error) {
	if err := w.RecordOnlineObservation(ctx, obs, now); err != nil {
		return domain.TrackedDevice{}, err
	}

	history, err := w.GetDevice(ctx, obs.Address)
	if err != nil {
		return domain.TrackedDevice{}, err
	}
	if history == nil {
		return domain.TrackedDevice{}, fmt.Errorf("device %s missing after online observation", obs.Address)
	}

	category, reason := domain.ClassifyDevice(history, true)

	status := domain.DeviceStatusExisting
	if _, ok := prev[obs.Address]; !ok {
		status = domain.DeviceStatusNew
	}

	entry := domain.NewLogEntry(scanID, history, domain.PresenceOnline, category, reason, now)
	if err := w.AppendCategorizationLog(ctx, entry); err != nil {
		return domain.TrackedDevice{}, err
	}

	e.logger.Debug().
		Str("address", obs.Address).
		Str("status", string(status)).
		Str("category", string(category)).
		Str("reason", reason).
		Msg("Device online")

	return domain.TrackedDevice{
		EnrichedDevice: domain.Enrich(history, domain.PresenceOnline, category, reason),
		DeviceStatus:   status,
		MissedScans:    0,
	}, nil
}

func (e *ReconcileEngine) reconcileMissing(ctx context.Context, w repository.HistoryWriter, scanID int64, prev domain.TrackedDevice, now time.Time) (domain.TrackedDevice, error) {
	if err := w.RecordOfflineObservation(ctx, prev.Observation(), now); err != nil {
		return domain.TrackedDevice{}, err
	}

	history, err := w.GetDevice(ctx, prev.Address)
	if err != nil {
		return domain.TrackedDevice{}, err
	}
	if history == nil {
		return domain.TrackedDevice{}, fmt.Errorf("device %s missing after offline observation", prev.Address)
	}

	missed := prev.MissedScans + 1

	if missed < e.graceScans {
		// Within grace: keep last cycle's verdict, refresh the counters, log nothing
		e.logger.Debug().
			Str("address", prev.Address).
			Int("missed_scans", missed).
			Msg("Device missed, within grace period")

		return domain.TrackedDevice{
			EnrichedDevice: domain.Enrich(history, prev.Status, prev.Category, prev.Reason),
			DeviceStatus:   domain.DeviceStatusExisting,
			MissedScans:    missed,
		}, nil
	}

	category, reason := domain.ClassifyDevice(history, false)
	reason = fmt.Sprintf("missed %d scans: %s", missed, reason)

	entry := domain.NewLogEntry(scanID, history, domain.PresenceOffline, category, reason, now)
	if err := w.AppendCategorizationLog(ctx, entry); err != nil {
		return domain.TrackedDevice{}, err
	}

	e.logger.Debug().
		Str("address", prev.Address).
		Int("missed_scans", missed).
		Str("reason", reason).
		Msg("Device offline")

	return domain.TrackedDevice{
		EnrichedDevice: domain.Enrich(history, domain.PresenceOffline, category, reason),
		DeviceStatus:   domain.DeviceStatusOffline,
		MissedScans:    missed,
	}, nil
}

// dedupeObservations drops repeated addresses, keeping the first
func dedupeObservations(in []domain.Observation) []domain.Observation {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Observation, 0, len(in))
	for _, obs := range in {
		if obs.Address == "" {
			continue
		}
		if _, dup := seen[obs.Address]; dup {
			continue
		}
		seen[obs.Address] = struct{}{}
		out = append(out, obs)
	}
	return out
}
