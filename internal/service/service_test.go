package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lanwatch/internal/domain"
	"lanwatch/internal/repository"
	"lanwatch/internal/repository/sqlite"
)

// ============================================================================
// Test Helpers
// ============================================================================

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func discoveryOf(addrs ...string) *domain.Discovery {
	d := &domain.Discovery{Method: "test"}
	for _, a := range addrs {
		d.Devices = append(d.Devices, domain.Observation{
			Address:    a,
			HardwareID: "aa:bb:cc:00:00:" + a[len(a)-1:],
			Label:      "host-" + a,
		})
	}
	return d
}

func findTracked(t *testing.T, devices []domain.TrackedDevice, addr string) domain.TrackedDevice {
	t.Helper()
	for _, d := range devices {
		if d.Address == addr {
			return d
		}
	}
	t.Fatalf("device %s not in result", addr)
	return domain.TrackedDevice{}
}

func assertStoreConsistent(t *testing.T, store repository.HistoryStore) {
	t.Helper()
	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	for _, d := range devices {
		require.Equal(t, d.TotalScans, d.ScansSeenOnline+d.ScansSeenOffline, "counter split for %s", d.Address)
		require.True(t, d.CountersConsistent(), "streaks for %s", d.Address)
	}
}

// recorder is a Publisher that keeps every event
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind()
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// discoveryFunc adapts a function to DiscoverySource
type discoveryFunc func(ctx context.Context) (*domain.Discovery, error)

func (f discoveryFunc) Scan(ctx context.Context) (*domain.Discovery, error) { return f(ctx) }

// failingWriter fails categorization log appends after a number of successes
type failingWriter struct {
	repository.HistoryWriter
	remaining *int
}

func (w failingWriter) AppendCategorizationLog(ctx context.Context, e *domain.CategorizationLogEntry) error {
	if *w.remaining <= 0 {
		return errors.New("disk full")
	}
	*w.remaining--
	return w.HistoryWriter.AppendCategorizationLog(ctx, e)
}

// failingStore wraps a real store and injects write failures mid-cycle
type failingStore struct {
	*sqlite.Repository
	okAppends int
}

func (s *failingStore) InCycle(ctx context.Context, fn func(w repository.HistoryWriter) error) error {
	remaining := s.okAppends
	return s.Repository.InCycle(ctx, func(w repository.HistoryWriter) error {
		return fn(failingWriter{HistoryWriter: w, remaining: &remaining})
	})
}
