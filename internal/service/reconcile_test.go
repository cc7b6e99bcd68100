package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanwatch/internal/domain"
)

// chain runs consecutive cycles the way the orchestrator does, feeding each
// result back in as previous.
type chain struct {
	t        *testing.T
	engine   *ReconcileEngine
	previous []domain.TrackedDevice
	step     int
}

func newChain(t *testing.T, engine *ReconcileEngine) *chain {
	return &chain{t: t, engine: engine}
}

func (c *chain) run(addrs ...string) *ReconcileResult {
	c.t.Helper()
	c.step++
	res, err := c.engine.Reconcile(context.Background(), discoveryOf(addrs...), c.previous, t0.Add(time.Duration(c.step)*time.Minute))
	require.NoError(c.t, err)
	c.previous = res.Devices
	return res
}

// forget simulates a restart: the in-memory snapshot is lost
func (c *chain) forget() {
	c.previous = nil
}

func TestReconcileFreshDevice(t *testing.T) {
	store := newTestStore(t)
	engine := NewReconcileEngine(store, 3, zerolog.Nop())

	res := newChain(t, engine).run("10.0.0.5")

	require.Len(t, res.Devices, 1)
	d := res.Devices[0]
	assert.Equal(t, "10.0.0.5", d.Address)
	assert.Equal(t, domain.DeviceStatusNew, d.DeviceStatus)
	assert.Equal(t, domain.CategoryNew, d.Category)
	assert.Equal(t, domain.PresenceOnline, d.Status)
	assert.Equal(t, 1, d.TotalScans)
	assert.Equal(t, 1, d.ScansSeenOnline)
	assert.Equal(t, 1.0, d.AppearanceRate)
	assert.Equal(t, 0, d.MissedScans)
	assert.Equal(t, "new device (seen 1 times)", d.Reason)
	assert.Equal(t, 1, res.NewCount)
	assert.Equal(t, 1, res.OnlineCount)

	entries, err := store.ListCategorizationLog(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.ScanID, entries[0].ScanID)
}

func TestReconcileSecondCycleIsExisting(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))

	c.run("10.0.0.5")
	res := c.run("10.0.0.5", "10.0.0.6")

	assert.Equal(t, domain.DeviceStatusExisting, findTracked(t, res.Devices, "10.0.0.5").DeviceStatus)
	assert.Equal(t, domain.DeviceStatusNew, findTracked(t, res.Devices, "10.0.0.6").DeviceStatus)
	assert.Equal(t, 2, findTracked(t, res.Devices, "10.0.0.5").TotalScans)
}

func TestReconcileRegularWithFlaps(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))

	// online 6, missed 2, online 2: total 10, online 8, streak 2
	for i := 0; i < 6; i++ {
		c.run("10.0.0.9")
	}

	res := c.run()
	d := findTracked(t, res.Devices, "10.0.0.9")
	assert.Equal(t, domain.DeviceStatusExisting, d.DeviceStatus)
	assert.Equal(t, 1, d.MissedScans)

	res = c.run()
	d = findTracked(t, res.Devices, "10.0.0.9")
	assert.Equal(t, domain.DeviceStatusExisting, d.DeviceStatus, "still within grace at missed = grace-1")
	assert.Equal(t, 2, d.MissedScans)
	assert.Equal(t, 0, res.OfflineCount)

	c.run("10.0.0.9")
	res = c.run("10.0.0.9")
	d = findTracked(t, res.Devices, "10.0.0.9")
	assert.Equal(t, domain.DeviceStatusExisting, d.DeviceStatus, "a returning device is not new")
	assert.Equal(t, 0, d.MissedScans)
	assert.Equal(t, 10, d.TotalScans)
	assert.Equal(t, 8, d.ScansSeenOnline)
	assert.Equal(t, domain.CategoryRegular, d.Category)
	assert.Equal(t, "regular device (80% appearance)", d.Reason)

	history, err := store.GetDevice(context.Background(), "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, 2, history.ConsecutiveOnline)
	assert.Equal(t, 0, history.ConsecutiveOffline)
	assertStoreConsistent(t, store)
}

func TestReconcileGraceRetainsWithoutLogging(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.run("10.0.0.1", "10.0.0.2")
	}
	before, err := store.ListCategorizationLog(ctx, 1000)
	require.NoError(t, err)

	res := c.run("10.0.0.1")
	d := findTracked(t, res.Devices, "10.0.0.2")
	assert.Equal(t, domain.PresenceOnline, d.Status, "retained device keeps its last verdict")
	assert.Equal(t, domain.CategoryRegular, d.Category)
	assert.Equal(t, 6, d.TotalScans, "counters are refreshed")

	after, err := store.ListCategorizationLog(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1, "only the online device is logged")
	assert.Equal(t, "10.0.0.1", after[0].Address)
}

func TestReconcileOfflineAfterGrace(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))
	ctx := context.Background()

	// Build total 7 / online 2 without tracking the misses in memory
	c.run("10.0.0.2", "10.0.0.254")
	c.forget()
	for i := 0; i < 5; i++ {
		c.run("10.0.0.254")
		c.forget()
	}
	c.run("10.0.0.2", "10.0.0.254")

	res := c.run("10.0.0.254")
	assert.Equal(t, domain.DeviceStatusExisting, findTracked(t, res.Devices, "10.0.0.2").DeviceStatus)
	res = c.run("10.0.0.254")
	assert.Equal(t, domain.DeviceStatusExisting, findTracked(t, res.Devices, "10.0.0.2").DeviceStatus)

	res = c.run("10.0.0.254")
	d := findTracked(t, res.Devices, "10.0.0.2")
	assert.Equal(t, domain.DeviceStatusOffline, d.DeviceStatus)
	assert.Equal(t, domain.PresenceOffline, d.Status)
	assert.Equal(t, domain.CategoryOffline, d.Category)
	assert.Equal(t, 3, d.MissedScans)
	assert.Equal(t, 10, d.TotalScans)
	assert.Equal(t, 2, d.ScansSeenOnline)
	assert.Equal(t, "missed 3 scans: offline (historically 20% appearance)", d.Reason)
	assert.Equal(t, 1, res.OfflineCount)

	// Missing devices are processed after online ones, so this is the newest entry
	entries, err := store.ListCategorizationLog(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	latest := entries[0]
	assert.Equal(t, "10.0.0.2", latest.Address)
	assert.Equal(t, domain.PresenceOffline, latest.Status)
	assert.Equal(t, d.Reason, latest.Reason)
	assert.Equal(t, 3, latest.ConsecutiveOffline)

	// Offline devices stay tracked and keep counting misses
	res = c.run("10.0.0.254")
	d = findTracked(t, res.Devices, "10.0.0.2")
	assert.Equal(t, domain.DeviceStatusOffline, d.DeviceStatus)
	assert.Equal(t, 4, d.MissedScans)

	// and come back as existing
	res = c.run("10.0.0.2", "10.0.0.254")
	d = findTracked(t, res.Devices, "10.0.0.2")
	assert.Equal(t, domain.DeviceStatusExisting, d.DeviceStatus)
	assert.Equal(t, 0, d.MissedScans)
	assertStoreConsistent(t, store)
}

func TestReconcileGraceOfOne(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 1, zerolog.Nop()))

	c.run("10.0.0.1")
	res := c.run()
	assert.Equal(t, domain.DeviceStatusOffline, findTracked(t, res.Devices, "10.0.0.1").DeviceStatus)
}

func TestReconcileNCyclesBumpByN(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))
	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}

	c.run(addrs...)
	const n = 12
	for i := 0; i < n; i++ {
		c.run(addrs...)
	}

	for _, a := range addrs {
		d := findTracked(t, c.previous, a)
		assert.Equal(t, n+1, d.TotalScans)
	}
	assertStoreConsistent(t, store)
}

func TestReconcileStreakPromotion(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))

	// 10 online, 12 untracked misses, then 15 online: total 37, online 25, streak 15
	for i := 0; i < 10; i++ {
		c.run("10.0.0.7", "10.0.0.1")
	}
	c.forget()
	for i := 0; i < 12; i++ {
		c.run("10.0.0.1")
		c.forget()
	}
	var res *ReconcileResult
	for i := 0; i < 14; i++ {
		res = c.run("10.0.0.7", "10.0.0.1")
	}
	d := findTracked(t, res.Devices, "10.0.0.7")
	assert.Equal(t, domain.CategoryRegular, d.Category, "24/36 is regular by rate")

	res = c.run("10.0.0.7", "10.0.0.1")
	d = findTracked(t, res.Devices, "10.0.0.7")
	assert.Equal(t, 37, d.TotalScans)
	assert.Equal(t, 25, d.ScansSeenOnline)
	assert.Equal(t, "regular device (recent streak: 15 scans, 68% historical)", d.Reason)
}

func TestReconcileUntrackedDevicesKeepInvariant(t *testing.T) {
	store := newTestStore(t)
	c := newChain(t, NewReconcileEngine(store, 3, zerolog.Nop()))

	c.run("10.0.0.1", "10.0.0.2")
	c.forget()
	c.run("10.0.0.1")

	history, err := store.GetDevice(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, 2, history.TotalScans)
	assert.Equal(t, 1, history.ScansSeenOffline)
	assertStoreConsistent(t, store)
}

func TestReconcileDuplicateObservations(t *testing.T) {
	store := newTestStore(t)
	engine := NewReconcileEngine(store, 3, zerolog.Nop())

	disc := discoveryOf("10.0.0.1", "10.0.0.1", "10.0.0.2")
	res, err := engine.Reconcile(context.Background(), disc, nil, t0)
	require.NoError(t, err)
	assert.Len(t, res.Devices, 2)
	assert.Equal(t, 2, res.OnlineCount)

	history, err := store.GetDevice(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, history.ScansSeenOnline)
}

func TestReconcileStoreFailureRollsBack(t *testing.T) {
	base := newTestStore(t)
	c := newChain(t, NewReconcileEngine(base, 3, zerolog.Nop()))
	c.run("10.0.0.1", "10.0.0.2")

	store := &failingStore{Repository: base, okAppends: 1}
	engine := NewReconcileEngine(store, 3, zerolog.Nop())
	_, err := engine.Reconcile(context.Background(), discoveryOf("10.0.0.1", "10.0.0.2"), c.previous, t0.Add(time.Hour))
	require.Error(t, err)

	for _, a := range []string{"10.0.0.1", "10.0.0.2"} {
		d, err := base.GetDevice(context.Background(), a)
		require.NoError(t, err)
		assert.Equal(t, 1, d.TotalScans, "partial cycle must not persist")
	}
	stats, err := base.Stats(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalScans)
	assertStoreConsistent(t, base)
}

func TestNewReconcileEngineDefaultsGrace(t *testing.T) {
	engine := NewReconcileEngine(nil, 0, zerolog.Nop())
	assert.Equal(t, DefaultGraceScans, engine.GraceScans())
}
