package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lanwatch/internal/domain"
)

// DefaultScanInterval is the scheduled cadence when none is configured
const DefaultScanInterval = 30 * time.Second

// ErrNilDiscovery is returned when a discovery source yields no result and no error
var ErrNilDiscovery = errors.New("discovery returned no result")

// DiscoverySource finds the devices currently on the network
type DiscoverySource interface {
	Scan(ctx context.Context) (*domain.Discovery, error)
}

// Trigger identifies what started a cycle
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Snapshot is a copy of the orchestrator's shared state
type Snapshot struct {
	Devices     []domain.TrackedDevice
	OnlineCount int
	LastScan    *time.Time
	NextScan    *time.Time
	Interval    time.Duration
	Scanning    bool
}

// Orchestrator runs reconciliation cycles on a fixed interval and on demand.
//
// All cycles execute on one worker goroutine fed by a single-slot queue:
// at most one scheduled and one manual request can be pending, and a
// pending scheduled request absorbs a pending manual one. RunCycle also
// holds cycleMu, so callers that bypass the queue are serialized as well.
type Orchestrator struct {
	discovery DiscoverySource
	engine    *ReconcileEngine
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	publisherMu sync.RWMutex
	publisher   Publisher

	cycleMu sync.Mutex

	// mu guards the shared state below
	mu          sync.Mutex
	devices     []domain.TrackedDevice // last cycle's output, also the next cycle's previous
	onlineCount int
	lastScan    *time.Time
	nextScan    *time.Time
	scanning    bool

	queueMu          sync.Mutex
	pendingScheduled bool
	pendingManual    bool
	wake             chan struct{}
	scheduledDone    chan struct{}
}

// NewOrchestrator creates an orchestrator. Events go nowhere until a
// publisher is attached with SetPublisher.
func NewOrchestrator(discovery DiscoverySource, engine *ReconcileEngine, interval time.Duration, logger zerolog.Logger) *Orchestrator {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Orchestrator{
		discovery:     discovery,
		engine:        engine,
		interval:      interval,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
		now:           time.Now,
		publisher:     nopPublisher{},
		devices:       []domain.TrackedDevice{},
		wake:          make(chan struct{}, 1),
		scheduledDone: make(chan struct{}, 1),
	}
}

// SetPublisher attaches the event sink
func (o *Orchestrator) SetPublisher(p Publisher) {
	if p == nil {
		p = nopPublisher{}
	}
	o.publisherMu.Lock()
	o.publisher = p
	o.publisherMu.Unlock()
}

func (o *Orchestrator) publish(event Event) {
	o.publisherMu.RLock()
	p := o.publisher
	o.publisherMu.RUnlock()
	p.Publish(event)
}

// Interval returns the scheduled cadence
func (o *Orchestrator) Interval() time.Duration {
	return o.interval
}

// Snapshot returns a copy of the current state, safe to use without locks
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		Devices:     domain.CopyTracked(o.devices),
		OnlineCount: o.onlineCount,
		LastScan:    copyTime(o.lastScan),
		NextScan:    copyTime(o.nextScan),
		Interval:    o.interval,
		Scanning:    o.scanning,
	}
}

// ScanNow requests an on-demand cycle. It never blocks; repeated requests
// while one is pending collapse into it.
func (o *Orchestrator) ScanNow() {
	o.logger.Info().Msg("Manual scan requested")
	o.enqueue(TriggerManual)
}

// Run drives the schedule until ctx is cancelled. The first scheduled cycle
// starts immediately; each following one starts interval after the previous
// scheduled cycle finished. An in-flight cycle runs to completion before Run
// returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info().Dur("interval", o.interval).Msg("Starting continuous scanner")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.work(ctx)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			o.logger.Info().Msg("Scanner stopped")
			return nil
		case <-timer.C:
			o.enqueue(TriggerScheduled)
		case <-o.scheduledDone:
			timer.Reset(o.interval)
		}
	}
}

// work executes queued cycles one at a time
func (o *Orchestrator) work(ctx context.Context) {
	// Cycles are never cancelled mid-flight
	cycleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		}

		for {
			trigger, ok := o.dequeue()
			if !ok {
				break
			}
			// Failures are logged and published as scan_error by RunCycle
			o.RunCycle(cycleCtx, trigger) //nolint:errcheck
			if trigger == TriggerScheduled {
				select {
				case o.scheduledDone <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (o *Orchestrator) enqueue(trigger Trigger) {
	o.queueMu.Lock()
	switch trigger {
	case TriggerScheduled:
		o.pendingScheduled = true
	default:
		o.pendingManual = true
	}
	o.queueMu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) dequeue() (Trigger, bool) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()

	switch {
	case o.pendingScheduled:
		o.pendingScheduled = false
		o.pendingManual = false
		return TriggerScheduled, true
	case o.pendingManual:
		o.pendingManual = false
		return TriggerManual, true
	default:
		return "", false
	}
}

// RunCycle performs one discovery and reconciliation and publishes its
// lifecycle events. Failures are published as scan_error and returned; the
// shared state is left as it was apart from the scanning flag.
func (o *Orchestrator) RunCycle(ctx context.Context, trigger Trigger) error {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	o.mu.Lock()
	o.scanning = true
	previous := domain.CopyTracked(o.devices)
	o.mu.Unlock()

	startMsg := "Starting network scan..."
	if trigger == TriggerManual {
		startMsg = "Manual scan requested..."
	}
	o.publish(MessageEvent{Type: EventScanStart, Message: startMsg})

	log := o.logger.With().Str("trigger", string(trigger)).Logger()
	log.Info().Msg("Performing network scan")

	discovery, err := o.discovery.Scan(ctx)
	if err == nil && discovery == nil {
		err = ErrNilDiscovery
	}
	if err != nil {
		return o.fail(trigger, fmt.Errorf("discovery: %w", err))
	}

	result, err := o.engine.Reconcile(ctx, discovery, previous, o.now())
	if err != nil {
		return o.fail(trigger, fmt.Errorf("reconcile: %w", err))
	}

	completed := o.now()

	o.mu.Lock()
	o.devices = result.Devices
	o.onlineCount = result.OnlineCount
	o.lastScan = &completed
	if trigger == TriggerScheduled {
		next := completed.Add(o.interval)
		o.nextScan = &next
	}
	o.scanning = false
	snap := o.snapshotLocked()
	o.mu.Unlock()

	log.Info().
		Str("method", discovery.Method).
		Int("online", result.OnlineCount).
		Int("new", result.NewCount).
		Int("offline", result.OfflineCount).
		Msg("Scan complete")

	o.publish(MessageEvent{Type: EventScanProgress, Message: progressMessage(trigger, result)})
	o.publish(NewScanUpdate(snap))

	return nil
}

func (o *Orchestrator) fail(trigger Trigger, err error) error {
	o.mu.Lock()
	o.scanning = false
	o.mu.Unlock()

	o.logger.Error().Err(err).Str("trigger", string(trigger)).Msg("Scan failed")
	o.publish(MessageEvent{Type: EventScanError, Message: fmt.Sprintf("Scan error: %v", err)})
	return err
}

func progressMessage(trigger Trigger, r *ReconcileResult) string {
	if trigger == TriggerManual {
		return fmt.Sprintf("Manual scan complete: %d online, %d new, %d offline",
			r.OnlineCount, r.NewCount, r.OfflineCount)
	}
	return fmt.Sprintf("Scan complete: %d devices online, %d new, %d offline",
		r.OnlineCount, r.NewCount, r.OfflineCount)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
