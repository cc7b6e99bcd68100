package service

import (
	"time"

	"lanwatch/internal/domain"
)

// EventType defines the type of event
type EventType string

const (
	EventScanStart    EventType = "scan_start"
	EventScanProgress EventType = "scan_progress"
	EventScanUpdate   EventType = "scan_update"
	EventScanError    EventType = "scan_error"
	EventInitialState EventType = "initial_state"
)

// Event is anything the orchestrator publishes to subscribers
type Event interface {
	Kind() EventType
}

// MessageEvent carries a human-readable lifecycle message
type MessageEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// Kind implements Event
func (e MessageEvent) Kind() EventType { return e.Type }

// StateEvent carries a full device snapshot
type StateEvent struct {
	Type         EventType              `json:"type"`
	Devices      []domain.TrackedDevice `json:"devices"`
	Count        int                    `json:"count"`
	NewCount     *int                   `json:"new_count,omitempty"`
	OfflineCount *int                   `json:"offline_count,omitempty"`
	Timestamp    *time.Time             `json:"timestamp"`
	NextScan     *time.Time             `json:"next_scan"`
	ScanInterval int                    `json:"scan_interval"`
	Scanning     bool                   `json:"scanning"`
}

// Kind implements Event
func (e StateEvent) Kind() EventType { return e.Type }

// Publisher receives orchestrator events
type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Event)

// Publish implements Publisher
func (f PublisherFunc) Publish(event Event) { f(event) }

// nopPublisher drops everything
type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// NewScanUpdate builds the scan_update event for a completed cycle. Count is
// the number of devices discovered online; Devices also carries retained and
// offline entries.
func NewScanUpdate(s Snapshot) StateEvent {
	newCount := domain.CountByStatus(s.Devices, domain.DeviceStatusNew)
	offlineCount := domain.CountByStatus(s.Devices, domain.DeviceStatusOffline)
	return StateEvent{
		Type:         EventScanUpdate,
		Devices:      nonNil(s.Devices),
		Count:        s.OnlineCount,
		NewCount:     &newCount,
		OfflineCount: &offlineCount,
		Timestamp:    s.LastScan,
		NextScan:     s.NextScan,
		ScanInterval: int(s.Interval / time.Second),
		Scanning:     false,
	}
}

// NewInitialState builds the initial_state event sent to a new subscriber
func NewInitialState(s Snapshot) StateEvent {
	return StateEvent{
		Type:         EventInitialState,
		Devices:      nonNil(s.Devices),
		Count:        len(s.Devices),
		Timestamp:    s.LastScan,
		NextScan:     s.NextScan,
		ScanInterval: int(s.Interval / time.Second),
		Scanning:     s.Scanning,
	}
}

func nonNil(devices []domain.TrackedDevice) []domain.TrackedDevice {
	if devices == nil {
		return []domain.TrackedDevice{}
	}
	return devices
}
