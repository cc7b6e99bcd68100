package domain

import "time"

// UnknownLabel is used when a device's name could not be resolved
const UnknownLabel = "Unknown"

// LocalHardwareID marks the machine running the scanner
const LocalHardwareID = "local"

// Observation is a single device seen by a discovery source during one cycle
type Observation struct {
	Address    string `json:"address"`
	HardwareID string `json:"hardware_id"`
	Label      string `json:"label"`
}

// Discovery is the result of one discovery run
type Discovery struct {
	// Method names the source that produced the observations (nmap, arp_cache, ...)
	Method  string        `json:"method"`
	Devices []Observation `json:"devices"`
}

// Addresses returns the set of addresses in the discovery
func (d *Discovery) Addresses() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Devices))
	for _, obs := range d.Devices {
		set[obs.Address] = struct{}{}
	}
	return set
}

// Device is the persisted behavioral history of one network address.
// Counters are only changed by reconciliation; Notes is only changed by users.
type Device struct {
	Address        string     `json:"address" yaml:"address"`
	HardwareID     string     `json:"hardware_id" yaml:"hardware_id"`
	Label          string     `json:"label" yaml:"label"`
	Notes          string     `json:"notes" yaml:"notes,omitempty"`
	FirstSeen      time.Time  `json:"first_seen" yaml:"first_seen"`
	LastSeen       time.Time  `json:"last_seen" yaml:"last_seen"`
	LastSeenOnline *time.Time `json:"last_seen_online,omitempty" yaml:"last_seen_online,omitempty"`

	TotalScans         int `json:"total_scans" yaml:"total_scans"`
	ScansSeenOnline    int `json:"scans_seen_online" yaml:"scans_seen_online"`
	ScansSeenOffline   int `json:"scans_seen_offline" yaml:"scans_seen_offline"`
	ConsecutiveOffline int `json:"consecutive_offline" yaml:"consecutive_offline"`
	ConsecutiveOnline  int `json:"consecutive_online" yaml:"consecutive_online"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// AppearanceRate returns the fraction of scans in which the device was online.
// A device with no scans yet counts as fully present.
func (d *Device) AppearanceRate() float64 {
	return AppearanceRate(d.ScansSeenOnline, d.TotalScans)
}

// CountersConsistent reports whether the online/offline split adds up to the
// total and at most one streak is running.
func (d *Device) CountersConsistent() bool {
	if d.ScansSeenOnline+d.ScansSeenOffline != d.TotalScans {
		return false
	}
	return d.ConsecutiveOnline == 0 || d.ConsecutiveOffline == 0
}

// AppearanceRate computes online/total, defined as 1.0 when total is zero
func AppearanceRate(online, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	return float64(online) / float64(total)
}

// PresenceStatus is the raw online/offline tag of a device for a cycle
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// DeviceStatus tags how a device relates to the previous cycle
type DeviceStatus string

const (
	// DeviceStatusNew - address was not in the previous cycle's output
	DeviceStatusNew DeviceStatus = "new"
	// DeviceStatusExisting - address was tracked last cycle (possibly within its grace period)
	DeviceStatusExisting DeviceStatus = "existing"
	// DeviceStatusOffline - address has been missing for at least the grace period
	DeviceStatusOffline DeviceStatus = "offline"
)

// EnrichedDevice is a device entry augmented with derived status, category,
// reason and counters for a given cycle.
type EnrichedDevice struct {
	Address         string         `json:"address" yaml:"address"`
	HardwareID      string         `json:"hardware_id" yaml:"hardware_id"`
	Label           string         `json:"label" yaml:"label"`
	Status          PresenceStatus `json:"status" yaml:"status"`
	Category        Category       `json:"category" yaml:"category"`
	Reason          string         `json:"reason" yaml:"reason"`
	FirstSeen       time.Time      `json:"first_seen" yaml:"first_seen"`
	LastSeen        time.Time      `json:"last_seen" yaml:"last_seen"`
	TotalScans      int            `json:"total_scans" yaml:"total_scans"`
	ScansSeenOnline int            `json:"scans_seen_online" yaml:"scans_seen_online"`
	AppearanceRate  float64        `json:"appearance_rate" yaml:"appearance_rate"`
	Notes           string         `json:"notes" yaml:"notes,omitempty"`
}

// TrackedDevice wraps an enriched record with the in-memory bookkeeping the
// orchestrator carries between cycles. None of these fields are persisted.
type TrackedDevice struct {
	EnrichedDevice `yaml:",inline"`
	DeviceStatus   DeviceStatus `json:"device_status" yaml:"device_status"`
	MissedScans    int          `json:"missed_scans" yaml:"missed_scans"`
}

// Observation converts the tracked record back into the observation used
// when recording an offline miss.
func (t *TrackedDevice) Observation() Observation {
	return Observation{
		Address:    t.Address,
		HardwareID: t.HardwareID,
		Label:      t.Label,
	}
}

// Enrich builds the enriched view of a persisted device
func Enrich(d *Device, status PresenceStatus, category Category, reason string) EnrichedDevice {
	return EnrichedDevice{
		Address:         d.Address,
		HardwareID:      d.HardwareID,
		Label:           d.Label,
		Status:          status,
		Category:        category,
		Reason:          reason,
		FirstSeen:       d.FirstSeen,
		LastSeen:        d.LastSeen,
		TotalScans:      d.TotalScans,
		ScansSeenOnline: d.ScansSeenOnline,
		AppearanceRate:  d.AppearanceRate(),
		Notes:           d.Notes,
	}
}

// CopyTracked returns a deep-enough copy of a tracked device list for
// handing to readers outside the owning lock.
func CopyTracked(devices []TrackedDevice) []TrackedDevice {
	if devices == nil {
		return []TrackedDevice{}
	}
	out := make([]TrackedDevice, len(devices))
	copy(out, devices)
	return out
}

// CountByStatus returns how many tracked devices carry the given status
func CountByStatus(devices []TrackedDevice, status DeviceStatus) int {
	n := 0
	for _, d := range devices {
		if d.DeviceStatus == status {
			n++
		}
	}
	return n
}
