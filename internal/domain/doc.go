// Package domain defines the core types of lanwatch.
//
// # Devices
//
// Device is the durable per-address history: identity (address, hardware id,
// label), user notes, timestamps and the presence counters maintained by the
// reconciliation engine. After every completed cycle the online and offline
// counts add up to TotalScans, and at most one of the two streak counters is
// non-zero.
//
// EnrichedDevice is what a cycle reports about a device: the stored counters
// plus the derived category and reason. TrackedDevice wraps it with the
// transient DeviceStatus and MissedScans fields, which live only in memory.
//
// # Categorization
//
// Classify is the categorization policy. It is a pure function of its input:
//
//   - offline devices are always "offline", with their historical rate
//   - online devices with three or fewer scans are "new"
//   - a streak of 15+ online scans over 20+ total at 40%+ is "regular"
//   - otherwise the appearance rate decides: 65%+ regular, 30%+ occasional,
//     below that rare
//
// # Audit
//
// ScanEvent and CategorizationLogEntry are append-only records written once
// per cycle and once per categorized device respectively.
package domain
