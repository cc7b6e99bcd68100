// Package service implements the scanning core of lanwatch.
//
// # Reconciliation
//
// ReconcileEngine merges one discovery snapshot with the device list from
// the previous cycle. It advances every stored device's scan counter, records
// online and offline observations, classifies each device and writes the
// categorization audit log. A device missing from discovery stays "existing"
// for grace_scans-1 cycles before it is reported "offline". One cycle is one
// store transaction.
//
// # Orchestration
//
// Orchestrator owns the shared state (tracked devices, last and next scan,
// the scanning flag) and runs cycles on a timer or on request. Cycles never
// overlap: requests go through a single-slot queue drained by one worker.
// Each cycle publishes scan_start, then scan_progress and scan_update, or
// scan_error when discovery or the store fails.
//
// # Queries
//
// QueryService serves read-only views (devices, stats, audit log) and the
// notes update path, which bypasses reconciliation entirely.
package service
