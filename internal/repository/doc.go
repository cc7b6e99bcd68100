// Package repository defines the data access interfaces for lanwatch.
//
// HistoryStore owns every persisted row: devices, scan events and the
// categorization audit log. The reconciliation engine only ever sees the
// narrower HistoryWriter, handed to it inside InCycle so one scan cycle
// commits as a unit.
//
// # SQLite Implementation
//
// The sqlite subpackage implements HistoryStore on SQLite in WAL mode.
// Schema changes are applied by an ordered list of versioned migrations
// recorded in schema_migrations; each step inspects the live schema before
// altering it, so running the list twice is harmless.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
