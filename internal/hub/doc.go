// Package hub broadcasts scan events to WebSocket subscribers.
//
// Every subscriber gets initial_state on connect, then every event the
// orchestrator publishes, in order. A subscriber that cannot take a message
// (closed, or its buffer is full) is dropped after the broadcast finishes;
// the others are unaffected. Subscribers may send {"type":"scan_now"} to
// request an immediate scan.
package hub
