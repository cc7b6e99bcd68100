// Package handler implements the HTTP API for lanwatch.
//
// DeviceHandler serves the read side (current devices, stats, audit log,
// scan history, inventory export), notes edits, on-demand port probing and
// scan requests. The WebSocket endpoint is served by the hub package and
// mounted at /ws by NewRouter.
//
// # Response Format
//
// Success responses return JSON with a "success" flag where the endpoint
// has one. Error responses return JSON with {error, details} structure.
//
// # Middleware
//
// Recover, CORS and Logger wrap every route. Logger tags each request with
// an X-Request-ID, reusing the client's header when present.
package handler
