package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// NewRouter wires every endpoint onto a ServeMux and applies middleware.
// ws serves the WebSocket subscriber endpoint; nil leaves /ws unrouted.
func NewRouter(h *DeviceHandler, ws http.Handler, allowedOrigins []string, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)

	// Devices
	mux.HandleFunc("GET /api/devices", h.ListDevices)
	mux.HandleFunc("POST /api/devices/{address}/notes", h.UpdateNotes)
	mux.HandleFunc("GET /api/devices/{address}/ports", h.GetPorts)

	// History
	mux.HandleFunc("GET /api/database/stats", h.GetStats)
	mux.HandleFunc("GET /api/categorization-log", h.GetCategorizationLog)
	mux.HandleFunc("GET /api/scans", h.ListScans)

	// Scanning
	mux.HandleFunc("POST /api/scan", h.TriggerScan)

	// Export
	mux.HandleFunc("GET /api/export/{format}", h.Export)

	// Real-time updates
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	return Chain(mux,
		Recover(logger),
		CORS(allowedOrigins),
		Logger(logger.With().Str("component", "http").Logger()),
	)
}
