package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lanwatch/internal/adapter"
	"lanwatch/internal/codec"
	"lanwatch/internal/service"
)

// ScanTrigger requests an on-demand cycle
type ScanTrigger interface {
	ScanNow()
}

// PortProber scans a single device for open ports
type PortProber interface {
	Scan(ctx context.Context, ip string, ports ...int) ([]adapter.PortInfo, error)
}

// ApplianceDetector recognizes known appliances from their open ports
type ApplianceDetector interface {
	Detect(ctx context.Context, ip string, openPorts []int) *adapter.ApplianceInfo
}

// DeviceHandler handles the device API
type DeviceHandler struct {
	svc       *service.QueryService
	scanner   ScanTrigger
	ports     PortProber
	appliance ApplianceDetector
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(svc *service.QueryService, scanner ScanTrigger, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{
		svc:     svc,
		scanner: scanner,
		logger:  logger.With().Str("component", "http").Logger(),
		now:     time.Now,
	}
}

// SetPortProber enables the ports endpoint
func (h *DeviceHandler) SetPortProber(p PortProber) {
	h.ports = p
}

// SetApplianceDetector enables appliance detection on the ports endpoint
func (h *DeviceHandler) SetApplianceDetector(d ApplianceDetector) {
	h.appliance = d
}

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Banner describes the API entry points
type Banner struct {
	Message   string `json:"message"`
	WebSocket string `json:"websocket"`
	RestAPI   string `json:"rest_api"`
}

// DevicesResponse is returned by GET /api/devices
type DevicesResponse struct {
	Success bool `json:"success"`
	service.DevicesView
}

// StatsResponse is returned by GET /api/database/stats
type StatsResponse struct {
	Success bool `json:"success"`
	*service.StatsView
}

// LogResponse is returned by GET /api/categorization-log
type LogResponse struct {
	Success bool `json:"success"`
	Entries any  `json:"entries"`
	Count   int  `json:"count"`
}

// ScansResponse is returned by GET /api/scans
type ScansResponse struct {
	Success bool `json:"success"`
	Scans   any  `json:"scans"`
	Count   int  `json:"count"`
}

// NotesRequest is the body of POST /api/devices/{address}/notes
type NotesRequest struct {
	Notes string `json:"notes"`
}

// PortsResponse is returned by GET /api/devices/{address}/ports
type PortsResponse struct {
	Address   string                 `json:"address"`
	Ports     []adapter.PortInfo     `json:"ports"`
	Appliance *adapter.ApplianceInfo `json:"appliance"`
}

// Root returns the API banner
func (h *DeviceHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, Banner{
		Message:   "Local Network Device Control Plane API",
		WebSocket: "/ws",
		RestAPI:   "/api/devices",
	}, http.StatusOK)
}

// ListDevices returns the devices from the latest cycle
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, DevicesResponse{Success: true, DevicesView: h.svc.Devices()}, http.StatusOK)
}

// GetStats returns aggregate history and every known device
func (h *DeviceHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get stats")
		h.writeError(w, "Failed to get stats", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, StatsResponse{Success: true, StatsView: stats}, http.StatusOK)
}

// GetCategorizationLog returns the newest audit entries
func (h *DeviceHandler) GetCategorizationLog(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, "Invalid limit", err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.svc.CategorizationLog(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get categorization log")
		h.writeError(w, "Failed to get categorization log", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, LogResponse{Success: true, Entries: entries, Count: len(entries)}, http.StatusOK)
}

// ListScans returns the newest scan events
func (h *DeviceHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, "Invalid limit", err.Error(), http.StatusBadRequest)
		return
	}

	scans, err := h.svc.ScanHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get scan history")
		h.writeError(w, "Failed to get scan history", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, ScansResponse{Success: true, Scans: scans, Count: len(scans)}, http.StatusOK)
}

// UpdateNotes stores notes for a device. Store failures are reported in
// the body with success=false.
func (h *DeviceHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if address == "" {
		h.writeError(w, "Invalid address", "Address is required", http.StatusBadRequest)
		return
	}

	var req NotesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, h.svc.UpdateNotes(r.Context(), address, req.Notes), http.StatusOK)
}

// GetPorts probes a device for open ports and known appliances
func (h *DeviceHandler) GetPorts(w http.ResponseWriter, r *http.Request) {
	if h.ports == nil {
		h.writeError(w, "Port probing disabled", "", http.StatusServiceUnavailable)
		return
	}

	address := r.PathValue("address")
	if net.ParseIP(address) == nil {
		h.writeError(w, "Invalid address", fmt.Sprintf("%q is not an IP address", address), http.StatusBadRequest)
		return
	}

	requested, err := portsParam(r)
	if err != nil {
		h.writeError(w, "Invalid ports", err.Error(), http.StatusBadRequest)
		return
	}

	open, err := h.ports.Scan(r.Context(), address, requested...)
	if err != nil {
		h.logger.Error().Err(err).Str("address", address).Msg("Port scan failed")
		h.writeError(w, "Port scan failed", err.Error(), http.StatusInternalServerError)
		return
	}
	if open == nil {
		open = []adapter.PortInfo{}
	}

	resp := PortsResponse{Address: address, Ports: open}
	if h.appliance != nil {
		numbers := make([]int, len(open))
		for i, p := range open {
			numbers[i] = p.Port
		}
		resp.Appliance = h.appliance.Detect(r.Context(), address, numbers)
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// TriggerScan queues an on-demand cycle; progress arrives over /ws
func (h *DeviceHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		h.writeError(w, "Scanning not available", "", http.StatusServiceUnavailable)
		return
	}

	h.scanner.ScanNow()
	h.writeJSON(w, map[string]any{
		"success": true,
		"message": "Scan requested",
	}, http.StatusAccepted)
}

// Export writes the stored inventory in the requested format
func (h *DeviceHandler) Export(w http.ResponseWriter, r *http.Request) {
	exporter, err := codec.ForFormat(r.PathValue("format"))
	if err != nil {
		h.writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	devices, err := h.svc.KnownDevices(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list devices for export")
		h.writeError(w, "Failed to export inventory", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=lanwatch-inventory.%s", exporter.Format()))

	if err := exporter.Export(codec.NewInventory(devices, h.now()), w); err != nil {
		// Headers are already sent
		h.logger.Error().Err(err).Str("format", exporter.Format()).Msg("Failed to export inventory")
	}
}

// Helper methods

func (h *DeviceHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON")
	}
}

func (h *DeviceHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return service.DefaultLogLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer: %w", err)
	}
	return service.ClampLogLimit(n), nil
}

var errBadPort = errors.New("port out of range")

// portsParam parses ?ports=22,80,443; absent means the configured list
func portsParam(r *http.Request) ([]int, error) {
	raw := r.URL.Query().Get("ports")
	if raw == "" {
		return nil, nil
	}
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", part, err)
		}
		if !adapter.ValidPort(n) {
			return nil, fmt.Errorf("%w: %d", errBadPort, n)
		}
		ports = append(ports, n)
	}
	return ports, nil
}
