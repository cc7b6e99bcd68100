package adapter

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ApplianceInfo describes a detected Pi-hole
type ApplianceInfo struct {
	Detected        bool   `json:"detected"`
	IP              string `json:"ip"`
	Protocol        string `json:"protocol"`
	AdminURL        string `json:"admin_url"`
	APIURL          string `json:"api_url"`
	Version         string `json:"version"`
	Status          string `json:"status"`
	DomainsBlocked  int64  `json:"domains_blocked"`
	QueriesToday    int64  `json:"queries_today"`
	AdsBlockedToday int64  `json:"ads_blocked_today"`
}

const (
	piholeUserAgent = "LocalNetworkScanner/1.0"
	unknownValue    = "unknown"
	maxProbeBody    = 1 << 20
)

// piholeEndpoints are tried in order against each base URL
var piholeEndpoints = []string{
	"/admin/api.php",
	"/admin/api.php?summary",
	"/admin/api.php?status",
	"/api/stats",
	"/api/summary",
	"/admin/",
}

// piholeKeys mark a JSON body as coming from the Pi-hole API
var piholeKeys = []string{
	"gravity_last_updated",
	"domains_being_blocked",
	"dns_queries_today",
	"ads_blocked_today",
	"status",
}

var piholeMarkers = []string{"pi-hole", "pihole", "pi.hole"}

// PiholeDetector identifies Pi-hole appliances over HTTP(S)
type PiholeDetector struct {
	client *http.Client
	logger zerolog.Logger
}

// NewPiholeDetector creates a detector. Appliances use self-signed
// certificates, so TLS verification is off.
func NewPiholeDetector(timeout time.Duration, logger zerolog.Logger) *PiholeDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PiholeDetector{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
		logger: logger.With().Str("component", "appliance").Logger(),
	}
}

// Detect checks ip given its open ports. It returns nil unless DNS and a
// web port are open and one of the endpoints looks like a Pi-hole.
func (d *PiholeDetector) Detect(ctx context.Context, ip string, openPorts []int) *ApplianceInfo {
	if !slices.Contains(openPorts, 53) {
		return nil
	}
	if slices.Contains(openPorts, 443) {
		if info := d.detectAt(ctx, "https://"+ip, ip, "https"); info != nil {
			return info
		}
	}
	if slices.Contains(openPorts, 80) {
		if info := d.detectAt(ctx, "http://"+ip, ip, "http"); info != nil {
			return info
		}
	}
	return nil
}

func (d *PiholeDetector) detectAt(ctx context.Context, base, ip, protocol string) *ApplianceInfo {
	for _, endpoint := range piholeEndpoints {
		if ctx.Err() != nil {
			return nil
		}
		url := base + endpoint
		info, err := d.probe(ctx, url)
		if err != nil {
			d.logger.Debug().Err(err).Str("url", url).Msg("pi-hole probe failed")
			continue
		}
		if info == nil {
			continue
		}
		info.IP = ip
		info.Protocol = protocol
		info.AdminURL = base + "/admin"
		info.APIURL = url
		d.logger.Info().Str("address", ip).Str("url", url).Msg("pi-hole detected")
		return info
	}
	return nil
}

// probe returns a partially filled info when url answers like a Pi-hole
func (d *PiholeDetector) probe(ctx context.Context, url string) (*ApplianceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", piholeUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, err
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "application/json"):
		return parsePiholeJSON(body), nil
	case strings.Contains(contentType, "text/html"):
		return parsePiholeHTML(body), nil
	}
	return nil, nil
}

func parsePiholeJSON(body []byte) *ApplianceInfo {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	matched := false
	for _, key := range piholeKeys {
		if _, ok := data[key]; ok {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}
	return &ApplianceInfo{
		Detected:        true,
		Version:         stringField(data, "version"),
		Status:          stringField(data, "status"),
		DomainsBlocked:  intField(data, "domains_being_blocked"),
		QueriesToday:    intField(data, "dns_queries_today"),
		AdsBlockedToday: intField(data, "ads_blocked_today"),
	}
}

func parsePiholeHTML(body []byte) *ApplianceInfo {
	text := strings.ToLower(string(body))
	for _, marker := range piholeMarkers {
		if strings.Contains(text, marker) {
			return &ApplianceInfo{Detected: true, Version: unknownValue, Status: unknownValue}
		}
	}
	return nil
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return unknownValue
}

// intField accepts both raw numbers and the formatted strings ("1,234")
// older API versions return.
func intField(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.ReplaceAll(v, ",", ""), 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}
