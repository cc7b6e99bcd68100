package adapter

import (
	"context"
	"errors"
	"strings"

	"lanwatch/internal/domain"
)

// Discovery method labels recorded on every scan event
const (
	MethodNmap     = "nmap"
	MethodARPCache = "arp_cache"
)

// ErrNoDiscovery is returned when every configured discovery source failed
var ErrNoDiscovery = errors.New("no discovery source succeeded")

// Source is one way of finding the devices currently on the local network
type Source interface {
	// Name returns the method label recorded for a successful run
	Name() string

	// Discover returns the devices visible right now. Labels may be left
	// empty; the chain resolves them afterwards.
	Discover(ctx context.Context) ([]domain.Observation, error)
}

// acceptObservation drops entries that can never be a real neighbor:
// incomplete ARP entries, link-local, multicast and broadcast addresses.
func acceptObservation(ip, mac string) bool {
	if ip == "" {
		return false
	}
	if strings.HasPrefix(ip, "169.254.") || strings.HasPrefix(ip, "224.") {
		return false
	}
	mac = strings.ToLower(mac)
	switch {
	case mac == "00:00:00:00:00:00":
		return false
	case mac == "ff:ff:ff:ff:ff:ff":
		return false
	case strings.HasPrefix(mac, "01:00:5e"):
		return false
	}
	return true
}
