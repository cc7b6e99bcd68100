package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"lanwatch/internal/domain"
)

// DefaultARPCachePath is the Linux kernel neighbor table
const DefaultARPCachePath = "/proc/net/arp"

var errEmptyARPCache = errors.New("arp cache has no usable entries")

// ARPCacheDiscovery reads devices from the kernel ARP cache. It only sees
// hosts this machine has talked to recently, so it serves as a fallback.
type ARPCacheDiscovery struct {
	path string
}

// NewARPCacheDiscovery creates a reader for the given cache file.
// An empty path uses DefaultARPCachePath.
func NewARPCacheDiscovery(path string) *ARPCacheDiscovery {
	if path == "" {
		path = DefaultARPCachePath
	}
	return &ARPCacheDiscovery{path: path}
}

// Name returns the method label
func (a *ARPCacheDiscovery) Name() string {
	return MethodARPCache
}

// Discover parses the cache. An empty cache counts as a failure so the
// chain can move on.
func (a *ARPCacheDiscovery) Discover(ctx context.Context) ([]domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open arp cache: %w", err)
	}
	defer f.Close()

	devices, err := parseARPCache(f)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, errEmptyARPCache
	}
	return devices, nil
}

// parseARPCache reads the /proc/net/arp format:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0
func parseARPCache(r io.Reader) ([]domain.Observation, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	var devices []domain.Observation

	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		ip, mac := fields[0], strings.ToLower(fields[3])
		if !acceptObservation(ip, mac) {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		devices = append(devices, domain.Observation{Address: ip, HardwareID: mac})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read arp cache: %w", err)
	}
	return devices, nil
}
