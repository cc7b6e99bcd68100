package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	psnet "github.com/shirou/gopsutil/v4/net"

	"lanwatch/internal/domain"
)

// LocalSubnetBits is the prefix length assumed for the local network
const LocalSubnetBits = 24

var errNoLocalInterface = errors.New("no up, non-loopback IPv4 interface")

// LocalHost describes the machine running the scanner
type LocalHost struct {
	Address    string `json:"address"`
	Interface  string `json:"interface"`
	HardwareID string `json:"hardware_id"`
	Hostname   string `json:"hostname"`
	// Network is the /24 containing Address, used as the default scan target
	Network string `json:"network"`
}

// Observation returns the entry that stands for this machine in every
// discovery result.
func (l *LocalHost) Observation() domain.Observation {
	return domain.Observation{
		Address:    l.Address,
		HardwareID: domain.LocalHardwareID,
		Label:      fmt.Sprintf("%s (This Device)", l.Hostname),
	}
}

// LocalHostFunc resolves the local host on demand
type LocalHostFunc func(ctx context.Context) (*LocalHost, error)

// DetectLocalHost inspects the interfaces with gopsutil and returns the
// first up, non-loopback IPv4 address.
func DetectLocalHost(ctx context.Context) (*LocalHost, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	hostname := ""
	if info, err := host.InfoWithContext(ctx); err == nil {
		hostname = info.Hostname
	}
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	return selectLocalHost(ifaces, hostname)
}

func selectLocalHost(ifaces psnet.InterfaceStatList, hostname string) (*LocalHost, error) {
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			addr, ok := parseInterfaceAddr(a.Addr)
			if !ok || !addr.Is4() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
				continue
			}
			network, err := addr.Prefix(LocalSubnetBits)
			if err != nil {
				continue
			}
			return &LocalHost{
				Address:    addr.String(),
				Interface:  iface.Name,
				HardwareID: strings.ToLower(iface.HardwareAddr),
				Hostname:   hostname,
				Network:    network.String(),
			}, nil
		}
	}
	return nil, errNoLocalInterface
}

// parseInterfaceAddr accepts both "192.168.1.5/24" and a bare address
func parseInterfaceAddr(s string) (netip.Addr, bool) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Addr(), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
