package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"lanwatch/internal/domain"
)

// DefaultNmapTimeout bounds a single ping sweep
const DefaultNmapTimeout = 2 * time.Minute

// NmapDiscovery finds live hosts with an nmap ping sweep (-sn)
type NmapDiscovery struct {
	targets    []string
	timeout    time.Duration
	binaryPath string
	localHost  LocalHostFunc
	logger     zerolog.Logger
}

// NmapOption is a functional option for configuring NmapDiscovery
type NmapOption func(*NmapDiscovery)

// WithTargets sets the CIDR ranges or addresses to sweep. Without targets
// the local /24 is used.
func WithTargets(targets []string) NmapOption {
	return func(n *NmapDiscovery) {
		n.targets = targets
	}
}

// WithTimeout sets the timeout for the entire sweep
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapDiscovery) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithBinaryPath points at a specific nmap executable
func WithBinaryPath(path string) NmapOption {
	return func(n *NmapDiscovery) {
		n.binaryPath = path
	}
}

// WithLocalHost overrides how the default target is derived
func WithLocalHost(fn LocalHostFunc) NmapOption {
	return func(n *NmapDiscovery) {
		n.localHost = fn
	}
}

// NewNmapDiscovery creates a new nmap-based discovery source
func NewNmapDiscovery(logger zerolog.Logger, opts ...NmapOption) *NmapDiscovery {
	n := &NmapDiscovery{
		timeout:   DefaultNmapTimeout,
		localHost: DetectLocalHost,
		logger:    logger.With().Str("component", "nmap").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the method label
func (n *NmapDiscovery) Name() string {
	return MethodNmap
}

// Discover runs the sweep and returns every host reported up
func (n *NmapDiscovery) Discover(ctx context.Context) ([]domain.Observation, error) {
	targets, err := n.resolveTargets(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(targets...),
		nmap.WithPingScan(),
	}
	if n.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.binaryPath))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	n.logger.Debug().Strs("targets", targets).Msg("starting ping sweep")
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.logger.Warn().Strs("warnings", *warnings).Msg("nmap reported warnings")
	}

	devices := observationsFromRun(result)
	n.logger.Debug().Int("hosts", len(devices)).Msg("ping sweep complete")
	return devices, nil
}

func (n *NmapDiscovery) resolveTargets(ctx context.Context) ([]string, error) {
	if len(n.targets) > 0 {
		return n.targets, nil
	}
	if n.localHost == nil {
		return nil, fmt.Errorf("no targets configured")
	}
	local, err := n.localHost(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive local network: %w", err)
	}
	return []string{local.Network}, nil
}

// observationsFromRun converts nmap results into observations
func observationsFromRun(result *nmap.Run) []domain.Observation {
	if result == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var devices []domain.Observation

	for _, host := range result.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}

		var ip, mac string
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "ipv4":
				if ip == "" {
					ip = addr.Addr
				}
			case "mac":
				mac = strings.ToLower(addr.Addr)
			}
		}
		if !acceptObservation(ip, mac) {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}

		obs := domain.Observation{Address: ip, HardwareID: mac}
		if len(host.Hostnames) > 0 {
			obs.Label = strings.TrimSuffix(host.Hostnames[0].Name, ".")
		}
		devices = append(devices, obs)
	}

	return devices
}
