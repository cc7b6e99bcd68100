package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// PortState classifies a single probe
type PortState string

const (
	PortOpen     PortState = "open"
	PortClosed   PortState = "closed"
	PortFiltered PortState = "filtered"
	PortError    PortState = "error"
)

// PortInfo describes an open port on a device
type PortInfo struct {
	Port    int       `json:"port"`
	Service string    `json:"service"`
	State   PortState `json:"state"`
	// Fingerprint is the SSH host key fingerprint, when one was captured
	Fingerprint string `json:"fingerprint,omitempty"`
}

// PortScannerConfig holds configuration for the port scanner
type PortScannerConfig struct {
	// Ports probed when Scan is called without an explicit list
	Ports []int
	// Timeout for individual connection attempts
	Timeout time.Duration
	// Retries after a timeout or unexpected error; refusals are final
	Retries int
	// Workers limits parallel probes
	Workers int
	// SSHFingerprint enables host key capture on open port 22
	SSHFingerprint bool
}

// DefaultPortScannerConfig returns the defaults for scanning a single device
func DefaultPortScannerConfig() PortScannerConfig {
	return PortScannerConfig{
		Ports:          slices.Clone(DefaultPorts),
		Timeout:        2 * time.Second,
		Retries:        1,
		Workers:        20,
		SSHFingerprint: true,
	}
}

// FullRangeConfig returns settings suited to sweeping all 65535 ports
func FullRangeConfig() PortScannerConfig {
	return PortScannerConfig{
		Ports:   AllPorts(),
		Timeout: 300 * time.Millisecond,
		Retries: 0,
		Workers: 100,
	}
}

// AllPorts returns 1..65535
func AllPorts() []int {
	ports := make([]int, 0, 65535)
	for p := 1; p <= 65535; p++ {
		ports = append(ports, p)
	}
	return ports
}

// PortScanner probes TCP ports on one device
type PortScanner struct {
	config PortScannerConfig
	logger zerolog.Logger
	dialer net.Dialer
}

// NewPortScanner creates a scanner; zero config fields take the defaults
func NewPortScanner(config PortScannerConfig, logger zerolog.Logger) *PortScanner {
	defaults := DefaultPortScannerConfig()
	if len(config.Ports) == 0 {
		config.Ports = defaults.Ports
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	return &PortScanner{
		config: config,
		logger: logger.With().Str("component", "portprobe").Logger(),
		dialer: net.Dialer{Timeout: config.Timeout},
	}
}

// Scan probes ports on ip (the configured list when none are given) and
// returns the open ones sorted by port number.
func (p *PortScanner) Scan(ctx context.Context, ip string, ports ...int) ([]PortInfo, error) {
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("invalid address %q", ip)
	}
	if len(ports) == 0 {
		ports = p.config.Ports
	}

	results := make([]PortState, len(ports))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, port := range ports {
		if !ValidPort(port) {
			results[i] = PortError
			continue
		}
		g.Go(func() error {
			results[i] = p.Probe(gctx, ip, port)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var open []PortInfo
	for i, state := range results {
		if state != PortOpen {
			continue
		}
		open = append(open, PortInfo{
			Port:    ports[i],
			Service: ServiceName(ports[i]),
			State:   PortOpen,
		})
	}
	slices.SortFunc(open, func(a, b PortInfo) int { return a.Port - b.Port })

	if p.config.SSHFingerprint {
		for i := range open {
			if open[i].Port != 22 {
				continue
			}
			fp, err := p.SSHFingerprint(ctx, ip, 22)
			if err != nil {
				p.logger.Debug().Err(err).Str("address", ip).Msg("ssh fingerprint unavailable")
				continue
			}
			open[i].Fingerprint = fp
		}
	}

	p.logger.Debug().Str("address", ip).Int("probed", len(ports)).Int("open", len(open)).Msg("port scan complete")
	return open, nil
}

// Probe classifies one port. A refused connection is final; timeouts and
// other errors are retried before being reported as filtered or error.
func (p *PortScanner) Probe(ctx context.Context, ip string, port int) PortState {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	state := PortError
	for attempt := 0; attempt <= p.config.Retries; attempt++ {
		if ctx.Err() != nil {
			return PortError
		}
		conn, err := p.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return PortOpen
		}
		state = classifyDialError(err)
		if state == PortClosed {
			return PortClosed
		}
	}
	return state
}

func classifyDialError(err error) PortState {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return PortClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return PortFiltered
	}
	return PortError
}

var errHostKeyCaptured = errors.New("host key captured")

// SSHFingerprint performs the start of an SSH handshake and returns the
// SHA256 fingerprint of the server's host key. No authentication is tried.
func (p *PortScanner) SSHFingerprint(ctx context.Context, ip string, port int) (string, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(p.config.Timeout))

	var fingerprint string
	config := &ssh.ClientConfig{
		User: "lanwatch",
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			fingerprint = ssh.FingerprintSHA256(key)
			return errHostKeyCaptured
		},
		Timeout: p.config.Timeout,
	}

	_, _, _, err = ssh.NewClientConn(conn, addr, config)
	if fingerprint != "" {
		return fingerprint, nil
	}
	if err == nil {
		err = errors.New("handshake finished without a host key")
	}
	return "", fmt.Errorf("ssh handshake failed: %w", err)
}
