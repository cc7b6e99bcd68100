package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scan      ScanConfig      `yaml:"scan"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Ports     PortsConfig     `yaml:"ports"`
	Appliance ApplianceConfig `yaml:"appliance"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP and WebSocket settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins for CORS and WebSocket upgrades; "*" allows any
	AllowedOrigins  []string `yaml:"allowed_origins,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScanConfig controls the reconciliation cycle
type ScanConfig struct {
	Interval Duration `yaml:"interval"`
	// GraceScans is how many consecutive misses a device survives before
	// being reported offline
	GraceScans int `yaml:"grace_scans"`
}

// DiscoveryConfig selects and tunes the discovery sources
type DiscoveryConfig struct {
	// Methods are tried in order until one succeeds (nmap, arp_cache)
	Methods []string `yaml:"methods"`
	// Targets override the detected local /24
	Targets        []string `yaml:"targets,omitempty"`
	NmapPath       string   `yaml:"nmap_path,omitempty"`
	NmapTimeout    Duration `yaml:"nmap_timeout"`
	ARPCachePath   string   `yaml:"arp_cache_path"`
	ResolveTimeout Duration `yaml:"resolve_timeout"`
	ResolveWorkers int      `yaml:"resolve_workers"`
}

// PortsConfig tunes on-demand port probing
type PortsConfig struct {
	Ports                 []int    `yaml:"ports,omitempty"`
	Timeout               Duration `yaml:"timeout"`
	Retries               int      `yaml:"retries"`
	Workers               int      `yaml:"workers"`
	DisableSSHFingerprint bool     `yaml:"disable_ssh_fingerprint,omitempty"`
}

// ApplianceConfig tunes Pi-hole detection
type ApplianceConfig struct {
	Disabled bool     `yaml:"disabled,omitempty"`
	Timeout  Duration `yaml:"timeout"`
}

// LoggingConfig holds log level and output format
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
