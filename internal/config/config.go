// Package config provides configuration management for lanwatch.
//
// The config file holds settings only; everything lanwatch learns about the
// network lives in the database and can be wiped independently.
//
// Config file locations (priority order):
//  1. $LANWATCH_CONFIG
//  2. ./lanwatch.yaml
//  3. $XDG_CONFIG_HOME/lanwatch/config.yaml
//  4. ~/.config/lanwatch/config.yaml
//  5. /etc/lanwatch/config.yaml
//
// Environment variables (LANWATCH_ADDR, LANWATCH_DB, ...) override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Discovery method names accepted in discovery.methods
const (
	MethodNmap     = "nmap"
	MethodARPCache = "arp_cache"
)

// Defaults for a new installation
const (
	DefaultAddr            = "0.0.0.0:8000"
	DefaultDatabasePath    = "./lanwatch.db"
	DefaultScanInterval    = 30 * time.Second
	DefaultGraceScans      = 3
	DefaultShutdownTimeout = 10 * time.Second
	DefaultNmapTimeout     = 2 * time.Minute
	DefaultARPCachePath    = "/proc/net/arp"
	DefaultResolveTimeout  = 500 * time.Millisecond
	DefaultResolveWorkers  = 20
	DefaultPortTimeout     = 2 * time.Second
	DefaultPortRetries     = 1
	DefaultPortWorkers     = 20
	DefaultApplianceWait   = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

var knownMethods = []string{MethodNmap, MethodARPCache}

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.applyEnv(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Discovery: DiscoveryConfig{
			Methods: []string{MethodNmap, MethodARPCache},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Scan.Interval == 0 {
		c.Scan.Interval = Duration(DefaultScanInterval)
	}
	if c.Scan.GraceScans == 0 {
		c.Scan.GraceScans = DefaultGraceScans
	}
	if len(c.Discovery.Methods) == 0 {
		c.Discovery.Methods = []string{MethodNmap, MethodARPCache}
	}
	if c.Discovery.NmapTimeout == 0 {
		c.Discovery.NmapTimeout = Duration(DefaultNmapTimeout)
	}
	if c.Discovery.ARPCachePath == "" {
		c.Discovery.ARPCachePath = DefaultARPCachePath
	}
	if c.Discovery.ResolveTimeout == 0 {
		c.Discovery.ResolveTimeout = Duration(DefaultResolveTimeout)
	}
	if c.Discovery.ResolveWorkers == 0 {
		c.Discovery.ResolveWorkers = DefaultResolveWorkers
	}
	if c.Ports.Timeout == 0 {
		c.Ports.Timeout = Duration(DefaultPortTimeout)
	}
	if c.Ports.Retries == 0 {
		c.Ports.Retries = DefaultPortRetries
	}
	if c.Ports.Workers == 0 {
		c.Ports.Workers = DefaultPortWorkers
	}
	if c.Appliance.Timeout == 0 {
		c.Appliance.Timeout = Duration(DefaultApplianceWait)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Scan.Interval.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("scan.interval must be positive, got %s", c.Scan.Interval.Duration()))
	}
	if c.Scan.GraceScans < 1 {
		errs = append(errs, fmt.Errorf("scan.grace_scans must be at least 1, got %d", c.Scan.GraceScans))
	}
	for _, m := range c.Discovery.Methods {
		if !slices.Contains(knownMethods, m) {
			errs = append(errs, fmt.Errorf("unknown discovery method %q (want one of %s)", m, strings.Join(knownMethods, ", ")))
		}
	}
	for _, p := range c.Ports.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("invalid port %d", p))
		}
	}
	if c.Ports.Retries < 0 {
		errs = append(errs, fmt.Errorf("ports.retries must not be negative, got %d", c.Ports.Retries))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	return fmt.Sprintf("addr=%s db=%s interval=%s grace=%d methods=%s",
		c.Server.Addr, c.Database.Path, c.Scan.Interval.Duration(), c.Scan.GraceScans,
		strings.Join(c.Discovery.Methods, ","))
}
