package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment overrides
const (
	EnvAddr         = "LANWATCH_ADDR"
	EnvDatabasePath = "LANWATCH_DB"
	EnvScanInterval = "LANWATCH_SCAN_INTERVAL"
	EnvGraceScans   = "LANWATCH_GRACE_SCANS"
	EnvLogLevel     = "LANWATCH_LOG_LEVEL"
)

// applyEnv overlays set environment variables onto the config
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvScanInterval); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvScanInterval, err)
		}
		c.Scan.Interval = Duration(d)
	}
	if v := os.Getenv(EnvGraceScans); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGraceScans, err)
		}
		c.Scan.GraceScans = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// parseSeconds accepts a Go duration ("45s") or a bare number of seconds
func parseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
