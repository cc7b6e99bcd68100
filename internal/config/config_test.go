package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from overrides set in the caller's shell
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfigPath, EnvAddr, EnvDatabasePath, EnvScanInterval, EnvGraceScans, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Scan.Interval.Duration())
	assert.Equal(t, 3, cfg.Scan.GraceScans)
	assert.Equal(t, []string{MethodNmap, MethodARPCache}, cfg.Discovery.Methods)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.ResolveTimeout.Duration())
	assert.Equal(t, 2*time.Second, cfg.Ports.Timeout.Duration())
	assert.Equal(t, 1, cfg.Ports.Retries)
	assert.Equal(t, 20, cfg.Ports.Workers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero interval", func(c *Config) { c.Scan.Interval = 0 }, "scan.interval"},
		{"negative interval", func(c *Config) { c.Scan.Interval = Duration(-time.Second) }, "scan.interval"},
		{"grace below one", func(c *Config) { c.Scan.GraceScans = 0 }, "grace_scans"},
		{"unknown method", func(c *Config) { c.Discovery.Methods = []string{"nmap", "scapy"} }, `"scapy"`},
		{"port zero", func(c *Config) { c.Ports.Ports = []int{22, 0} }, "invalid port 0"},
		{"port too large", func(c *Config) { c.Ports.Ports = []int{65536} }, "invalid port 65536"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Scan.Interval = Duration(time.Minute)
	cfg.Scan.GraceScans = 5
	cfg.Discovery.Methods = []string{MethodARPCache}
	cfg.Discovery.Targets = []string{"192.168.1.0/24"}
	cfg.Ports.Ports = []int{22, 80}

	require.NoError(t, cfg.Save(configPath))

	loaded, path, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, path)
	assert.Equal(t, time.Minute, loaded.Scan.Interval.Duration())
	assert.Equal(t, 5, loaded.Scan.GraceScans)
	assert.Equal(t, []string{MethodARPCache}, loaded.Discovery.Methods)
	assert.Equal(t, []string{"192.168.1.0/24"}, loaded.Discovery.Targets)
	assert.Equal(t, []int{22, 80}, loaded.Ports.Ports)
}

func TestLoadFromPath_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("scan:\n  interval: 45s\n"), 0o644))

	cfg, _, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Scan.Interval.Duration())
	assert.Equal(t, DefaultGraceScans, cfg.Scan.GraceScans)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, []string{MethodNmap, MethodARPCache}, cfg.Discovery.Methods)
}

func TestLoadFromPath_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, _, err := LoadFromPath(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scan:\n  interval: soon\n"), 0o644))
	_, _, err = LoadFromPath(bad)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAddr, "127.0.0.1:9999")
	t.Setenv(EnvDatabasePath, "/tmp/lw.db")
	t.Setenv(EnvScanInterval, "90")
	t.Setenv(EnvGraceScans, "2")
	t.Setenv(EnvLogLevel, "debug")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(configPath))

	cfg, _, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "/tmp/lw.db", cfg.Database.Path)
	assert.Equal(t, 90*time.Second, cfg.Scan.Interval.Duration())
	assert.Equal(t, 2, cfg.Scan.GraceScans)
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv(EnvScanInterval, "2m")
	cfg, _, err = LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Interval.Duration())

	t.Setenv(EnvGraceScans, "many")
	_, _, err = LoadFromPath(configPath)
	assert.Error(t, err)
}

func TestFindConfigPath(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	require.NoError(t, DefaultConfig().Save(filepath.Join(tmpDir, ConfigFileName)))
	t.Chdir(tmpDir)

	found := FindConfigPath()
	assert.Equal(t, ConfigFileName, filepath.Base(found))

	// A missing explicit path falls through to the working directory
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	assert.Equal(t, found, FindConfigPath())

	explicit := filepath.Join(tmpDir, "explicit.yaml")
	require.NoError(t, DefaultConfig().Save(explicit))
	t.Setenv(EnvConfigPath, explicit)
	assert.Equal(t, explicit, FindConfigPath())
}

func TestSearchPaths(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv(EnvConfigPath, "/srv/lanwatch.yaml")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv("HOME", "/home/op")

	paths := SearchPaths()
	require.Len(t, paths, 5)
	assert.Equal(t, "/srv/lanwatch.yaml", paths[0])
	assert.Equal(t, ConfigFileName, filepath.Base(paths[1]))
	assert.True(t, filepath.IsAbs(paths[1]))
	assert.Equal(t, "/xdg/lanwatch/config.yaml", paths[2])
	assert.Equal(t, "/home/op/.config/lanwatch/config.yaml", paths[3])
	assert.Equal(t, "/etc/lanwatch/config.yaml", paths[4])

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "")
	assert.Len(t, SearchPaths(), 3)
}

func TestFindConfigPath_XDG(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	xdgPath := filepath.Join(tmpDir, "xdg", ConfigDirName, "config.yaml")
	require.NoError(t, DefaultConfig().Save(xdgPath))
	assert.Equal(t, xdgPath, FindConfigPath())
	assert.Equal(t, xdgPath, DefaultConfigPath())
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, d.Duration())

	marshaled, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "5m0s", marshaled)
}
