package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanwatch/internal/domain"
)

const sampleARP = `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         AA:BB:CC:DD:EE:01     *        eth0
192.168.1.23     0x1         0x2         aa:bb:cc:dd:ee:17     *        eth0
192.168.1.40     0x1         0x0         00:00:00:00:00:00     *        eth0
169.254.1.9      0x1         0x2         aa:bb:cc:dd:ee:99     *        eth0
224.0.0.251      0x1         0x2         01:00:5e:00:00:fb     *        eth0
192.168.1.23     0x1         0x2         aa:bb:cc:dd:ee:17     *        wlan0
short line
`

func writeARP(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arp")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseARPCache(t *testing.T) {
	devices, err := parseARPCache(strings.NewReader(sampleARP))
	require.NoError(t, err)
	assert.Equal(t, []domain.Observation{
		{Address: "192.168.1.1", HardwareID: "aa:bb:cc:dd:ee:01"},
		{Address: "192.168.1.23", HardwareID: "aa:bb:cc:dd:ee:17"},
	}, devices)
}

func TestARPCacheDiscovery(t *testing.T) {
	t.Run("reads the file", func(t *testing.T) {
		a := NewARPCacheDiscovery(writeARP(t, sampleARP))
		devices, err := a.Discover(context.Background())
		require.NoError(t, err)
		assert.Len(t, devices, 2)
		assert.Equal(t, MethodARPCache, a.Name())
	})

	t.Run("header only is a failure", func(t *testing.T) {
		a := NewARPCacheDiscovery(writeARP(t, "IP address HW type Flags HW address Mask Device\n"))
		_, err := a.Discover(context.Background())
		assert.ErrorIs(t, err, errEmptyARPCache)
	})

	t.Run("missing file", func(t *testing.T) {
		a := NewARPCacheDiscovery(filepath.Join(t.TempDir(), "nope"))
		_, err := a.Discover(context.Background())
		assert.Error(t, err)
	})

	t.Run("default path", func(t *testing.T) {
		assert.Equal(t, DefaultARPCachePath, NewARPCacheDiscovery("").path)
	})
}

type stubSource struct {
	name    string
	devices []domain.Observation
	err     error
	calls   atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Discover(context.Context) ([]domain.Observation, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Observation, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

type stubResolver map[string]string

func (r stubResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if name, ok := r[addr]; ok {
		return []string{name + "."}, nil
	}
	return nil, errors.New("no PTR record")
}

func testLocal(context.Context) (*LocalHost, error) {
	return &LocalHost{Address: "192.168.1.10", Hostname: "scanbox", Network: "192.168.1.0/24"}, nil
}

func testResolver(names map[string]string) *HostnameResolver {
	r := NewHostnameResolver(0, 4)
	r.resolver = stubResolver(names)
	return r
}

func TestChainDiscovery_FirstSuccessWins(t *testing.T) {
	first := &stubSource{name: MethodNmap, err: errors.New("nmap not installed")}
	second := &stubSource{name: MethodARPCache, devices: []domain.Observation{
		{Address: "192.168.1.1", HardwareID: "aa:bb:cc:dd:ee:01"},
		{Address: "192.168.1.2", HardwareID: "aa:bb:cc:dd:ee:02", Label: "printer"},
	}}
	third := &stubSource{name: "never"}

	chain := NewChainDiscovery([]Source{first, second, third}, zerolog.Nop(),
		WithResolver(testResolver(map[string]string{"192.168.1.1": "router.lan"})),
		WithLocalDevice(testLocal),
	)

	d, err := chain.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MethodARPCache, d.Method)
	require.Len(t, d.Devices, 3)

	assert.Equal(t, domain.Observation{
		Address: "192.168.1.10", HardwareID: domain.LocalHardwareID, Label: "scanbox (This Device)",
	}, d.Devices[0])
	assert.Equal(t, "router.lan", d.Devices[1].Label)
	assert.Equal(t, "printer", d.Devices[2].Label)
	assert.Zero(t, third.calls.Load())
}

func TestChainDiscovery_LocalNotDuplicated(t *testing.T) {
	src := &stubSource{name: MethodNmap, devices: []domain.Observation{
		{Address: "192.168.1.10", HardwareID: "aa:bb:cc:dd:ee:10", Label: "scanbox.lan"},
	}}
	chain := NewChainDiscovery([]Source{src}, zerolog.Nop(),
		WithResolver(nil), WithLocalDevice(testLocal))

	d, err := chain.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Devices, 1)
	assert.Equal(t, "scanbox.lan", d.Devices[0].Label)
}

func TestChainDiscovery_UnresolvedIsUnknown(t *testing.T) {
	src := &stubSource{name: MethodNmap, devices: []domain.Observation{{Address: "192.168.1.77"}}}
	chain := NewChainDiscovery([]Source{src}, zerolog.Nop(),
		WithResolver(testResolver(nil)), WithLocalDevice(nil))

	d, err := chain.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Devices, 1)
	assert.Equal(t, domain.UnknownLabel, d.Devices[0].Label)
}

func TestChainDiscovery_AllFail(t *testing.T) {
	chain := NewChainDiscovery([]Source{
		&stubSource{name: MethodNmap, err: errors.New("boom")},
		&stubSource{name: MethodARPCache, err: errEmptyARPCache},
	}, zerolog.Nop(), WithLocalDevice(testLocal))

	_, err := chain.Scan(context.Background())
	require.ErrorIs(t, err, ErrNoDiscovery)
	assert.ErrorIs(t, err, errEmptyARPCache)
	assert.Contains(t, err.Error(), "nmap: boom")
}

func TestChainDiscovery_CanceledContext(t *testing.T) {
	src := &stubSource{name: MethodNmap}
	chain := NewChainDiscovery([]Source{src}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := chain.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.calls.Load())
}

func TestHostnameResolver(t *testing.T) {
	r := testResolver(map[string]string{"10.0.0.1": "gw.home", "10.0.0.2": ""})
	assert.Equal(t, "gw.home", r.Lookup(context.Background(), "10.0.0.1"))
	assert.Equal(t, domain.UnknownLabel, r.Lookup(context.Background(), "10.0.0.2"))
	assert.Equal(t, domain.UnknownLabel, r.Lookup(context.Background(), "10.0.0.3"))

	devices := []domain.Observation{
		{Address: "10.0.0.1"},
		{Address: "10.0.0.3"},
		{Address: "10.0.0.4", Label: "kept"},
	}
	r.Fill(context.Background(), devices)
	assert.Equal(t, "gw.home", devices[0].Label)
	assert.Equal(t, domain.UnknownLabel, devices[1].Label)
	assert.Equal(t, "kept", devices[2].Label)
}

func TestSelectLocalHost(t *testing.T) {
	ifaces := psnet.InterfaceStatList{
		{
			Name:  "lo",
			Flags: []string{"up", "loopback"},
			Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}},
		},
		{
			Name:  "eth1",
			Flags: []string{"broadcast"},
			Addrs: psnet.InterfaceAddrList{{Addr: "10.9.9.9/16"}},
		},
		{
			Name:         "eth0",
			HardwareAddr: "AA:BB:CC:00:11:22",
			Flags:        []string{"up", "broadcast", "multicast"},
			Addrs: psnet.InterfaceAddrList{
				{Addr: "fe80::1/64"},
				{Addr: "192.168.7.42/22"},
			},
		},
	}

	local, err := selectLocalHost(ifaces, "scanbox")
	require.NoError(t, err)
	assert.Equal(t, &LocalHost{
		Address:    "192.168.7.42",
		Interface:  "eth0",
		HardwareID: "aa:bb:cc:00:11:22",
		Hostname:   "scanbox",
		Network:    "192.168.7.0/24",
	}, local)

	obs := local.Observation()
	assert.Equal(t, domain.LocalHardwareID, obs.HardwareID)
	assert.Equal(t, "scanbox (This Device)", obs.Label)

	_, err = selectLocalHost(ifaces[:2], "scanbox")
	assert.ErrorIs(t, err, errNoLocalInterface)
}
