package agent

import (
	"context"
	"errors"
	"testing"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/ethpandaops/labkeeper/pkg/config"
)

type fakeSampler struct {
	sample *Sample
	info   *HostInfo
	err    error
}

func (f *fakeSampler) Sample(context.Context) (*Sample, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.sample, nil
}

func (f *fakeSampler) Info(context.Context) (*HostInfo, error) {
	return f.info, nil
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	s := store.NewStore(testLogger(), cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func newSampler() *fakeSampler {
	return &fakeSampler{
		sample: &Sample{CPUPercent: 12.5, MemoryPercent: 40, DiskPercent: 73.2},
		info: &HostInfo{
			Hostname:  "bench-01",
			OSVersion: "ubuntu 24.04",
			IPAddress: "10.0.0.5",
		},
	}
}

func TestAgent_RegistersAndRecords(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cfg := &config.AgentConfig{Interval: "1h", Register: true}
	a := NewAgent(testLogger(), cfg, s, newSampler())

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Stop())

	pc, err := s.GetTestPCByHostname(ctx, "BENCH-01")
	require.NoError(t, err)
	assert.Equal(t, a.TestPCID(), pc.ID)
	assert.Equal(t, "10.0.0.5", pc.IPAddress)
	assert.Equal(t, StatusOnline, pc.Status)
	require.NotNil(t, pc.LastHeartbeatAt)

	page, err := s.ListPCStats(ctx, store.PCStatsFilter{TestPCID: &pc.ID}, store.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Count)
	assert.InDelta(t, 73.2, page.Items[0].DiskPercent, 0.001)
	assert.InDelta(t, 12.5, page.Items[0].CPUPercent, 0.001)
}

func TestAgent_UsesExistingTestPC(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	existing := &store.TestPC{Hostname: "rig-7"}
	require.NoError(t, s.CreateTestPC(ctx, existing))

	cfg := &config.AgentConfig{Hostname: "rig-7", Interval: "1h"}
	a := NewAgent(testLogger(), cfg, s, newSampler())

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Stop())

	assert.Equal(t, existing.ID, a.TestPCID())
}

func TestAgent_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AgentConfig
		sampler *fakeSampler
		errMsg  string
	}{
		{
			name:    "unregistered without register",
			cfg:     &config.AgentConfig{Interval: "1h"},
			sampler: newSampler(),
			errMsg:  `no test pc registered for hostname "bench-01"`,
		},
		{
			name:    "invalid interval",
			cfg:     &config.AgentConfig{Interval: "soon", Register: true},
			sampler: newSampler(),
			errMsg:  "parsing interval",
		},
		{
			name: "sampling failure",
			cfg:  &config.AgentConfig{Interval: "1h", Register: true},
			sampler: &fakeSampler{
				info: &HostInfo{Hostname: "bench-01"},
				err:  errors.New("boom"),
			},
			errMsg: "boom",
		},
		{
			name:    "no hostname",
			cfg:     &config.AgentConfig{Interval: "1h", Register: true},
			sampler: &fakeSampler{info: &HostInfo{}},
			errMsg:  "hostname could not be detected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t)

			a := NewAgent(testLogger(), tt.cfg, s, tt.sampler)

			err := a.Start(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPrimaryIPv4(t *testing.T) {
	ifaces := gnet.InterfaceStatList{
		{
			Name:  "lo",
			Flags: []string{"up", "loopback"},
			Addrs: gnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}},
		},
		{
			Name:  "eth1",
			Flags: []string{"broadcast"},
			Addrs: gnet.InterfaceAddrList{{Addr: "192.168.9.9/24"}},
		},
		{
			Name:  "eth0",
			Flags: []string{"up", "broadcast"},
			Addrs: gnet.InterfaceAddrList{
				{Addr: "fe80::1/64"},
				{Addr: "10.1.2.3/16"},
			},
		},
	}

	assert.Equal(t, "10.1.2.3", primaryIPv4(ifaces))
	assert.Empty(t, primaryIPv4(nil))
}
