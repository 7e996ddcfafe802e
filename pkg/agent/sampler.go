package agent

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// cpuWindow is how long CPU utilisation is measured for each sample.
const cpuWindow = time.Second

// Sample is a point-in-time utilisation snapshot of the local host.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// HostInfo describes the local host for TestPC registration.
type HostInfo struct {
	Hostname  string
	OSVersion string
	IPAddress string
}

// Sampler is the interface for reading host metrics.
type Sampler interface {
	// Sample returns current utilisation for the host.
	Sample(ctx context.Context) (*Sample, error)
	// Info returns static host identity details.
	Info(ctx context.Context) (*HostInfo, error)
}

// hostSampler implements Sampler using gopsutil.
type hostSampler struct {
	log      logrus.FieldLogger
	diskPath string
}

// Ensure interface compliance.
var _ Sampler = (*hostSampler)(nil)

// NewHostSampler creates a Sampler reading from the local operating system.
func NewHostSampler(log logrus.FieldLogger, diskPath string) Sampler {
	return &hostSampler{
		log:      log.WithField("sampler", "host"),
		diskPath: diskPath,
	}
}

// Sample reads CPU, memory and disk usage concurrently.
func (h *hostSampler) Sample(ctx context.Context) (*Sample, error) {
	var s Sample

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pct, err := cpu.PercentWithContext(gCtx, cpuWindow, false)
		if err != nil {
			return fmt.Errorf("reading cpu: %w", err)
		}

		if len(pct) > 0 {
			s.CPUPercent = pct[0]
		}

		return nil
	})

	g.Go(func() error {
		vm, err := mem.VirtualMemoryWithContext(gCtx)
		if err != nil {
			return fmt.Errorf("reading memory: %w", err)
		}

		s.MemoryPercent = vm.UsedPercent

		return nil
	})

	g.Go(func() error {
		usage, err := disk.UsageWithContext(gCtx, h.diskPath)
		if err != nil {
			return fmt.Errorf("reading disk %s: %w", h.diskPath, err)
		}

		s.DiskPercent = usage.UsedPercent

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Info reads the host name, platform and primary IPv4 address.
func (h *hostSampler) Info(ctx context.Context) (*HostInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	info := &HostInfo{
		Hostname:  hi.Hostname,
		OSVersion: fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion),
	}

	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		h.log.WithError(err).Debug("Failed to list network interfaces")

		return info, nil
	}

	info.IPAddress = primaryIPv4(ifaces)

	return info, nil
}

// primaryIPv4 returns the first global unicast IPv4 address of an
// interface that is up.
func primaryIPv4(ifaces gnet.InterfaceStatList) string {
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}

		for _, a := range iface.Addrs {
			prefix, err := netip.ParsePrefix(a.Addr)
			if err != nil {
				continue
			}

			if addr := prefix.Addr(); addr.Is4() && addr.IsGlobalUnicast() {
				return addr.String()
			}
		}
	}

	return ""
}
