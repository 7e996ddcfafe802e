package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/ethpandaops/labkeeper/pkg/config"
	"github.com/sirupsen/logrus"
)

// StatusOnline is reported for a test PC while the agent is sampling it.
const StatusOnline = "online"

// Recorder is the subset of the store used by the agent.
type Recorder interface {
	GetTestPCByHostname(ctx context.Context, hostname string) (*store.TestPC, error)
	CreateTestPC(ctx context.Context, pc *store.TestPC) error
	RecordPCStats(ctx context.Context, s *store.PCStats) error
}

// Agent periodically records host utilisation for one test PC.
type Agent interface {
	Start(ctx context.Context) error
	Stop() error
	// TestPCID returns the id of the test PC samples are recorded for.
	TestPCID() string
}

// Compile-time interface check.
var _ Agent = (*agent)(nil)

type agent struct {
	log      logrus.FieldLogger
	cfg      *config.AgentConfig
	recorder Recorder
	sampler  Sampler
	interval time.Duration
	pcID     string
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewAgent creates a new stats agent.
func NewAgent(
	log logrus.FieldLogger,
	cfg *config.AgentConfig,
	recorder Recorder,
	sampler Sampler,
) Agent {
	return &agent{
		log:      log.WithField("component", "agent"),
		cfg:      cfg,
		recorder: recorder,
		sampler:  sampler,
		done:     make(chan struct{}),
	}
}

// Start resolves the test PC, records a first sample and starts the
// sampling loop.
func (a *agent) Start(ctx context.Context) error {
	interval, err := time.ParseDuration(a.cfg.Interval)
	if err != nil {
		return fmt.Errorf("parsing interval: %w", err)
	}

	a.interval = interval

	pc, err := a.resolveTestPC(ctx)
	if err != nil {
		return err
	}

	a.pcID = pc.ID
	a.log = a.log.WithFields(logrus.Fields{
		"test_pc":  pc.ID,
		"hostname": pc.Hostname,
	})

	if err := a.record(ctx); err != nil {
		return fmt.Errorf("recording initial sample: %w", err)
	}

	a.wg.Add(1)

	go a.loop(ctx)

	a.log.WithField("interval", a.interval).Info("Agent started")

	return nil
}

// Stop ends the sampling loop and waits for it to exit.
func (a *agent) Stop() error {
	a.stopOnce.Do(func() { close(a.done) })
	a.wg.Wait()

	return nil
}

func (a *agent) TestPCID() string {
	return a.pcID
}

func (a *agent) loop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.record(ctx); err != nil {
				a.log.WithError(err).Warn("Failed to record sample")
			}
		case <-ctx.Done():
			return
		case <-a.done:
			return
		}
	}
}

func (a *agent) record(ctx context.Context) error {
	sample, err := a.sampler.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sampling host: %w", err)
	}

	row := &store.PCStats{
		TestPCID:      a.pcID,
		Status:        StatusOnline,
		CPUPercent:    sample.CPUPercent,
		MemoryPercent: sample.MemoryPercent,
		DiskPercent:   sample.DiskPercent,
		Timestamp:     time.Now().UTC(),
	}

	if err := a.recorder.RecordPCStats(ctx, row); err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"cpu":    row.CPUPercent,
		"memory": row.MemoryPercent,
		"disk":   row.DiskPercent,
	}).Debug("Recorded sample")

	return nil
}

// resolveTestPC finds the test PC matching the configured or detected
// hostname, registering it when allowed.
func (a *agent) resolveTestPC(ctx context.Context) (*store.TestPC, error) {
	info, err := a.sampler.Info(ctx)
	if err != nil {
		return nil, err
	}

	hostname := strings.TrimSpace(a.cfg.Hostname)
	if hostname == "" {
		hostname = info.Hostname
	}

	if hostname == "" {
		return nil, errors.New("hostname could not be detected; set agent.hostname")
	}

	pc, err := a.recorder.GetTestPCByHostname(ctx, hostname)
	if err == nil {
		return pc, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up test pc: %w", err)
	}

	if !a.cfg.Register {
		return nil, fmt.Errorf("no test pc registered for hostname %q", hostname)
	}

	pc = &store.TestPC{
		Hostname:  hostname,
		Status:    StatusOnline,
		OSVersion: info.OSVersion,
		IPAddress: info.IPAddress,
	}

	if err := a.recorder.CreateTestPC(ctx, pc); err != nil {
		return nil, fmt.Errorf("registering test pc: %w", err)
	}

	a.log.WithField("hostname", hostname).Info("Registered test PC")

	return pc, nil
}
