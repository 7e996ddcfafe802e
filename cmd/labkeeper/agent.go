package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/labkeeper/pkg/agent"
	"github.com/ethpandaops/labkeeper/pkg/api/store"
	"github.com/ethpandaops/labkeeper/pkg/config"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Record resource usage of this test PC",
	Long: `Periodically sample CPU, memory and disk usage of the local host and
record them as PC stats for the matching test PC, refreshing its heartbeat.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.ValidateAgent(); err != nil {
		return fmt.Errorf("validating agent config: %w", err)
	}

	if err := applyConfigLogLevel(cmd, cfg.Global.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	a := agent.NewAgent(log, &cfg.Agent, st, agent.NewHostSampler(log, cfg.Agent.DiskPath))

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down agent")
	cancel()

	return a.Stop()
}
