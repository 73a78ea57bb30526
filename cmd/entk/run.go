package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wilkinson/radical.entk/pkg/appmanager"
	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/config"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/manifest"
	"github.com/wilkinson/radical.entk/pkg/rts/local"
)

var runCmd = &cobra.Command{
	Use:   "run MANIFEST.yaml",
	Short: "Run a workflow manifest to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

func init() {
	runCmd.Flags().String("data-dir", "./entk-data", "Directory for the audit log and local task work directories")
	runCmd.Flags().Int("task-managers", 1, "Number of TaskManager instances to supervise")
	runCmd.Flags().Bool("embedded", true, "Run TaskManagers as goroutines against a local RTS instead of forking OS processes")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")
	taskManagers, _ := cmd.Flags().GetInt("task-managers")
	embedded, _ := cmd.Flags().GetBool("embedded")

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	wf, err := m.ToWorkflow()
	if err != nil {
		return fmt.Errorf("building workflow from %s: %w", manifestPath, err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfg := config.FromEnv()
	amCfg := appmanager.Config{
		Workflow: wf,
		Broker: broker.Config{
			Hostname: cfg.BrokerHostname,
			Port:     cfg.BrokerPort,
			Username: cfg.BrokerUsername,
			Password: cfg.BrokerPassword,
		},
		DataDir:           dataDir,
		TaskManagers:      taskManagers,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Embedded:          embedded,
		TMBinary:          os.Args[0],
	}
	if embedded {
		amCfg.RTS = local.NewLocalRTS(filepath.Join(dataDir, "work"))
	}
	if m.Resource != nil {
		amCfg.ResourceDescriptor = m.Resource.Descriptor()
		amCfg.SharedData = m.Resource.SharedData
		amCfg.Reservation = local.NewReservation(filepath.Join(dataDir, "work"))
	}

	am, err := appmanager.New(amCfg)
	if err != nil {
		return fmt.Errorf("starting app manager: %w", err)
	}

	logger := log.WithSessionID(am.SessionID())
	logger.Info().Str("manifest", manifestPath).Str("workflow", m.Name).Msg("workflow starting")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn().Msg("interrupt received, shutting down")
		cancel()
	}()

	if err := am.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("workflow run: %w", err)
	}
	logger.Info().Msg("workflow finished")
	return nil
}
