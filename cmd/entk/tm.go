package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/config"
	"github.com/wilkinson/radical.entk/pkg/rts/local"
	"github.com/wilkinson/radical.entk/pkg/taskmanager"
)

// tmCmd is the hidden entry point an AppManager forks via os/exec when
// running in production (non-embedded) mode. It never touches the
// workflow tree: everything it needs arrives as flags and everything it
// produces goes back over the broker.
var tmCmd = &cobra.Command{
	Use:    "__tm",
	Short:  "internal: run a single TaskManager process",
	Hidden: true,
	RunE:   runTaskManager,
}

func init() {
	tmCmd.Flags().String("session", "", "Session id this TaskManager belongs to")
	tmCmd.Flags().String("component", "", "Component id used for this TaskManager's heartbeat queues")
	tmCmd.Flags().String("pipelines", "", "Comma-separated pipeline ids this TaskManager drains pending-* for")
	tmCmd.Flags().String("broker-host", "localhost", "Broker hostname")
	tmCmd.Flags().Int("broker-port", 5672, "Broker port")
	tmCmd.Flags().String("data-dir", "./entk-data", "Directory local task work directories are written under")
	_ = tmCmd.MarkFlagRequired("session")
	_ = tmCmd.MarkFlagRequired("component")
	_ = tmCmd.MarkFlagRequired("pipelines")
}

func runTaskManager(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	componentID, _ := cmd.Flags().GetString("component")
	pipelinesFlag, _ := cmd.Flags().GetString("pipelines")
	brokerHost, _ := cmd.Flags().GetString("broker-host")
	brokerPort, _ := cmd.Flags().GetInt("broker-port")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	pipelineIDs := strings.Split(pipelinesFlag, ",")
	if len(pipelineIDs) == 0 || pipelineIDs[0] == "" {
		return fmt.Errorf("__tm: --pipelines must name at least one pipeline id")
	}

	cfg := config.FromEnv()
	brokerCfg := broker.Config{Hostname: brokerHost, Port: brokerPort, Username: cfg.BrokerUsername, Password: cfg.BrokerPassword}

	// TaskManager.Run dials its own two connections internally. The
	// heartbeat responder runs concurrently alongside both, so it gets
	// its own dedicated connection here.
	hbConn, err := broker.Dial(brokerCfg)
	if err != nil {
		return fmt.Errorf("__tm: dial broker for heartbeat: %w", err)
	}
	defer hbConn.Close()

	workDir := filepath.Join(dataDir, "work", componentID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("__tm: create work dir: %w", err)
	}
	rts := local.NewLocalRTS(workDir)

	tm := taskmanager.New(taskmanager.Config{
		SessionID:   sessionID,
		PipelineIDs: pipelineIDs,
		Broker:      brokerCfg,
		RTS:         rts,
	})
	hb := taskmanager.NewHeartbeatResponder(sessionID, componentID, hbConn)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- tm.Run(ctx) }()
	go func() { errCh <- hb.Run(ctx) }()

	err = <-errCh
	cancel()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
