package appmanager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wilkinson/radical.entk/pkg/audit"
	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/health"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/metrics"
	"github.com/wilkinson/radical.entk/pkg/reconciler"
	"github.com/wilkinson/radical.entk/pkg/rm"
	"github.com/wilkinson/radical.entk/pkg/rts"
	"github.com/wilkinson/radical.entk/pkg/synchronizer"
	"github.com/wilkinson/radical.entk/pkg/taskmanager"
	"github.com/wilkinson/radical.entk/pkg/types"
	"github.com/wilkinson/radical.entk/pkg/workflowprocessor"
	"golang.org/x/sync/errgroup"
)

// Config configures one AppManager session: one workflow run, owning
// one broker connection and one in-memory workflow tree for its
// lifetime.
type Config struct {
	Workflow *types.Workflow
	Broker   broker.Config
	DataDir  string // audit.db lives here

	TaskManagers int // number of TaskManager instances to supervise, default 1

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MaxMissedBeats    int

	// RTS is used only in Embedded mode, where the AppManager runs
	// TaskManager as a goroutine against this RTS instead of forking a
	// separate OS process. Required when Embedded is true.
	RTS rts.RTS

	// Reservation and ResourceDescriptor are both optional. When both are
	// set, the AppManager validates and submits the descriptor against
	// Reservation before spawning any TaskManager, and cancels it on
	// Shutdown. A manifest with no resource block leaves these nil and
	// the engine never reserves anything, which is all the local RTS
	// needs.
	Reservation        rm.RTSReservation
	ResourceDescriptor *types.ResourceDescriptor
	SharedData         []types.SharedDataDescriptor

	// Embedded runs every TaskManager as a goroutine sharing this
	// process's RTS (each dials its own broker connections), for local/dev runs and
	// tests. When false, the AppManager forks one OS process per
	// TaskManager by re-invoking TMBinary with the hidden `__tm`
	// subcommand, so a TaskManager crash cannot take the AppManager
	// down with it.
	Embedded bool
	TMBinary string // argv[0] for the forked process; defaults to os.Args[0]
}

func (c Config) taskManagers() int {
	if c.TaskManagers > 0 {
		return c.TaskManagers
	}
	return 1
}

func (c Config) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return 5 * time.Second
}

func (c Config) heartbeatTimeout() time.Duration {
	if c.HeartbeatTimeout > 0 {
		return c.HeartbeatTimeout
	}
	return 10 * time.Second
}

func (c Config) maxMissedBeats() int {
	if c.MaxMissedBeats > 0 {
		return c.MaxMissedBeats
	}
	return 3
}

func (c Config) tmBinary() string {
	if c.TMBinary != "" {
		return c.TMBinary
	}
	return os.Args[0]
}

// tmProc tracks one supervised TaskManager: either a real child process
// (Embedded == false) or an in-process goroutine's cancel function
// (Embedded == true). Exactly one of cmd/cancel is set.
type tmProc struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// AppManager owns one workflow run end to end: it declares the
// session's queues, runs the synchronizer and WorkflowProcessor
// in-process, supervises one or more TaskManager instances, and tears
// everything down once the workflow reaches a terminal state.
type AppManager struct {
	cfg       Config
	sessionID string
	conn      *broker.Conn // declareQueues at construction time, then heartbeat-queue declaration in spawnTaskManager and probeHeartbeat only
	auditLog  audit.Log
	logger    zerolog.Logger

	// syncConn, enqueuerConn, and dequeuerConn are each dialed
	// separately because the synchronizer, enqueuer, and dequeuer run
	// concurrently once Run starts them, and a *broker.Conn wraps a
	// single amqp.Channel that must never be driven from more than one
	// goroutine at a time (see pkg/broker.Conn).
	syncConn     *broker.Conn
	enqueuerConn *broker.Conn
	dequeuerConn *broker.Conn

	sync       *synchronizer.Synchronizer
	enqueuer   *workflowprocessor.Enqueuer
	dequeuer   *workflowprocessor.Dequeuer
	supervisor *reconciler.Supervisor
	collector  *metrics.Collector
	rm         *rm.ResourceManager // nil when Config.ResourceDescriptor is unset

	mu    sync.Mutex
	procs map[string]*tmProc

	group *errgroup.Group // synchronizer, enqueuer, dequeuer
	wg    sync.WaitGroup  // embedded TaskManager/heartbeat goroutines, variable count
}

// New dials the broker, opens the audit log, declares every queue the
// session needs, and wires up the synchronizer and WorkflowProcessor.
// It does not yet start anything running; call Run for that.
func New(cfg Config) (*AppManager, error) {
	if cfg.Workflow == nil {
		return nil, fmt.Errorf("appmanager: workflow is required")
	}
	if err := cfg.Workflow.Validate(); err != nil {
		return nil, fmt.Errorf("appmanager: invalid workflow: %w", err)
	}
	if cfg.Embedded && cfg.RTS == nil {
		return nil, fmt.Errorf("appmanager: embedded mode requires an RTS")
	}

	sessionID := uuid.NewString()
	logger := log.WithSessionID(sessionID)

	conn, err := broker.Dial(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("appmanager: dial broker: %w", err)
	}

	conns := []*broker.Conn{conn}
	dialOne := func() (*broker.Conn, error) {
		c, err := broker.Dial(cfg.Broker)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
		return c, nil
	}
	closeAll := func() {
		for _, c := range conns {
			c.Close()
		}
	}

	syncConn, err := dialOne()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("appmanager: dial broker for synchronizer: %w", err)
	}
	enqueuerConn, err := dialOne()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("appmanager: dial broker for enqueuer: %w", err)
	}
	dequeuerConn, err := dialOne()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("appmanager: dial broker for dequeuer: %w", err)
	}

	auditLog, err := audit.NewBoltLog(cfg.DataDir)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("appmanager: open audit log: %w", err)
	}

	am := &AppManager{
		cfg:          cfg,
		sessionID:    sessionID,
		conn:         conn,
		syncConn:     syncConn,
		enqueuerConn: enqueuerConn,
		dequeuerConn: dequeuerConn,
		auditLog:     auditLog,
		logger:       logger,
		procs:        make(map[string]*tmProc),
	}

	if err := am.declareQueues(); err != nil {
		auditLog.Close()
		closeAll()
		return nil, err
	}

	am.sync = synchronizer.New(sessionID, cfg.Workflow, syncConn, auditLog)
	am.enqueuer = workflowprocessor.NewEnqueuer(workflowprocessor.EnqueuerConfig{
		SessionID: sessionID, Workflow: cfg.Workflow, Conn: enqueuerConn,
	})
	am.dequeuer = workflowprocessor.NewDequeuer(workflowprocessor.DequeuerConfig{
		SessionID: sessionID, Workflow: cfg.Workflow, Conn: dequeuerConn,
	})
	am.supervisor = reconciler.New(
		health.Config{
			Interval:    cfg.heartbeatInterval(),
			Timeout:     cfg.heartbeatTimeout(),
			Retries:     cfg.maxMissedBeats(),
			StartPeriod: 2 * cfg.heartbeatInterval(),
		},
		cfg.heartbeatInterval(),
		am.probeHeartbeat,
		am.respawnTaskManager,
	)
	am.collector = metrics.NewCollector(cfg.Workflow)

	if cfg.ResourceDescriptor != nil {
		if cfg.Reservation == nil {
			auditLog.Close()
			closeAll()
			return nil, fmt.Errorf("appmanager: resource descriptor set without a Reservation")
		}
		resourceMgr := rm.New(cfg.Reservation, cfg.ResourceDescriptor)
		if err := resourceMgr.Validate(); err != nil {
			auditLog.Close()
			closeAll()
			return nil, fmt.Errorf("appmanager: invalid resource descriptor: %w", err)
		}
		for _, d := range cfg.SharedData {
			resourceMgr.AddSharedData(d)
		}
		am.rm = resourceMgr
	}

	return am, nil
}

// SessionID returns the session id every queue name for this run is
// scoped under.
func (am *AppManager) SessionID() string {
	return am.sessionID
}

// declareQueues declares every queue this session's components read
// from or write to: sync-to-master, one ack queue per proposer role,
// and pending/completed per pipeline. The per-TaskManager heartbeat
// queues are declared by spawnTaskManager instead.
func (am *AppManager) declareQueues() error {
	queues := []string{
		broker.SyncToMaster(am.sessionID),
		broker.SyncAckQueue(am.sessionID, broker.RoleEnqueuer),
		broker.SyncAckQueue(am.sessionID, broker.RoleDequeuer),
		broker.SyncAckQueue(am.sessionID, broker.RoleTaskMgr),
		broker.SyncAckQueue(am.sessionID, broker.RoleAppMgr),
	}
	for _, p := range am.cfg.Workflow.Pipelines() {
		queues = append(queues,
			broker.PendingQueue(am.sessionID, p.ID),
			broker.CompletedQueue(am.sessionID, p.ID),
		)
	}
	for _, q := range queues {
		if err := am.conn.DeclareQueue(q); err != nil {
			return fmt.Errorf("appmanager: declare queue %s: %w", q, err)
		}
	}
	return nil
}

// Run submits the resource reservation if one is configured, then starts
// the synchronizer, the WorkflowProcessor, every supervised TaskManager,
// and the supervision loop, then blocks until the workflow reaches a
// terminal state on every pipeline or ctx is canceled. It always calls
// Shutdown before returning.
func (am *AppManager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if am.rm != nil {
		if err := am.rm.SubmitReservation(ctx); err != nil {
			cancel()
			am.Shutdown()
			return fmt.Errorf("appmanager: submit reservation: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	am.group = group
	am.startBackground(groupCtx, "synchronizer", am.sync.Run)
	am.startBackground(groupCtx, "enqueuer", am.enqueuer.Run)
	am.startBackground(groupCtx, "dequeuer", am.dequeuer.Run)
	go func() {
		if err := group.Wait(); err != nil {
			am.logger.Error().Err(err).Msg("core worker group failed, shutting down")
			cancel()
		}
	}()

	pipelineIDs := make([]string, 0)
	for _, p := range am.cfg.Workflow.Pipelines() {
		pipelineIDs = append(pipelineIDs, p.ID)
	}
	for i := 0; i < am.cfg.taskManagers(); i++ {
		componentID := fmt.Sprintf("tm-%d", i)
		if err := am.spawnTaskManager(ctx, componentID, pipelineIDs); err != nil {
			am.Shutdown()
			return fmt.Errorf("appmanager: spawn %s: %w", componentID, err)
		}
		am.supervisor.Watch(componentID, broker.RoleTaskMgr)
	}
	am.supervisor.Start(ctx)
	am.collector.Start()

	done := make(chan struct{})
	go func() {
		am.waitForCompletion(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	am.Shutdown()
	return ctx.Err()
}

// waitForCompletion polls AllComplete, which snapshots every pipeline
// under its own StageLock.
func (am *AppManager) waitForCompletion(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if am.cfg.Workflow.AllComplete() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// startBackground runs fn under the run's errgroup; a non-context error
// from any of the three core workers cancels groupCtx for the others
// and, via the goroutine started in Run, the whole AppManager.
func (am *AppManager) startBackground(ctx context.Context, name string, fn func(context.Context) error) {
	am.group.Go(func() error {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// spawnTaskManager starts componentID, either as a goroutine sharing
// am.cfg.RTS (Embedded) or as a forked OS process (production), and
// registers it in am.procs. It first (re)declares componentID's
// heartbeat request/response queues.
func (am *AppManager) spawnTaskManager(ctx context.Context, componentID string, pipelineIDs []string) error {
	for _, q := range []string{
		broker.HeartbeatRequestQueue(am.sessionID, componentID),
		broker.HeartbeatResponseQueue(am.sessionID, componentID),
	} {
		if err := am.conn.DeclareQueue(q); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if am.cfg.Embedded {
		return am.spawnEmbeddedTaskManager(ctx, componentID, pipelineIDs)
	}
	return am.spawnForkedTaskManager(componentID, pipelineIDs)
}

func (am *AppManager) spawnEmbeddedTaskManager(ctx context.Context, componentID string, pipelineIDs []string) error {
	// TaskManager.Run dials its own two connections internally (one per
	// concurrent goroutine it drives). HeartbeatResponder runs
	// concurrently with both of those, so it gets its own dedicated
	// connection too.
	hbConn, err := broker.Dial(am.cfg.Broker)
	if err != nil {
		return fmt.Errorf("dial broker for %s heartbeat: %w", componentID, err)
	}

	tmCtx, cancel := context.WithCancel(ctx)
	tm := taskmanager.New(taskmanager.Config{
		SessionID:   am.sessionID,
		PipelineIDs: pipelineIDs,
		Broker:      am.cfg.Broker,
		RTS:         am.cfg.RTS,
	})
	hb := taskmanager.NewHeartbeatResponder(am.sessionID, componentID, hbConn)

	am.wg.Add(2)
	go func() {
		defer am.wg.Done()
		if err := tm.Run(tmCtx); err != nil && tmCtx.Err() == nil {
			am.logger.Error().Err(err).Str("component", componentID).Msg("task manager exited")
		}
	}()
	go func() {
		defer am.wg.Done()
		defer hbConn.Close()
		if err := hb.Run(tmCtx); err != nil && tmCtx.Err() == nil {
			am.logger.Error().Err(err).Str("component", componentID).Msg("heartbeat responder exited")
		}
	}()

	am.mu.Lock()
	am.procs[componentID] = &tmProc{cancel: cancel}
	am.mu.Unlock()
	return nil
}

// spawnForkedTaskManager re-invokes the current binary's hidden `__tm`
// subcommand as a genuine child process. TaskManager never touches the
// workflow tree or a PostExecFunc closure, only TaskDTOs over the
// broker, so unlike WorkflowProcessor it can safely run out of process.
func (am *AppManager) spawnForkedTaskManager(componentID string, pipelineIDs []string) error {
	cmd := exec.Command(am.cfg.tmBinary(), "__tm",
		"--session", am.sessionID,
		"--component", componentID,
		"--pipelines", strings.Join(pipelineIDs, ","),
		"--broker-host", am.cfg.Broker.Hostname,
		"--broker-port", strconv.Itoa(am.cfg.Broker.Port),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", componentID, err)
	}

	am.mu.Lock()
	am.procs[componentID] = &tmProc{cmd: cmd}
	am.mu.Unlock()
	return nil
}

// probeHeartbeat sends one liveness probe to componentID and waits up
// to the configured timeout for its response.
func (am *AppManager) probeHeartbeat(ctx context.Context, componentID string) health.Result {
	start := time.Now()
	reqQueue := broker.HeartbeatRequestQueue(am.sessionID, componentID)
	respQueue := broker.HeartbeatResponseQueue(am.sessionID, componentID)
	correlationID := uuid.NewString()

	if err := am.conn.PublishWithReply(ctx, reqQueue, respQueue, correlationID, []byte("ping")); err != nil {
		metrics.HeartbeatsMissedTotal.WithLabelValues(componentID).Inc()
		return health.Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	err := am.conn.AwaitAck(respQueue, correlationID, am.cfg.heartbeatTimeout())
	metrics.HeartbeatLatency.WithLabelValues(componentID).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.HeartbeatsMissedTotal.WithLabelValues(componentID).Inc()
		return health.Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	return health.Result{Healthy: true, CheckedAt: start, Duration: time.Since(start)}
}

// respawnTaskManager kills deadComponentID (if it is a real process; a
// dead embedded goroutine has already exited on its own) and starts its
// replacement under a fresh component id.
func (am *AppManager) respawnTaskManager(ctx context.Context, deadComponentID, role string) (string, error) {
	am.mu.Lock()
	dead, ok := am.procs[deadComponentID]
	delete(am.procs, deadComponentID)
	am.mu.Unlock()

	if ok {
		if dead.cmd != nil && dead.cmd.Process != nil {
			_ = dead.cmd.Process.Kill()
		}
		if dead.cancel != nil {
			dead.cancel()
		}
	}

	newID := deadComponentID + "-r" + uuid.NewString()[:8]
	pipelineIDs := make([]string, 0)
	for _, p := range am.cfg.Workflow.Pipelines() {
		pipelineIDs = append(pipelineIDs, p.ID)
	}
	if err := am.spawnTaskManager(ctx, newID, pipelineIDs); err != nil {
		return "", err
	}
	return newID, nil
}

// Shutdown stops the synchronizer and WorkflowProcessor, kills every
// supervised TaskManager, and closes the broker connection and audit
// log. Not safe to call twice: each component's Stop closes a channel
// that panics on a second close.
func (am *AppManager) Shutdown() {
	if am.rm != nil {
		if err := am.rm.CancelReservation(context.Background()); err != nil {
			am.logger.Warn().Err(err).Msg("cancel reservation")
		}
	}
	am.supervisor.Stop()
	am.collector.Stop()
	am.sync.Stop()
	am.enqueuer.Stop()
	am.dequeuer.Stop()

	am.mu.Lock()
	for id, p := range am.procs {
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		if p.cancel != nil {
			p.cancel()
		}
		delete(am.procs, id)
	}
	am.mu.Unlock()

	if am.group != nil {
		_ = am.group.Wait()
	}
	am.wg.Wait()
	am.auditLog.Close()
	am.conn.Close()
	am.syncConn.Close()
	am.enqueuerConn.Close()
	am.dequeuerConn.Close()
}
