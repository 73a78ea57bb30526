package taskmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/metrics"
	"github.com/wilkinson/radical.entk/pkg/rts"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// Config configures a TaskManager. A session runs one or more
// TaskManagers, each either in its own OS process (the `__tm`
// subcommand) or as a goroutine in the AppManager process sharing its
// RTS (embedded mode). Broker is a dial config rather than a
// pre-dialed Conn because Run drives two concurrent goroutines (the
// submission loop and the RTS transition consumer), and each needs its
// own amqp.Channel.
type Config struct {
	SessionID         string
	PipelineIDs       []string // pending-* queues to round-robin across
	Broker            broker.Config
	RTS               rts.RTS
	ReservationHandle string

	PollInterval time.Duration // default 200ms
	BatchSize    int           // default 16
	AckTimeout   time.Duration // default 10s
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return 200 * time.Millisecond
}

func (c Config) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return 16
}

func (c Config) ackTimeout() time.Duration {
	if c.AckTimeout > 0 {
		return c.AckTimeout
	}
	return 10 * time.Second
}

type taskMeta struct {
	stageID    string
	pipelineID string
}

// TaskManager pulls a batch of task descriptors from pending-*, hands
// them to the RTS, proposes every observed state transition to the
// synchronizer, and on terminal state publishes the task onto
// completed-*. It is generalized from a gRPC/containerd container
// lifecycle worker loop to a batch/RTS task lifecycle.
type TaskManager struct {
	cfg Config

	mu       sync.Mutex
	taskMeta map[string]taskMeta

	stopCh chan struct{}

	// mainConn backs mainLoop/drainBatch/submitBatch; transitionConn
	// backs consumeTransitions/handleTransition. Two separate
	// connections because both goroutines run for the manager's whole
	// lifetime and a *broker.Conn's amqp.Channel must never be driven
	// from more than one goroutine at a time.
	mainConn       *broker.Conn
	transitionConn *broker.Conn
}

// New builds a TaskManager against cfg. RTS.Transitions must not be
// consumed by anything else for the manager's lifetime.
func New(cfg Config) *TaskManager {
	return &TaskManager{
		cfg:      cfg,
		taskMeta: make(map[string]taskMeta),
		stopCh:   make(chan struct{}),
	}
}

// Stop signals Run's loops to exit after their current iteration.
func (tm *TaskManager) Stop() {
	close(tm.stopCh)
}

// Run dials the two broker connections mainLoop and consumeTransitions
// each need, then blocks running both until Stop is called or ctx is
// canceled. Meant to be the entire body of the TaskManager process's
// entry point.
func (tm *TaskManager) Run(ctx context.Context) error {
	mainConn, err := broker.Dial(tm.cfg.Broker)
	if err != nil {
		return fmt.Errorf("taskmanager: dial broker for main loop: %w", err)
	}
	defer mainConn.Close()
	transitionConn, err := broker.Dial(tm.cfg.Broker)
	if err != nil {
		return fmt.Errorf("taskmanager: dial broker for transition consumer: %w", err)
	}
	defer transitionConn.Close()
	tm.mainConn = mainConn
	tm.transitionConn = transitionConn

	errCh := make(chan error, 2)
	go func() { errCh <- tm.consumeTransitions(ctx) }()
	go func() { errCh <- tm.mainLoop(ctx) }()

	select {
	case err := <-errCh:
		tm.Stop()
		return err
	case <-tm.stopCh:
		return nil
	case <-ctx.Done():
		tm.Stop()
		return ctx.Err()
	}
}

// mainLoop round-robins across the configured pending-* queues,
// submits whatever batch accumulates to the RTS, and proposes a
// SUBMITTED update for each task before acking the broker delivery.
func (tm *TaskManager) mainLoop(ctx context.Context) error {
	if len(tm.cfg.PipelineIDs) == 0 {
		return fmt.Errorf("taskmanager: no pending queues configured")
	}
	logger := log.WithComponent("taskmanager")
	ticker := time.NewTicker(tm.cfg.pollInterval())
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-tm.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pipelineID := tm.cfg.PipelineIDs[idx%len(tm.cfg.PipelineIDs)]
			idx++
			queue := broker.PendingQueue(tm.cfg.SessionID, pipelineID)
			tasks, deliveries, err := tm.drainBatch(queue)
			if err != nil {
				logger.Error().Err(err).Str("queue", queue).Msg("failed to drain pending queue")
				continue
			}
			if len(tasks) == 0 {
				continue
			}
			if err := tm.submitBatch(ctx, tasks, deliveries); err != nil {
				logger.Error().Err(err).Str("queue", queue).Msg("failed to submit batch")
			}
		}
	}
}

// drainBatch polls queue with non-blocking Get calls until either no
// message remains or the configured batch size is reached, decoding
// each delivery body into a Task. It does not ack; the caller acks
// once the batch's SUBMITTED proposals are confirmed by the
// synchronizer, so a crash mid-submit leaves the tasks redeliverable.
func (tm *TaskManager) drainBatch(queue string) ([]*types.Task, []delivery, error) {
	var tasks []*types.Task
	var deliveries []delivery
	for len(tasks) < tm.cfg.batchSize() {
		d, ok, err := tm.mainConn.Get(queue)
		if err != nil {
			return tasks, deliveries, err
		}
		if !ok {
			break
		}
		var dto types.TaskDTO
		if err := json.Unmarshal(d.Body, &dto); err != nil {
			d.Nack(false, false)
			continue
		}
		task := types.TaskFromDTO(&dto)
		tm.mu.Lock()
		tm.taskMeta[task.ID] = taskMeta{stageID: task.StageID, pipelineID: task.PipelineID}
		tm.mu.Unlock()
		tasks = append(tasks, task)
		deliveries = append(deliveries, delivery{ackFn: d.Ack, nackFn: d.Nack})
	}
	return tasks, deliveries, nil
}

// delivery narrows amqp.Delivery to the two methods drainBatch/submitBatch
// need, so this file does not have to import amqp091-go directly.
type delivery struct {
	ackFn  func(multiple bool) error
	nackFn func(multiple, requeue bool) error
}

func (tm *TaskManager) submitBatch(ctx context.Context, tasks []*types.Task, deliveries []delivery) error {
	timer := metrics.NewTimer()
	handles, err := tm.cfg.RTS.Submit(ctx, tm.cfg.ReservationHandle, tasks)
	timer.ObserveDuration(metrics.TaskSubmitDuration)
	if err != nil {
		for _, d := range deliveries {
			d.nackFn(false, true)
		}
		return fmt.Errorf("taskmanager: submit batch: %w", err)
	}

	for i, task := range tasks {
		task.RTSHandle = handles[task.ID]
		dto := task.ToDTO()
		dto.State = types.StateSubmitted
		if err := tm.proposeTask(ctx, tm.mainConn, dto); err != nil {
			log.WithComponent("taskmanager").Error().Err(err).Str("task_uid", task.ID).Msg("submitted-state proposal not acked")
			deliveries[i].nackFn(false, true)
			continue
		}
		metrics.TasksSubmittedTotal.Inc()
		deliveries[i].ackFn(false)
	}
	return nil
}

// consumeTransitions ranges over the RTS's transition channel for the
// manager's lifetime, proposing the observed state to the synchronizer
// and, on a terminal transition, publishing the task to completed-*.
func (tm *TaskManager) consumeTransitions(ctx context.Context) error {
	for {
		select {
		case tr, ok := <-tm.cfg.RTS.Transitions():
			if !ok {
				return fmt.Errorf("taskmanager: rts transitions channel closed")
			}
			tm.handleTransition(ctx, tr)
		case <-tm.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (tm *TaskManager) handleTransition(ctx context.Context, tr rts.Transition) {
	tm.mu.Lock()
	meta, ok := tm.taskMeta[tr.TaskID]
	tm.mu.Unlock()
	if !ok {
		log.WithComponent("taskmanager").Warn().Str("task_uid", tr.TaskID).Msg("transition for unknown task, dropping")
		return
	}

	dto := &types.TaskDTO{
		ID: tr.TaskID, StageID: meta.stageID, PipelineID: meta.pipelineID,
		State: tr.State, ExitCode: tr.ExitCode, Stdout: tr.Stdout, Stderr: tr.Stderr, Error: tr.Error,
	}
	if tr.State == types.StateRunning {
		dto.StartedAt = time.Now()
	}
	if tr.State.IsTerminal() {
		dto.FinishedAt = time.Now()
	}

	if err := tm.proposeTask(ctx, tm.transitionConn, dto); err != nil {
		log.WithComponent("taskmanager").Error().Err(err).Str("task_uid", tr.TaskID).Msg("transition proposal not acked")
		return
	}

	if tr.State == types.StateFailed {
		metrics.TasksFailedTotal.WithLabelValues(meta.pipelineID).Inc()
	}
	if !tr.State.IsTerminal() {
		return
	}

	body, err := json.Marshal(dto)
	if err != nil {
		log.WithComponent("taskmanager").Error().Err(err).Str("task_uid", tr.TaskID).Msg("failed to encode completed task")
		return
	}
	queue := broker.CompletedQueue(tm.cfg.SessionID, meta.pipelineID)
	if err := tm.transitionConn.Publish(ctx, queue, body); err != nil {
		log.WithComponent("taskmanager").Error().Err(err).Str("queue", queue).Msg("failed to publish completed task")
		return
	}

	tm.mu.Lock()
	delete(tm.taskMeta, tr.TaskID)
	tm.mu.Unlock()
}

// proposeTask publishes dto as a sync-to-master proposal on conn and
// blocks until the synchronizer's ack arrives on this manager's
// dedicated ack queue, the same protocol every sync-to-master writer
// follows. conn is whichever connection the calling goroutine owns,
// since both mainLoop and consumeTransitions call this concurrently
// and neither may share the other's channel.
func (tm *TaskManager) proposeTask(ctx context.Context, conn *broker.Conn, dto *types.TaskDTO) error {
	msg := types.SyncMessage{Kind: types.EntityTask, Task: dto}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode sync message: %w", err)
	}
	replyTo := broker.SyncAckQueue(tm.cfg.SessionID, broker.RoleTaskMgr)
	correlationID := uuid.NewString()

	timer := metrics.NewTimer()
	if err := conn.PublishWithReply(ctx, broker.SyncToMaster(tm.cfg.SessionID), replyTo, correlationID, body); err != nil {
		return fmt.Errorf("publish sync proposal: %w", err)
	}
	err = conn.AwaitAck(replyTo, correlationID, tm.cfg.ackTimeout())
	timer.ObserveDuration(metrics.SyncAckDuration)
	return err
}
