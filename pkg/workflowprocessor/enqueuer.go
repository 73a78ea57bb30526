package workflowprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// EnqueuerConfig configures an Enqueuer.
type EnqueuerConfig struct {
	SessionID string
	Workflow  *types.Workflow
	Conn      *broker.Conn

	PollInterval    time.Duration // base cadence between passes, default 500ms
	MaxPollInterval time.Duration // backoff ceiling, default 5s
	AckTimeout      time.Duration
}

func (c EnqueuerConfig) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return 500 * time.Millisecond
}

func (c EnqueuerConfig) maxPollInterval() time.Duration {
	if c.MaxPollInterval > 0 {
		return c.MaxPollInterval
	}
	return 5 * time.Second
}

func (c EnqueuerConfig) ackTimeout() time.Duration {
	if c.AckTimeout > 0 {
		return c.AckTimeout
	}
	return 10 * time.Second
}

// Enqueuer is one of the two WorkflowProcessor workers: it walks every
// pipeline looking for an INITIAL stage ready to run, publishes its
// tasks to pending-*, and proposes the SCHEDULING transitions. It
// backs off between passes when nothing progressed, so an idle
// workflow does not spin a tight CPU loop.
type Enqueuer struct {
	cfg      EnqueuerConfig
	proposer *proposer
	stopCh   chan struct{}
}

// NewEnqueuer builds an Enqueuer against cfg.
func NewEnqueuer(cfg EnqueuerConfig) *Enqueuer {
	return &Enqueuer{
		cfg:      cfg,
		proposer: newProposer(cfg.SessionID, broker.RoleEnqueuer, cfg.Conn, cfg.ackTimeout()),
		stopCh:   make(chan struct{}),
	}
}

// Stop signals Run to exit after its current pass.
func (e *Enqueuer) Stop() {
	close(e.stopCh)
}

// Run blocks making scheduling passes until Stop is called or ctx is
// canceled.
func (e *Enqueuer) Run(ctx context.Context) error {
	logger := log.WithComponent("enqueuer")
	interval := e.cfg.pollInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-e.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			progressed, err := e.pass(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("scheduling pass failed")
			}
			if progressed {
				interval = e.cfg.pollInterval()
			} else {
				interval *= 2
				if max := e.cfg.maxPollInterval(); interval > max {
					interval = max
				}
			}
			timer.Reset(interval)
		}
	}
}

// pass walks every pipeline once, scheduling at most one stage per
// pipeline, and reports whether any pipeline progressed.
func (e *Enqueuer) pass(ctx context.Context) (bool, error) {
	progressed := false
	for _, pipeline := range e.cfg.Workflow.Pipelines() {
		ok, err := e.scheduleOne(ctx, pipeline)
		if err != nil {
			return progressed, fmt.Errorf("pipeline %s: %w", pipeline.ID, err)
		}
		if ok {
			progressed = true
		}
	}
	return progressed, nil
}

// scheduleOne finds pipeline's first non-DONE stage and, if it is
// still INITIAL, publishes its tasks and proposes the stage's
// SCHEDULING transition. The pipeline's tree is only read under
// StageLock, to snapshot DTOs; the lock is released before proposing,
// since proposeTask/proposeStageDTO synchronously await an ack from the
// synchronizer, which takes the same StageLock to apply it — holding
// the lock across that round trip would deadlock the two goroutines
// against each other.
func (e *Enqueuer) scheduleOne(ctx context.Context, pipeline *types.Pipeline) (bool, error) {
	taskDTOs, stageDTO := e.snapshotReadyStage(pipeline)
	if stageDTO == nil {
		return false, nil
	}

	queue := broker.PendingQueue(e.cfg.SessionID, pipeline.ID)
	for _, dto := range taskDTOs {
		body, err := json.Marshal(dto)
		if err != nil {
			return false, fmt.Errorf("encode task %s: %w", dto.ID, err)
		}
		if err := e.cfg.Conn.Publish(ctx, queue, body); err != nil {
			return false, fmt.Errorf("publish task %s: %w", dto.ID, err)
		}
		if err := e.proposer.proposeTask(ctx, dto); err != nil {
			return false, fmt.Errorf("propose task %s: %w", dto.ID, err)
		}
	}

	if err := e.proposer.proposeStageDTO(ctx, stageDTO); err != nil {
		return false, fmt.Errorf("propose stage %s: %w", stageDTO.ID, err)
	}
	return true, nil
}

// snapshotReadyStage holds pipeline.StageLock only long enough to read
// the active stage and copy out the DTOs a scheduling pass needs.
// stageDTO is nil when there is nothing ready to schedule.
func (e *Enqueuer) snapshotReadyStage(pipeline *types.Pipeline) ([]*types.TaskDTO, *types.StageDTO) {
	pipeline.StageLock.Lock()
	defer pipeline.StageLock.Unlock()

	if pipeline.IsSuspended() || pipeline.State.IsTerminal() {
		return nil, nil
	}
	stage := pipeline.ActiveStage()
	if stage == nil || stage.State != types.StateInitial {
		return nil, nil
	}

	taskDTOs := make([]*types.TaskDTO, 0, len(stage.Tasks))
	for _, task := range stage.Tasks {
		dto := task.ToDTO()
		dto.State = types.StateScheduling
		taskDTOs = append(taskDTOs, dto)
	}
	stageDTO := stage.ToDTO()
	stageDTO.State = types.StateScheduling
	return taskDTOs, stageDTO
}
