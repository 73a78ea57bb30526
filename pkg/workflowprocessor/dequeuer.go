package workflowprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/metrics"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// DequeuerConfig configures a Dequeuer.
type DequeuerConfig struct {
	SessionID string
	Workflow  *types.Workflow
	Conn      *broker.Conn

	PollInterval time.Duration
	AckTimeout   time.Duration
}

func (c DequeuerConfig) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return 200 * time.Millisecond
}

func (c DequeuerConfig) ackTimeout() time.Duration {
	if c.AckTimeout > 0 {
		return c.AckTimeout
	}
	return 10 * time.Second
}

// Dequeuer is the other WorkflowProcessor worker: it drains
// completed-* round-robin, re-proposes every task's terminal state
// (idempotent if the TaskManager already proposed it), and on the
// last task of a stage advances the stage, fires PostExec, and
// advances the pipeline. It shares the AppManager's *types.Workflow
// pointer directly rather than running as a separate OS process,
// since PostExecFunc is an arbitrary Go closure that cannot cross a
// process boundary.
type Dequeuer struct {
	cfg      DequeuerConfig
	proposer *proposer
	stopCh   chan struct{}
}

// NewDequeuer builds a Dequeuer against cfg.
func NewDequeuer(cfg DequeuerConfig) *Dequeuer {
	return &Dequeuer{
		cfg:      cfg,
		proposer: newProposer(cfg.SessionID, broker.RoleDequeuer, cfg.Conn, cfg.ackTimeout()),
		stopCh:   make(chan struct{}),
	}
}

// Stop signals Run to exit after its current pass.
func (q *Dequeuer) Stop() {
	close(q.stopCh)
}

// Run blocks draining completed-* queues until Stop is called or ctx
// is canceled.
func (q *Dequeuer) Run(ctx context.Context) error {
	logger := log.WithComponent("dequeuer")
	ticker := time.NewTicker(q.cfg.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, pipeline := range q.cfg.Workflow.Pipelines() {
				if err := q.drainOne(ctx, pipeline); err != nil {
					logger.Error().Err(err).Str("pipeline", pipeline.ID).Msg("drain failed")
				}
			}
		}
	}
}

// drainOne pulls every currently-available message off pipeline's
// completed-* queue and applies it.
func (q *Dequeuer) drainOne(ctx context.Context, pipeline *types.Pipeline) error {
	queue := broker.CompletedQueue(q.cfg.SessionID, pipeline.ID)
	for {
		d, ok, err := q.cfg.Conn.Get(queue)
		if err != nil {
			return fmt.Errorf("get %s: %w", queue, err)
		}
		if !ok {
			return nil
		}
		if err := q.handle(ctx, pipeline, d.Body); err != nil {
			d.Nack(false, true)
			return fmt.Errorf("handle completion: %w", err)
		}
		d.Ack(false)
	}
}

// handle applies one completed task: re-proposes its terminal state,
// then checks whether its stage and pipeline should advance.
func (q *Dequeuer) handle(ctx context.Context, pipeline *types.Pipeline, body []byte) error {
	var dto types.TaskDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}

	if err := q.proposer.proposeTask(ctx, &dto); err != nil {
		return fmt.Errorf("propose task %s: %w", dto.ID, err)
	}

	return q.advance(ctx, pipeline, dto.StageID)
}

// stageAdvance is what snapshotStage reads out of the tree under
// pipeline.StageLock: everything advance needs to decide what to
// propose, without holding the lock across any of those proposals.
type stageAdvance struct {
	stage              *types.Stage
	resubmitDTOs       []*types.TaskDTO
	finalState         types.State
	needsStageProposal bool
	stageDTO           *types.StageDTO
}

// advance checks whether the stage named by stageID is now fully
// terminal and, if so, proposes it (and the pipeline behind it)
// forward. Every read of the shared tree happens inside snapshotStage,
// under pipeline.StageLock; every propose-and-await call below runs
// with the lock released, since the synchronizer needs that same lock
// to apply the proposal and reply with its ack. Proposals are applied
// sequentially, so later steps re-lock briefly to read state the
// synchronizer has, by then, already updated.
func (q *Dequeuer) advance(ctx context.Context, pipeline *types.Pipeline, stageID string) error {
	snap := q.snapshotStage(pipeline, stageID)
	if snap == nil {
		return nil
	}

	if len(snap.resubmitDTOs) > 0 {
		return q.resubmitFailed(ctx, pipeline, snap.resubmitDTOs)
	}

	if snap.needsStageProposal {
		if err := q.proposer.proposeStageDTO(ctx, snap.stageDTO); err != nil {
			return fmt.Errorf("propose stage %s: %w", snap.stage.ID, err)
		}
		metrics.StagesTotal.WithLabelValues(string(snap.finalState)).Inc()
	}

	if postExec, ok := q.takePostExec(pipeline, snap.stage); ok {
		cbCtx := types.NewCallbackContext(pipeline, q.cfg.Workflow, q.proposer)
		postExec(cbCtx)
	}

	// A FAILED stage never becomes DONE, so ActiveStage would otherwise
	// report it as active forever; the pipeline itself must be failed
	// explicitly instead of waiting for the stage walk to run dry.
	if snap.finalState == types.StateFailed {
		return q.failPipelineIfNeeded(ctx, pipeline)
	}

	pipeline.StageLock.Lock()
	done := pipeline.ActiveStage() == nil
	pipeline.StageLock.Unlock()
	if done {
		if err := q.proposer.ProposePipelineDone(pipeline); err != nil {
			return fmt.Errorf("propose pipeline %s done: %w", pipeline.ID, err)
		}
	}
	return nil
}

// snapshotStage holds pipeline.StageLock only long enough to find the
// stage by id, decide whether it is ready to advance, and copy out the
// DTOs that decision needs. Returns nil when stageID isn't found or
// isn't fully terminal yet.
func (q *Dequeuer) snapshotStage(pipeline *types.Pipeline, stageID string) *stageAdvance {
	pipeline.StageLock.Lock()
	defer pipeline.StageLock.Unlock()

	var stage *types.Stage
	for _, s := range pipeline.Stages {
		if s.ID == stageID {
			stage = s
			break
		}
	}
	if stage == nil || !stage.AllTasksTerminal() {
		return nil
	}

	if stage.AnyTaskFailed() && pipeline.FailurePolicy == types.Resubmit {
		var resubmitDTOs []*types.TaskDTO
		for _, task := range stage.Tasks {
			if task.State != types.StateFailed || task.ResubmitCount >= pipeline.MaxResubmits {
				continue
			}
			dto := task.ToDTO()
			dto.State = types.StateScheduling
			dto.ResubmitCount = task.ResubmitCount + 1
			resubmitDTOs = append(resubmitDTOs, dto)
		}
		if len(resubmitDTOs) > 0 {
			return &stageAdvance{stage: stage, resubmitDTOs: resubmitDTOs}
		}
		// every failed task exhausted MaxResubmits: fall through to
		// FailStage behavior below.
	}

	finalState := types.StateDone
	if stage.AnyTaskFailed() && pipeline.FailurePolicy != types.Continue {
		finalState = types.StateFailed
	}

	snap := &stageAdvance{stage: stage, finalState: finalState}
	if stage.State != finalState {
		dto := stage.ToDTO()
		dto.State = finalState
		snap.needsStageProposal = true
		snap.stageDTO = dto
	}
	return snap
}

// takePostExec reports whether stage has a PostExec callback that has
// not yet fired and, if so, marks it fired and returns it. The fired
// flag is set under pipeline.StageLock so a redelivered completion
// message can never run the callback twice.
func (q *Dequeuer) takePostExec(pipeline *types.Pipeline, stage *types.Stage) (types.PostExecFunc, bool) {
	pipeline.StageLock.Lock()
	defer pipeline.StageLock.Unlock()

	if stage.PostExec == nil || stage.PostExecFired() {
		return nil, false
	}
	stage.MarkPostExecFired()
	return stage.PostExec, true
}

// failPipelineIfNeeded proposes pipeline's State as FAILED, unless it
// is already FAILED (e.g. a redelivered completion for the same
// stage).
func (q *Dequeuer) failPipelineIfNeeded(ctx context.Context, pipeline *types.Pipeline) error {
	pipeline.StageLock.Lock()
	alreadyFailed := pipeline.State == types.StateFailed
	dto := pipeline.ToDTO()
	pipeline.StageLock.Unlock()
	if alreadyFailed {
		return nil
	}

	dto.State = types.StateFailed
	if err := q.proposer.proposePipelineDTO(ctx, dto); err != nil {
		return fmt.Errorf("propose pipeline %s failed: %w", pipeline.ID, err)
	}
	return nil
}

// resubmitFailed republishes every DTO in dtos (already filtered to
// tasks that have not exhausted pipeline.MaxResubmits) back onto
// pending-*.
func (q *Dequeuer) resubmitFailed(ctx context.Context, pipeline *types.Pipeline, dtos []*types.TaskDTO) error {
	queue := broker.PendingQueue(q.cfg.SessionID, pipeline.ID)
	for _, dto := range dtos {
		body, err := json.Marshal(dto)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", dto.ID, err)
		}
		if err := q.cfg.Conn.Publish(ctx, queue, body); err != nil {
			return fmt.Errorf("publish task %s: %w", dto.ID, err)
		}
		if err := q.proposer.proposeTask(ctx, dto); err != nil {
			return fmt.Errorf("propose task %s: %w", dto.ID, err)
		}
		metrics.TasksResubmittedTotal.Inc()
	}
	return nil
}
