package synchronizer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wilkinson/radical.entk/pkg/audit"
	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/metrics"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// Synchronizer is the AM's single-writer thread: the only code path
// allowed to mutate the workflow tree. It is generalized from a Raft
// FSM.Apply dispatch pattern, moving from a single mutex-guarded
// BoltDB store to a mutex-per-pipeline in-memory tree, and from Raft
// log commitment to broker ack-before-ack.
type Synchronizer struct {
	sessionID string
	workflow  *types.Workflow
	conn      *broker.Conn
	auditLog  audit.Log

	stopCh chan struct{}
}

// New builds a Synchronizer. auditLog may be nil, in which case applied
// commands are simply not recorded for diagnostics.
func New(sessionID string, wf *types.Workflow, conn *broker.Conn, auditLog audit.Log) *Synchronizer {
	return &Synchronizer{
		sessionID: sessionID,
		workflow:  wf,
		conn:      conn,
		auditLog:  auditLog,
		stopCh:    make(chan struct{}),
	}
}

// Stop signals Run to exit after its current message, mirroring the
// "signal synchronizer to exit, join" step of AppManager shutdown.
func (s *Synchronizer) Stop() {
	close(s.stopCh)
}

// Run consumes sync-to-master until Stop is called or ctx is canceled.
// It is meant to run on its own goroutine inside the AM process.
func (s *Synchronizer) Run(ctx context.Context) error {
	queue := broker.SyncToMaster(s.sessionID)
	deliveries, err := s.conn.Consume(queue, "synchronizer")
	if err != nil {
		return fmt.Errorf("synchronizer: consume %s: %w", queue, err)
	}

	logger := log.WithComponent("synchronizer")
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("synchronizer: delivery channel closed")
			}
			if err := s.apply(ctx, d.Body, d.ReplyTo, d.CorrelationId); err != nil {
				logger.Error().Err(err).Msg("failed to apply sync message")
				d.Nack(false, false)
				metrics.SyncMessagesTotal.WithLabelValues("unknown", "error").Inc()
				continue
			}
			d.Ack(false)
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// apply decodes one sync-to-master message, mutates the workflow tree
// under the target pipeline's StageLock, and acks the sender before
// returning (step 4/5 of the synchronizer protocol). Unknown entities
// (a stale or malformed proposal) are reported but do not crash the
// synchronizer thread.
func (s *Synchronizer) apply(ctx context.Context, body []byte, replyTo, correlationID string) error {
	var msg types.SyncMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode sync message: %w", err)
	}

	pipelineID := s.pipelineID(msg)
	pipeline, ok := s.workflow.Pipeline(pipelineID)
	if !ok {
		return fmt.Errorf("unknown pipeline %s for %s entity %s", pipelineID, msg.Kind, msg.UID())
	}

	pipeline.StageLock.Lock()
	applied := s.applyLocked(pipeline, msg)
	if applied && pipeline.State.IsTerminal() {
		pipeline.SignalDone()
	}
	pipeline.StageLock.Unlock()

	metrics.SyncMessagesTotal.WithLabelValues(string(msg.Kind), "acked").Inc()

	if s.auditLog != nil {
		s.auditLog.Append(audit.Record{Kind: string(msg.Kind), UID: msg.UID(), State: string(s.entityState(msg))})
	}

	if replyTo == "" {
		return nil
	}
	return s.conn.PublishAck(ctx, replyTo, correlationID, []byte(msg.UID()+"-ack"))
}

// applyLocked performs the actual mutation. Caller must hold the target
// pipeline's StageLock. Returns whether anything changed.
func (s *Synchronizer) applyLocked(pipeline *types.Pipeline, msg types.SyncMessage) bool {
	switch msg.Kind {
	case types.EntityTask:
		return s.applyTask(pipeline, msg.Task)
	case types.EntityStage:
		return s.applyStage(pipeline, msg.Stage)
	case types.EntityPipeline:
		return s.applyPipeline(pipeline, msg.Pipeline)
	default:
		return false
	}
}

func (s *Synchronizer) applyTask(pipeline *types.Pipeline, dto *types.TaskDTO) bool {
	for _, stage := range pipeline.Stages {
		if stage.ID != dto.StageID {
			continue
		}
		for _, task := range stage.Tasks {
			if task.ID != dto.ID {
				continue
			}
			if task.State == dto.State {
				return false // idempotent: proposal already applied
			}
			resubmit := task.State == types.StateFailed && dto.State == types.StateScheduling && dto.ResubmitCount > 0
			if !resubmit && !types.Advances(task.State, dto.State) {
				return false
			}
			task.ApplyDTO(dto)
			return true
		}
	}
	return false
}

func (s *Synchronizer) applyStage(pipeline *types.Pipeline, dto *types.StageDTO) bool {
	for _, stage := range pipeline.Stages {
		if stage.ID != dto.ID {
			continue
		}
		if stage.State == dto.State {
			return false
		}
		if !types.Advances(stage.State, dto.State) {
			return false
		}
		stage.ApplyDTO(dto)
		return true
	}
	return false
}

func (s *Synchronizer) applyPipeline(pipeline *types.Pipeline, dto *types.PipelineDTO) bool {
	if pipeline.ID != dto.ID {
		return false
	}
	if pipeline.State == dto.State && pipeline.IsSuspended() == dto.Suspended {
		return false
	}
	if dto.State != pipeline.State && !types.Advances(pipeline.State, dto.State) && dto.State != types.StateRunning {
		// StateRunning covers the Suspended->Running resume transition,
		// which Advances does not special-case (see types.Advances doc).
		return false
	}
	pipeline.ApplyDTO(dto)
	return true
}

func (s *Synchronizer) pipelineID(msg types.SyncMessage) string {
	switch msg.Kind {
	case types.EntityTask:
		return msg.Task.PipelineID
	case types.EntityStage:
		return msg.Stage.PipelineID
	case types.EntityPipeline:
		return msg.Pipeline.ID
	}
	return ""
}

func (s *Synchronizer) entityState(msg types.SyncMessage) types.State {
	switch msg.Kind {
	case types.EntityTask:
		return msg.Task.State
	case types.EntityStage:
		return msg.Stage.State
	case types.EntityPipeline:
		return msg.Pipeline.State
	}
	return ""
}
