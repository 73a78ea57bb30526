package workflowprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wilkinson/radical.entk/pkg/broker"
	"github.com/wilkinson/radical.entk/pkg/metrics"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// proposer publishes a sync-to-master proposal and blocks until the
// synchronizer's ack arrives on the caller's dedicated ack queue. Both
// the enqueuer and dequeuer own one, tagged with their own role so
// acks never cross-deliver to the wrong worker. It also implements
// types.SyncProposer so a post-exec callback can route its mutations
// through the same protocol.
type proposer struct {
	sessionID  string
	role       string
	conn       *broker.Conn
	ackTimeout time.Duration
}

func newProposer(sessionID, role string, conn *broker.Conn, ackTimeout time.Duration) *proposer {
	return &proposer{sessionID: sessionID, role: role, conn: conn, ackTimeout: ackTimeout}
}

func (p *proposer) propose(ctx context.Context, msg types.SyncMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode sync message: %w", err)
	}
	replyTo := broker.SyncAckQueue(p.sessionID, p.role)
	correlationID := uuid.NewString()

	timer := metrics.NewTimer()
	if err := p.conn.PublishWithReply(ctx, broker.SyncToMaster(p.sessionID), replyTo, correlationID, body); err != nil {
		return fmt.Errorf("publish sync proposal: %w", err)
	}
	err = p.conn.AwaitAck(replyTo, correlationID, p.ackTimeout)
	timer.ObserveDuration(metrics.SyncAckDuration)
	return err
}

func (p *proposer) proposeTask(ctx context.Context, dto *types.TaskDTO) error {
	return p.propose(ctx, types.SyncMessage{Kind: types.EntityTask, Task: dto})
}

func (p *proposer) proposeStageDTO(ctx context.Context, dto *types.StageDTO) error {
	return p.propose(ctx, types.SyncMessage{Kind: types.EntityStage, Stage: dto})
}

func (p *proposer) proposePipelineDTO(ctx context.Context, dto *types.PipelineDTO) error {
	return p.propose(ctx, types.SyncMessage{Kind: types.EntityPipeline, Pipeline: dto})
}

// ProposeStage implements types.SyncProposer for a newly appended stage,
// proposed in its as-built (INITIAL) state. The DTO is built under
// pipeline.StageLock, which is released before the propose-and-await
// call, since the synchronizer needs that same lock to apply it.
func (p *proposer) ProposeStage(pipeline *types.Pipeline, stage *types.Stage) error {
	pipeline.StageLock.Lock()
	dto := stage.ToDTO()
	pipeline.StageLock.Unlock()
	return p.proposeStageDTO(context.Background(), dto)
}

// ProposeSuspend implements types.SyncProposer.
func (p *proposer) ProposeSuspend(pipeline *types.Pipeline) error {
	pipeline.StageLock.Lock()
	dto := pipeline.ToDTO()
	pipeline.StageLock.Unlock()
	dto.Suspended = true
	return p.proposePipelineDTO(context.Background(), dto)
}

// ProposeResume implements types.SyncProposer. Forces State back to
// RUNNING, the one transition types.Advances does not special-case on
// its own (see synchronizer.applyPipeline).
func (p *proposer) ProposeResume(pipeline *types.Pipeline) error {
	pipeline.StageLock.Lock()
	dto := pipeline.ToDTO()
	pipeline.StageLock.Unlock()
	dto.Suspended = false
	dto.State = types.StateRunning
	return p.proposePipelineDTO(context.Background(), dto)
}

// ProposePipelineDone implements types.SyncProposer.
func (p *proposer) ProposePipelineDone(pipeline *types.Pipeline) error {
	pipeline.StageLock.Lock()
	dto := pipeline.ToDTO()
	pipeline.StageLock.Unlock()
	dto.State = types.StateDone
	return p.proposePipelineDTO(context.Background(), dto)
}
