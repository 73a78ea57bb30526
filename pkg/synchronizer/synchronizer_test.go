package synchronizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wilkinson/radical.entk/pkg/types"
)

func newFixture() (*Synchronizer, *types.Pipeline) {
	task := &types.Task{ID: "t1", StageID: "s1", PipelineID: "p1", Executable: "/bin/echo", State: types.StateScheduling}
	stage := types.NewStage("s1", "p1", "", []*types.Task{task})
	stage.State = types.StateScheduling
	pipeline := types.NewPipeline("p1", "pipe", []*types.Stage{stage})
	pipeline.State = types.StateRunning
	wf := types.NewWorkflow(pipeline)
	return New("sid1", wf, nil, nil), pipeline
}

func TestApplyTaskAdvancesState(t *testing.T) {
	s, pipeline := newFixture()
	dto := &types.TaskDTO{ID: "t1", StageID: "s1", PipelineID: "p1", State: types.StateSubmitted}

	changed := s.applyTask(pipeline, dto)
	assert.True(t, changed)
	assert.Equal(t, types.StateSubmitted, pipeline.Stages[0].Tasks[0].State)
}

func TestApplyTaskIsIdempotent(t *testing.T) {
	s, pipeline := newFixture()
	dto := &types.TaskDTO{ID: "t1", StageID: "s1", PipelineID: "p1", State: types.StateScheduling}

	changed := s.applyTask(pipeline, dto)
	assert.False(t, changed, "re-proposing the current state must be a no-op")
}

func TestApplyTaskRejectsBackwardTransition(t *testing.T) {
	s, pipeline := newFixture()
	pipeline.Stages[0].Tasks[0].State = types.StateRunning
	dto := &types.TaskDTO{ID: "t1", StageID: "s1", PipelineID: "p1", State: types.StateScheduled}

	changed := s.applyTask(pipeline, dto)
	assert.False(t, changed)
	assert.Equal(t, types.StateRunning, pipeline.Stages[0].Tasks[0].State)
}

func TestApplyTaskAllowsFailureFromAnyNonTerminalState(t *testing.T) {
	s, pipeline := newFixture()
	dto := &types.TaskDTO{ID: "t1", StageID: "s1", PipelineID: "p1", State: types.StateFailed, Error: "boom"}

	changed := s.applyTask(pipeline, dto)
	assert.True(t, changed)
	assert.Equal(t, types.StateFailed, pipeline.Stages[0].Tasks[0].State)
	assert.Equal(t, "boom", pipeline.Stages[0].Tasks[0].Error)
}

func TestApplyStageAdvancesState(t *testing.T) {
	s, pipeline := newFixture()
	dto := &types.StageDTO{ID: "s1", PipelineID: "p1", State: types.StateSubmitted}

	changed := s.applyStage(pipeline, dto)
	assert.True(t, changed)
	assert.Equal(t, types.StateSubmitted, pipeline.Stages[0].State)
}

func TestApplyPipelineSetsSuspendedWithoutStateChange(t *testing.T) {
	s, pipeline := newFixture()
	dto := pipeline.ToDTO()
	dto.Suspended = true

	changed := s.applyPipeline(pipeline, dto)
	assert.True(t, changed)
	assert.True(t, pipeline.IsSuspended())
}

func TestApplyPipelineUnknownIDIsNoop(t *testing.T) {
	s, pipeline := newFixture()
	dto := &types.PipelineDTO{ID: "other", State: types.StateDone}

	assert.False(t, s.applyPipeline(pipeline, dto))
}
