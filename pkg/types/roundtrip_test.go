package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRoundTrip(t *testing.T) {
	orig := &Task{
		ID: "task-1", StageID: "stage-1", PipelineID: "pipe-1", Name: "hello",
		Executable: "/bin/echo", Args: []string{"hello"},
		PreExec: "module load foo", PostExec: "rm -f tmp",
		CPUReqs: 1, GPUReqs: 0,
		Input:  []DataStagingDescriptor{{Source: "a", Target: "b"}},
		Output: []DataStagingDescriptor{{Source: "c", Target: "d"}},
		State:  StateDone, ExitCode: 0, Stdout: "out.txt", Stderr: "err.txt",
		CreatedAt: time.Now().Truncate(time.Second),
	}

	got := TaskFromDTO(orig.ToDTO())
	assert.Equal(t, orig, got)
}

func TestStageRoundTrip(t *testing.T) {
	task := &Task{ID: "t1", Executable: "/bin/echo", Args: []string{"hi"}, State: StateDone}
	orig := NewStage("s1", "p1", "stage one", []*Task{task})
	orig.State = StateDone

	got := StageFromDTO(orig.ToDTO())
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.State, got.State)
	assert.Equal(t, orig.Tasks[0].ID, got.Tasks[0].ID)
}

func TestPipelineRoundTrip(t *testing.T) {
	task := &Task{ID: "t1", Executable: "/bin/echo", Args: []string{"hi"}, State: StateInitial}
	stage := NewStage("s1", "p1", "", []*Task{task})
	orig := NewPipeline("p1", "pipeline one", []*Stage{stage})
	orig.FailurePolicy = Continue

	got := PipelineFromDTO(orig.ToDTO())
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.FailurePolicy, got.FailurePolicy)
	require.Len(t, got.Stages, 1)
}

func TestStageValidateRejectsEmpty(t *testing.T) {
	s := NewStage("s1", "p1", "", nil)
	assert.Error(t, s.Validate())
}

func TestPipelineValidateRejectsZeroStages(t *testing.T) {
	p := NewPipeline("p1", "", nil)
	assert.Error(t, p.Validate())
}

func TestStageAllTasksTerminal(t *testing.T) {
	t1 := &Task{ID: "t1", Executable: "/bin/echo", State: StateDone}
	t2 := &Task{ID: "t2", Executable: "/bin/echo", State: StateRunning}
	s := NewStage("s1", "p1", "", []*Task{t1, t2})
	assert.False(t, s.AllTasksTerminal())

	t2.State = StateFailed
	assert.True(t, s.AllTasksTerminal())
	assert.True(t, s.AnyTaskFailed())
}

func TestSyncMessageRoundTrip(t *testing.T) {
	msg := SyncMessage{Kind: EntityTask, Task: &TaskDTO{ID: "t1", State: StateSubmitted}}
	data, err := msg.MarshalJSON()
	require.NoError(t, err)

	var got SyncMessage
	require.NoError(t, got.UnmarshalJSON(data))
	assert.Equal(t, EntityTask, got.Kind)
	assert.Equal(t, "t1", got.UID())
	assert.Equal(t, StateSubmitted, got.Task.State)
}

func TestAdvancesMonotonic(t *testing.T) {
	assert.True(t, Advances(StateInitial, StateScheduling))
	assert.False(t, Advances(StateRunning, StateScheduling))
	assert.True(t, Advances(StateRunning, StateRunning))
	assert.True(t, Advances(StateRunning, StateFailed))
	assert.False(t, Advances(StateDone, StateFailed))
}
