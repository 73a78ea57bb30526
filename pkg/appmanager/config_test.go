package appmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wilkinson/radical.entk/pkg/types"
)

func fixtureWorkflow() *types.Workflow {
	task := &types.Task{ID: "t1", StageID: "s1", PipelineID: "p1", Executable: "/bin/echo", State: types.StateInitial}
	stage := types.NewStage("s1", "p1", "s", []*types.Task{task})
	pipeline := types.NewPipeline("p1", "p", []*types.Stage{stage})
	return types.NewWorkflow(pipeline)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	assert.Equal(t, 1, c.taskManagers())
	assert.Equal(t, 5*time.Second, c.heartbeatInterval())
	assert.Equal(t, 10*time.Second, c.heartbeatTimeout())
	assert.Equal(t, 3, c.maxMissedBeats())
}

func TestConfigOverrides(t *testing.T) {
	c := Config{
		TaskManagers:      4,
		HeartbeatInterval: time.Second,
		HeartbeatTimeout:  3 * time.Second,
		MaxMissedBeats:    5,
		TMBinary:          "/usr/local/bin/entk",
	}
	assert.Equal(t, 4, c.taskManagers())
	assert.Equal(t, time.Second, c.heartbeatInterval())
	assert.Equal(t, 3*time.Second, c.heartbeatTimeout())
	assert.Equal(t, 5, c.maxMissedBeats())
	assert.Equal(t, "/usr/local/bin/entk", c.tmBinary())
}

func TestConfigTMBinaryDefaultsToArgv0(t *testing.T) {
	var c Config
	assert.NotEmpty(t, c.tmBinary())
}

func TestNewRejectsNilWorkflow(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewRejectsEmbeddedWithoutRTS(t *testing.T) {
	_, err := New(Config{Workflow: fixtureWorkflow(), Embedded: true})
	assert.ErrorContains(t, err, "embedded mode requires an RTS")
}

