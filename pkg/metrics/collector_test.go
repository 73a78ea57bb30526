package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/wilkinson/radical.entk/pkg/types"
)

func TestCollectorSnapshotsEntityCounts(t *testing.T) {
	task := &types.Task{ID: "t1", Executable: "/bin/echo", State: types.StateRunning}
	stage := types.NewStage("s1", "p1", "", []*types.Task{task})
	stage.State = types.StateRunning
	pipeline := types.NewPipeline("p1", "p", []*types.Stage{stage})
	pipeline.State = types.StateRunning
	wf := types.NewWorkflow(pipeline)

	c := NewCollector(wf)
	c.collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(TasksTotal.WithLabelValues("RUNNING")))
	assert.Equal(t, float64(1), testutil.ToFloat64(StagesTotal.WithLabelValues("RUNNING")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PipelinesTotal.WithLabelValues("RUNNING")))
}

func TestCollectorStartStop(t *testing.T) {
	wf := types.NewWorkflow(types.NewPipeline("p1", "p", []*types.Stage{
		types.NewStage("s1", "p1", "", []*types.Task{{ID: "t1", Executable: "/bin/echo"}}),
	}))
	c := NewCollector(wf)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
