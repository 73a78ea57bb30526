package metrics

import (
	"time"

	"github.com/wilkinson/radical.entk/pkg/types"
)

// Collector periodically snapshots a Workflow's entity counts into the
// gauge metrics. It never mutates the workflow; every pipeline is read
// under its own StageLock for the duration of one snapshot.
type Collector struct {
	workflow *types.Workflow
	stopCh   chan struct{}
}

// NewCollector creates a metrics collector for wf.
func NewCollector(wf *types.Workflow) *Collector {
	return &Collector{workflow: wf, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every 15 seconds, in a background
// goroutine, until Stop is called.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	taskCounts := make(map[types.State]int)
	stageCounts := make(map[types.State]int)
	pipelineCounts := make(map[types.State]int)

	for _, p := range c.workflow.Pipelines() {
		p.StageLock.Lock()
		pipelineCounts[p.State]++
		for _, s := range p.Stages {
			stageCounts[s.State]++
			for _, t := range s.Tasks {
				taskCounts[t.State]++
			}
		}
		p.StageLock.Unlock()
	}

	for state, count := range taskCounts {
		TasksTotal.WithLabelValues(string(state)).Set(float64(count))
	}
	for state, count := range stageCounts {
		StagesTotal.WithLabelValues(string(state)).Set(float64(count))
	}
	for state, count := range pipelineCounts {
		PipelinesTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}
