package types

import (
	"fmt"
	"sync"
)

// Workflow is an unordered set of Pipelines, fixed at assignment time:
// pipelines cannot be added or removed once Run starts, though their
// stage sequences may grow (AppendStage).
type Workflow struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewWorkflow builds a Workflow from one or more pipelines.
func NewWorkflow(pipelines ...*Pipeline) *Workflow {
	wf := &Workflow{pipelines: make(map[string]*Pipeline, len(pipelines))}
	for _, p := range pipelines {
		wf.pipelines[p.ID] = p
	}
	return wf
}

// Validate checks every pipeline's invariants (non-empty stages, every
// task has an executable).
func (w *Workflow) Validate() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.pipelines) == 0 {
		return fmt.Errorf("workflow: no pipelines assigned")
	}
	for id, p := range w.pipelines {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("workflow: pipeline %s: %w", id, err)
		}
	}
	return nil
}

// Pipeline looks up a pipeline by id.
func (w *Workflow) Pipeline(id string) (*Pipeline, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.pipelines[id]
	return p, ok
}

// Pipelines returns a stable snapshot of all pipelines.
func (w *Workflow) Pipelines() []*Pipeline {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Pipeline, 0, len(w.pipelines))
	for _, p := range w.pipelines {
		out = append(out, p)
	}
	return out
}

// AllComplete reports whether every pipeline has reached a terminal state
// (DONE or FAILED). Each pipeline is snapshotted under its own StageLock.
func (w *Workflow) AllComplete() bool {
	for _, p := range w.Pipelines() {
		p.StageLock.Lock()
		state := p.State
		p.StageLock.Unlock()
		if !state.IsTerminal() {
			return false
		}
	}
	return true
}
