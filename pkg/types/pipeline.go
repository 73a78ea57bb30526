package types

import (
	"fmt"
	"sync"
)

// FailurePolicy controls what happens to a pipeline when one of its tasks
// ends in FAILED. Configurable per pipeline; see DESIGN.md.
type FailurePolicy string

const (
	// FailStage fails the owning stage (and transitively the pipeline)
	// once every task in it is terminal and any of them failed. Default.
	FailStage FailurePolicy = "fail_stage"
	// Continue lets the stage finish DONE even if some tasks failed; the
	// post-exec callback observes the failures and decides what to do.
	Continue FailurePolicy = "continue"
	// Resubmit re-publishes a failed task to pending-* up to MaxResubmits
	// times before falling back to FailStage behavior.
	Resubmit FailurePolicy = "resubmit"
)

// Pipeline is a finite ordered sequence of stages executed serially. New
// stages may be appended at runtime by a post-exec callback;
// the order of stages already present is immutable.
type Pipeline struct {
	ID   string
	Name string

	Stages      []*Stage
	ActiveIndex int
	State       State

	FailurePolicy FailurePolicy
	MaxResubmits  int

	suspended bool
	done      chan struct{}
	doneOnce  sync.Once

	// StageLock serializes all reads and writes of this pipeline's
	// stage/task subtree. The enqueuer and dequeuer acquire it before
	// walking the tree; the synchronizer acquires it before mutating.
	StageLock sync.Mutex
}

// NewPipeline constructs a Pipeline ready to run. An empty pipeline (zero
// stages) is invalid; see Validate.
func NewPipeline(id, name string, stages []*Stage) *Pipeline {
	return &Pipeline{
		ID:            id,
		Name:          name,
		Stages:        stages,
		State:         StateInitial,
		FailurePolicy: FailStage,
		done:          make(chan struct{}),
	}
}

// Validate rejects a pipeline of zero stages; every stage must itself
// validate (non-empty, executables present).
func (p *Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %s: zero stages is not allowed", p.ID)
	}
	for _, s := range p.Stages {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Done returns the pipeline's completion signal, closed exactly once when
// the pipeline reaches a terminal state.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// SignalDone closes the completion channel. Safe to call more than once.
func (p *Pipeline) SignalDone() {
	p.doneOnce.Do(func() { close(p.done) })
}

// IsSuspended reports the suspension flag. Callers must hold StageLock.
func (p *Pipeline) IsSuspended() bool {
	return p.suspended
}

// SetSuspended sets the suspension flag. Callers must hold StageLock.
func (p *Pipeline) SetSuspended(v bool) {
	p.suspended = v
}

// ActiveStage returns the first non-DONE stage, or nil if every stage is
// DONE (the pipeline itself is then complete).
func (p *Pipeline) ActiveStage() *Stage {
	for _, s := range p.Stages[p.ActiveIndex:] {
		if s.State != StateDone {
			return s
		}
		p.ActiveIndex++
	}
	return nil
}

// AppendStage appends a new stage to the pipeline. Callers must hold
// StageLock; this only mutates the in-memory slice, it does not publish a
// sync-to-master proposal — that is the caller's (CallbackContext's)
// responsibility so every mutation still funnels through the synchronizer
// protocol.
func (p *Pipeline) AppendStage(s *Stage) {
	p.Stages = append(p.Stages, s)
}

// PipelineDTO is the wire representation of Pipeline.
type PipelineDTO struct {
	ID            string        `json:"uid"`
	Name          string        `json:"name,omitempty"`
	Stages        []StageDTO    `json:"stages,omitempty"`
	ActiveIndex   int           `json:"active_index"`
	State         State         `json:"state"`
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty"`
	MaxResubmits  int           `json:"max_resubmits,omitempty"`
	Suspended     bool          `json:"suspended"`
}

// ToDTO serializes a Pipeline to its wire form. Callers must hold
// StageLock.
func (p *Pipeline) ToDTO() *PipelineDTO {
	dto := &PipelineDTO{
		ID: p.ID, Name: p.Name, ActiveIndex: p.ActiveIndex, State: p.State,
		FailurePolicy: p.FailurePolicy, MaxResubmits: p.MaxResubmits, Suspended: p.suspended,
	}
	for _, s := range p.Stages {
		dto.Stages = append(dto.Stages, *s.ToDTO())
	}
	return dto
}

// PipelineFromDTO reconstructs a Pipeline from its wire form. The result
// has no PostExec callbacks attached (see StageFromDTO) and is meant for
// transport/inspection, not as the authoritative in-AM object.
func PipelineFromDTO(d *PipelineDTO) *Pipeline {
	p := &Pipeline{
		ID: d.ID, Name: d.Name, ActiveIndex: d.ActiveIndex, State: d.State,
		FailurePolicy: d.FailurePolicy, MaxResubmits: d.MaxResubmits,
		suspended: d.Suspended, done: make(chan struct{}),
	}
	for i := range d.Stages {
		p.Stages = append(p.Stages, StageFromDTO(&d.Stages[i]))
	}
	return p
}

// ApplyDTO mutates p's own scalar fields from d. Callers must hold
// StageLock. Stage/Task objects are mutated individually by the
// synchronizer, which holds pointers to the authoritative instances.
func (p *Pipeline) ApplyDTO(d *PipelineDTO) {
	p.State = d.State
	p.ActiveIndex = d.ActiveIndex
	p.suspended = d.Suspended
}
