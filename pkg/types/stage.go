package types

import "fmt"

// PostExecFunc runs once, after a Stage becomes DONE, before the pipeline
// advances. It receives a *CallbackContext restricted to the builder-style
// API (AppendStage, LookupPipeline, Suspend, Resume) so that every mutation is routed
// back through the synchronizer instead of touching the tree directly; see
// pkg/synchronizer and design note "Dynamic post-exec callbacks".
type PostExecFunc func(ctx *CallbackContext)

// Stage is an unordered bag of tasks executed in parallel, occupying one
// ordered position inside a Pipeline.
type Stage struct {
	ID         string
	PipelineID string
	Name       string
	Tasks      []*Task
	PostExec   PostExecFunc
	State      State

	postExecFired bool
}

// NewStage constructs a Stage; an empty stage is invalid and is
// rejected by Pipeline.Validate, not here, so that callers can still
// build one up incrementally.
func NewStage(id, pipelineID, name string, tasks []*Task) *Stage {
	return &Stage{ID: id, PipelineID: pipelineID, Name: name, Tasks: tasks, State: StateInitial}
}

// Validate checks the invariant that a stage must contain at least one
// task with an executable.
func (s *Stage) Validate() error {
	if len(s.Tasks) == 0 {
		return fmt.Errorf("stage %s: empty stage is not allowed", s.ID)
	}
	for _, t := range s.Tasks {
		if t.Executable == "" {
			return fmt.Errorf("stage %s: task %s has no executable", s.ID, t.ID)
		}
	}
	return nil
}

// AllTasksTerminal reports whether every task in the stage has reached a
// terminal state (DONE or FAILED). A stage is DONE only when this holds.
func (s *Stage) AllTasksTerminal() bool {
	if len(s.Tasks) == 0 {
		return false
	}
	for _, t := range s.Tasks {
		if !t.State.IsTerminal() {
			return false
		}
	}
	return true
}

// AnyTaskFailed reports whether at least one task in the stage ended in
// FAILED.
func (s *Stage) AnyTaskFailed() bool {
	for _, t := range s.Tasks {
		if t.State == StateFailed {
			return true
		}
	}
	return false
}

// PostExecFired reports whether PostExec has already run for this
// stage. Callers must hold the owning pipeline's StageLock.
func (s *Stage) PostExecFired() bool {
	return s.postExecFired
}

// MarkPostExecFired records that PostExec has run, so a stage message
// redelivered after an ack timeout never fires the callback twice.
// Callers must hold the owning pipeline's StageLock.
func (s *Stage) MarkPostExecFired() {
	s.postExecFired = true
}

// StageDTO is the wire representation of Stage. PostExec is not
// serializable and never crosses the wire; it lives only in the AppManager
// process that owns the workflow.
type StageDTO struct {
	ID         string    `json:"uid"`
	PipelineID string    `json:"pipeline_uid"`
	Name       string    `json:"name,omitempty"`
	Tasks      []TaskDTO `json:"tasks,omitempty"`
	State      State     `json:"state"`
}

// ToDTO serializes a Stage to its wire form.
func (s *Stage) ToDTO() *StageDTO {
	dto := &StageDTO{ID: s.ID, PipelineID: s.PipelineID, Name: s.Name, State: s.State}
	for _, t := range s.Tasks {
		dto.Tasks = append(dto.Tasks, *t.ToDTO())
	}
	return dto
}

// StageFromDTO reconstructs a Stage from its wire form. The resulting
// Stage has no PostExec; callers that need one must attach it separately
// (only the AppManager, which owns the original Stage object, has it).
func StageFromDTO(d *StageDTO) *Stage {
	s := &Stage{ID: d.ID, PipelineID: d.PipelineID, Name: d.Name, State: d.State}
	for i := range d.Tasks {
		s.Tasks = append(s.Tasks, TaskFromDTO(&d.Tasks[i]))
	}
	return s
}

// ApplyDTO mutates s's own fields from d (state only; tasks are mutated
// individually by the synchronizer, which already holds pointers to the
// authoritative Task instances).
func (s *Stage) ApplyDTO(d *StageDTO) {
	s.State = d.State
}
