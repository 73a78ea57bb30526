package types

// SyncProposer is the narrow interface a post-exec callback is given to
// mutate the workflow. Every method funnels through the sync-to-master
// protocol (propose, await ack) instead of mutating the tree directly, so
// the synchronizer remains the sole writer even when user code runs on the
// dequeuer thread. Implemented by pkg/workflowprocessor.
type SyncProposer interface {
	ProposeStage(pipeline *Pipeline, stage *Stage) error
	ProposeSuspend(pipeline *Pipeline) error
	ProposeResume(pipeline *Pipeline) error
	ProposePipelineDone(pipeline *Pipeline) error
}

// CallbackContext is passed to a Stage's PostExecFunc. It replaces
// free-form global mutable state (a process-wide "current new stage"
// variable and pipeline list) with an explicit, narrow surface scoped
// to the one pipeline whose stage just finished.
type CallbackContext struct {
	// Pipeline is the pipeline that owns the stage which just became
	// DONE. The caller (WorkflowProcessor dequeuer) does not hold
	// Pipeline.StageLock while the callback runs; every method here
	// takes the lock itself, only for as long as it takes to mutate
	// the tree, and proposes outside it. Proposals synchronously await
	// an ack from the synchronizer, which needs this same lock to
	// apply them — holding it across the wait would deadlock.
	Pipeline *Pipeline
	workflow *Workflow
	proposer SyncProposer
}

// NewCallbackContext builds a CallbackContext. wf is used only to look up
// other pipelines by id for Suspend/Resume.
func NewCallbackContext(p *Pipeline, wf *Workflow, proposer SyncProposer) *CallbackContext {
	return &CallbackContext{Pipeline: p, workflow: wf, proposer: proposer}
}

// AppendStage appends a new stage to the owning pipeline and proposes its
// INITIAL state to the synchronizer. Scenario S4 (adaptive pipelines)
// relies on this running before the pipeline is declared DONE.
func (c *CallbackContext) AppendStage(s *Stage) error {
	c.Pipeline.StageLock.Lock()
	c.Pipeline.AppendStage(s)
	c.Pipeline.StageLock.Unlock()
	return c.proposer.ProposeStage(c.Pipeline, s)
}

// LookupPipeline looks up another pipeline in the same workflow by id, for
// cross-pipeline coordination (scenario S5, suspend/resume).
func (c *CallbackContext) LookupPipeline(id string) (*Pipeline, bool) {
	return c.workflow.Pipeline(id)
}

// Suspend marks another pipeline suspended; the enqueuer will skip it
// within one pass. The flag is set under other.StageLock, which is
// released before the propose-and-await call below, since the
// synchronizer needs that same lock to apply the proposal and send its
// ack.
func (c *CallbackContext) Suspend(other *Pipeline) error {
	other.StageLock.Lock()
	other.SetSuspended(true)
	other.StageLock.Unlock()
	return c.proposer.ProposeSuspend(other)
}

// Resume clears another pipeline's suspension flag, with the same
// lock-then-release-then-propose ordering as Suspend.
func (c *CallbackContext) Resume(other *Pipeline) error {
	other.StageLock.Lock()
	other.SetSuspended(false)
	other.StageLock.Unlock()
	return c.proposer.ProposeResume(other)
}
