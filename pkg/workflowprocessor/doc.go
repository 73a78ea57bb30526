/*
Package workflowprocessor implements the WorkflowProcessor: the pair of
workers that move tasks between a pipeline's stages and the broker.

The Enqueuer walks every pipeline looking for a stage that is ready to
run (its predecessor is DONE and it is itself still INITIAL), publishes
its tasks to pending-<pipelineID>, and proposes the SCHEDULING
transition for each task and the stage itself. It backs off
exponentially between passes when a pass makes no progress.

The Dequeuer drains completed-<pipelineID>, re-proposes each task's
terminal state (a harmless no-op if the TaskManager already proposed
it), and once every task in a stage is terminal, advances the stage
according to the pipeline's FailurePolicy: FailStage propagates the
failure to the stage and pipeline, Continue lets the stage finish DONE
regardless of individual task failures, and Resubmit republishes failed
tasks up to MaxResubmits times before falling back to FailStage. A
stage's PostExecFunc, if any, fires exactly once, guarded by
Stage.PostExecFired/MarkPostExecFired so a redelivered completion
message can never fire it twice.

Unlike the TaskManager, which never touches the workflow tree and so
can run as a genuinely separate OS process, the WorkflowProcessor
shares the AppManager's *types.Workflow pointer directly: PostExecFunc
is a Go closure supplied by user code, and closures cannot be
serialized across a process boundary. Both workers still respect the
single-writer invariant by never mutating .State fields themselves —
every mutation is proposed to the synchronizer and only read back after
the synchronous propose-and-await-ack round trip returns.
*/
package workflowprocessor
