/*
Package taskmanager implements the Task Manager: the long-running child
process that pulls batches of tasks off pending-* queues, submits them
to the configured RTS, proposes every observed state transition to the
synchronizer, and publishes terminal tasks onto completed-*.

A TaskManager process hosts two concurrent loops, one driving task
submission and one consuming RTS transitions: TaskManager.Run's
main loop polls pending-* round-robin and drives RTS.Submit, while
consumeTransitions ranges over RTS.Transitions() for the process
lifetime. HeartbeatResponder runs as a third loop, independent of
both, answering the AppManager's liveness probes.

The TaskManager never retries a failed task itself; an RTS-reported
failure becomes a FAILED state proposal like any other transition.
Recovery from a dead TaskManager process is the AppManager's
responsibility (durable queues mean a respawned TaskManager picks up
unacked work without coordination).
*/
package taskmanager
