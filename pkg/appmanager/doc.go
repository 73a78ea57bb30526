/*
Package appmanager implements the AppManager: the process that owns a
single workflow execution end to end.

On construction it dials the broker, opens the BoltDB audit log, and
declares every queue the session will ever use: sync-to-master, one
ack queue per proposer role, and a pending/completed pair per
pipeline; each TaskManager's heartbeat request/response pair is
declared when that TaskManager is spawned. If the workflow manifest named a resource reservation, New
also validates the descriptor and builds a *rm.ResourceManager bound to
the caller-supplied RTSReservation. Run submits that reservation first
(a no-op when none was configured), then starts the synchronizer and
the WorkflowProcessor's enqueuer and dequeuer as goroutines sharing the
same *types.Workflow pointer, spawns the configured number of
TaskManager instances, and starts a supervision loop that probes each
one's heartbeat queue on a fixed interval and respawns it after enough
consecutive misses.

TaskManager instances run one of two ways, chosen by Config.Embedded:
as a goroutine sharing this process's RTS (local/dev runs, where
there is nothing to isolate a crash from), or as a forked OS process
re-invoking the same binary's hidden `__tm` subcommand (production,
where a TaskManager crash must not take the AppManager's synchronizer
down with it). This split mirrors Warren's own manager/worker process
boundary: the manager never runs workload containers in its own
process, just as the AppManager never runs task execution in-process
in production mode.

Run blocks until every pipeline reaches a terminal state or its
context is canceled, then shuts every component down in order:
supervisor, synchronizer, WorkflowProcessor, TaskManager processes,
audit log, broker connection.
*/
package appmanager
