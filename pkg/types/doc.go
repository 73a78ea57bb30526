// Package types defines the workflow data model shared by every component
// of the engine: tasks, stages, pipelines, and the workflow that owns them,
// plus the state machine all three share and the wire DTOs used on the
// sync-to-master and queue protocols.
//
// The Application Manager owns the object graph. The synchronizer,
// enqueuer and dequeuer run in the AppManager process and share its
// *Workflow pointer, serializing access through each pipeline's
// StageLock; task managers hold these types only via JSON snapshots
// carried in broker messages. See pkg/synchronizer for the single writer.
package types
