package broker

import "fmt"

// Queue names follow the session-scoped convention: every queue,
// sync-to-master included, is prefixed with the session id so that two
// AppManager sessions against the same broker never cross-talk.

// PendingQueue names the queue a TaskManager consumes ready tasks from
// for pipeline pipelineID within session sessionID.
func PendingQueue(sessionID, pipelineID string) string {
	return fmt.Sprintf("%s-pending-%s", sessionID, pipelineID)
}

// CompletedQueue names the queue a TaskManager publishes terminal task
// updates to, consumed by the WorkflowProcessor dequeuer.
func CompletedQueue(sessionID, pipelineID string) string {
	return fmt.Sprintf("%s-completed-%s", sessionID, pipelineID)
}

// SyncToMaster names the single synchronizer input queue shared by every
// pipeline in the session.
func SyncToMaster(sessionID string) string {
	return fmt.Sprintf("%s-sync-to-master", sessionID)
}

// Sync-to-master client role tags, used to build a dedicated ack queue
// per publisher so acks never get stolen by the wrong consumer.
const (
	RoleEnqueuer = "enq"
	RoleDequeuer = "deq"
	RoleTaskMgr  = "tmgr"
	RoleAppMgr   = "appmgr"
)

// SyncAckQueue names the reply-to queue a sync-to-master publisher
// listens on for its own ack.
func SyncAckQueue(sessionID, role string) string {
	return fmt.Sprintf("%s-sync-ack-%s", sessionID, role)
}

// HeartbeatRequestQueue names the queue AppManager publishes heartbeat
// probes to for the component identified by componentID (a TaskManager
// or WorkflowProcessor instance id).
func HeartbeatRequestQueue(sessionID, componentID string) string {
	return fmt.Sprintf("%s-%s-hb-request", sessionID, componentID)
}

// HeartbeatResponseQueue names the queue the probed component answers on.
func HeartbeatResponseQueue(sessionID, componentID string) string {
	return fmt.Sprintf("%s-%s-hb-response", sessionID, componentID)
}
