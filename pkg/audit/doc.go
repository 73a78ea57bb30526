/*
Package audit provides an embedded, append-only diagnostic log of the
commands the synchronizer applies to the workflow tree.

It uses BoltDB (bbolt) purely as a local sequential log file, not as the
source of truth for workflow state: a Task/Stage/Pipeline's authoritative
state lives only in the in-memory tree owned by AppManager, and this log
is never read back to reconstruct it after a restart. Its only consumer
is an operator asking "what did the synchronizer apply, and when" after
a run misbehaves.

# Usage

	log, _ := audit.NewBoltLog(dataDir)
	defer log.Close()

	log.Append(audit.Record{Kind: "Task", UID: t.ID, State: string(t.State)})

	recent, _ := log.Recent(50)
*/
package audit
