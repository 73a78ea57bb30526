package audit

import "time"

// Record is one synchronizer-applied command, kept for post-mortem
// inspection. It is not the authoritative workflow state and is never
// read back to reconstruct a Workflow; it exists purely so an operator
// can answer "what did the synchronizer apply, and when" after the
// fact.
type Record struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // "Task", "Stage", "Pipeline"
	UID       string    `json:"uid"`
	State     string    `json:"state"`
}

// Log appends synchronizer-applied commands and serves them back for
// diagnostics.
type Log interface {
	Append(r Record) error
	Recent(n int) ([]Record, error)
	Close() error
}
