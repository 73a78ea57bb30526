package rts

import (
	"context"

	"github.com/wilkinson/radical.entk/pkg/types"
)

// Transition reports an observed change in a task's execution state,
// the shape TaskManager's main loop consumes to publish sync-to-master
// updates.
type Transition struct {
	TaskID   string
	Handle   string
	State    types.State
	ExitCode int
	Stdout   string
	Stderr   string
	Error    string
}

// RTS is the abstract contract a concrete Runtime/Resource/Task
// Scheduling backend (cluster scheduler, batch system, cloud API) must
// satisfy. The engine's control plane depends only on this interface;
// the out-of-scope concrete RTS implementations are expected to live
// outside this module. pkg/rts/local is a reference implementation used
// to exercise and test the control plane end to end.
type RTS interface {
	// Submit hands a batch of tasks to the RTS for execution under the
	// reservation identified by reservationHandle, returning the
	// RTS-assigned handle per task uid.
	Submit(ctx context.Context, reservationHandle string, tasks []*types.Task) (handles map[string]string, err error)

	// Cancel requests cancellation of a still-running task.
	Cancel(ctx context.Context, handle string) error

	// Transitions returns the channel of observed task state changes.
	// The caller (TaskManager) ranges over it for the lifetime of the
	// RTS.
	Transitions() <-chan Transition
}
