package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wilkinson/radical.entk/pkg/rts"
	"github.com/wilkinson/radical.entk/pkg/types"
)

func awaitTransition(t *testing.T, ch <-chan rts.Transition, state types.State) rts.Transition {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tr := <-ch:
			if tr.State == state {
				return tr
			}
		case <-deadline:
			t.Fatalf("timed out waiting for transition to %s", state)
		}
	}
}

func TestLocalRTSRunsTaskToDone(t *testing.T) {
	l := NewLocalRTS(t.TempDir())
	task := &types.Task{ID: "t1", Executable: "/bin/echo", Args: []string{"hi"}}

	handles, err := l.Submit(context.Background(), "res-1", []*types.Task{task})
	require.NoError(t, err)
	require.Contains(t, handles, "t1")

	awaitTransition(t, l.Transitions(), types.StateRunning)
	done := awaitTransition(t, l.Transitions(), types.StateDone)
	require.Equal(t, 0, done.ExitCode)
	require.Equal(t, "t1", done.TaskID)
}

func TestLocalRTSFailsOnNonZeroExit(t *testing.T) {
	l := NewLocalRTS(t.TempDir())
	task := &types.Task{ID: "t2", Executable: "/bin/sh", Args: []string{"-c", "exit 3"}}

	_, err := l.Submit(context.Background(), "res-1", []*types.Task{task})
	require.NoError(t, err)

	awaitTransition(t, l.Transitions(), types.StateRunning)
	failed := awaitTransition(t, l.Transitions(), types.StateFailed)
	require.NotZero(t, failed.ExitCode)
}

func TestReservationLifecycle(t *testing.T) {
	r := NewReservation(t.TempDir())
	handle, err := r.Submit(context.Background(), &types.ResourceDescriptor{Resource: "local", Walltime: 1, Cores: 1})
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	state, err := r.State(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, types.AllocationActive, state)

	require.NoError(t, r.Cancel(context.Background(), handle))
	state, err = r.State(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, types.AllocationCanceled, state)
}
