package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wilkinson/radical.entk/pkg/log"
	"github.com/wilkinson/radical.entk/pkg/rts"
	"github.com/wilkinson/radical.entk/pkg/types"
)

// LocalRTS runs each task as a local OS process via os/exec. It is a
// reference RTS implementation, generalized from a container-lifecycle
// worker loop (pull → create → start → monitor), collapsed here to
// resolve → start → wait → record since there is no image or
// containerd runtime involved.
type LocalRTS struct {
	workDir     string
	transitions chan rts.Transition

	mu      sync.Mutex
	running map[string]*exec.Cmd // handle -> running process
}

// NewLocalRTS creates a LocalRTS that writes per-task stdout/stderr
// files under workDir.
func NewLocalRTS(workDir string) *LocalRTS {
	return &LocalRTS{
		workDir:     workDir,
		transitions: make(chan rts.Transition, 64),
		running:     make(map[string]*exec.Cmd),
	}
}

// Transitions returns the channel TaskManager ranges over.
func (l *LocalRTS) Transitions() <-chan rts.Transition {
	return l.transitions
}

// Submit spawns one goroutine per task, each running the task's
// pre_exec/executable/post_exec sequence as a shell command. The
// reservationHandle is accepted for interface symmetry but unused: a
// local reservation (see Reservation) never constrains anything.
func (l *LocalRTS) Submit(ctx context.Context, reservationHandle string, tasks []*types.Task) (map[string]string, error) {
	handles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		handle := uuid.NewString()
		handles[t.ID] = handle
		go l.runTask(ctx, t, handle)
	}
	return handles, nil
}

// Cancel kills the running process behind handle, if still running.
func (l *LocalRTS) Cancel(ctx context.Context, handle string) error {
	l.mu.Lock()
	cmd, ok := l.running[handle]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (l *LocalRTS) runTask(ctx context.Context, t *types.Task, handle string) {
	logger := log.WithTaskID(t.ID)
	l.transitions <- rts.Transition{TaskID: t.ID, Handle: handle, State: types.StateRunning}

	stdoutPath := filepath.Join(l.workDir, t.ID+".out")
	stderrPath := filepath.Join(l.workDir, t.ID+".err")
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		l.fail(t.ID, handle, fmt.Sprintf("open stdout: %v", err))
		return
	}
	defer stdout.Close()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		l.fail(t.ID, handle, fmt.Sprintf("open stderr: %v", err))
		return
	}
	defer stderr.Close()

	script := buildScript(t)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	l.mu.Lock()
	l.running[handle] = cmd
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.running, handle)
		l.mu.Unlock()
	}()

	logger.Debug().Str("handle", handle).Msg("starting local task")
	runErr := cmd.Run()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		l.transitions <- rts.Transition{
			TaskID: t.ID, Handle: handle, State: types.StateFailed,
			ExitCode: exitCode, Stdout: stdoutPath, Stderr: stderrPath,
			Error: runErr.Error(),
		}
		return
	}
	l.transitions <- rts.Transition{
		TaskID: t.ID, Handle: handle, State: types.StateDone,
		ExitCode: exitCode, Stdout: stdoutPath, Stderr: stderrPath,
	}
}

func (l *LocalRTS) fail(taskID, handle, msg string) {
	l.transitions <- rts.Transition{TaskID: taskID, Handle: handle, State: types.StateFailed, Error: msg}
}

// buildScript joins pre_exec, the executable invocation, and post_exec
// into a single shell script, failing fast (set -e) so a pre_exec
// failure never masks itself as the main command's own exit code.
func buildScript(t *types.Task) string {
	var b []string
	b = append(b, "set -e")
	if t.PreExec != "" {
		b = append(b, t.PreExec)
	}
	b = append(b, shellQuoteCommand(t.Executable, t.Args))
	if t.PostExec != "" {
		b = append(b, t.PostExec)
	}
	return strings.Join(b, "\n")
}

func shellQuoteCommand(executable string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(executable))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
