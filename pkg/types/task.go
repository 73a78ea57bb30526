package types

import "time"

// DataStagingDescriptor names a single input or output file to be staged
// by the RTS; the engine itself never touches task data, that I/O is
// delegated entirely to the RTS implementation.
type DataStagingDescriptor struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Action string `json:"action,omitempty"` // "copy", "link", "move"; default "copy"
}

// Task is the atomic unit of scheduling: a single executable invocation.
// Created by user code; mutated exclusively by the synchronizer on behalf
// of TaskManager/WorkflowProcessor messages; destroyed only when the
// owning AppManager terminates.
type Task struct {
	ID         string
	StageID    string
	PipelineID string
	Name       string

	Executable string
	Args       []string
	PreExec    string
	PostExec   string

	CPUReqs int
	GPUReqs int

	Input  []DataStagingDescriptor
	Output []DataStagingDescriptor

	State State

	// ResubmitCount tracks how many times this task has been republished
	// to pending-* under a Resubmit FailurePolicy. Reset is never
	// needed: a task that finally succeeds never consults it again.
	ResubmitCount int

	RTSHandle string
	ExitCode  int
	Stdout    string
	Stderr    string
	Error     string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// TaskDTO is the wire representation of Task carried in pending-*/
// completed-* queue messages and in sync-to-master proposals.
type TaskDTO struct {
	ID         string                  `json:"uid"`
	StageID    string                  `json:"stage_uid"`
	PipelineID string                  `json:"pipeline_uid"`
	Name       string                  `json:"name,omitempty"`
	Executable string                  `json:"executable"`
	Args       []string                `json:"arguments,omitempty"`
	PreExec    string                  `json:"pre_exec,omitempty"`
	PostExec   string                  `json:"post_exec,omitempty"`
	CPUReqs    int                     `json:"cpu_reqs,omitempty"`
	GPUReqs    int                     `json:"gpu_reqs,omitempty"`
	Input      []DataStagingDescriptor `json:"input_data,omitempty"`
	Output     []DataStagingDescriptor `json:"output_data,omitempty"`
	State      State                   `json:"state"`
	ResubmitCount int                  `json:"resubmit_count,omitempty"`
	ExitCode   int                     `json:"exit_code"`
	Stdout     string                  `json:"stdout,omitempty"`
	Stderr     string                  `json:"stderr,omitempty"`
	Error      string                  `json:"error,omitempty"`
	CreatedAt  time.Time               `json:"created_at,omitempty"`
	StartedAt  time.Time               `json:"started_at,omitempty"`
	FinishedAt time.Time               `json:"finished_at,omitempty"`
}

// ToDTO serializes a Task to its wire form.
func (t *Task) ToDTO() *TaskDTO {
	return &TaskDTO{
		ID: t.ID, StageID: t.StageID, PipelineID: t.PipelineID, Name: t.Name,
		Executable: t.Executable, Args: t.Args, PreExec: t.PreExec, PostExec: t.PostExec,
		CPUReqs: t.CPUReqs, GPUReqs: t.GPUReqs, Input: t.Input, Output: t.Output,
		State: t.State, ResubmitCount: t.ResubmitCount, ExitCode: t.ExitCode,
		Stdout: t.Stdout, Stderr: t.Stderr, Error: t.Error,
		CreatedAt: t.CreatedAt, StartedAt: t.StartedAt, FinishedAt: t.FinishedAt,
	}
}

// TaskFromDTO reconstructs a Task from its wire form.
func TaskFromDTO(d *TaskDTO) *Task {
	return &Task{
		ID: d.ID, StageID: d.StageID, PipelineID: d.PipelineID, Name: d.Name,
		Executable: d.Executable, Args: d.Args, PreExec: d.PreExec, PostExec: d.PostExec,
		CPUReqs: d.CPUReqs, GPUReqs: d.GPUReqs, Input: d.Input, Output: d.Output,
		State: d.State, ResubmitCount: d.ResubmitCount, ExitCode: d.ExitCode,
		Stdout: d.Stdout, Stderr: d.Stderr, Error: d.Error,
		CreatedAt: d.CreatedAt, StartedAt: d.StartedAt, FinishedAt: d.FinishedAt,
	}
}

// ApplyDTO mutates t in place from d, mirroring attributes the synchronizer
// is allowed to update (state, path, exit code) without discarding the
// rest of the entity's identity.
func (t *Task) ApplyDTO(d *TaskDTO) {
	t.State = d.State
	t.ResubmitCount = d.ResubmitCount
	t.ExitCode = d.ExitCode
	if d.Stdout != "" {
		t.Stdout = d.Stdout
	}
	if d.Stderr != "" {
		t.Stderr = d.Stderr
	}
	if d.Error != "" {
		t.Error = d.Error
	}
	if !d.StartedAt.IsZero() {
		t.StartedAt = d.StartedAt
	}
	if !d.FinishedAt.IsZero() {
		t.FinishedAt = d.FinishedAt
	}
}
