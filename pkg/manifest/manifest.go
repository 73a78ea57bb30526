// Package manifest decodes a YAML workflow description into the
// in-memory types.Workflow tree the AppManager runs. It is the engine's
// equivalent of a Warren compose file, grounded on the same
// yaml.v3-tag-per-field decoding style.
package manifest

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/wilkinson/radical.entk/pkg/types"
	"gopkg.in/yaml.v3"
)

// Manifest is the top-level document: a named workflow made of one or
// more pipelines, each a serial list of stages, each a parallel bag of
// tasks.
type Manifest struct {
	Name      string             `yaml:"name"`
	Resource  *ResourceManifest  `yaml:"resource,omitempty"`
	Pipelines []PipelineManifest `yaml:"pipelines"`
}

// ResourceManifest describes the single reservation request the engine
// submits to the Resource Manager before any TaskManager starts pulling
// work. Optional: a manifest with no resource block runs its tasks
// without ever reserving anything, which is all the local RTS needs.
type ResourceManifest struct {
	Resource     string                       `yaml:"resource"`
	Walltime     int                          `yaml:"walltime"`
	Cores        int                          `yaml:"cores"`
	Project      string                       `yaml:"project,omitempty"`
	Queue        string                       `yaml:"queue,omitempty"`
	AccessSchema string                       `yaml:"access_schema,omitempty"`
	GPUs         int                          `yaml:"gpus,omitempty"`
	SharedData   []types.SharedDataDescriptor `yaml:"shared_data,omitempty"`
}

// Descriptor converts the manifest's resource block into the descriptor
// the Resource Manager validates and submits.
func (r *ResourceManifest) Descriptor() *types.ResourceDescriptor {
	return &types.ResourceDescriptor{
		Resource: r.Resource, Walltime: r.Walltime, Cores: r.Cores,
		Project: r.Project, Queue: r.Queue, AccessSchema: r.AccessSchema, GPUs: r.GPUs,
	}
}

type PipelineManifest struct {
	Name          string          `yaml:"name"`
	FailurePolicy string          `yaml:"failure_policy,omitempty"` // fail_stage (default), continue, resubmit
	MaxResubmits  int             `yaml:"max_resubmits,omitempty"`
	Stages        []StageManifest `yaml:"stages"`
}

type StageManifest struct {
	Name  string         `yaml:"name"`
	Tasks []TaskManifest `yaml:"tasks"`
}

type TaskManifest struct {
	Name       string                        `yaml:"name"`
	Executable string                        `yaml:"executable"`
	Args       []string                      `yaml:"args,omitempty"`
	PreExec    string                        `yaml:"pre_exec,omitempty"`
	PostExec   string                        `yaml:"post_exec,omitempty"`
	CPUReqs    int                           `yaml:"cpu_reqs,omitempty"`
	GPUReqs    int                           `yaml:"gpu_reqs,omitempty"`
	Input      []types.DataStagingDescriptor `yaml:"input,omitempty"`
	Output     []types.DataStagingDescriptor `yaml:"output,omitempty"`
}

// Load reads and decodes a manifest file from path.
func Load(path string) (*Manifest, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return &m, nil
}

// ToWorkflow builds a types.Workflow from the manifest, generating a
// fresh uuid for every pipeline/stage/task id so two runs of the same
// manifest never collide on the broker.
func (m *Manifest) ToWorkflow() (*types.Workflow, error) {
	if len(m.Pipelines) == 0 {
		return nil, fmt.Errorf("manifest %q: no pipelines defined", m.Name)
	}

	pipelines := make([]*types.Pipeline, 0, len(m.Pipelines))
	for _, pm := range m.Pipelines {
		stages := make([]*types.Stage, 0, len(pm.Stages))
		pipelineID := uuid.NewString()
		for _, sm := range pm.Stages {
			tasks := make([]*types.Task, 0, len(sm.Tasks))
			stageID := uuid.NewString()
			for _, tm := range sm.Tasks {
				if tm.Executable == "" {
					return nil, fmt.Errorf("manifest %q: task %q has no executable", m.Name, tm.Name)
				}
				tasks = append(tasks, &types.Task{
					ID: uuid.NewString(), StageID: stageID, PipelineID: pipelineID,
					Name: tm.Name, Executable: tm.Executable, Args: tm.Args,
					PreExec: tm.PreExec, PostExec: tm.PostExec,
					CPUReqs: tm.CPUReqs, GPUReqs: tm.GPUReqs,
					Input: tm.Input, Output: tm.Output,
					State: types.StateInitial,
				})
			}
			stages = append(stages, types.NewStage(stageID, pipelineID, sm.Name, tasks))
		}
		pipeline := types.NewPipeline(pipelineID, pm.Name, stages)
		if pm.FailurePolicy != "" {
			pipeline.FailurePolicy = types.FailurePolicy(pm.FailurePolicy)
		}
		pipeline.MaxResubmits = pm.MaxResubmits
		pipelines = append(pipelines, pipeline)
	}

	wf := types.NewWorkflow(pipelines...)
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}
