package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wilkinson/radical.entk/pkg/types"
)

const sample = `
name: greeting
pipelines:
  - name: p1
    failure_policy: resubmit
    max_resubmits: 2
    stages:
      - name: s1
        tasks:
          - name: hello
            executable: /bin/echo
            args: ["hello"]
`

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndToWorkflow(t *testing.T) {
	path := writeTemp(t, sample)
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "greeting", m.Name)

	wf, err := m.ToWorkflow()
	require.NoError(t, err)
	require.NoError(t, wf.Validate())

	pipelines := wf.Pipelines()
	require.Len(t, pipelines, 1)
	assert.Equal(t, types.Resubmit, pipelines[0].FailurePolicy)
	assert.Equal(t, 2, pipelines[0].MaxResubmits)
	require.Len(t, pipelines[0].Stages, 1)
	require.Len(t, pipelines[0].Stages[0].Tasks, 1)
	assert.Equal(t, "/bin/echo", pipelines[0].Stages[0].Tasks[0].Executable)
}

func TestToWorkflowRejectsMissingExecutable(t *testing.T) {
	m := &Manifest{Name: "bad", Pipelines: []PipelineManifest{{
		Name: "p1",
		Stages: []StageManifest{{
			Name:  "s1",
			Tasks: []TaskManifest{{Name: "broken"}},
		}},
	}}}
	_, err := m.ToWorkflow()
	assert.Error(t, err)
}

func TestToWorkflowRejectsEmptyManifest(t *testing.T) {
	m := &Manifest{Name: "empty"}
	_, err := m.ToWorkflow()
	assert.Error(t, err)
}

const sampleWithResource = `
name: staged
resource:
  resource: local.localhost
  walltime: 30
  cores: 4
  shared_data:
    - source: ./input.dat
      target: input.dat
pipelines:
  - name: p1
    stages:
      - name: s1
        tasks:
          - name: hello
            executable: /bin/echo
`

func TestLoadParsesResourceBlock(t *testing.T) {
	path := writeTemp(t, sampleWithResource)
	m, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, m.Resource)
	assert.Equal(t, "local.localhost", m.Resource.Resource)
	assert.Equal(t, 30, m.Resource.Walltime)
	assert.Equal(t, 4, m.Resource.Cores)
	require.Len(t, m.Resource.SharedData, 1)
	assert.Equal(t, "input.dat", m.Resource.SharedData[0].Target)

	desc := m.Resource.Descriptor()
	require.NoError(t, desc.Validate())
}

func TestManifestWithoutResourceBlockLeavesItNil(t *testing.T) {
	path := writeTemp(t, sample)
	m, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, m.Resource)
}
