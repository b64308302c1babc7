package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/crewkit/internal/errors"
)

const sampleYAML = `name: content-pipeline
agents:
  - id: researcher
    name: Researcher
    model: gpt-4o-mini
  - id: writer
    name: Writer
    model: gpt-4o
    clone_when_busy: true
tasks:
  - id: research
    title: Research {topic}
    agent: researcher
  - id: draft
    title: Draft the article
    agent: writer
    dependencies: [research]
    deliverable: true
inputs:
  topic: quantum computing
`

func writeSample(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSample(t, t.TempDir(), "pipeline.yaml", sampleYAML)

	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "content-pipeline", def.Name)
	require.Len(t, def.Agents, 2)
	require.Len(t, def.Tasks, 2)
	assert.Equal(t, "quantum computing", def.Inputs["topic"])

	agents := def.BuildAgents()
	require.Contains(t, agents, "writer")
	assert.True(t, agents["writer"].CloneWhenBusy)
	assert.Equal(t, "gpt-4o", agents["writer"].Model)

	tasks := def.BuildTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "research", tasks[0].ReferenceID)
	assert.Equal(t, []string{"research"}, tasks[1].Dependencies)
	assert.True(t, tasks[1].Deliverable)
}

func TestLoad_DefaultsNameToFile(t *testing.T) {
	content := `agents: [{id: a, name: A}]
tasks: [{id: t1, title: T, agent: a}]`
	path := writeSample(t, t.TempDir(), "flow.yaml", content)

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "flow.yaml", def.Name)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		code errors.Code
	}{
		{
			name: "no tasks",
			def:  Definition{},
			code: errors.CodeConfigInvalid,
		},
		{
			name: "duplicate task id",
			def: Definition{
				Agents: []AgentDef{{ID: "a", Name: "A"}},
				Tasks: []TaskDef{
					{ReferenceID: "t", Title: "T", Agent: "a"},
					{ReferenceID: "t", Title: "T2", Agent: "a"},
				},
			},
			code: errors.CodeConfigInvalid,
		},
		{
			name: "unknown agent",
			def: Definition{
				Agents: []AgentDef{{ID: "a", Name: "A"}},
				Tasks:  []TaskDef{{ReferenceID: "t", Title: "T", Agent: "ghost"}},
			},
			code: errors.CodeAgentNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			require.Error(t, err)
			wfErr := errors.AsWorkflowError(err)
			require.NotNil(t, wfErr)
			assert.Equal(t, tt.code, wfErr.Code)
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "flows/a.yaml", sampleYAML)
	writeSample(t, dir, "flows/nested/b.yaml", sampleYAML)
	writeSample(t, dir, "flows/readme.md", "not a workflow")

	paths, err := Discover(filepath.Join(dir, "flows/**/*.yaml"))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "a.yaml")
	assert.Contains(t, paths[1], "b.yaml")

	// A literal existing path matches itself without globbing.
	direct, err := Discover(filepath.Join(dir, "flows/a.yaml"))
	require.NoError(t, err)
	require.Len(t, direct, 1)
}
