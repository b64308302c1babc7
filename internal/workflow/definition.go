package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/task"
)

// AgentDef declares an agent in a workflow definition file.
type AgentDef struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Role          string `yaml:"role,omitempty"`
	Model         string `yaml:"model,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
	CloneWhenBusy bool   `yaml:"clone_when_busy,omitempty"`
}

// TaskDef declares a task in a workflow definition file.
type TaskDef struct {
	ReferenceID                string   `yaml:"id"`
	Title                      string   `yaml:"title"`
	Description                string   `yaml:"description,omitempty"`
	Agent                      string   `yaml:"agent"`
	Dependencies               []string `yaml:"dependencies,omitempty"`
	AllowParallelExecution     bool     `yaml:"allow_parallel,omitempty"`
	ExternalValidationRequired bool     `yaml:"external_validation,omitempty"`
	Deliverable                bool     `yaml:"deliverable,omitempty"`
	OutputSchema               []string `yaml:"output_schema,omitempty"`
}

// Definition is a parsed workflow definition file.
type Definition struct {
	Name           string         `yaml:"name"`
	Strategy       string         `yaml:"strategy,omitempty"`
	MaxConcurrency int            `yaml:"max_concurrency,omitempty"`
	Agents         []AgentDef     `yaml:"agents"`
	Tasks          []TaskDef      `yaml:"tasks"`
	Inputs         map[string]any `yaml:"inputs,omitempty"`
}

// Validate checks structural invariants that don't need the dependency graph:
// nonempty task list, unique ids, and resolvable agent references.
func (d *Definition) Validate() error {
	if len(d.Tasks) == 0 {
		return errors.ErrConfigInvalid("tasks", "workflow declares no tasks")
	}
	if d.MaxConcurrency < 0 {
		return errors.ErrConfigInvalid("max_concurrency", "must not be negative")
	}

	agents := make(map[string]bool, len(d.Agents))
	for _, a := range d.Agents {
		if a.ID == "" {
			return errors.ErrConfigInvalid("agents", "agent is missing an id")
		}
		if agents[a.ID] {
			return errors.ErrConfigInvalid("agents", fmt.Sprintf("duplicate agent id %s", a.ID))
		}
		agents[a.ID] = true
	}

	seen := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.ReferenceID == "" {
			return errors.ErrConfigInvalid("tasks", "task is missing an id")
		}
		if seen[t.ReferenceID] {
			return errors.ErrConfigInvalid("tasks", fmt.Sprintf("duplicate task id %s", t.ReferenceID))
		}
		seen[t.ReferenceID] = true
		if t.Agent == "" {
			return errors.ErrConfigInvalid("tasks", fmt.Sprintf("task %s has no agent", t.ReferenceID))
		}
		if !agents[t.Agent] {
			return errors.ErrAgentNotFound(t.Agent)
		}
	}
	return nil
}

// BuildAgents materializes agent models from the definition.
func (d *Definition) BuildAgents() map[string]*agent.Agent {
	out := make(map[string]*agent.Agent, len(d.Agents))
	for _, def := range d.Agents {
		a := agent.New(def.ID, def.Name, def.Model)
		a.Role = def.Role
		a.CloneWhenBusy = def.CloneWhenBusy
		if def.MaxIterations > 0 {
			a.MaxIterations = def.MaxIterations
		}
		out[a.ID] = a
	}
	return out
}

// BuildTasks materializes task models in declaration order.
func (d *Definition) BuildTasks() []*task.Task {
	out := make([]*task.Task, 0, len(d.Tasks))
	for _, def := range d.Tasks {
		t := task.New(def.ReferenceID, def.Title, def.Agent)
		t.Description = def.Description
		t.Dependencies = append([]string(nil), def.Dependencies...)
		t.AllowParallelExecution = def.AllowParallelExecution
		t.ExternalValidationRequired = def.ExternalValidationRequired
		t.Deliverable = def.Deliverable
		t.OutputSchema = append([]string(nil), def.OutputSchema...)
		out = append(out, t)
	}
	return out
}

// Load parses a workflow definition from a YAML file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = filepath.Base(path)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Discover resolves a doublestar glob pattern to workflow definition paths,
// sorted for stable selection. A plain path matches itself.
func Discover(pattern string) ([]string, error) {
	if _, err := os.Stat(pattern); err == nil {
		return []string{pattern}, nil
	}

	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	matches, err := doublestar.Glob(os.DirFS(base), rest)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(base, m))
	}
	sort.Strings(paths)
	return paths, nil
}
