package testing

import (
	"maps"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
)

// ProjectBuilder provides a fluent interface for constructing a project
// tree in a temporary directory. Each method returns a new builder
// (immutable) for chaining.
type ProjectBuilder struct {
	varFiles  map[deployment.Environment]string
	states    map[deployment.Environment]string
	playbook  *string
	outputs   *string
	inventory *string
	initDone  bool
	mutators  []func(*config.Config)
}

// NewProjectBuilder creates a builder with a variable file for every
// environment and a playbook, and without any state.
func NewProjectBuilder() *ProjectBuilder {
	varFiles := map[deployment.Environment]string{}
	for _, env := range deployment.Environments() {
		varFiles[env] = "environment = \"" + env.String() + "\"\n"
	}
	playbook := "- hosts: all\n  tasks: []\n"
	return &ProjectBuilder{
		varFiles: varFiles,
		states:   map[deployment.Environment]string{},
		playbook: &playbook,
		mutators: nil,
	}
}

// WithVarFile sets the variable file content of env.
func (b *ProjectBuilder) WithVarFile(env deployment.Environment, content string) *ProjectBuilder {
	nb := b.clone()
	nb.varFiles[env] = content
	return nb
}

// WithoutVarFile removes the variable file of env.
func (b *ProjectBuilder) WithoutVarFile(env deployment.Environment) *ProjectBuilder {
	nb := b.clone()
	delete(nb.varFiles, env)
	return nb
}

// WithoutPlaybook removes the playbook entry point.
func (b *ProjectBuilder) WithoutPlaybook() *ProjectBuilder {
	nb := b.clone()
	nb.playbook = nil
	return nb
}

// WithState writes a provisioning state file for env.
func (b *ProjectBuilder) WithState(env deployment.Environment, content string) *ProjectBuilder {
	nb := b.clone()
	nb.states[env] = content
	return nb
}

// WithOutputs writes a persisted outputs.json.
func (b *ProjectBuilder) WithOutputs(content string) *ProjectBuilder {
	nb := b.clone()
	nb.outputs = &content
	return nb
}

// WithInventory writes an existing inventory document.
func (b *ProjectBuilder) WithInventory(content string) *ProjectBuilder {
	nb := b.clone()
	nb.inventory = &content
	return nb
}

// Initialized creates the data directory left behind by an earlier init.
func (b *ProjectBuilder) Initialized() *ProjectBuilder {
	nb := b.clone()
	nb.initDone = true
	return nb
}

// WithConfig adjusts the configuration before paths are anchored.
func (b *ProjectBuilder) WithConfig(mutate func(*config.Config)) *ProjectBuilder {
	nb := b.clone()
	nb.mutators = append(nb.mutators, mutate)
	return nb
}

// Build writes the tree under a new temporary directory and returns the
// configuration rooted there.
func (b *ProjectBuilder) Build(t TB) *config.Config {
	t.Helper()
	return b.BuildIn(t, t.TempDir())
}

// BuildIn writes the tree under root.
func (b *ProjectBuilder) BuildIn(t TB, root string) *config.Config {
	t.Helper()
	cfg := config.Default()
	for _, mutate := range b.mutators {
		mutate(cfg)
	}
	cfg = cfg.WithRoot(root)

	for env, content := range b.varFiles {
		writeFile(t, cfg.VarFile(env), content)
	}
	for env, content := range b.states {
		writeFile(t, cfg.StateFile(env), content)
	}
	if b.playbook != nil {
		writeFile(t, cfg.Paths.Playbook, *b.playbook)
	}
	if b.outputs != nil {
		writeFile(t, cfg.Paths.Outputs, *b.outputs)
	}
	if b.inventory != nil {
		writeFile(t, cfg.Paths.Inventory, *b.inventory)
	}
	if b.initDone {
		writeFile(t, filepath.Join(cfg.Paths.TerraformDir, ".terraform", "terraform.tfstate"), `{"version": 3}`)
	}
	return cfg
}

func (b *ProjectBuilder) clone() *ProjectBuilder {
	return &ProjectBuilder{
		varFiles:  maps.Clone(b.varFiles),
		states:    maps.Clone(b.states),
		playbook:  b.playbook,
		outputs:   b.outputs,
		inventory: b.inventory,
		initDone:  b.initDone,
		mutators:  append([]func(*config.Config){}, b.mutators...),
	}
}

func writeFile(t TB, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
