package render

import (
	"strings"
	"testing"

	"github.com/mossrock-dev/kiln/internal/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScript_DefaultRecipe verifies the provisioning script for the
// built-in recipe: strict mode, progress echoes, and the same command
// sequence the Dockerfile rendering uses.
func TestScript_DefaultRecipe(t *testing.T) {
	r := defaultRecipe(t)

	out, err := Script(r, ScriptOptions{})
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "#!/bin/sh\n"), "script must start with the sh shebang")
	assert.Contains(t, text, "set -eu\n")

	// Progress echoes announce each step.
	assert.Contains(t, text, "echo 'kiln: refreshing package index'\n")
	assert.Contains(t, text, "echo 'kiln: installing 8 packages'\n")
	assert.Contains(t, text, "echo 'kiln: cleaning package cache'\n")
	assert.Contains(t, text, "echo 'kiln: fetching installer firedrake-install'\n")
	assert.Contains(t, text, "echo 'kiln: running installer firedrake-install'\n")
	assert.Contains(t, text, "echo 'kiln: provisioning complete'\n")

	// The command sequence matches the Dockerfile rendering.
	assert.Contains(t, text, "apt-get update\n")
	assert.Contains(t, text, "--assume-yes install build-essential ca-certificates curl git python3 python3-pip python3-venv sudo\n")
	assert.Contains(t, text, "mkdir -p '/opt/fireshape'\n")
	assert.Contains(t, text, "cd '/opt/fireshape'\n")
	assert.Contains(t, text, "curl -fsSL -o firedrake-install https://raw.githubusercontent.com/firedrakeproject/firedrake/master/scripts/firedrake-install\n")
	assert.Contains(t, text, "python3 firedrake-install --disable-ssh\n")

	// Refresh before install, fetch before run.
	assert.Less(t, strings.Index(text, "apt-get update"), strings.Index(text, "--assume-yes install"))
	assert.Less(t, strings.Index(text, "curl -fsSL"), strings.Index(text, "python3 firedrake-install"))
}

// TestScript_LocalInstaller verifies that pre-fetched installers skip the
// in-container fetch but still execute from the working directory.
func TestScript_LocalInstaller(t *testing.T) {
	r := defaultRecipe(t)

	out, err := Script(r, ScriptOptions{LocalInstaller: true})
	require.NoError(t, err)
	text := string(out)

	assert.NotContains(t, text, "curl -fsSL", "local installers are not fetched")
	assert.NotContains(t, text, "kiln: fetching installer")
	assert.Contains(t, text, "cd '/opt/fireshape'\n")
	assert.Contains(t, text, "python3 firedrake-install --disable-ssh\n")
}

// TestScript_EnvExports verifies sorted export lines with quoted values.
func TestScript_EnvExports(t *testing.T) {
	r := &recipe.Recipe{
		Name:     "lab",
		Base:     "ubuntu:22.04",
		Packages: []string{"curl"},
		Env: map[string]string{
			"PETSC_DIR": "/opt/petsc",
			"LANG":      "C.UTF-8",
		},
	}
	r.ApplyDefaults()

	out, err := Script(r, ScriptOptions{})
	require.NoError(t, err)

	assert.Contains(t, string(out), "export LANG='C.UTF-8'\nexport PETSC_DIR='/opt/petsc'\n")
}

// TestScript_PackagesOnly verifies that recipes without an installer or
// setup render no workdir or fetch steps.
func TestScript_PackagesOnly(t *testing.T) {
	r := &recipe.Recipe{
		Name:     "toolbox",
		Base:     "alpine:3.20",
		Packages: []string{"curl"},
	}
	r.ApplyDefaults()

	out, err := Script(r, ScriptOptions{})
	require.NoError(t, err)
	text := string(out)

	// Alpine base detects apk.
	assert.Contains(t, text, "apk update\n")
	assert.Contains(t, text, "apk add curl\n")
	assert.NotContains(t, text, "mkdir -p")
	assert.NotContains(t, text, "curl -fsSL")
}
