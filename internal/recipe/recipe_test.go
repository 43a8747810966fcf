package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mossrock-dev/kiln/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRecipe writes recipe contents to a temp file with the given name
// and returns its path. t.TempDir() handles cleanup automatically.
func writeRecipe(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(contents), 0644)
	require.NoError(t, err)
	return path
}

// --- Load tests ---

// TestLoad_YAML verifies that a YAML recipe is fully parsed, including the
// nested installer block and the env map.
func TestLoad_YAML(t *testing.T) {
	path := writeRecipe(t, "lab.yaml", `
name: pde-lab
base: ubuntu:22.04
tag: pde-lab:dev
packages:
  - curl
  - git
env:
  LANG: C.UTF-8
setup:
  - useradd -m lab
installer:
  url: https://example.com/scripts/setup-lab
  interpreter: python3
  args:
    - "--minimal"
verify:
  - git --version
clean: false
`)

	r, err := Load(path)
	require.NoError(t, err, "Load should succeed for a valid YAML recipe")

	assert.Equal(t, "pde-lab", r.Name)
	assert.Equal(t, "ubuntu:22.04", r.Base)
	assert.Equal(t, "pde-lab:dev", r.Tag)
	assert.Equal(t, []string{"curl", "git"}, r.Packages)
	assert.Equal(t, "C.UTF-8", r.Env["LANG"])
	assert.Equal(t, []string{"useradd -m lab"}, r.Setup)

	require.NotNil(t, r.Installer)
	assert.Equal(t, "https://example.com/scripts/setup-lab", r.Installer.URL)
	assert.Equal(t, "python3", r.Installer.Interpreter)
	assert.Equal(t, []string{"--minimal"}, r.Installer.Args)

	assert.Equal(t, []string{"git --version"}, r.Verify)

	require.NotNil(t, r.Clean)
	assert.False(t, *r.Clean)
	assert.False(t, r.CleanEnabled())

	assert.Empty(t, r.UnknownKeys)
}

// TestLoad_JSONC verifies that JSON recipes with comments and trailing
// commas parse cleanly after comment stripping.
func TestLoad_JSONC(t *testing.T) {
	path := writeRecipe(t, "lab.jsonc", `{
  // toolchain image for CI
  "name": "ci-tools",
  "base": "alpine:3.20",
  "packageManager": "apk",
  "packages": ["curl", "git"], // fetch + clone
}`)

	r, err := Load(path)
	require.NoError(t, err, "Load should succeed for a JSONC recipe")

	assert.Equal(t, "ci-tools", r.Name)
	assert.Equal(t, "alpine:3.20", r.Base)
	assert.Equal(t, "apk", r.PackageManager)
	assert.Equal(t, []string{"curl", "git"}, r.Packages)
	assert.Nil(t, r.Installer, "Installer should be nil when not declared")
}

// TestLoad_UnknownKeys verifies that unrecognized top-level keys are
// collected for reporting instead of being silently dropped.
func TestLoad_UnknownKeys(t *testing.T) {
	path := writeRecipe(t, "typo.yaml", `
name: typo-demo
base: ubuntu:22.04
pakages:
  - curl
extra_field: 1
`)

	r, err := Load(path)
	require.NoError(t, err)

	// Sorted for deterministic reporting.
	assert.Equal(t, []string{"extra_field", "pakages"}, r.UnknownKeys)
	assert.Empty(t, r.Packages, "misspelled key must not populate packages")
}

// TestLoad_NotFound verifies that Load returns a CLIError with
// ExitRecipeError when the file does not exist.
func TestLoad_NotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/kiln.yaml")
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "error should be a *model.CLIError")
	assert.Equal(t, model.ExitRecipeError, cliErr.Code)
}

// TestLoad_EmptyFile verifies that an empty recipe file is rejected
// rather than producing a zero-valued recipe.
func TestLoad_EmptyFile(t *testing.T) {
	path := writeRecipe(t, "empty.yaml", "\n\n")

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitRecipeError, cliErr.Code)
}

// TestLoad_UnsupportedExtension verifies the extension allowlist.
func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeRecipe(t, "recipe.toml", `name = "nope"`)

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitRecipeError, cliErr.Code)
	assert.Contains(t, err.Error(), ".toml")
}

// TestLoad_MalformedYAML verifies that YAML syntax errors surface as
// parse errors naming the file.
func TestLoad_MalformedYAML(t *testing.T) {
	path := writeRecipe(t, "broken.yaml", "name: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

// --- Default recipe tests ---

// TestDefault verifies the embedded recipe: the Firedrake stack on Ubuntu,
// fetched over HTTPS and executed by python3 with its single flag.
func TestDefault(t *testing.T) {
	r, err := Default()
	require.NoError(t, err, "the embedded recipe must always parse")

	assert.Equal(t, "fireshape", r.Name)
	assert.Equal(t, "ubuntu:20.04", r.Base)
	assert.Equal(t, "fireshape:latest", r.Tag)

	// The package set is fixed and enumerable.
	assert.Equal(t, []string{
		"build-essential",
		"ca-certificates",
		"curl",
		"git",
		"python3",
		"python3-pip",
		"python3-venv",
		"sudo",
	}, r.Packages)

	require.NotNil(t, r.Installer)
	assert.Equal(t,
		"https://raw.githubusercontent.com/firedrakeproject/firedrake/master/scripts/firedrake-install",
		r.Installer.URL)
	assert.Equal(t, "python3", r.Installer.Interpreter)
	assert.Equal(t, []string{"--disable-ssh"}, r.Installer.Args)
	assert.Equal(t, "firedrake-install", r.Installer.ScriptName())

	// The embedded recipe must satisfy its own validation rules.
	r.ApplyDefaults()
	assert.Empty(t, r.Validate())
}

// --- ApplyDefaults tests ---

// TestApplyDefaults checks each derived default: tag, workdir, installer
// interpreter, and the clean flag.
func TestApplyDefaults(t *testing.T) {
	r := &Recipe{
		Name:      "lab",
		Base:      "ubuntu:22.04",
		Installer: &Installer{URL: "https://example.com/setup.sh"},
	}

	r.ApplyDefaults()

	assert.Equal(t, "lab:latest", r.Tag)
	assert.Equal(t, "/opt/lab", r.Workdir)
	assert.Equal(t, "sh", r.Installer.Interpreter)
	require.NotNil(t, r.Clean)
	assert.True(t, *r.Clean)
	assert.True(t, r.CleanEnabled())
}

// TestApplyDefaults_PreservesExplicitValues verifies that defaults never
// overwrite values the recipe spelled out.
func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	off := false
	r := &Recipe{
		Name:      "lab",
		Base:      "ubuntu:22.04",
		Tag:       "registry.example.com/lab:v2",
		Workdir:   "/srv/lab",
		Installer: &Installer{URL: "https://example.com/setup.py", Interpreter: "python3"},
		Clean:     &off,
	}

	r.ApplyDefaults()

	assert.Equal(t, "registry.example.com/lab:v2", r.Tag)
	assert.Equal(t, "/srv/lab", r.Workdir)
	assert.Equal(t, "python3", r.Installer.Interpreter)
	assert.False(t, r.CleanEnabled())
}

// --- Installer helper tests ---

// TestInstaller_ScriptName verifies filename derivation from the URL path.
func TestInstaller_ScriptName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain script", "https://example.com/scripts/firedrake-install", "firedrake-install"},
		{"nested path", "https://example.com/a/b/c/setup.sh", "setup.sh"},
		{"root path", "https://example.com/", "installer"},
		{"no path", "https://example.com", "installer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &Installer{URL: tt.url}
			assert.Equal(t, tt.want, inst.ScriptName())
		})
	}
}

// TestRecipe_Pinned verifies pin detection for the pre-fetch path.
func TestRecipe_Pinned(t *testing.T) {
	r := &Recipe{Name: "lab", Base: "ubuntu:22.04"}
	assert.False(t, r.Pinned(), "no installer means no pin")

	r.Installer = &Installer{URL: "https://example.com/setup.sh"}
	assert.False(t, r.Pinned(), "installer without sha256 is unpinned")

	r.Installer.SHA256 = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	assert.True(t, r.Pinned())
}

// --- Discover tests ---

// TestDiscover verifies the search order over the standard recipe filenames.
func TestDiscover(t *testing.T) {
	t.Run("finds kiln.yaml first", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yaml"), []byte("name: a\n"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.json"), []byte("{}"), 0644))

		path, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "kiln.yaml"), path)
	})

	t.Run("falls back to kiln.jsonc", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.jsonc"), []byte("{}"), 0644))

		path, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "kiln.jsonc"), path)
	})

	t.Run("errors when nothing found", func(t *testing.T) {
		_, err := Discover(t.TempDir())
		require.Error(t, err)

		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitRecipeError, cliErr.Code)
	})
}
