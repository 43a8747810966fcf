package recipe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validRecipe returns a recipe that passes every validation check, for
// tests to mutate one field at a time.
func validRecipe() *Recipe {
	return &Recipe{
		Name:     "pde-lab",
		Base:     "ubuntu:22.04",
		Tag:      "pde-lab:latest",
		Packages: []string{"curl", "git"},
		Env:      map[string]string{"LANG": "C.UTF-8"},
		Setup:    []string{"useradd -m lab"},
		Installer: &Installer{
			URL:         "https://example.com/scripts/setup-lab",
			Interpreter: "python3",
			Args:        []string{"--minimal"},
		},
		Verify: []string{"git --version"},
	}
}

// TestValidate_ValidRecipe verifies that a well-formed recipe produces no
// validation errors.
func TestValidate_ValidRecipe(t *testing.T) {
	r := validRecipe()
	r.ApplyDefaults()

	errs := r.Validate()
	assert.Empty(t, errs)
}

// TestValidate_FieldErrors mutates one field at a time and checks that the
// error is attributed to the right field path.
func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Recipe)
		wantField string
	}{
		{
			name:      "empty name",
			mutate:    func(r *Recipe) { r.Name = "" },
			wantField: "name",
		},
		{
			name:      "name with underscore",
			mutate:    func(r *Recipe) { r.Name = "pde_lab" },
			wantField: "name",
		},
		{
			name:      "missing base",
			mutate:    func(r *Recipe) { r.Base = "" },
			wantField: "base",
		},
		{
			name:      "malformed base reference",
			mutate:    func(r *Recipe) { r.Base = "UBUNTU::bad" },
			wantField: "base",
		},
		{
			name:      "malformed tag reference",
			mutate:    func(r *Recipe) { r.Tag = "pde lab:latest" },
			wantField: "tag",
		},
		{
			name:      "unsupported package manager",
			mutate:    func(r *Recipe) { r.PackageManager = "pacman" },
			wantField: "package_manager",
		},
		{
			name:      "blank package entry",
			mutate:    func(r *Recipe) { r.Packages = []string{"curl", "  "} },
			wantField: "packages[1]",
		},
		{
			name:      "blank setup command",
			mutate:    func(r *Recipe) { r.Setup = []string{""} },
			wantField: "setup[0]",
		},
		{
			name:      "blank verify command",
			mutate:    func(r *Recipe) { r.Verify = []string{"", "git --version"} },
			wantField: "verify[0]",
		},
		{
			name:      "env key with equals sign",
			mutate:    func(r *Recipe) { r.Env = map[string]string{"BAD=KEY": "x"} },
			wantField: "env",
		},
		{
			name:      "installer without url",
			mutate:    func(r *Recipe) { r.Installer.URL = "" },
			wantField: "installer.url",
		},
		{
			name:      "installer over plain http",
			mutate:    func(r *Recipe) { r.Installer.URL = "http://example.com/setup.sh" },
			wantField: "installer.url",
		},
		{
			name:      "installer with short sha256",
			mutate:    func(r *Recipe) { r.Installer.SHA256 = "abc123" },
			wantField: "installer.sha256",
		},
		{
			name:      "installer with non-hex sha256",
			mutate:    func(r *Recipe) { r.Installer.SHA256 = strings.Repeat("z", 64) },
			wantField: "installer.sha256",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecipe()
			tt.mutate(r)

			errs := r.Validate()
			require.NotEmpty(t, errs, "expected at least one validation error")

			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

// TestValidate_PackagesOnlyRecipe verifies that a recipe without an
// installer block is legal.
func TestValidate_PackagesOnlyRecipe(t *testing.T) {
	r := &Recipe{
		Name:     "toolbox",
		Base:     "ubuntu:22.04",
		Packages: []string{"curl"},
	}
	r.ApplyDefaults()

	assert.Empty(t, r.Validate())
}

// TestValidate_HTTPSEnforcement verifies the scheme allowlist covers the
// common mistakes: http, ftp, scheme-less.
func TestValidate_HTTPSEnforcement(t *testing.T) {
	for _, badURL := range []string{
		"http://example.com/install.sh",
		"ftp://example.com/install.sh",
		"example.com/install.sh",
	} {
		t.Run(badURL, func(t *testing.T) {
			r := validRecipe()
			r.Installer.URL = badURL

			errs := r.Validate()
			require.NotEmpty(t, errs)
			assert.Equal(t, "installer.url", errs[0].Field)
		})
	}
}

// TestValidationError_Error verifies the formatted message shape.
func TestValidationError_Error(t *testing.T) {
	e := &ValidationError{Field: "installer.url", Message: "installer URL is required"}
	assert.Equal(t, "recipe validation error: installer.url: installer URL is required", e.Error())
}

// TestFormatValidationErrors verifies the multi-line CLI presentation.
func TestFormatValidationErrors(t *testing.T) {
	errs := []ValidationError{
		{Field: "name", Message: "recipe name must not be empty"},
		{Field: "base", Message: "base image is required"},
	}

	got := FormatValidationErrors(errs)
	assert.Equal(t, "  name: recipe name must not be empty\n  base: base image is required", got)
}
