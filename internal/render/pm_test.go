package render

import (
	"testing"

	"github.com/mossrock-dev/kiln/internal/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDetect verifies package-manager detection from base image names.
func TestDetect(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"ubuntu:20.04", "apt"},
		{"debian:bookworm", "apt"},
		{"alpine:3.20", "apk"},
		{"docker.io/library/alpine", "apk"},
		{"fedora:40", "dnf"},
		{"rockylinux/rockylinux:9", "dnf"},
		{"quay.io/centos/centos:stream9", "dnf"},
		{"almalinux:9", "dnf"},
		{"ghcr.io/example/custom:1.0", "apt"}, // unknown distros assume apt
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.base).Name)
		})
	}
}

// TestByName verifies override resolution and rejection of unknown names.
func TestByName(t *testing.T) {
	for _, name := range []string{"apt", "apk", "dnf"} {
		pm, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, pm.Name)
	}

	_, err := ByName("pacman")
	assert.Error(t, err)
}

// TestManagerFor verifies that a recipe override wins over detection.
func TestManagerFor(t *testing.T) {
	r := &recipe.Recipe{Name: "lab", Base: "ubuntu:22.04", PackageManager: "dnf"}

	pm, err := ManagerFor(r)
	require.NoError(t, err)
	assert.Equal(t, "dnf", pm.Name, "explicit override beats base-image detection")

	r.PackageManager = ""
	pm, err = ManagerFor(r)
	require.NoError(t, err)
	assert.Equal(t, "apt", pm.Name)
}

// TestPackageManager_Commands verifies the fixed command strings for each
// family, which the Dockerfile and script renderers splice verbatim.
func TestPackageManager_Commands(t *testing.T) {
	t.Run("apt", func(t *testing.T) {
		assert.Equal(t, "apt-get update", Apt.UpdateCommand())
		assert.Equal(t,
			"DEBIAN_FRONTEND=noninteractive apt-get --option Dpkg::Options::=--force-confold --assume-yes install curl git",
			Apt.InstallCommand([]string{"curl", "git"}))
		assert.Equal(t, "rm -rf /var/lib/apt/lists/*", Apt.CleanCommand())
		assert.Equal(t, "dpkg -s curl", Apt.QueryCommand("curl"))
	})

	t.Run("apk", func(t *testing.T) {
		assert.Equal(t, "apk update", Apk.UpdateCommand())
		assert.Equal(t, "apk add curl", Apk.InstallCommand([]string{"curl"}))
		assert.Equal(t, "apk info -e curl", Apk.QueryCommand("curl"))
	})

	t.Run("dnf", func(t *testing.T) {
		assert.Equal(t, "dnf makecache", Dnf.UpdateCommand())
		assert.Equal(t, "dnf --assumeyes install gcc", Dnf.InstallCommand([]string{"gcc"}))
		assert.Equal(t, "rpm -q gcc", Dnf.QueryCommand("gcc"))
	})

	t.Run("query quotes awkward names", func(t *testing.T) {
		assert.Equal(t, "dpkg -s 'bad name'", Apt.QueryCommand("bad name"))
	})
}
