package engine

import (
	"archive/tar"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readArchive extracts an archive into parallel maps of file contents and
// header modes, plus the ordered entry names.
func readArchive(t *testing.T, r io.Reader) (names []string, contents map[string]string, modes map[string]int64) {
	t.Helper()

	contents = make(map[string]string)
	modes = make(map[string]int64)

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, contents, modes
		}
		require.NoError(t, err)

		names = append(names, hdr.Name)
		modes[hdr.Name] = hdr.Mode

		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}
}

// TestTarArchive_FlatEntries verifies the build-context shape: files at
// the archive root with their modes and contents intact.
func TestTarArchive_FlatEntries(t *testing.T) {
	archive, err := tarArchive([]tarEntry{
		{name: "Dockerfile", mode: 0o644, data: []byte("FROM ubuntu:20.04\n")},
		{name: "firedrake-install", mode: 0o755, data: []byte("#!/usr/bin/env python3\n")},
	})
	require.NoError(t, err)

	names, contents, modes := readArchive(t, archive)

	assert.Equal(t, []string{"Dockerfile", "firedrake-install"}, names)
	assert.Equal(t, "FROM ubuntu:20.04\n", contents["Dockerfile"])
	assert.Equal(t, int64(0o644), modes["Dockerfile"])
	assert.Equal(t, int64(0o755), modes["firedrake-install"])
}

// TestTarArchive_NestedEntry verifies that ancestor directories are
// written before a nested file, so extraction at / never hits a missing
// parent.
func TestTarArchive_NestedEntry(t *testing.T) {
	archive, err := tarArchive([]tarEntry{
		{name: "opt/fireshape/firedrake-install", mode: 0o755, data: []byte("print('hi')\n")},
	})
	require.NoError(t, err)

	names, contents, _ := readArchive(t, archive)

	assert.Equal(t, []string{"opt/", "opt/fireshape/", "opt/fireshape/firedrake-install"}, names)
	assert.Equal(t, "print('hi')\n", contents["opt/fireshape/firedrake-install"])
}

// TestTarArchive_SharedParents verifies that a directory shared by two
// entries is written only once.
func TestTarArchive_SharedParents(t *testing.T) {
	archive, err := tarArchive([]tarEntry{
		{name: "opt/lab/a.sh", mode: 0o755, data: []byte("a")},
		{name: "opt/lab/b.sh", mode: 0o755, data: []byte("b")},
	})
	require.NoError(t, err)

	names, _, _ := readArchive(t, archive)

	assert.Equal(t, []string{"opt/", "opt/lab/", "opt/lab/a.sh", "opt/lab/b.sh"}, names)
}

// TestTarArchive_Empty verifies that zero entries produce a valid empty
// archive.
func TestTarArchive_Empty(t *testing.T) {
	archive, err := tarArchive(nil)
	require.NoError(t, err)

	names, _, _ := readArchive(t, archive)
	assert.Empty(t, names)
}
