package engine

import (
	"archive/tar"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// tarEntry is one file to place in an in-memory tar archive.
type tarEntry struct {
	// name is the path inside the archive, slash separated, without a
	// leading slash.
	name string

	// mode is the Unix permission bits for the file.
	mode int64

	// data is the file content.
	data []byte
}

// tarArchive builds an in-memory tar archive from the given entries.
// Parent directories of nested entries are emitted as directory headers
// so the daemon never has to extract into a path that does not exist.
//
// Build contexts and container copy payloads are tiny (a Dockerfile and
// at most one installer script), so buffering the whole archive in
// memory is fine.
func tarArchive(entries []tarEntry) (*bytes.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	now := time.Now()
	for _, dir := range parentDirs(entries) {
		hdr := &tar.Header{
			Name:     dir + "/",
			Typeflag: tar.TypeDir,
			Mode:     0o755,
			ModTime:  now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing tar directory %q: %w", dir, err)
		}
	}

	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    e.mode,
			Size:    int64(len(e.data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing tar header for %q: %w", e.name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return nil, fmt.Errorf("writing tar content for %q: %w", e.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar archive: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// parentDirs returns every ancestor directory of the entries, deduplicated
// and sorted shallowest first so a parent is always written before its
// children.
func parentDirs(entries []tarEntry) []string {
	seen := make(map[string]bool)
	for _, e := range entries {
		parts := strings.Split(e.name, "/")
		for i := 1; i < len(parts); i++ {
			seen[strings.Join(parts[:i], "/")] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
