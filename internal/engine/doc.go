// Package engine provides Docker Engine API wrappers and image bake
// operations for the kiln CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image label management for persisting recipe metadata
//     (Docker labels are the sole state storage mechanism)
//   - The dockerfile bake strategy: in-memory build context submitted
//     to the daemon's image build endpoint
//   - The commit bake strategy: provisioning a throwaway container and
//     committing it as the result image
//   - Image discovery and lifecycle: list, find, inspect, remove, verify
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package engine
