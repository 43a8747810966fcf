// Package recipe handles loading, validation, and encoding of kiln
// recipe files.
//
// A recipe declares everything a bake needs:
//
//   - base: the operating-system image to start from
//   - packages: the OS packages to install (index refresh always precedes
//     installation)
//   - installer: a remote script fetched over HTTPS and executed with its
//     documented arguments
//   - verify: commands that must exit zero inside the baked image
//
// Recipes may be written in YAML (.yaml/.yml) or JSON (.json/.jsonc).
// JSONC (JSON with Comments) is supported via github.com/tidwall/jsonc.
// A built-in recipe, embedded in the binary, provisions the Firedrake
// finite-element stack that the fireshape library runs on.
//
// The package never talks to Docker: it produces validated, resolved
// Recipe values that the render and engine packages consume.
package recipe
