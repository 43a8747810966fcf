// Package render turns resolved recipes into the concrete build inputs
// the engine consumes.
//
// Three renderings share one command sequence:
//
//   - Dockerfile: one instruction per provisioning step, for the
//     dockerfile bake strategy
//   - provisioning script: POSIX sh with set -eu and progress echoes, for
//     the commit bake strategy
//   - verification script: package queries and recipe verify commands
//     with machine-readable result markers, for `kiln verify`
//
// The package-manager table (apt, apk, dnf) supplies the per-family
// refresh, install, clean, and query commands; detection from the base
// image name picks the family unless the recipe overrides it.
//
// Lint lives here too: advisory findings about recipes that validate but
// would bake into something surprising.
//
// Everything in this package is pure string assembly. Nothing talks to
// Docker or the network, which keeps `kiln render` usable offline.
package render
