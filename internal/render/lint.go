// lint.go checks recipes for problems that are legal but likely wrong.
// Validation (in the recipe package) rejects malformed recipes outright;
// lint flags the ones that would bake into something surprising: floating
// base images, missing fetch tooling, duplicate packages.
package render

import (
	"fmt"

	"github.com/distribution/reference"
	"github.com/mossrock-dev/kiln/internal/recipe"
)

// Severity classifies a lint finding.
type Severity string

const (
	// SeverityError marks findings that abort a bake.
	SeverityError Severity = "error"

	// SeverityWarning marks findings that are reported but do not stop
	// the bake.
	SeverityWarning Severity = "warning"
)

// Issue is a single lint finding.
type Issue struct {
	// Severity is the finding's weight: error or warning.
	Severity Severity `json:"severity"`

	// Code is a stable machine-readable identifier for the rule.
	Code string `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`
}

// String formats the issue the way the CLI prints it.
func (i Issue) String() string {
	return fmt.Sprintf("%s[%s]: %s", i.Severity, i.Code, i.Message)
}

// HasErrors reports whether any finding carries error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Lint inspects a resolved recipe and returns its findings.
//
// Rules:
//   - empty-recipe (error): nothing to provision, no packages, no setup
//     commands, no installer
//   - base-floating (warning): base image has no tag or uses :latest, so
//     rebuilds may start from different content
//   - packages-duplicate (warning): a package is listed more than once
//   - fetch-tool-missing (warning): the in-container fetch needs curl and
//     ca-certificates, and the package list provides neither
//   - installer-no-args (warning): the installer runs without arguments
//   - unknown-key (warning): the recipe file contains keys kiln ignores
func Lint(r *recipe.Recipe) []Issue {
	var issues []Issue

	// An image that installs nothing and runs nothing is a sign the
	// recipe file did not say what its author meant.
	if len(r.Packages) == 0 && len(r.Setup) == 0 && r.Installer == nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     "empty-recipe",
			Message:  "recipe has no packages, setup commands, or installer: nothing to provision",
		})
	}

	issues = append(issues, lintBase(r.Base)...)

	// Duplicate packages install fine but usually mean a merge went bad.
	seen := make(map[string]bool)
	for _, pkg := range r.Packages {
		if seen[pkg] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     "packages-duplicate",
				Message:  fmt.Sprintf("package %q is listed more than once", pkg),
			})
		}
		seen[pkg] = true
	}

	if r.Installer != nil {
		// The unpinned path fetches inside the container with curl over
		// HTTPS, which needs the tool and a CA bundle present.
		if !r.Pinned() {
			for _, tool := range []string{"curl", "ca-certificates"} {
				if !seen[tool] {
					issues = append(issues, Issue{
						Severity: SeverityWarning,
						Code:     "fetch-tool-missing",
						Message:  fmt.Sprintf("installer is fetched in-container but %q is not in packages; the base image must already provide it", tool),
					})
				}
			}
		}

		if len(r.Installer.Args) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     "installer-no-args",
				Message:  "installer runs with no arguments; most installer scripts expect at least one flag",
			})
		}
	}

	for _, key := range r.UnknownKeys {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     "unknown-key",
			Message:  fmt.Sprintf("recipe key %q is not recognized and will be ignored", key),
		})
	}

	return issues
}

// lintBase flags base references that float: untagged (implicit latest)
// or explicitly :latest. Digest-pinned references are exact and pass.
func lintBase(base string) []Issue {
	named, err := reference.ParseNormalizedNamed(base)
	if err != nil {
		// Validation reports malformed references; nothing to add here.
		return nil
	}

	if _, ok := named.(reference.Digested); ok {
		return nil
	}

	tagged, ok := named.(reference.Tagged)
	if !ok {
		return []Issue{{
			Severity: SeverityWarning,
			Code:     "base-floating",
			Message:  fmt.Sprintf("base image %q has no tag: latest is implied and rebuilds may differ", base),
		}}
	}
	if tagged.Tag() == "latest" {
		return []Issue{{
			Severity: SeverityWarning,
			Code:     "base-floating",
			Message:  fmt.Sprintf("base image %q uses the latest tag: rebuilds may start from different content", base),
		}}
	}
	return nil
}
