// dockerfile.go renders a resolved recipe into Dockerfile text for the
// dockerfile bake strategy.
//
// The rendered file mirrors the recipe's provisioning sequence exactly:
// base image, environment, one package layer (index refresh, install, and
// cache clean chained with && so refresh always precedes install and a
// failing step aborts the build), setup commands, installer fetch, and
// installer execution. Each provisioning step is its own RUN instruction,
// so a failed installer surfaces with the daemon pointing at the exact
// step that died.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mossrock-dev/kiln/internal/recipe"
)

// Dockerfile renders the recipe as Dockerfile bytes.
//
// The labels map is rendered as a LABEL instruction so images built from
// the output are discoverable by kiln even when the build is run by hand.
// A nil or empty map omits the instruction.
//
// When the recipe pins its installer, the fetch step becomes a COPY from
// the build context: the engine pre-fetches the script, checks the pin,
// and ships the verified bytes alongside the Dockerfile.
func Dockerfile(r *recipe.Recipe, labels map[string]string) ([]byte, error) {
	pm, err := ManagerFor(r)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Dockerfile for recipe %q, generated by kiln\n", r.Name)
	fmt.Fprintf(&b, "FROM %s\n", r.Base)

	// Environment variables, sorted for deterministic output.
	if len(r.Env) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(r.Env) {
			fmt.Fprintf(&b, "ENV %s=%q\n", k, r.Env[k])
		}
	}

	// Management labels as a single continued LABEL instruction.
	if len(labels) > 0 {
		b.WriteString("\n")
		keys := sortedKeys(labels)
		for i, k := range keys {
			switch i {
			case 0:
				fmt.Fprintf(&b, "LABEL %s=%q", k, labels[k])
			default:
				fmt.Fprintf(&b, " \\\n      %s=%q", k, labels[k])
			}
		}
		b.WriteString("\n")
	}

	// One layer for the whole package step: refresh, install, clean.
	if len(r.Packages) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "RUN %s \\\n    && %s", pm.UpdateCommand(), pm.InstallCommand(r.Packages))
		if r.CleanEnabled() {
			fmt.Fprintf(&b, " \\\n    && %s", pm.CleanCommand())
		}
		b.WriteString("\n")
	}

	// The working directory only matters once commands run in it.
	if r.Workdir != "" && (len(r.Setup) > 0 || r.Installer != nil) {
		fmt.Fprintf(&b, "\nWORKDIR %s\n", r.Workdir)
	}

	// Setup commands, one RUN each.
	if len(r.Setup) > 0 {
		b.WriteString("\n")
		for _, cmd := range r.Setup {
			fmt.Fprintf(&b, "RUN %s\n", cmd)
		}
	}

	// Installer: fetch (or copy when pinned), then execute.
	if r.Installer != nil {
		script := r.Installer.ScriptName()
		b.WriteString("\n")
		if r.Pinned() {
			fmt.Fprintf(&b, "COPY %s ./\n", script)
		} else {
			fmt.Fprintf(&b, "RUN curl -fsSL -o %s %s\n", quoteArg(script), quoteArg(r.Installer.URL))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "RUN %s %s", r.Installer.Interpreter, quoteArg(script))
		if len(r.Installer.Args) > 0 {
			fmt.Fprintf(&b, " %s", joinArgs(r.Installer.Args))
		}
		b.WriteString("\n")
	}

	return []byte(b.String()), nil
}

// sortedKeys returns the map keys in sorted order, so rendered output is
// stable across runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
