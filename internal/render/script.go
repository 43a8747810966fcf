// script.go renders a resolved recipe into a POSIX shell provisioning
// script for the commit bake strategy. The command sequence is identical
// to the Dockerfile rendering; only the packaging differs: one script run
// in a throwaway container instead of one Dockerfile instruction per step.
package render

import (
	"fmt"
	"strings"

	"github.com/mossrock-dev/kiln/internal/recipe"
)

// ScriptOptions adjusts provisioning-script rendering.
type ScriptOptions struct {
	// LocalInstaller skips the in-container fetch step. Set when the
	// engine has already copied a pin-verified installer script into the
	// recipe's working directory.
	LocalInstaller bool
}

// Script renders the recipe as a /bin/sh provisioning script.
//
// The script runs with `set -eu`, so the first failing command aborts the
// bake with that command's exit status. A progress echo precedes each
// step, which keeps container logs readable when streamed back by the
// engine.
func Script(r *recipe.Recipe, opts ScriptOptions) ([]byte, error) {
	pm, err := ManagerFor(r)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# Provisioning script for recipe %q, generated by kiln\n", r.Name)
	b.WriteString("set -eu\n")

	if len(r.Env) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(r.Env) {
			fmt.Fprintf(&b, "export %s=%s\n", k, shQuote(r.Env[k]))
		}
	}

	if len(r.Packages) > 0 {
		b.WriteString("\n")
		progress(&b, "refreshing package index")
		b.WriteString(pm.UpdateCommand() + "\n")

		b.WriteString("\n")
		progress(&b, fmt.Sprintf("installing %d packages", len(r.Packages)))
		b.WriteString(pm.InstallCommand(r.Packages) + "\n")

		if r.CleanEnabled() {
			b.WriteString("\n")
			progress(&b, "cleaning package cache")
			b.WriteString(pm.CleanCommand() + "\n")
		}
	}

	if r.Workdir != "" && (len(r.Setup) > 0 || r.Installer != nil) {
		b.WriteString("\n")
		fmt.Fprintf(&b, "mkdir -p %s\n", shQuote(r.Workdir))
		fmt.Fprintf(&b, "cd %s\n", shQuote(r.Workdir))
	}

	if len(r.Setup) > 0 {
		b.WriteString("\n")
		progress(&b, "running setup commands")
		for _, cmd := range r.Setup {
			b.WriteString(cmd + "\n")
		}
	}

	if r.Installer != nil {
		script := r.Installer.ScriptName()

		if !opts.LocalInstaller {
			b.WriteString("\n")
			progress(&b, fmt.Sprintf("fetching installer %s", script))
			fmt.Fprintf(&b, "curl -fsSL -o %s %s\n", quoteArg(script), quoteArg(r.Installer.URL))
		}

		b.WriteString("\n")
		progress(&b, fmt.Sprintf("running installer %s", script))
		fmt.Fprintf(&b, "%s %s", r.Installer.Interpreter, quoteArg(script))
		if len(r.Installer.Args) > 0 {
			fmt.Fprintf(&b, " %s", joinArgs(r.Installer.Args))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	progress(&b, "provisioning complete")

	return []byte(b.String()), nil
}

// progress writes an echo line announcing the next provisioning step.
func progress(b *strings.Builder, msg string) {
	fmt.Fprintf(b, "echo %s\n", shQuote("kiln: "+msg))
}
