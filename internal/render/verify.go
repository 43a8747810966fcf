// verify.go renders the verification script `kiln verify` runs inside a
// container started from a baked image, and parses the script's output
// back into check results.
//
// The script reports one marker line per check on stdout. Markers carry a
// fixed prefix so they never collide with output from the checks
// themselves, and command checks are identified by index because command
// text can contain anything.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mossrock-dev/kiln/internal/model"
)

// checkMarker prefixes every result line the verification script emits.
const checkMarker = "kiln-check"

// VerifyScript renders a /bin/sh script that checks each package with the
// package manager's query command and runs each recipe verify command,
// then exits non-zero if anything failed.
//
// The script deliberately avoids `set -e`: every check must run so the
// report is complete even when an early check fails.
func VerifyScript(pm PackageManager, packages []string, commands []string) []byte {
	var b strings.Builder

	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Verification script generated by kiln\n")
	b.WriteString("fail=0\n")

	for _, pkg := range packages {
		b.WriteString("\n")
		fmt.Fprintf(&b, "if %s >/dev/null 2>&1; then\n", pm.QueryCommand(pkg))
		fmt.Fprintf(&b, "  echo %s\n", shQuote(checkMarker+" ok package "+pkg))
		b.WriteString("else\n")
		fmt.Fprintf(&b, "  echo %s\n", shQuote(checkMarker+" fail package "+pkg))
		b.WriteString("  fail=1\n")
		b.WriteString("fi\n")
	}

	for i, cmd := range commands {
		b.WriteString("\n")
		fmt.Fprintf(&b, "if sh -c %s >/dev/null 2>&1; then\n", shQuote(cmd))
		fmt.Fprintf(&b, "  echo %s\n", shQuote(fmt.Sprintf("%s ok command %d", checkMarker, i)))
		b.WriteString("else\n")
		fmt.Fprintf(&b, "  echo %s\n", shQuote(fmt.Sprintf("%s fail command %d", checkMarker, i)))
		b.WriteString("  fail=1\n")
		b.WriteString("fi\n")
	}

	b.WriteString("\nexit \"$fail\"\n")

	return []byte(b.String())
}

// ParseVerifyOutput reconstructs check results from the verification
// script's output.
//
// The packages and commands arguments must be the same lists the script
// was rendered from: results come back in that order, and any check the
// output never reported (the container died mid-run, for example) is
// marked failed with a "no result reported" detail.
func ParseVerifyOutput(output string, packages []string, commands []string) []model.VerifyCheck {
	// seen maps "kind id" to the reported pass/fail state.
	seen := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, checkMarker+" ") {
			continue
		}

		// Layout: "kiln-check <ok|fail> <kind> <id>". The id is split off
		// last so package names keep any interior spaces.
		parts := strings.SplitN(line, " ", 4)
		if len(parts) != 4 {
			continue
		}
		status, kind, id := parts[1], parts[2], parts[3]
		if status != "ok" && status != "fail" {
			continue
		}
		seen[kind+" "+id] = status == "ok"
	}

	checks := make([]model.VerifyCheck, 0, len(packages)+len(commands))

	for _, pkg := range packages {
		check := model.VerifyCheck{Kind: model.CheckPackage, Name: pkg}
		if ok, reported := seen["package "+pkg]; reported {
			check.OK = ok
		} else {
			check.Detail = "no result reported"
		}
		checks = append(checks, check)
	}

	for i, cmd := range commands {
		check := model.VerifyCheck{Kind: model.CheckCommand, Name: cmd}
		if ok, reported := seen["command "+strconv.Itoa(i)]; reported {
			check.OK = ok
		} else {
			check.Detail = "no result reported"
		}
		checks = append(checks, check)
	}

	return checks
}
