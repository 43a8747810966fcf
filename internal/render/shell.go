// shell.go holds the small shell-quoting helpers shared by the Dockerfile
// and script renderers.
package render

import "strings"

// shellSpecial lists the characters that force an argument to be quoted
// before splicing into a shell command line.
const shellSpecial = " \t\n\"'`$&|;<>()*?[]#~%!{}\\"

// shQuote wraps s in single quotes, escaping any embedded single quotes.
// Single-quoted strings are literal in POSIX sh, so this is safe for
// arbitrary content.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quoteArg quotes s only when it contains characters the shell would
// otherwise interpret. Plain arguments pass through untouched, keeping
// rendered commands readable.
func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, shellSpecial) {
		return shQuote(s)
	}
	return s
}

// joinArgs renders an argument list with per-argument quoting.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quoteArg(a)
	}
	return strings.Join(quoted, " ")
}
