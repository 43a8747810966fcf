// validate.go provides validation for parsed recipes, run before any
// rendering or Docker interaction so that malformed recipes fail fast
// with field-level diagnostics.
package recipe

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/distribution/reference"
	"github.com/mossrock-dev/kiln/internal/model"
)

// ValidationError represents a specific validation failure in a recipe.
type ValidationError struct {
	// Field is the recipe field path that failed validation
	// (e.g. "installer.url").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("recipe validation error: %s: %s", e.Field, e.Message)
}

// sha256Regex matches a hex-encoded SHA-256 checksum.
var sha256Regex = regexp.MustCompile(`^[A-Fa-f0-9]{64}$`)

// Validate performs structural checks on a recipe and returns a list of
// validation errors (empty list = valid recipe). Call ApplyDefaults first
// so derived fields are populated.
//
// Checks performed:
//   - name: required, alphanumeric + hyphens
//   - base / tag: must parse as image references
//   - package_manager: apt, apk, or dnf when set
//   - packages / setup / verify: no empty entries
//   - env: keys must be non-empty and must not contain "="
//   - installer: URL required, must be HTTPS; SHA256 pin must be 64 hex
//     characters when present
func (r *Recipe) Validate() []ValidationError {
	var errs []ValidationError

	// Check 1: Name identifies the recipe and becomes the default image
	// repository, so it has to satisfy the shared naming rules.
	if err := model.ValidateName(r.Name); err != nil {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: err.Error(),
		})
	}

	// Check 2: Base image reference. A bake cannot start without one, and
	// it must be a reference the daemon will accept.
	if r.Base == "" {
		errs = append(errs, ValidationError{
			Field:   "base",
			Message: "base image is required",
		})
	} else if _, err := reference.ParseNormalizedNamed(r.Base); err != nil {
		errs = append(errs, ValidationError{
			Field:   "base",
			Message: fmt.Sprintf("invalid image reference %q: %v", r.Base, err),
		})
	}

	// Check 3: Result tag, when present (ApplyDefaults derives one from
	// the name otherwise).
	if r.Tag != "" {
		if _, err := reference.ParseNormalizedNamed(r.Tag); err != nil {
			errs = append(errs, ValidationError{
				Field:   "tag",
				Message: fmt.Sprintf("invalid image reference %q: %v", r.Tag, err),
			})
		}
	}

	// Check 4: Package manager override must name a supported manager.
	switch r.PackageManager {
	case "", "apt", "apk", "dnf":
	default:
		errs = append(errs, ValidationError{
			Field:   "package_manager",
			Message: fmt.Sprintf("unsupported package manager %q (valid: apt, apk, dnf)", r.PackageManager),
		})
	}

	// Check 5: List entries must not be blank. Blank entries usually mean
	// a stray "-" in the YAML and would render broken shell commands.
	for i, p := range r.Packages {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("packages[%d]", i),
				Message: "package name must not be empty",
			})
		}
	}
	for i, c := range r.Setup {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("setup[%d]", i),
				Message: "setup command must not be empty",
			})
		}
	}
	for i, c := range r.Verify {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("verify[%d]", i),
				Message: "verify command must not be empty",
			})
		}
	}

	// Check 6: Environment variable keys become "KEY=value" assignments.
	for k := range r.Env {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: "environment variable name must not be empty",
			})
		} else if strings.Contains(k, "=") {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("environment variable name %q must not contain '='", k),
			})
		}
	}

	// Check 7: Installer block.
	if r.Installer != nil {
		errs = append(errs, r.Installer.validate()...)
	}

	return errs
}

// validate checks the installer block: the URL must be present, parseable,
// and HTTPS; a checksum pin must be well-formed hex.
func (i *Installer) validate() []ValidationError {
	var errs []ValidationError

	if i.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "installer.url",
			Message: "installer URL is required",
		})
	} else {
		u, err := url.Parse(i.URL)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{
				Field:   "installer.url",
				Message: fmt.Sprintf("invalid URL %q: %v", i.URL, err),
			})
		case u.Scheme != "https":
			errs = append(errs, ValidationError{
				Field:   "installer.url",
				Message: fmt.Sprintf("installer must be fetched over HTTPS, got scheme %q", u.Scheme),
			})
		case u.Host == "":
			errs = append(errs, ValidationError{
				Field:   "installer.url",
				Message: fmt.Sprintf("URL %q has no host", i.URL),
			})
		}
	}

	if i.SHA256 != "" && !sha256Regex.MatchString(i.SHA256) {
		errs = append(errs, ValidationError{
			Field:   "installer.sha256",
			Message: "pin must be a 64-character hex SHA-256 checksum",
		})
	}

	return errs
}

// FormatValidationErrors joins validation errors into a single multi-line
// message suitable for CLI output.
func FormatValidationErrors(errs []ValidationError) string {
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  %s: %s", e.Field, e.Message))
	}
	return b.String()
}
