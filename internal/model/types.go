// Package model defines the domain types for the kiln CLI.
//
// All metadata about baked images is persisted via Docker image labels,
// so these types are transient representations reconstructed from Docker
// API queries at runtime.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// BakeStrategy selects how an image is produced from a recipe.
//
//	dockerfile: render a Dockerfile and run a daemon-side build
//	commit:     run the provisioning script in a container and commit it
type BakeStrategy string

const (
	// StrategyDockerfile renders the recipe to a Dockerfile and builds it.
	// This is the default strategy.
	StrategyDockerfile BakeStrategy = "dockerfile"

	// StrategyCommit pulls the base image, runs the provisioning script in
	// a throwaway container, and commits the result as a new image.
	StrategyCommit BakeStrategy = "commit"
)

// String returns the string representation of BakeStrategy.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (s BakeStrategy) String() string {
	return string(s)
}

// IsValid checks whether the BakeStrategy value is one of the
// predefined valid strategies.
func (s BakeStrategy) IsValid() bool {
	switch s {
	case StrategyDockerfile, StrategyCommit:
		return true
	default:
		return false
	}
}

// ParseBakeStrategy converts a string to a BakeStrategy.
// Returns an error if the string does not match any valid strategy.
func ParseBakeStrategy(s string) (BakeStrategy, error) {
	strategy := BakeStrategy(strings.ToLower(s))
	if !strategy.IsValid() {
		return "", fmt.Errorf("invalid bake strategy: %q (valid: dockerfile, commit)", s)
	}
	return strategy, nil
}

// VerifyCheckKind classifies a single verification check.
type VerifyCheckKind string

const (
	// CheckPackage verifies that an OS package is installed, using the
	// package manager's query command.
	CheckPackage VerifyCheckKind = "package"

	// CheckCommand verifies that a recipe-supplied shell command exits zero.
	CheckCommand VerifyCheckKind = "command"
)

// String returns the string representation of VerifyCheckKind.
func (k VerifyCheckKind) String() string {
	return string(k)
}

// IsValid checks whether the VerifyCheckKind value is one of the
// predefined valid kinds.
func (k VerifyCheckKind) IsValid() bool {
	switch k {
	case CheckPackage, CheckCommand:
		return true
	default:
		return false
	}
}

// ImageRecord describes a baked image: the recipe it came from and when
// and how it was built. This is the primary aggregate entity in the domain.
//
// All fields are reconstructed at runtime from Docker image labels
// (see the label schema in the engine package). There is no persistent
// state file on disk.
type ImageRecord struct {
	// RecipeName is the unique identifier of the recipe that produced
	// this image. Must contain only alphanumeric characters and hyphens.
	RecipeName string `json:"recipeName"`

	// Base is the base image reference the bake started from.
	Base string `json:"base"`

	// Tag is the image reference the result was tagged as.
	Tag string `json:"tag"`

	// RecipeDigest is the canonical SHA-256 digest of the resolved recipe,
	// in "sha256:<hex>" form. Two images with equal digests were baked
	// from semantically identical recipes.
	RecipeDigest string `json:"recipeDigest"`

	// Packages lists the OS packages the recipe installed.
	Packages []string `json:"packages,omitempty"`

	// InstallerURL is the HTTPS URL of the installer script, if the
	// recipe had one.
	InstallerURL string `json:"installerUrl,omitempty"`

	// Strategy is the bake strategy that produced the image.
	Strategy BakeStrategy `json:"strategy"`

	// ToolVersion is the kiln version that baked the image.
	ToolVersion string `json:"toolVersion,omitempty"`

	// CreatedAt is the timestamp when the image was baked.
	CreatedAt time.Time `json:"createdAt"`

	// ImageID is the Docker image identifier. Populated from engine
	// state when listing or inspecting, never stored in labels.
	ImageID string `json:"imageId,omitempty"`

	// Size is the image size in bytes. Populated from engine state,
	// never stored in labels.
	Size int64 `json:"size,omitempty"`
}

// Validate checks whether the ImageRecord has the fields every baked
// image must carry.
func (r *ImageRecord) Validate() error {
	if err := ValidateName(r.RecipeName); err != nil {
		return err
	}
	if r.Base == "" {
		return fmt.Errorf("image record: base must not be empty")
	}
	if r.Tag == "" {
		return fmt.Errorf("image record: tag must not be empty")
	}
	if r.RecipeDigest == "" {
		return fmt.Errorf("image record: recipe digest must not be empty")
	}
	if !r.Strategy.IsValid() {
		return fmt.Errorf("image record: invalid strategy %q", r.Strategy)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("image record: created-at must not be zero")
	}
	return nil
}

// nameRegex validates recipe names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// maxNameLength bounds recipe names so they stay usable as image
// repository components and label values.
const maxNameLength = 63

// ValidateName checks if the given name is a valid recipe name.
// Valid names contain only alphanumeric characters and hyphens,
// must start/end with an alphanumeric character, and are at most
// 63 characters long.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("recipe name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("invalid recipe name %q: must be at most %d characters", name, maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid recipe name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// BuildResult summarizes a completed bake.
type BuildResult struct {
	// ImageID is the Docker image identifier of the result.
	ImageID string `json:"imageId"`

	// Tag is the reference the image was tagged as.
	Tag string `json:"tag"`

	// RecipeName is the recipe that was baked.
	RecipeName string `json:"recipeName"`

	// RecipeDigest is the canonical digest of the resolved recipe.
	RecipeDigest string `json:"recipeDigest"`

	// Strategy is the bake strategy used.
	Strategy BakeStrategy `json:"strategy"`

	// Duration is the wall-clock time the bake took.
	Duration time.Duration `json:"duration"`
}

// VerifyCheck is the outcome of one verification check run inside a
// container started from the baked image.
type VerifyCheck struct {
	// Kind classifies the check (package presence or recipe command).
	Kind VerifyCheckKind `json:"kind"`

	// Name identifies the check: the package name for package checks,
	// the command text for command checks.
	Name string `json:"name"`

	// OK reports whether the check passed.
	OK bool `json:"ok"`

	// Detail carries any diagnostic output for failed checks.
	Detail string `json:"detail,omitempty"`
}

// String returns a human-readable representation of the check.
// Format: "kind name: ok|fail"
func (c VerifyCheck) String() string {
	state := "ok"
	if !c.OK {
		state = "fail"
	}
	return fmt.Sprintf("%s %s: %s", c.Kind, c.Name, state)
}

// VerifyResult aggregates the checks run against one image.
type VerifyResult struct {
	// Image is the reference or ID of the image that was verified.
	Image string `json:"image"`

	// Checks holds the individual check outcomes, in execution order.
	Checks []VerifyCheck `json:"checks"`

	// Duration is the wall-clock time the verification run took.
	Duration time.Duration `json:"duration"`
}

// Passed reports whether every check succeeded. An empty check list
// counts as passed.
func (r *VerifyResult) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// FailedCount returns the number of failed checks.
func (r *VerifyResult) FailedCount() int {
	n := 0
	for _, c := range r.Checks {
		if !c.OK {
			n++
		}
	}
	return n
}

// ExitCode defines standard CLI exit codes. These codes allow scripts
// and CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitRecipeError indicates the recipe file was not found, could not
	// be parsed, or failed validation.
	ExitRecipeError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitFetchFailed indicates the installer script could not be
	// downloaded, or its checksum did not match the recipe's pin.
	ExitFetchFailed ExitCode = 4

	// ExitBuildFailed indicates the image build or commit-bake failed.
	ExitBuildFailed ExitCode = 5

	// ExitVerifyFailed indicates one or more verification checks failed.
	ExitVerifyFailed ExitCode = 6

	// ExitImageNotFound indicates no kiln-managed image matches the
	// requested name.
	ExitImageNotFound ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
