// Package recipe handles loading and analysis of kiln recipe files.
//
// Recipes are declarative provisioning descriptions: a base image, the OS
// packages to install, an optional installer script fetched over HTTPS, and
// the commands that verify the result. Both YAML and JSON are accepted; the
// JSON form supports JSONC (JSON with Comments), so this package uses
// github.com/tidwall/jsonc to strip comments before parsing with the
// standard encoding/json library.
package recipe

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mossrock-dev/kiln/internal/model"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Recipe is the parsed form of a kiln recipe file. Fields carry both YAML
// and JSON tags because recipes may be written in either format.
type Recipe struct {
	// Name is the unique identifier for the recipe. It becomes the default
	// image repository name and is stamped on baked images as a label.
	// Must contain only alphanumeric characters and hyphens.
	Name string `yaml:"name" json:"name"`

	// Base is the base operating-system image reference the bake starts
	// from (e.g. "ubuntu:20.04").
	Base string `yaml:"base" json:"base"`

	// Tag is the reference the baked image is tagged as.
	// Defaults to "<name>:latest".
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty"`

	// Workdir is the directory inside the image where the installer is
	// fetched and executed. Defaults to "/opt/<name>".
	Workdir string `yaml:"workdir,omitempty" json:"workdir,omitempty"`

	// PackageManager overrides package-manager detection. Valid values:
	// "apt", "apk", "dnf". When empty, the manager is guessed from the
	// base image name.
	PackageManager string `yaml:"package_manager,omitempty" json:"packageManager,omitempty"`

	// Packages is the fixed, enumerable set of OS packages to install.
	// The package index is always refreshed before installation.
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty"`

	// Env sets environment variables in the image before any provisioning
	// command runs.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Setup lists shell commands run after package installation and before
	// the installer.
	Setup []string `yaml:"setup,omitempty" json:"setup,omitempty"`

	// Installer describes the remote installer script to fetch and execute.
	// Nil means a packages-only recipe.
	Installer *Installer `yaml:"installer,omitempty" json:"installer,omitempty"`

	// Verify lists shell commands `kiln verify` runs inside the baked image.
	// Each command must exit zero for verification to pass.
	Verify []string `yaml:"verify,omitempty" json:"verify,omitempty"`

	// Clean controls whether the package manager's index cache is removed
	// after installation. Defaults to true.
	Clean *bool `yaml:"clean,omitempty" json:"clean,omitempty"`

	// UnknownKeys records top-level keys present in the recipe file that
	// kiln does not understand. Populated by Load; excluded from digests
	// and encoded output.
	UnknownKeys []string `yaml:"-" json:"-"`
}

// Installer describes the remote installer script: where to fetch it from,
// what runs it, and the arguments it receives.
type Installer struct {
	// URL is the HTTPS address of the installer script.
	URL string `yaml:"url" json:"url"`

	// Interpreter is the program that executes the fetched script
	// (e.g. "python3"). Defaults to "sh".
	Interpreter string `yaml:"interpreter,omitempty" json:"interpreter,omitempty"`

	// Args are the command-line arguments passed to the installer.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// SHA256 optionally pins the script contents. When set, kiln downloads
	// the script itself, checks the digest, and ships the verified bytes
	// into the build instead of fetching inside the container.
	SHA256 string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
}

// ScriptName derives the local filename for the installer script from the
// last segment of its URL path. Falls back to "installer" when the URL has
// no usable path component.
func (i *Installer) ScriptName() string {
	u, err := url.Parse(i.URL)
	if err != nil {
		return "installer"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "installer"
	}
	return name
}

// defaultRecipeYAML is the built-in recipe shipped inside the binary.
//
//go:embed default.yaml
var defaultRecipeYAML []byte

// Default returns the built-in recipe: the Firedrake finite-element suite
// on Ubuntu, the stack the fireshape shape-optimization library runs on.
func Default() (*Recipe, error) {
	r, err := parseYAML(defaultRecipeYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in recipe: %w", err)
	}
	return r, nil
}

// Load reads a recipe file and parses it according to its extension:
// .yaml/.yml via gopkg.in/yaml.v3, .json/.jsonc via jsonc comment stripping
// followed by encoding/json.
//
// Returns a CLIError with ExitRecipeError if the file does not exist or the
// extension is not recognized.
func Load(recipePath string) (*Recipe, error) {
	data, err := os.ReadFile(recipePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitRecipeError,
				fmt.Sprintf("recipe not found: %s", recipePath),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, model.NewCLIError(
			model.ExitRecipeError,
			fmt.Sprintf("recipe file is empty: %s", recipePath),
		)
	}

	switch ext := strings.ToLower(filepath.Ext(recipePath)); ext {
	case ".yaml", ".yml":
		r, err := parseYAML(data)
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitRecipeError,
				fmt.Sprintf("failed to parse recipe at %s", recipePath),
				err,
			)
		}
		return r, nil
	case ".json", ".jsonc":
		r, err := parseJSON(data)
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitRecipeError,
				fmt.Sprintf("failed to parse recipe at %s", recipePath),
				err,
			)
		}
		return r, nil
	default:
		return nil, model.NewCLIError(
			model.ExitRecipeError,
			fmt.Sprintf("unsupported recipe extension %q (valid: .yaml, .yml, .json, .jsonc)", ext),
		)
	}
}

// parseYAML decodes YAML recipe bytes into a Recipe and records any
// unknown top-level keys.
func parseYAML(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	// Second pass into a generic map to see every key the file actually
	// contains, including ones the Recipe struct does not model.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, err
	}
	r.UnknownKeys = unknownTopLevelKeys(rawMap, yamlKnownKeys)

	return &r, nil
}

// parseJSON decodes JSON/JSONC recipe bytes into a Recipe and records any
// unknown top-level keys.
func parseJSON(data []byte) (*Recipe, error) {
	// Strip JSONC comments (// and /* */) and trailing commas before
	// parsing, so commented recipes work with the standard library parser.
	cleanJSON := jsonc.ToJSON(data)

	var r Recipe
	if err := json.Unmarshal(cleanJSON, &r); err != nil {
		return nil, err
	}

	var rawMap map[string]interface{}
	if err := json.Unmarshal(cleanJSON, &rawMap); err != nil {
		return nil, err
	}
	r.UnknownKeys = unknownTopLevelKeys(rawMap, jsonKnownKeys)

	return &r, nil
}

// yamlKnownKeys and jsonKnownKeys enumerate the top-level keys the Recipe
// struct models, per format (JSON uses camelCase for package manager).
var (
	yamlKnownKeys = map[string]bool{
		"name": true, "base": true, "tag": true, "workdir": true,
		"package_manager": true, "packages": true, "env": true,
		"setup": true, "installer": true, "verify": true, "clean": true,
	}
	jsonKnownKeys = map[string]bool{
		"name": true, "base": true, "tag": true, "workdir": true,
		"packageManager": true, "packages": true, "env": true,
		"setup": true, "installer": true, "verify": true, "clean": true,
	}
)

// unknownTopLevelKeys returns the keys of rawMap that are not in known,
// sorted for deterministic reporting.
func unknownTopLevelKeys(rawMap map[string]interface{}, known map[string]bool) []string {
	var unknown []string
	for k := range rawMap {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// ApplyDefaults fills the optional fields that have derived defaults:
// tag, workdir, installer interpreter, and the clean flag.
func (r *Recipe) ApplyDefaults() {
	if r.Tag == "" && r.Name != "" {
		r.Tag = r.Name + ":latest"
	}
	if r.Workdir == "" && r.Name != "" {
		r.Workdir = "/opt/" + r.Name
	}
	if r.Installer != nil && r.Installer.Interpreter == "" {
		r.Installer.Interpreter = "sh"
	}
	if r.Clean == nil {
		t := true
		r.Clean = &t
	}
}

// CleanEnabled reports whether the package cache should be removed after
// installation. Unset means enabled.
func (r *Recipe) CleanEnabled() bool {
	return r.Clean == nil || *r.Clean
}

// Pinned reports whether the installer script is checksum-pinned, which
// switches the bake from in-container fetching to a verified pre-fetch.
func (r *Recipe) Pinned() bool {
	return r.Installer != nil && r.Installer.SHA256 != ""
}

// Discover searches for a recipe file in the standard locations within a
// directory.
//
// The search order:
//  1. <dir>/kiln.yaml
//  2. <dir>/kiln.yml
//  3. <dir>/kiln.json
//  4. <dir>/kiln.jsonc
//
// Returns the path to the first found file, or a CLIError with
// ExitRecipeError if none of the locations contain one.
func Discover(dir string) (string, error) {
	candidates := []string{
		filepath.Join(dir, "kiln.yaml"),
		filepath.Join(dir, "kiln.yml"),
		filepath.Join(dir, "kiln.json"),
		filepath.Join(dir, "kiln.jsonc"),
	}

	for _, p := range candidates {
		// os.Stat checks if the file exists without reading its contents.
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitRecipeError,
		fmt.Sprintf("no recipe found in %s (searched kiln.yaml, kiln.yml, kiln.json, kiln.jsonc)", dir),
	)
}
