package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/mossrock-dev/kiln/internal/model"
)

// Label key constants define the Docker label keys that persist recipe
// metadata on baked images. These labels are the sole persistence
// mechanism; there is no external state file.
//
// All keys share the "kiln." prefix to namespace them away from labels
// set by other tools.
const (
	// LabelPrefix is the common prefix for all kiln labels.
	LabelPrefix = "kiln."

	// LabelManagedBy identifies images baked by kiln. This is the
	// primary label used for filtering and discovery.
	// Key: "kiln.managed-by", Value: always "kiln".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRecipe stores the recipe name the image was baked from.
	// Key: "kiln.recipe", Value: recipe name (e.g. "fireshape").
	LabelRecipe = LabelPrefix + "recipe"

	// LabelBase stores the base image reference the bake started from.
	// Key: "kiln.base", Value: image reference (e.g. "ubuntu:20.04").
	LabelBase = LabelPrefix + "base"

	// LabelTag stores the reference the result was tagged as.
	// Key: "kiln.tag", Value: image reference (e.g. "fireshape:latest").
	LabelTag = LabelPrefix + "tag"

	// LabelRecipeDigest stores the canonical digest of the resolved
	// recipe, so rebuilds can tell whether an image is current.
	// Key: "kiln.recipe-digest", Value: "sha256:<hex>".
	LabelRecipeDigest = LabelPrefix + "recipe-digest"

	// LabelPackages stores the installed package list, comma separated.
	// Package names in the apt, apk and dnf ecosystems never contain
	// commas, so the encoding is unambiguous.
	// Key: "kiln.packages", Value: e.g. "curl,git,python3".
	LabelPackages = LabelPrefix + "packages"

	// LabelInstallerURL stores the HTTPS URL of the installer script,
	// when the recipe had one.
	// Key: "kiln.installer-url".
	LabelInstallerURL = LabelPrefix + "installer-url"

	// LabelStrategy stores the bake strategy that produced the image.
	// Key: "kiln.strategy", Value: "dockerfile" or "commit".
	LabelStrategy = LabelPrefix + "strategy"

	// LabelToolVersion stores the kiln version that baked the image.
	// Key: "kiln.tool-version".
	LabelToolVersion = LabelPrefix + "tool-version"

	// LabelCreatedAt stores the bake timestamp.
	// Key: "kiln.created-at", Value: RFC3339 formatted timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
// Every image kiln bakes carries it, enabling discovery via Docker API
// label filters.
const ManagedByValue = "kiln"

// BuildLabels constructs a Docker label map from an ImageRecord. The
// labels are applied to every baked image, allowing full reconstruction
// of the record from image inspection alone.
func BuildLabels(rec *model.ImageRecord) map[string]string {
	labels := map[string]string{
		LabelManagedBy:    ManagedByValue,
		LabelRecipe:       rec.RecipeName,
		LabelBase:         rec.Base,
		LabelTag:          rec.Tag,
		LabelRecipeDigest: rec.RecipeDigest,
		LabelStrategy:     rec.Strategy.String(),
		// UTC keeps the stored timestamp independent of the host
		// machine's timezone.
		LabelCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}

	if len(rec.Packages) > 0 {
		labels[LabelPackages] = strings.Join(rec.Packages, ",")
	}
	if rec.InstallerURL != "" {
		labels[LabelInstallerURL] = rec.InstallerURL
	}
	if rec.ToolVersion != "" {
		labels[LabelToolVersion] = rec.ToolVersion
	}

	return labels
}

// ParseLabels reconstructs an ImageRecord from Docker image labels.
// This is the inverse of BuildLabels and is used when listing or
// inspecting images to rebuild the domain record.
//
// Required labels: managed-by, recipe, base, tag, recipe-digest,
// strategy, created-at. Missing required labels cause an error listing
// all of them. Packages, installer-url and tool-version are optional
// because a recipe may install no packages, run no installer, or
// predate version stamping.
//
// ImageID and Size are not reconstructed here; they come from Docker
// image state, not from labels.
func ParseLabels(labels map[string]string) (*model.ImageRecord, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelRecipe,
		LabelBase,
		LabelTag,
		LabelRecipeDigest,
		LabelStrategy,
		LabelCreatedAt,
	}

	// Collect every missing key before failing so the error names them
	// all at once.
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	strategy, err := model.ParseBakeStrategy(labels[LabelStrategy])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelStrategy, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	var packages []string
	if v := labels[LabelPackages]; v != "" {
		packages = strings.Split(v, ",")
	}

	return &model.ImageRecord{
		RecipeName:   labels[LabelRecipe],
		Base:         labels[LabelBase],
		Tag:          labels[LabelTag],
		RecipeDigest: labels[LabelRecipeDigest],
		Packages:     packages,
		InstallerURL: labels[LabelInstallerURL],
		Strategy:     strategy,
		ToolVersion:  labels[LabelToolVersion],
		CreatedAt:    createdAt,
	}, nil
}
