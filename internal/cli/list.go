// list.go implements the "kiln list" command.
//
// The list command displays all baked images by querying Docker for images
// with the "kiln.managed-by=kiln" label. Records are reconstructed from
// image labels and presented as a text table or JSON array, depending on
// the --json flag.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/mossrock-dev/kiln/internal/engine"
	"github.com/mossrock-dev/kiln/internal/model"
)

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List baked images",
		Long: `List all images baked by kiln, newest first.

Each image is shown with its recipe name, tag, base image, bake strategy,
size, and age.

Examples:
  kiln list
  kiln list --json`,

		// No positional arguments are required for the list command.
		Args: cobra.NoArgs,

		// RunE returns an error to the root command's error handler.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context())
		},
	}

	return cmd
}

// runList is the main logic function for the list command.
// It connects to Docker, discovers baked images, and outputs results in
// the appropriate format.
func runList(ctx context.Context) error {
	// Step 1: Connect to Docker daemon.
	cli, err := engine.NewClient()
	if err != nil {
		return err
	}
	// defer ensures the Docker client is closed when this function returns,
	// releasing the underlying HTTP connection and resources.
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: List baked images. The engine returns them newest first
	// with runtime fields (image ID, size) already filled in.
	records, err := engine.ListImages(ctx, cli)
	if err != nil {
		return err
	}
	VerboseLog("Found %d baked image(s)", len(records))

	// Step 3: Output results in the appropriate format.
	printListResult(records)
	return nil
}

// printListResult outputs the image records in text or JSON format,
// depending on the global --json flag.
func printListResult(records []model.ImageRecord) {
	if IsJSONOutput() {
		printListResultJSON(records)
	} else {
		printListResultText(records)
	}
}

// listImageJSON is the JSON output structure for a single baked image
// in the list command.
type listImageJSON struct {
	RecipeName   string   `json:"recipeName"`
	Tag          string   `json:"tag"`
	Base         string   `json:"base"`
	Strategy     string   `json:"strategy"`
	ImageID      string   `json:"imageId"`
	Size         int64    `json:"size"`
	CreatedAt    string   `json:"createdAt"`
	RecipeDigest string   `json:"recipeDigest"`
	Packages     []string `json:"packages"`
	InstallerURL string   `json:"installerUrl,omitempty"`
}

// printListResultJSON outputs the image list as structured JSON.
// The top-level key is "images" containing an array of image objects.
func printListResultJSON(records []model.ImageRecord) {
	type resultJSON struct {
		Images []listImageJSON `json:"images"`
	}

	result := resultJSON{
		// Use an empty slice instead of nil to ensure JSON output shows []
		// instead of null when no images are found.
		Images: make([]listImageJSON, 0, len(records)),
	}

	for _, rec := range records {
		entry := listImageJSON{
			RecipeName:   rec.RecipeName,
			Tag:          rec.Tag,
			Base:         rec.Base,
			Strategy:     rec.Strategy.String(),
			ImageID:      rec.ImageID,
			Size:         rec.Size,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
			RecipeDigest: rec.RecipeDigest,
			Packages:     make([]string, 0, len(rec.Packages)),
			InstallerURL: rec.InstallerURL,
		}
		entry.Packages = append(entry.Packages, rec.Packages...)

		result.Images = append(result.Images, entry)
	}

	// MarshalIndent produces human-readable JSON with 2-space indentation.
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the image list as a human-readable text
// table with aligned columns.
//
// The table format is:
//
//	NAME        TAG                BASE          STRATEGY    SIZE     AGE
//	fireshape   fireshape:latest   ubuntu:20.04  dockerfile  9.04GB   2 days ago
func printListResultText(records []model.ImageRecord) {
	if len(records) == 0 {
		fmt.Println("No baked images found.")
		return
	}

	// Print header row.
	fmt.Printf("%-16s %-28s %-20s %-11s %-9s %s\n",
		"NAME", "TAG", "BASE", "STRATEGY", "SIZE", "AGE")

	for _, rec := range records {
		// Print one row per image with fixed-width columns.
		fmt.Printf("%-16s %-28s %-20s %-11s %-9s %s\n",
			rec.RecipeName,
			rec.Tag,
			rec.Base,
			rec.Strategy.String(),
			FormatSize(rec.Size),
			FormatAge(rec.CreatedAt),
		)
	}
}

// FormatSize converts an image size in bytes into a human-readable string
// using decimal units, the same convention `docker images` uses.
// Returns "-" when the size is unknown (zero).
//
// This function is exported for testing purposes (tested in list_test.go).
func FormatSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	return units.HumanSize(float64(size))
}

// FormatAge converts a creation timestamp into a human-readable age like
// "2 days ago". Returns "-" for a zero timestamp.
//
// This function is exported for testing purposes (tested in list_test.go).
func FormatAge(createdAt time.Time) string {
	if createdAt.IsZero() {
		return "-"
	}
	return units.HumanDuration(time.Since(createdAt)) + " ago"
}

// hexDigest matches the 64-character hex payload of a sha256 digest.
var hexDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ShortID returns the familiar 12-character form of a sha256 image ID or
// digest. Values that are not sha256 digests pass through unchanged, so
// it is safe to apply to tags and other references.
func ShortID(id string) string {
	trimmed := strings.TrimPrefix(id, "sha256:")
	if hexDigest.MatchString(trimmed) {
		return trimmed[:12]
	}
	return id
}
