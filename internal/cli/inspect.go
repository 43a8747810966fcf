// inspect.go implements the "kiln inspect" command.
//
// The inspect command shows the full record of one baked image: the
// recipe metadata recovered from its labels plus the image ID and size
// reported by the daemon.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossrock-dev/kiln/internal/engine"
	"github.com/mossrock-dev/kiln/internal/model"
)

// NewInspectCommand creates the "inspect" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show the full record of a baked image",
		Long: `Show everything kiln knows about a baked image.

The image is found by recipe name; when several bakes of the same recipe
exist, the newest one is shown. The record combines the recipe metadata
stamped on the image at bake time with the image ID and size reported by
the Docker daemon.

Examples:
  kiln inspect fireshape
  kiln inspect --json fireshape`,

		// Exactly one positional argument (recipe name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0])
		},
	}

	return cmd
}

// runInspect is the main logic function for the inspect command.
func runInspect(ctx context.Context, recipeName string) error {
	// Step 1: Connect to Docker daemon.
	cli, err := engine.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the newest baked image for the recipe.
	rec, err := engine.FindImage(ctx, cli, recipeName)
	if err != nil {
		return err
	}
	VerboseLog("Found image %s (tag %s)", ShortID(rec.ImageID), rec.Tag)

	// Step 3: Output the record.
	printInspectResult(rec)
	return nil
}

// printInspectResult outputs the image record in text or JSON format.
func printInspectResult(rec *model.ImageRecord) {
	if IsJSONOutput() {
		// The record's own JSON tags define the output document.
		data, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Image %q\n", rec.Tag)
	fmt.Printf("  Recipe:     %s\n", rec.RecipeName)
	fmt.Printf("  Base:       %s\n", rec.Base)
	fmt.Printf("  Strategy:   %s\n", rec.Strategy)
	fmt.Printf("  Image ID:   %s\n", ShortID(rec.ImageID))
	fmt.Printf("  Size:       %s\n", FormatSize(rec.Size))
	fmt.Printf("  Created:    %s (%s)\n", rec.CreatedAt.Format(time.RFC3339), FormatAge(rec.CreatedAt))
	fmt.Printf("  Digest:     %s\n", rec.RecipeDigest)
	if rec.ToolVersion != "" {
		fmt.Printf("  Tool:       kiln %s\n", rec.ToolVersion)
	}
	if rec.InstallerURL != "" {
		fmt.Printf("  Installer:  %s\n", rec.InstallerURL)
	}
	if len(rec.Packages) > 0 {
		fmt.Printf("  Packages:   %s\n", strings.Join(rec.Packages, ", "))
	}
}
