// remove.go implements the "kiln remove" command.
//
// The remove command deletes a baked image from the Docker daemon. The
// image is found by recipe name; when several bakes of the same recipe
// exist, the newest one is removed.
//
// By default, the command prompts for confirmation before proceeding.
// The --force flag skips the confirmation prompt and forces removal even
// when the image is referenced elsewhere.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mossrock-dev/kiln/internal/engine"
	"github.com/mossrock-dev/kiln/internal/model"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// force skips the interactive confirmation prompt and passes the
	// force flag through to the daemon's image removal.
	force bool
}

// NewRemoveCommand creates the "remove" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a baked image",
		Long: `Remove the newest baked image for a recipe from the Docker daemon.

Unless --force is specified, the command prompts for confirmation.
Containers still using the image block removal; --force removes it
anyway.

Examples:
  kiln remove fireshape
  kiln remove --force fireshape`,

		// Exactly one positional argument (recipe name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0], flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")

	return cmd
}

// runRemove is the main logic function for the remove command.
// It finds the image, optionally prompts for confirmation, and removes it.
func runRemove(ctx context.Context, recipeName string, flags *removeFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := engine.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the target image.
	rec, err := engine.FindImage(ctx, cli, recipeName)
	if err != nil {
		return err
	}
	VerboseLog("Found image %s (tag %s)", ShortID(rec.ImageID), rec.Tag)

	// Step 3: Prompt for confirmation unless --force is specified.
	if !flags.force {
		confirmed, err := promptConfirmation(rec)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitGeneralError, "operation cancelled by user")
		}
	}

	// Step 4: Remove the image by its tag, so sibling images from older
	// bakes of the same recipe are left alone.
	if err := engine.RemoveImage(ctx, cli, rec.Tag, flags.force); err != nil {
		return err
	}

	// Step 5: Output the result.
	printRemoveResult(recipeName, rec)
	return nil
}

// promptConfirmation asks the user to confirm the remove operation.
// It reads a single line from stdin and checks for "y" or "yes".
// Returns true if the user confirmed, false otherwise.
func promptConfirmation(rec *model.ImageRecord) (bool, error) {
	fmt.Printf("About to remove baked image %q:\n", rec.Tag)
	fmt.Printf("  - recipe %s, baked %s\n", rec.RecipeName, FormatAge(rec.CreatedAt))
	fmt.Printf("  - image ID %s (%s)\n", ShortID(rec.ImageID), FormatSize(rec.Size))
	fmt.Print("\nContinue? [y/N] ")

	// Read a line from stdin. bufio.Scanner handles different line endings
	// across platforms (LF on Unix, CRLF on Windows).
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If stdin is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// printRemoveResult outputs the remove command result in text or JSON format.
func printRemoveResult(recipeName string, rec *model.ImageRecord) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":    recipeName,
			"action":  "removed",
			"tag":     rec.Tag,
			"imageId": rec.ImageID,
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Removed baked image %q\n", rec.Tag)
	fmt.Printf("  Image ID: %s\n", ShortID(rec.ImageID))
}
