// render.go implements the "kiln render" command.
//
// The render command turns a recipe into the artifact a bake would use,
// without touching the Docker daemon: the Dockerfile for the dockerfile
// strategy, the provisioning script for the commit strategy, or the
// resolved recipe itself with every default filled in.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mossrock-dev/kiln/internal/model"
	"github.com/mossrock-dev/kiln/internal/recipe"
	"github.com/mossrock-dev/kiln/internal/render"
)

// renderFlags holds the flag values for the render command.
type renderFlags struct {
	format  string // --format: dockerfile, script, or recipe
	output  string // --output: write to this file instead of stdout
	builtin bool   // --builtin: render the embedded default recipe
}

// NewRenderCommand creates the "render" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRenderCommand() *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render [recipe-file]",
		Short: "Render a recipe to a Dockerfile, script, or resolved recipe",
		Long: `Render a recipe without baking it. No Docker daemon is needed.

Formats:
  dockerfile  the Dockerfile the dockerfile strategy would build
  script      the provisioning script the commit strategy would run
  recipe      the resolved recipe with every default filled in

The rendered Dockerfile carries no kiln labels; those are stamped at
build time. A rendered script always fetches the installer itself, even
for checksum-pinned recipes, so it works standalone.

Examples:
  kiln render
  kiln render --format script recipes/fireshape.yaml
  kiln render --builtin --format dockerfile --output Dockerfile`,

		// At most one positional argument: the recipe file path.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(args, flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().StringVar(&flags.format, "format", "dockerfile", "Output format: dockerfile, script, or recipe")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&flags.builtin, "builtin", false, "Render the built-in Firedrake recipe")

	return cmd
}

// runRender is the main logic function for the render command.
func runRender(args []string, flags *renderFlags) error {
	// Step 1: Load and resolve the recipe.
	r, source, err := resolveRecipe(args, flags.builtin)
	if err != nil {
		return err
	}
	VerboseLog("Loaded recipe %q from %s", r.Name, source)

	r.ApplyDefaults()
	if errs := r.Validate(); len(errs) > 0 {
		return model.NewCLIError(model.ExitRecipeError,
			fmt.Sprintf("recipe validation failed:\n%s", recipe.FormatValidationErrors(errs)))
	}

	// Step 2: Render the requested format.
	var data []byte
	switch flags.format {
	case "dockerfile":
		data, err = render.Dockerfile(r, nil)
	case "script":
		data, err = render.Script(r, render.ScriptOptions{})
	case "recipe":
		data, err = recipe.Encode(r)
	default:
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid --format %q (valid: dockerfile, script, recipe)", flags.format))
	}
	if err != nil {
		return model.WrapCLIError(model.ExitRecipeError,
			fmt.Sprintf("failed to render %s", flags.format), err)
	}

	// Step 3: Write to the output file or stdout.
	if flags.output != "" {
		if err := os.WriteFile(flags.output, data, 0o644); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to write %s", flags.output), err)
		}
		printRenderResult(flags.format, flags.output, len(data))
		return nil
	}

	if IsJSONOutput() {
		// Wrap raw content so --json output stays machine-parseable.
		out := map[string]interface{}{
			"format":  flags.format,
			"content": string(data),
		}
		marshaled, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(marshaled))
		return nil
	}

	_, err = os.Stdout.Write(data)
	return err
}

// printRenderResult reports where rendered output was written, in text or
// JSON format.
func printRenderResult(format, path string, size int) {
	if IsJSONOutput() {
		out := map[string]interface{}{
			"format": format,
			"path":   path,
			"size":   size,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Wrote %s to %s\n", format, path)
}
