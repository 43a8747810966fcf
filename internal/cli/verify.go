// verify.go implements the "kiln verify" command.
//
// The verify command re-checks a baked image: it renders a verification
// script from the image's recipe metadata, runs the script in a container
// started from the image, and reports one result per check. Package checks
// use the package manager's query command; command checks run the recipe's
// verify commands. Any failed check makes the command exit non-zero.
//
// The check list normally comes from the image's labels, which carry the
// package set but not the recipe's verify commands. Passing --recipe
// rebuilds the full check list, commands included, from a recipe file.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossrock-dev/kiln/internal/engine"
	"github.com/mossrock-dev/kiln/internal/model"
	"github.com/mossrock-dev/kiln/internal/recipe"
	"github.com/mossrock-dev/kiln/internal/render"
)

// verifyFlags holds the flag values for the verify command.
type verifyFlags struct {
	// image verifies this exact image reference instead of looking up
	// the newest baked image for a recipe name.
	image string

	// recipePath rebuilds the check list from a recipe file instead of
	// the image's labels.
	recipePath string
}

// NewVerifyCommand creates the "verify" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewVerifyCommand() *cobra.Command {
	flags := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify [name]",
		Short: "Check that a baked image contains what its recipe promised",
		Long: `Run verification checks inside a container started from a baked image.

Each package the recipe installed is checked with the package manager's
query command, and each of the recipe's verify commands is run. Every
check executes even when an earlier one fails, so the report is complete.

The image is found by recipe name, or named directly with --image. The
check list comes from the image's labels; pass --recipe to rebuild it
from a recipe file, which also enables the recipe's verify commands.

Examples:
  kiln verify fireshape
  kiln verify --image fireshape:dev
  kiln verify --recipe kiln.yaml fireshape`,

		// The recipe name is optional when --image names the target.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && flags.image == "" {
				return model.NewCLIError(model.ExitGeneralError,
					"a recipe name or --image reference is required")
			}
			return runVerify(cmd.Context(), args, flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().StringVar(&flags.image, "image", "", "Verify this image reference instead of looking up by name")
	cmd.Flags().StringVar(&flags.recipePath, "recipe", "", "Rebuild the check list from this recipe file")

	return cmd
}

// runVerify is the main logic function for the verify command.
func runVerify(ctx context.Context, args []string, flags *verifyFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := engine.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Step 2: Resolve the target image.
	var imageRef string
	var rec *model.ImageRecord
	if flags.image != "" {
		imageRef = flags.image
	} else {
		rec, err = engine.FindImage(ctx, cli, args[0])
		if err != nil {
			return err
		}
		imageRef = rec.ImageID
		VerboseLog("Found image %s (tag %s)", ShortID(rec.ImageID), rec.Tag)
	}

	// Step 3: Rebuild the check list.
	var pm render.PackageManager
	var packages, commands []string
	if flags.recipePath != "" {
		r, err := recipe.Load(flags.recipePath)
		if err != nil {
			return err
		}
		r.ApplyDefaults()
		if errs := r.Validate(); len(errs) > 0 {
			return model.NewCLIError(model.ExitRecipeError,
				fmt.Sprintf("recipe validation failed:\n%s", recipe.FormatValidationErrors(errs)))
		}
		pm, err = render.ManagerFor(r)
		if err != nil {
			return model.WrapCLIError(model.ExitRecipeError, "failed to resolve package manager", err)
		}
		packages, commands = r.Packages, r.Verify
	} else {
		if rec == nil {
			rec, err = engine.InspectImage(ctx, cli, flags.image)
			if err != nil {
				return err
			}
		}
		pm = render.Detect(rec.Base)
		packages = rec.Packages
	}

	if len(packages) == 0 && len(commands) == 0 {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("nothing to verify for %s: no packages or verify commands", imageRef))
	}
	VerboseLog("Running %d check(s) against %s", len(packages)+len(commands), imageRef)

	// Step 4: Run the checks inside the image.
	result, err := runChecks(ctx, cli, imageRef, pm, packages, commands)
	if err != nil {
		return err
	}

	// Step 5: Output the per-check report, then map failures to the exit
	// code so the report always prints.
	printVerifyResult(result)

	if !result.Passed() {
		return model.NewCLIError(model.ExitVerifyFailed,
			fmt.Sprintf("%d of %d verification checks failed",
				result.FailedCount(), len(result.Checks)))
	}
	return nil
}

// runChecks renders the verification script, runs it in a container from
// the image, and parses the output into check results. Shared by the
// verify command and `kiln build --verify`.
func runChecks(ctx context.Context, cli *engine.Client, imageRef string, pm render.PackageManager, packages, commands []string) (*model.VerifyResult, error) {
	start := time.Now()

	script := render.VerifyScript(pm, packages, commands)
	output, err := engine.VerifyImage(ctx, cli, imageRef, script, progressWriter())
	if err != nil {
		return nil, err
	}

	return &model.VerifyResult{
		Image:    imageRef,
		Checks:   render.ParseVerifyOutput(output, packages, commands),
		Duration: time.Since(start),
	}, nil
}

// verifyJSON is the JSON shape shared by `kiln verify` output and the
// verify block of `kiln build --verify` output.
type verifyJSON struct {
	Image    string      `json:"image"`
	Passed   bool        `json:"passed"`
	Checks   []checkJSON `json:"checks"`
	Duration string      `json:"duration"`
}

// checkJSON is one check outcome in JSON output.
type checkJSON struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// newVerifyJSON converts a VerifyResult into its JSON output shape.
// The checks slice is always non-nil so JSON output shows [] rather
// than null when there are no checks.
func newVerifyJSON(result *model.VerifyResult) *verifyJSON {
	out := &verifyJSON{
		Image:    result.Image,
		Passed:   result.Passed(),
		Checks:   make([]checkJSON, 0, len(result.Checks)),
		Duration: result.Duration.Round(time.Millisecond).String(),
	}
	for _, check := range result.Checks {
		out.Checks = append(out.Checks, checkJSON{
			Kind:   check.Kind.String(),
			Name:   check.Name,
			OK:     check.OK,
			Detail: check.Detail,
		})
	}
	return out
}

// printVerifyResult outputs the verify command result in text or JSON format.
func printVerifyResult(result *model.VerifyResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(newVerifyJSON(result), "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Verified image %s\n", ShortID(result.Image))
	printCheckLines(result)
}

// printCheckLines writes one line per verification check plus a summary.
// Shared by the verify command and the text form of `kiln build --verify`.
func printCheckLines(result *model.VerifyResult) {
	for _, check := range result.Checks {
		mark := "ok  "
		if !check.OK {
			mark = "FAIL"
		}
		line := fmt.Sprintf("  %s %-8s %s", mark, check.Kind, check.Name)
		if check.Detail != "" {
			line += " (" + check.Detail + ")"
		}
		fmt.Println(line)
	}

	fmt.Println()
	if result.Passed() {
		fmt.Printf("All %d checks passed in %s\n",
			len(result.Checks), result.Duration.Round(time.Millisecond))
	} else {
		fmt.Printf("%d of %d checks failed\n", result.FailedCount(), len(result.Checks))
	}
}
