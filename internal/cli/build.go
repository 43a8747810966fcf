// build.go implements the "kiln build" command.
//
// The build command is the primary user-facing operation. It orchestrates
// the full bake workflow:
//  1. Load and resolve the recipe (explicit path, discovery, or built-in)
//  2. Validate and lint the recipe
//  3. Connect to the Docker daemon
//  4. Pre-fetch the installer when the recipe pins its checksum
//  5. Render the recipe and drive the build or commit bake
//  6. Optionally verify the result
//  7. Output results (text or JSON)
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossrock-dev/kiln/internal/engine"
	"github.com/mossrock-dev/kiln/internal/fetch"
	"github.com/mossrock-dev/kiln/internal/model"
	"github.com/mossrock-dev/kiln/internal/recipe"
	"github.com/mossrock-dev/kiln/internal/render"
)

// buildFlags holds the flag values for the build command.
// These are bound to cobra flags in NewBuildCommand.
type buildFlags struct {
	tag      string // --tag: override the reference the image is tagged as
	strategy string // --strategy: dockerfile or commit
	noCache  bool   // --no-cache: disable the daemon's layer cache
	pull     bool   // --pull: always pull the base image
	verify   bool   // --verify: run verification checks after the bake
	builtin  bool   // --builtin: bake the embedded default recipe
}

// NewBuildCommand creates the "build" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build [recipe-file]",
		Short: "Bake an image from a provisioning recipe",
		Long: `Bake a container image from a provisioning recipe.

Without arguments, the recipe is discovered in the current directory
(kiln.yaml, kiln.yml, kiln.json, kiln.jsonc). An explicit path may point
at any YAML or JSON recipe file. --builtin bakes the recipe embedded in
the binary: the Firedrake finite-element stack on Ubuntu.

The dockerfile strategy (default) renders the recipe to a Dockerfile and
runs a daemon-side build. The commit strategy runs the provisioning
script in a container started from the base image and commits the result.

Examples:
  kiln build
  kiln build recipes/fireshape.yaml
  kiln build --builtin --verify
  kiln build --strategy commit --tag fireshape:dev`,

		// At most one positional argument: the recipe file path.
		Args: cobra.MaximumNArgs(1),

		// RunE is used instead of Run so we can return errors. Cobra will
		// pass them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), args, flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().StringVar(&flags.tag, "tag", "", "Tag for the baked image (default: <name>:latest)")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "dockerfile", "Bake strategy: dockerfile or commit")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Do not use the daemon's layer cache")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Always pull the base image before baking")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "Run verification checks after the bake")
	cmd.Flags().BoolVar(&flags.builtin, "builtin", false, "Bake the built-in Firedrake recipe")

	return cmd
}

// runBuild is the main orchestration function for the build command.
// It coordinates all the steps needed to bake an image from a recipe.
func runBuild(ctx context.Context, args []string, flags *buildFlags) error {
	// Step 1: Load and resolve the recipe.
	r, source, err := resolveRecipe(args, flags.builtin)
	if err != nil {
		return err
	}
	VerboseLog("Loaded recipe %q from %s", r.Name, source)

	r.ApplyDefaults()
	if flags.tag != "" {
		r.Tag = flags.tag
	}

	// Step 2: Validate and lint. Validation failures abort; lint warnings
	// go to stderr and only lint errors abort.
	if errs := r.Validate(); len(errs) > 0 {
		return model.NewCLIError(model.ExitRecipeError,
			fmt.Sprintf("recipe validation failed:\n%s", recipe.FormatValidationErrors(errs)))
	}

	issues := render.Lint(r)
	for _, issue := range issues {
		fmt.Fprintln(os.Stderr, issue.String())
	}
	if render.HasErrors(issues) {
		return model.NewCLIError(model.ExitRecipeError, "recipe has lint errors")
	}

	strategy, err := model.ParseBakeStrategy(flags.strategy)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid --strategy", err)
	}

	// The digest covers the fully resolved recipe, including any --tag
	// override, so labels describe exactly what was baked.
	dgst, err := r.Digest()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to compute recipe digest", err)
	}
	VerboseLog("Recipe digest: %s", dgst)

	// Step 3: Connect to the Docker daemon.
	cli, err := engine.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 4: Pre-fetch the installer when the recipe pins its checksum.
	// Unpinned recipes fetch the installer inside the build instead.
	var installerName string
	var installerScript []byte
	if r.Pinned() {
		VerboseLog("Pre-fetching pinned installer from %s...", r.Installer.URL)
		result, err := fetch.NewFetcher().Fetch(ctx, r.Installer.URL)
		if err != nil {
			return err
		}
		if !result.Matches(r.Installer.SHA256) {
			return model.NewCLIError(model.ExitFetchFailed,
				fmt.Sprintf("installer checksum mismatch: recipe pins sha256:%s, fetched %s",
					strings.ToLower(r.Installer.SHA256), result.Digest))
		}
		installerName = r.Installer.ScriptName()
		installerScript = result.Body
		VerboseLog("Installer checksum verified (%s)", result.Digest)
	}

	// Step 5: Build the image record and bake.
	rec := &model.ImageRecord{
		RecipeName:   r.Name,
		Base:         r.Base,
		Tag:          r.Tag,
		RecipeDigest: dgst.String(),
		Packages:     r.Packages,
		Strategy:     strategy,
		ToolVersion:  Version,
		CreatedAt:    time.Now().UTC(),
	}
	if r.Installer != nil {
		rec.InstallerURL = r.Installer.URL
	}
	labels := engine.BuildLabels(rec)

	start := time.Now()
	var imageID string

	switch strategy {
	case model.StrategyDockerfile:
		dockerfile, err := render.Dockerfile(r, labels)
		if err != nil {
			return model.WrapCLIError(model.ExitRecipeError, "failed to render Dockerfile", err)
		}
		VerboseLog("Building %s with the daemon-side builder...", r.Tag)
		imageID, err = engine.BuildImage(ctx, cli, engine.BuildOptions{
			Tag:             r.Tag,
			Dockerfile:      dockerfile,
			InstallerName:   installerName,
			InstallerScript: installerScript,
			NoCache:         flags.noCache,
			PullParent:      flags.pull,
			Progress:        progressWriter(),
		})
		if err != nil {
			return err
		}
	case model.StrategyCommit:
		script, err := render.Script(r, render.ScriptOptions{LocalInstaller: r.Pinned()})
		if err != nil {
			return model.WrapCLIError(model.ExitRecipeError, "failed to render provisioning script", err)
		}
		VerboseLog("Baking %s with the commit strategy...", r.Tag)
		imageID, err = engine.Bake(ctx, cli, engine.BakeOptions{
			Base:            r.Base,
			Tag:             r.Tag,
			Workdir:         r.Workdir,
			Script:          script,
			InstallerName:   installerName,
			InstallerScript: installerScript,
			Labels:          labels,
			Pull:            flags.pull,
			Progress:        progressWriter(),
		})
		if err != nil {
			return err
		}
	}

	result := &model.BuildResult{
		ImageID:      imageID,
		Tag:          r.Tag,
		RecipeName:   r.Name,
		RecipeDigest: dgst.String(),
		Strategy:     strategy,
		Duration:     time.Since(start),
	}

	// Step 6: Optionally verify the baked image.
	var verifyResult *model.VerifyResult
	if flags.verify {
		pm, err := render.ManagerFor(r)
		if err != nil {
			return model.WrapCLIError(model.ExitRecipeError, "failed to resolve package manager", err)
		}
		VerboseLog("Verifying %s...", r.Tag)
		verifyResult, err = runChecks(ctx, cli, r.Tag, pm, r.Packages, r.Verify)
		if err != nil {
			return err
		}
	}

	// Step 7: Output the result. Verification failures surface after the
	// report so the user sees which checks failed.
	printBuildResult(result, verifyResult)

	if verifyResult != nil && !verifyResult.Passed() {
		return model.NewCLIError(model.ExitVerifyFailed,
			fmt.Sprintf("%d of %d verification checks failed",
				verifyResult.FailedCount(), len(verifyResult.Checks)))
	}
	return nil
}

// resolveRecipe locates and loads the recipe for a command invocation:
// the built-in recipe with --builtin, an explicit path when one is given,
// otherwise discovery in the current directory.
//
// The returned string describes where the recipe came from, for logging.
func resolveRecipe(args []string, builtin bool) (*recipe.Recipe, string, error) {
	if builtin {
		r, err := recipe.Default()
		if err != nil {
			return nil, "", model.WrapCLIError(model.ExitRecipeError, "failed to load built-in recipe", err)
		}
		return r, "built-in recipe", nil
	}

	var recipePath string
	if len(args) == 1 {
		recipePath = args[0]
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
		recipePath, err = recipe.Discover(cwd)
		if err != nil {
			return nil, "", err
		}
	}

	r, err := recipe.Load(recipePath)
	if err != nil {
		return nil, "", err
	}
	return r, recipePath, nil
}

// printBuildResult outputs the build command result in text or JSON format.
// A non-nil verify result is included in the report.
func printBuildResult(result *model.BuildResult, verify *model.VerifyResult) {
	if IsJSONOutput() {
		printBuildResultJSON(result, verify)
	} else {
		printBuildResultText(result, verify)
	}
}

// printBuildResultJSON outputs the build result as structured JSON.
func printBuildResultJSON(result *model.BuildResult, verify *model.VerifyResult) {
	type resultJSON struct {
		ImageID      string      `json:"imageId"`
		Tag          string      `json:"tag"`
		RecipeName   string      `json:"recipeName"`
		RecipeDigest string      `json:"recipeDigest"`
		Strategy     string      `json:"strategy"`
		Duration     string      `json:"duration"`
		Verify       *verifyJSON `json:"verify,omitempty"`
	}

	out := resultJSON{
		ImageID:      result.ImageID,
		Tag:          result.Tag,
		RecipeName:   result.RecipeName,
		RecipeDigest: result.RecipeDigest,
		Strategy:     result.Strategy.String(),
		Duration:     result.Duration.Round(time.Millisecond).String(),
	}
	if verify != nil {
		out.Verify = newVerifyJSON(verify)
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

// printBuildResultText outputs the build result as human-readable text.
func printBuildResultText(result *model.BuildResult, verify *model.VerifyResult) {
	fmt.Printf("Baked image %q\n", result.Tag)
	fmt.Printf("  Recipe:    %s\n", result.RecipeName)
	fmt.Printf("  Digest:    %s\n", ShortID(result.RecipeDigest))
	fmt.Printf("  Image ID:  %s\n", ShortID(result.ImageID))
	fmt.Printf("  Strategy:  %s\n", result.Strategy)
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))

	if verify != nil {
		fmt.Println()
		printCheckLines(verify)
	}
}
