// images.go implements discovery and lifecycle operations for baked
// images. All queries filter on the kiln.managed-by label so unrelated
// images on the host are never touched, and every result is rebuilt into
// a domain record from labels alone.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/mossrock-dev/kiln/internal/model"
)

// ListImages returns a record for every kiln-baked image known to the
// daemon, newest first.
//
// Images whose labels no longer parse (tampered or truncated) are
// skipped rather than failing the whole listing.
func ListImages(ctx context.Context, cli *Client) ([]model.ImageRecord, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	summaries, err := cli.Inner().ImageList(ctx, image.ListOptions{
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker images",
			err,
		)
	}

	records := make([]model.ImageRecord, 0, len(summaries))
	for _, s := range summaries {
		rec, err := ParseLabels(s.Labels)
		if err != nil {
			continue
		}
		rec.ImageID = s.ID
		rec.Size = s.Size
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// FindImage locates the newest baked image for the named recipe.
//
// Returns a model.CLIError with ExitImageNotFound when no image carries
// the recipe's label.
func FindImage(ctx context.Context, cli *Client, recipeName string) (*model.ImageRecord, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
		filters.Arg("label", LabelRecipe+"="+recipeName),
	)

	summaries, err := cli.Inner().ImageList(ctx, image.ListOptions{
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker images",
			err,
		)
	}
	if len(summaries) == 0 {
		return nil, model.NewCLIError(
			model.ExitImageNotFound,
			fmt.Sprintf("no baked image found for recipe %q", recipeName),
		)
	}

	// Rebakes leave older images behind under the same recipe label
	// until they are removed; the newest one is the current bake.
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Created > summaries[j].Created
	})

	for _, s := range summaries {
		rec, err := ParseLabels(s.Labels)
		if err != nil {
			continue
		}
		rec.ImageID = s.ID
		rec.Size = s.Size
		return rec, nil
	}

	return nil, model.NewCLIError(
		model.ExitImageNotFound,
		fmt.Sprintf("images for recipe %q exist but their labels do not parse", recipeName),
	)
}

// InspectImage resolves an image reference (tag or ID) into its domain
// record.
//
// Returns a model.CLIError with ExitImageNotFound when the reference
// does not resolve or the image was not baked by kiln.
func InspectImage(ctx context.Context, cli *Client, ref string) (*model.ImageRecord, error) {
	insp, err := cli.Inner().ImageInspect(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, model.NewCLIError(
				model.ExitImageNotFound,
				fmt.Sprintf("no such image: %q", ref),
			)
		}
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect image %q", ref),
			err,
		)
	}

	var labels map[string]string
	if insp.Config != nil {
		labels = insp.Config.Labels
	}

	rec, err := ParseLabels(labels)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitImageNotFound,
			fmt.Sprintf("image %q was not baked by kiln", ref),
			err,
		)
	}
	rec.ImageID = insp.ID
	rec.Size = insp.Size

	return rec, nil
}

// RemoveImage removes an image by reference (tag or ID). When force is
// true the image is removed even if containers reference it.
//
// Returns a model.CLIError with ExitImageNotFound when the reference
// does not resolve.
func RemoveImage(ctx context.Context, cli *Client, ref string, force bool) error {
	_, err := cli.Inner().ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return model.NewCLIError(
				model.ExitImageNotFound,
				fmt.Sprintf("no such image: %q", ref),
			)
		}
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to remove image %q (is a container still using it?)", ref),
			err,
		)
	}
	return nil
}
