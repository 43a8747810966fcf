// build.go implements the dockerfile bake strategy: a rendered Dockerfile
// is packed into an in-memory build context and submitted to the daemon's
// image build endpoint. The daemon's JSON progress stream is either
// displayed (verbose runs) or silently drained, but always scanned for
// errors, because a failed build surfaces as a stream message rather than
// an API error.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/term"

	"github.com/mossrock-dev/kiln/internal/model"
)

// dockerfileName is the file name the Dockerfile occupies inside the
// build context.
const dockerfileName = "Dockerfile"

// BuildOptions describes one dockerfile-strategy build.
type BuildOptions struct {
	// Tag is the reference to tag the built image as.
	Tag string

	// Dockerfile is the rendered Dockerfile content.
	Dockerfile []byte

	// InstallerName and InstallerScript carry a pin-verified installer
	// into the build context, where the Dockerfile's COPY instruction
	// picks it up. Both are empty for unpinned recipes, which fetch the
	// installer inside the build instead.
	InstallerName   string
	InstallerScript []byte

	// NoCache disables the daemon's layer cache for this build.
	NoCache bool

	// PullParent forces a fresh pull of the base image even when a
	// local copy exists.
	PullParent bool

	// Progress receives the daemon's build output when non-nil.
	// A nil Progress drains the stream silently.
	Progress io.Writer
}

// BuildImage builds an image from a rendered Dockerfile and returns the
// resulting image ID.
//
// Returns a model.CLIError with ExitBuildFailed when the daemon rejects
// the build or any build step fails.
func BuildImage(ctx context.Context, cli *Client, opts BuildOptions) (string, error) {
	entries := []tarEntry{
		{name: dockerfileName, mode: 0o644, data: opts.Dockerfile},
	}
	if len(opts.InstallerScript) > 0 {
		// The installer must be executable once copied into the image.
		entries = append(entries, tarEntry{
			name: opts.InstallerName,
			mode: 0o755,
			data: opts.InstallerScript,
		})
	}

	buildCtx, err := tarArchive(entries)
	if err != nil {
		return "", model.WrapCLIError(model.ExitBuildFailed, "packing build context", err)
	}

	resp, err := cli.Inner().ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{opts.Tag},
		Dockerfile:  dockerfileName,
		Remove:      true,
		ForceRemove: true,
		NoCache:     opts.NoCache,
		PullParent:  opts.PullParent,
	})
	if err != nil {
		return "", model.WrapCLIError(model.ExitBuildFailed, "starting image build", err)
	}
	defer resp.Body.Close()

	var imageID string
	captureAux := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var result struct {
			ID string `json:"ID"`
		}
		if json.Unmarshal(*msg.Aux, &result) == nil && result.ID != "" {
			imageID = result.ID
		}
	}
	if err := streamMessages(resp.Body, opts.Progress, captureAux); err != nil {
		return "", model.WrapCLIError(model.ExitBuildFailed, "image build failed", err)
	}

	// Legacy and BuildKit builders differ in whether the stream carries
	// the image ID; resolving the tag covers both.
	if imageID == "" {
		insp, err := cli.Inner().ImageInspect(ctx, opts.Tag)
		if err != nil {
			return "", model.WrapCLIError(
				model.ExitBuildFailed,
				fmt.Sprintf("build finished but image %q was not created", opts.Tag),
				err,
			)
		}
		imageID = insp.ID
	}

	return imageID, nil
}

// streamMessages reads a daemon JSON message stream (build or pull
// progress) to completion. Messages are rendered to out when it is
// non-nil and drained otherwise; aux, when non-nil, receives auxiliary
// payloads such as the built image ID.
//
// An operation failure arrives as a message inside the stream, not as a
// transport error, and is returned as the stream error.
func streamMessages(r io.Reader, out io.Writer, aux func(jsonmessage.JSONMessage)) error {
	if out != nil {
		termFd, isTerm := term.GetFdInfo(out)
		return jsonmessage.DisplayJSONMessagesStream(r, out, termFd, isTerm, aux)
	}

	dec := json.NewDecoder(r)
	for {
		var jm jsonmessage.JSONMessage
		if err := dec.Decode(&jm); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if jm.Error != nil {
			return jm.Error
		}
		if aux != nil {
			aux(jm)
		}
	}
}
