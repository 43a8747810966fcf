// verify.go runs a rendered verification script inside a container
// started from a baked image and captures its output for parsing.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"

	"github.com/mossrock-dev/kiln/internal/model"
)

// VerifyImage runs the verification script in a throwaway container
// started from the given image and returns the script's combined output.
//
// The script's exit status is intentionally not treated as an error:
// it encodes check failures, which the caller reads from the parsed
// output. Only infrastructure failures (container cannot be created,
// started, or observed) return an error, with ExitVerifyFailed.
func VerifyImage(ctx context.Context, cli *Client, imageRef string, script []byte, progress io.Writer) (string, error) {
	created, err := cli.Inner().ContainerCreate(ctx, &container.Config{
		Image: imageRef,
		// No -e: the script runs every check and reports each outcome.
		Cmd: []string{"/bin/sh", "-c", string(script)},
	}, nil, nil, nil, "")
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitVerifyFailed,
			fmt.Sprintf("creating verification container from %q", imageRef),
			err,
		)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		_ = cli.Inner().ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(model.ExitVerifyFailed, "starting verification container", err)
	}

	// Capture the output for parsing, mirroring it live when requested.
	var buf bytes.Buffer
	out := io.Writer(&buf)
	if progress != nil {
		out = io.MultiWriter(&buf, progress)
	}
	if err := streamContainerOutput(ctx, cli, created.ID, out); err != nil {
		return "", model.WrapCLIError(model.ExitVerifyFailed, "streaming verification output", err)
	}

	statusCh, errCh := cli.Inner().ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return "", model.WrapCLIError(model.ExitVerifyFailed, "waiting for verification container", err)
	case <-statusCh:
	}

	return buf.String(), nil
}
