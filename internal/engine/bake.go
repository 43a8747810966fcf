// bake.go implements the commit bake strategy: the base image is pulled,
// a throwaway container runs the rendered provisioning script, and the
// provisioned container is committed as the result image. The committed
// image carries the recipe labels and has its command reset to the base
// image's, so the one-shot provisioning command does not leak into the
// result.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/mossrock-dev/kiln/internal/model"
)

// removeTimeout bounds the cleanup of a provisioning container. Cleanup
// runs on its own context so a canceled bake still removes the container.
const removeTimeout = 30 * time.Second

// BakeOptions describes one commit-strategy bake.
type BakeOptions struct {
	// Base is the image reference the provisioning container starts from.
	Base string

	// Tag is the reference to tag the committed image as.
	Tag string

	// Workdir is the recipe working directory inside the container.
	Workdir string

	// Script is the rendered provisioning script, run as the container's
	// one-shot command.
	Script []byte

	// InstallerName and InstallerScript carry a pin-verified installer
	// into the container's working directory before the script runs.
	// Both are empty for unpinned recipes.
	InstallerName   string
	InstallerScript []byte

	// Labels are applied to the committed image.
	Labels map[string]string

	// Pull forces a fresh pull of the base image even when a local
	// copy exists.
	Pull bool

	// Progress receives pull progress and the provisioning script's
	// output when non-nil.
	Progress io.Writer
}

// Bake provisions a container from the base image and commits it as a
// new image, returning the committed image ID.
//
// Returns a model.CLIError with ExitBuildFailed when pulling, running
// the provisioning script, or committing fails. A non-zero script exit
// aborts the bake and nothing is committed.
func Bake(ctx context.Context, cli *Client, opts BakeOptions) (string, error) {
	if err := ensureImage(ctx, cli, opts.Base, opts.Pull, opts.Progress); err != nil {
		return "", err
	}

	// The committed image inherits the container's configuration, which
	// would otherwise include the provisioning script as its command.
	// Capture the base image's command so the commit can restore it.
	baseCmd := []string{"/bin/sh"}
	if insp, err := cli.Inner().ImageInspect(ctx, opts.Base); err == nil {
		if insp.Config != nil && len(insp.Config.Cmd) > 0 {
			baseCmd = insp.Config.Cmd
		}
	}

	created, err := cli.Inner().ContainerCreate(ctx, &container.Config{
		Image: opts.Base,
		Cmd:   []string{"/bin/sh", "-ec", string(opts.Script)},
	}, nil, nil, nil, "")
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("creating provisioning container from %q", opts.Base),
			err,
		)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		_ = cli.Inner().ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if len(opts.InstallerScript) > 0 {
		if err := copyInstaller(ctx, cli, created.ID, opts.Workdir, opts.InstallerName, opts.InstallerScript); err != nil {
			return "", err
		}
	}

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(model.ExitBuildFailed, "starting provisioning container", err)
	}

	if err := streamContainerOutput(ctx, cli, created.ID, opts.Progress); err != nil {
		return "", model.WrapCLIError(model.ExitBuildFailed, "streaming provisioning output", err)
	}

	statusCh, errCh := cli.Inner().ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return "", model.WrapCLIError(model.ExitBuildFailed, "waiting for provisioning container", err)
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return "", model.NewCLIError(
				model.ExitBuildFailed,
				fmt.Sprintf("provisioning script exited with status %d", status.StatusCode),
			)
		}
	}

	commit, err := cli.Inner().ContainerCommit(ctx, created.ID, container.CommitOptions{
		Reference: opts.Tag,
		Comment:   "baked by kiln",
		Pause:     true,
		Changes:   commitChanges(opts.Labels, baseCmd),
	})
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("committing provisioned container as %q", opts.Tag),
			err,
		)
	}

	return commit.ID, nil
}

// ensureImage makes the reference available locally, pulling it when no
// local copy exists or when force is set.
func ensureImage(ctx context.Context, cli *Client, ref string, force bool, progress io.Writer) error {
	if !force {
		if _, err := cli.Inner().ImageInspect(ctx, ref); err == nil {
			return nil
		}
	}
	return PullImage(ctx, cli, ref, progress)
}

// PullImage pulls an image, rendering pull progress to progress when it
// is non-nil.
func PullImage(ctx context.Context, cli *Client, ref string, progress io.Writer) error {
	rc, err := cli.Inner().ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("pulling image %q", ref),
			err,
		)
	}
	defer rc.Close()

	if err := streamMessages(rc, progress, nil); err != nil {
		return model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("pulling image %q", ref),
			err,
		)
	}
	return nil
}

// copyInstaller places a pin-verified installer script into the recipe
// working directory of a created container. The archive carries the full
// directory path because the working directory does not exist on a fresh
// base image.
func copyInstaller(ctx context.Context, cli *Client, containerID, workdir, name string, script []byte) error {
	path := strings.TrimPrefix(workdir, "/") + "/" + name
	archive, err := tarArchive([]tarEntry{
		{name: path, mode: 0o755, data: script},
	})
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "packing installer archive", err)
	}

	err = cli.Inner().CopyToContainer(ctx, containerID, "/", archive, container.CopyToContainerOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("copying installer %q into container", name),
			err,
		)
	}
	return nil
}

// streamContainerOutput follows a container's combined output until the
// container exits. Docker multiplexes stdout and stderr over one stream;
// stdcopy demultiplexes them into out. A nil out drains silently.
func streamContainerOutput(ctx context.Context, cli *Client, containerID string, out io.Writer) error {
	logs, err := cli.Inner().ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("attaching to container output: %w", err)
	}
	defer logs.Close()

	if out == nil {
		out = io.Discard
	}
	if _, err := stdcopy.StdCopy(out, out, logs); err != nil {
		return fmt.Errorf("reading container output: %w", err)
	}
	return nil
}

// commitChanges renders the Dockerfile-style change list for a commit:
// one LABEL per recipe label plus a CMD resetting the committed image's
// command to the base image's.
func commitChanges(labels map[string]string, baseCmd []string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changes := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		changes = append(changes, fmt.Sprintf("LABEL %s=%q", k, labels[k]))
	}

	cmd, _ := json.Marshal(baseCmd)
	changes = append(changes, "CMD "+string(cmd))
	return changes
}
