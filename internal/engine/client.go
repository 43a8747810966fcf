// Package engine drives the Docker daemon for kiln: building images from
// rendered Dockerfiles, baking them by committing provisioned containers,
// and discovering previously baked images through their labels.
//
// The label schema in labels.go is the only persistence kiln has. Every
// image the engine produces carries the full recipe metadata as labels,
// and every query reconstructs domain records from those labels alone.
package engine

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/mossrock-dev/kiln/internal/model"
)

// defaultPingTimeout bounds how long a daemon liveness probe may take.
// 5 seconds covers Docker Desktop on macOS, which responds noticeably
// slower than native Linux Docker.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker Engine SDK client. It adds automatic socket
// detection across platforms and maps daemon connectivity failures to
// kiln exit codes.
//
// Usage:
//
//	c, err := engine.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	// inner is the underlying Docker SDK client. Wrapped rather than
	// embedded so the exposed surface stays under our control.
	inner *client.Client
}

// NewClient creates a Docker client with automatic socket detection.
//
// Detection order:
//  1. DOCKER_HOST environment variable, used as-is when set
//  2. Platform defaults:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning if no socket is
// found or the client cannot be created.
func NewClient() (*Client, error) {
	// DOCKER_HOST wins unconditionally; the SDK parses the connection
	// string.
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return newClientWithHost(host)
	}

	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker socket not found",
			err,
		)
	}

	return newClientWithHost(host)
}

// newClientWithHost creates a Docker client connected to the given host
// string (e.g. "unix:///var/run/docker.sock").
func newClientWithHost(host string) (*Client, error) {
	// API version negotiation keeps the client compatible with older
	// daemons without hardcoding a version.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &Client{inner: c}, nil
}

// detectDockerHost determines the Docker socket for the current platform.
// It probes known socket paths and returns the first that exists; actual
// daemon liveness is Ping's job.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
		})

	case "darwin":
		// Docker Desktop symlinks /var/run/docker.sock when allowed;
		// newer versions fall back to a per-user socket.
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{
				"/var/run/docker.sock",
			})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// Named pipes do not answer os.Stat, so probe with a short dial.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the Docker host URI for the first socket path
// that exists on the filesystem. Paths are checked in preference order.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf(
		"Docker socket not found at any of %v: is Docker running?",
		paths,
	)
}

// Ping verifies that the Docker daemon is reachable and responsive.
//
// Returns a model.CLIError with ExitDockerNotRunning if the daemon does
// not answer within defaultPingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding: is Docker running?",
			err,
		)
	}
	return nil
}

// Close releases the resources held by the client. Safe to call more
// than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Inner exposes the underlying SDK client for operations the wrapper
// does not cover.
func (c *Client) Inner() *client.Client {
	return c.inner
}
