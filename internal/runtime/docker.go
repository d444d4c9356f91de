package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/xweng-opaida/agent-viewer/internal/domain/session"
)

// Docker queries and controls session containers through the Docker API.
// Sessions are identified by the image they were started from.
type Docker struct {
	cli   *client.Client
	image string
}

// NewDocker connects to the Docker daemon using the standard environment
// configuration (DOCKER_HOST etc).
func NewDocker(image string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{cli: cli, image: image}, nil
}

// Close releases the client's connections.
func (d *Docker) Close() error {
	return d.cli.Close()
}

// List returns every running session container along with its captured
// output. Containers that disappear between the list and the log fetch
// are skipped rather than failing the whole query.
func (d *Docker) List(ctx context.Context) ([]session.ContainerInfo, error) {
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("ancestor", d.image),
			filters.Arg("status", "running"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	infos := make([]session.ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		running, err := d.IsRunning(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if !running {
			continue
		}
		output, err := d.Logs(ctx, s.ID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		infos = append(infos, session.ContainerInfo{
			ID:      s.ID,
			Running: true,
			Output:  output,
		})
	}
	return infos, nil
}

// IsRunning reports whether the container exists and is running. An
// absent container is not an error.
func (d *Docker) IsRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", id, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// Logs returns the container's combined stdout and stderr so far.
func (d *Docker) Logs(ctx context.Context, id string) (string, error) {
	reader, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("container logs %s: %w", id, err)
	}
	defer reader.Close()

	// Docker multiplexes both streams over one connection; demux and
	// concatenate, falling back to the raw stream for TTY containers.
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		raw, rerr := io.ReadAll(reader)
		if rerr != nil {
			return "", fmt.Errorf("read container logs %s: %w", id, err)
		}
		return stdout.String() + string(raw), nil
	}
	return stdout.String() + stderr.String(), nil
}

// Stop stops the container. A container that is already gone counts as
// stopped.
func (d *Docker) Stop(ctx context.Context, id string) error {
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}
