package clibackend

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerSandbox runs a CLI invocation inside a short-lived container,
// mounting the workspace read-write and discarding the container once
// its output has been captured.
type DockerSandbox struct {
	cli *client.Client
}

// NewDockerSandbox connects to the local Docker daemon using the
// environment's usual DOCKER_HOST configuration.
func NewDockerSandbox() (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("clibackend: connect to docker: %w", err)
	}
	return &DockerSandbox{cli: cli}, nil
}

func (d *DockerSandbox) Run(ctx context.Context, image string, args []string, stdin string, workDir string) (string, string, int, error) {
	if image == "" {
		return "", "", -1, fmt.Errorf("clibackend: docker sandbox requires an image")
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:        image,
		Cmd:          args,
		Tty:          false,
		WorkingDir:   "/workspace",
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    stdin != "",
		StdinOnce:    stdin != "",
	}, &container.HostConfig{
		AutoRemove: false,
		Binds:      []string{workDir + ":/workspace"},
	}, nil, nil, fmt.Sprintf("protoctl-engine-%d", time.Now().UnixNano()))
	if err != nil {
		return "", "", -1, fmt.Errorf("clibackend: create container: %w", err)
	}
	defer d.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", "", -1, fmt.Errorf("clibackend: start container: %w", err)
	}

	waitCh, errCh := d.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return "", "", -1, fmt.Errorf("clibackend: wait container: %w", err)
		}
	case res := <-waitCh:
		exitCode = int(res.StatusCode)
	}

	logs, err := d.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", exitCode, fmt.Errorf("clibackend: read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", exitCode, fmt.Errorf("clibackend: demux container logs: %w", err)
	}
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), exitCode, nil
}
