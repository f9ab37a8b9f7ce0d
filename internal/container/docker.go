package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the subset of *client.Client used by Docker.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	Events(ctx context.Context, options events.ListOptions) (<-chan events.Message, <-chan error)
	Close() error
}

var _ dockerAPI = (*client.Client)(nil)

// Docker implements Runtime against the Docker Engine API.
type Docker struct {
	api    dockerAPI
	logger *slog.Logger
}

var _ Runtime = (*Docker)(nil)

// Connect creates an Engine API client from the environment (DOCKER_HOST etc.).
func Connect(logger *slog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewDocker(cli, logger), nil
}

func NewDocker(api dockerAPI, logger *slog.Logger) *Docker {
	return &Docker{
		api:    api,
		logger: logger.With("component", "docker"),
	}
}

// Ping reports whether the daemon answers.
func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.api.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.api.Close()
}

func (d *Docker) ImageAvailable(ctx context.Context, ref string) error {
	d.logger.Debug("inspecting image", "image", ref)
	if _, _, err := d.api.ImageInspectWithRaw(ctx, ref); err != nil {
		return classify(opImage, ref, err)
	}
	return nil
}

// Run creates and starts a detached container. A container whose start
// fails is left in place so the caller can inspect or destroy it.
func (d *Docker) Run(ctx context.Context, spec Spec) (string, error) {
	port := nat.Port(spec.ContainerPort + "/tcp")

	cfg := &container.Config{
		Image:        spec.Image,
		Hostname:     spec.Hostname,
		Env:          envList(spec.Env),
		Labels:       spec.Labels,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostPort: spec.HostPort}},
		},
		AutoRemove: spec.AutoRemove,
	}

	d.logger.Info("creating container", "container", spec.Name, "image", spec.Image, "port", spec.HostPort)
	resp, err := d.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", classify(opCreate, spec.Name, err)
	}
	for _, w := range resp.Warnings {
		d.logger.Warn("docker warning", "container", spec.Name, "warning", w)
	}

	if err := d.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, classify(opStart, spec.Name, err)
	}
	return resp.ID, nil
}

func (d *Docker) Start(ctx context.Context, name string) error {
	d.logger.Info("starting container", "container", name)
	if err := d.api.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return classify(opStart, name, err)
	}
	return nil
}

func (d *Docker) Stop(ctx context.Context, name string, gracePeriod time.Duration) error {
	d.logger.Info("stopping container", "container", name, "grace_period", gracePeriod)
	secs := int(gracePeriod.Seconds())
	if err := d.api.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		return classify(opStop, name, err)
	}
	return nil
}

func (d *Docker) Remove(ctx context.Context, name string, force bool) error {
	d.logger.Info("removing container", "container", name, "force", force)
	if err := d.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: force}); err != nil {
		return classify(opRemove, name, err)
	}
	return nil
}

// Exec runs cmd inside the container, waits for it to finish and returns its exit code.
func (d *Docker) Exec(ctx context.Context, name string, cmd []string) (int, error) {
	created, err := d.api.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, classify(opExec, name, err)
	}

	resp, err := d.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, classify(opExec, name, err)
	}
	// Output is not needed, only the exit code; draining waits for the process.
	_, _ = io.Copy(io.Discard, resp.Reader)
	resp.Close()

	for {
		info, err := d.api.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return -1, classify(opInspect, name, err)
		}
		if !info.Running {
			return info.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
