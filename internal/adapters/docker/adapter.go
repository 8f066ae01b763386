// Package docker implements the container service on the Docker SDK.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/zwg/restage/internal/core/domain"
	"github.com/zwg/restage/pkg/logger"
)

// Adapter implements ports.ContainerService using the Docker SDK.
type Adapter struct {
	cli *client.Client
}

// NewAdapter creates a new Docker adapter instance.
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// NewAdapterWithClient creates an adapter around an existing client.
func NewAdapterWithClient(cli *client.Client) *Adapter {
	return &Adapter{cli: cli}
}

// FindInstance looks up a container by name in any state. A missing container
// is (nil, nil), not an error, so teardown gating stays idempotent.
func (a *Adapter) FindInstance(ctx context.Context, name string) (*domain.Instance, error) {
	inspect, err := a.cli.ContainerInspect(ctx, name)
	if errdefs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	inst := &domain.Instance{
		ID:   inspect.ID[:12], // Short ID
		Name: strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.Config != nil {
		inst.Image = inspect.Config.Image
	}
	if inspect.State != nil {
		inst.State = inspect.State.Status
		inst.Status = inspect.State.Status
	}
	return inst, nil
}

// StopInstance stops a running container gracefully.
func (a *Adapter) StopInstance(ctx context.Context, id string) error {
	timeout := 10 * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	seconds := int(timeout.Seconds())
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

// RemoveInstance removes a container in any state.
func (a *Adapter) RemoveInstance(ctx context.Context, id string) error {
	if err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

// StartInstance creates and starts a container per the spec: same port number
// published on host and exposed in the container, the environment injected
// verbatim, bind mounts as given, and a restart policy that survives crashes
// but respects an explicit stop.
func (a *Adapter) StartInstance(ctx context.Context, spec domain.InstanceSpec) (string, error) {
	port := nat.Port(fmt.Sprintf("%d/tcp", spec.Port))

	exposedPorts := nat.PortSet{port: struct{}{}}
	portBindings := nat.PortMap{
		port: []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(spec.Port),
			},
		},
	}

	var binds []string
	for _, b := range spec.Binds {
		bind := b.HostPath + ":" + b.ContainerPath
		if b.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
		logger.Debug("adding bind mount", "host", b.HostPath, "container", b.ContainerPath, "readonly", b.ReadOnly)
	}

	resp, err := a.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			ExposedPorts: exposedPorts,
		},
		&container.HostConfig{
			PortBindings: portBindings,
			Binds:        binds,
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyUnlessStopped,
			},
		},
		nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	logger.Info("container started", "name", spec.Name, "id", resp.ID[:12], "port", spec.Port)
	return resp.ID, nil
}
