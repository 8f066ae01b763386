package ports

import (
	"context"

	"github.com/zwg/restage/internal/core/domain"
)

// ContainerService defines the container-runtime operations the orchestrator
// needs. This interface allows us to switch between Docker, Podman, or a fake
// in-memory runtime in tests without changing the redeploy logic.
type ContainerService interface {
	// FindInstance looks up the container holding the given name.
	// It returns (nil, nil) when no such container exists in any state.
	FindInstance(ctx context.Context, name string) (*domain.Instance, error)
	StopInstance(ctx context.Context, id string) error
	RemoveInstance(ctx context.Context, id string) error
	// StartInstance creates and starts a container per the spec and returns
	// the new container's ID.
	StartInstance(ctx context.Context, spec domain.InstanceSpec) (string, error)
}
