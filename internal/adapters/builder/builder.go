// Package builder implements image builds from the local source checkout.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"

	"github.com/zwg/restage/pkg/logger"
)

// Adapter implements ports.BuilderService using the Docker build API.
type Adapter struct {
	cli *client.Client
}

// NewAdapter creates a new builder adapter instance.
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

// BuildImage builds an image from the checkout at contextDir and tags it.
// The previous image under the same tag is overwritten.
func (a *Adapter) BuildImage(ctx context.Context, contextDir string, tag string) (string, error) {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildCtx.Close()

	logger.Info("building image", "tag", tag, "context", contextDir)
	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true, // Remove intermediate containers
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The build runs server-side; the response body is a JSON message stream
	// that must be drained for the build to finish, and it carries the build
	// error if one occurred.
	if err := drainBuildOutput(resp.Body); err != nil {
		return "", fmt.Errorf("image build failed: %w", err)
	}

	return tag, nil
}

type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

func drainBuildOutput(body io.Reader) error {
	decoder := json.NewDecoder(body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("could not decode build output: %w", err)
		}

		if msg.Error != "" {
			if msg.ErrorDetail.Message != "" {
				return fmt.Errorf("%s", msg.ErrorDetail.Message)
			}
			return fmt.Errorf("%s", msg.Error)
		}
	}
}
