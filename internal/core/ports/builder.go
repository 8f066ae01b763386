package ports

import "context"

// BuilderService defines operations for building container images from a
// source checkout.
type BuilderService interface {
	// BuildImage builds an image from the checkout at contextDir and tags it.
	// The same tag is overwritten on every build.
	BuildImage(ctx context.Context, contextDir string, tag string) (string, error)
}
