package ports

import "context"

// SourceService synchronizes the local checkout with its upstream before a
// build. Failures here are advisory: the build proceeds against whatever is
// on disk.
type SourceService interface {
	// Sync fast-forwards the checkout at dir. Already-up-to-date is success.
	Sync(ctx context.Context, dir string) error
}
