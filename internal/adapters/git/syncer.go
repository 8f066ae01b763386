// Package git implements source synchronization for the local checkout.
package git

import (
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"

	"github.com/zwg/restage/pkg/logger"
)

// Syncer implements ports.SourceService using go-git.
type Syncer struct{}

// NewSyncer creates a new source syncer.
func NewSyncer() *Syncer {
	return &Syncer{}
}

// Sync fast-forwards the checkout at dir from its origin remote. An
// already-up-to-date checkout is success; anything else is reported to the
// caller, which treats it as advisory.
func (s *Syncer) Sync(ctx context.Context, dir string) error {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	logger.Info("syncing source checkout", "dir", dir)
	err = worktree.PullContext(ctx, &gogit.PullOptions{
		RemoteName: "origin",
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		logger.Debug("checkout already up to date", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", dir, err)
	}
	return nil
}
