package repository

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"feed-engine/internal/domain"
)

// LoadResult carries the entities read from storage plus one error per record
// that had to be skipped.
type LoadResult struct {
	Users     []domain.User
	Posts     []domain.Post
	Malformed *multierror.Error
}

func (r LoadResult) MalformedCount() int {
	if r.Malformed == nil {
		return 0
	}
	return len(r.Malformed.Errors)
}

// SnapshotRepository persists the whole store at once.
type SnapshotRepository interface {
	Init(ctx context.Context) error
	// Load never fails on a bad record; those are reported in LoadResult.Malformed.
	// A returned error means a backing file or table could not be read; the
	// result still holds whatever was read.
	Load(ctx context.Context) (LoadResult, error)
	// Save replaces the persisted state with snap. Failures are logged here,
	// callers only propagate them.
	Save(ctx context.Context, snap domain.Snapshot) error
	// Files lists the paths that hold the persisted state.
	Files() []string
}
