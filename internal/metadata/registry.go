package metadata

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Fetcher retrieves a fresh configuration snapshot from a repository.
type Fetcher interface {
	FetchMetadata(ctx context.Context) (*Snapshot, error)
}

// Registry publishes the current snapshot of one repository.
//
// Thread-safety: all methods are safe for concurrent use. Snapshots are
// swapped atomically; readers that hold an older snapshot keep a consistent
// view until they call Current again.
type Registry struct {
	repository string
	current    atomic.Pointer[Snapshot]
	logger     *slog.Logger
}

// NewRegistry creates a registry. initial may be nil until the first refresh.
func NewRegistry(repository string, initial *Snapshot) *Registry {
	r := &Registry{repository: repository, logger: slog.Default()}
	if initial != nil {
		r.current.Store(initial)
	}
	return r
}

// WithLogger sets the registry's logger and returns the registry.
func (r *Registry) WithLogger(l *slog.Logger) *Registry {
	r.logger = l
	return r
}

// Repository returns the repository URL this registry serves.
func (r *Registry) Repository() string {
	return r.repository
}

// Current returns the published snapshot, or nil if none was ever loaded.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap publishes s and returns the previous snapshot.
func (r *Registry) Swap(s *Snapshot) *Snapshot {
	return r.current.Swap(s)
}

// Refresh fetches a new snapshot and publishes it. On failure the previous
// snapshot stays published and a ConfigurationUnavailable error is returned.
func (r *Registry) Refresh(ctx context.Context, f Fetcher) (*Snapshot, error) {
	s, err := f.FetchMetadata(ctx)
	if err != nil {
		r.logger.Warn("metadata refresh failed, keeping last snapshot",
			"repository", r.repository,
			"error", err,
		)
		return r.Current(), Unavailable(r.repository, "fetch repository configuration", err)
	}
	if s == nil {
		return r.Current(), Unavailable(r.repository, "repository returned no configuration", nil)
	}
	prev := r.Swap(s)

	var prevRev int64
	if prev != nil {
		prevRev = prev.Revision
	}
	r.logger.Info("metadata refreshed",
		"repository", r.repository,
		"revision", s.Revision,
		"previous_revision", prevRev,
		"products", len(s.Products),
	)
	return s, nil
}
